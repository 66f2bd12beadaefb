package services

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log/slog"

	"github.com/koukarei/Avery-sub001/models"
	"github.com/koukarei/Avery-sub001/repository"
	"golang.org/x/crypto/bcrypt"
)

// DatabaseSeeder handles database seeding operations
type DatabaseSeeder struct {
	repo   *repository.GORMRepository
	images *repository.ImageStore
}

// NewDatabaseSeeder creates a new database seeder
func NewDatabaseSeeder(repo *repository.GORMRepository, images *repository.ImageStore) *DatabaseSeeder {
	return &DatabaseSeeder{repo: repo, images: images}
}

type seedLeaderboard struct {
	title         string
	referenceText string
	keywords      string
	program       string
	tint          color.RGBA
}

// SeedDatabase seeds the database with initial data (idempotent)
func (s *DatabaseSeeder) SeedDatabase() error {
	ctx := context.Background()

	count, err := s.repo.CountLeaderboards(ctx)
	if err != nil {
		return fmt.Errorf("failed to count leaderboards: %w", err)
	}
	if count > 0 {
		slog.Info("Database seeding already completed, skipping")
		return nil
	}

	// Hash default password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	// Create test users (no admin users for security)
	users := []models.User{
		{
			Email:    "test@example.com",
			Password: string(hashedPassword),
			FullName: "Test Player",
			Role:     "user",
		},
		{
			Email:    "demo@example.com",
			Password: string(hashedPassword),
			FullName: "Demo Player",
			Role:     "user",
		},
	}

	for _, user := range users {
		if err := s.seedUser(ctx, user); err != nil {
			slog.Error("Failed to seed user", "email", user.Email, "error", err)
		}
	}

	leaderboards := []seedLeaderboard{
		{
			title:         "A Walk in the Park",
			referenceText: "A girl in a red coat is walking a small brown dog along a path between tall green trees.",
			keywords:      "girl,red coat,dog,path,trees",
			program:       "en_beginner",
			tint:          color.RGBA{R: 96, G: 160, B: 96, A: 255},
		},
		{
			title:         "Breakfast Table",
			referenceText: "Two cups of coffee and a plate of toast with jam are on a wooden table near a sunny window.",
			keywords:      "coffee,toast,jam,table,window",
			program:       "en_beginner",
			tint:          color.RGBA{R: 200, G: 160, B: 96, A: 255},
		},
		{
			title:         "Harbor at Dusk",
			referenceText: "Several fishing boats are moored in a calm harbor while the orange sun sets behind distant mountains.",
			keywords:      "boats,harbor,sunset,mountains,water",
			program:       "en_intermediate",
			tint:          color.RGBA{R: 220, G: 120, B: 70, A: 255},
		},
	}

	for _, lb := range leaderboards {
		if err := s.seedLeaderboard(ctx, lb); err != nil {
			slog.Error("Failed to seed leaderboard", "title", lb.title, "error", err)
		}
	}

	slog.Info("Database seeding completed successfully")
	return nil
}

// seedUser seeds a single user (idempotent)
func (s *DatabaseSeeder) seedUser(ctx context.Context, user models.User) error {
	existingUser, err := s.repo.GetUserByEmail(ctx, user.Email)
	if err != nil {
		return fmt.Errorf("error checking user %s: %w", user.Email, err)
	}
	if existingUser != nil {
		slog.Info("User already exists, skipping", "email", user.Email)
		return nil
	}

	if err := s.repo.CreateUser(ctx, &user); err != nil {
		return fmt.Errorf("failed to create user %s: %w", user.Email, err)
	}

	slog.Info("Created user", "email", user.Email)
	return nil
}

// seedLeaderboard stores a placeholder original image and creates the
// leaderboard record pointing at it. Deployments replace these with real
// curated images through the database.
func (s *DatabaseSeeder) seedLeaderboard(ctx context.Context, lb seedLeaderboard) error {
	imageData, err := placeholderImage(lb.tint)
	if err != nil {
		return fmt.Errorf("failed to render placeholder image: %w", err)
	}

	key, err := s.images.Put(ctx, imageData, "image/png")
	if err != nil {
		return fmt.Errorf("failed to store original image: %w", err)
	}

	leaderboard := models.Leaderboard{
		Title:         lb.title,
		OriginalImage: key,
		ReferenceText: lb.referenceText,
		Keywords:      lb.keywords,
		Program:       lb.program,
		IsActive:      true,
	}
	if err := s.repo.CreateLeaderboard(ctx, &leaderboard); err != nil {
		return fmt.Errorf("failed to create leaderboard %s: %w", lb.title, err)
	}

	slog.Info("Created leaderboard", "title", lb.title, "image_key", key)
	return nil
}

// placeholderImage renders a simple vertical gradient in the given tint.
func placeholderImage(tint color.RGBA) ([]byte, error) {
	const size = 256
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		shade := 1.0 - float64(y)/(2*size)
		row := color.RGBA{
			R: uint8(float64(tint.R) * shade),
			G: uint8(float64(tint.G) * shade),
			B: uint8(float64(tint.B) * shade),
			A: 255,
		}
		for x := 0; x < size; x++ {
			img.Set(x, y, row)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
