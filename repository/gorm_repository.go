package repository

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/koukarei/Avery-sub001/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GORMRepository struct {
	db *gorm.DB

	// Per-round write serialization. All durable writes for one round happen
	// in submission order even when snapshot saves are fired asynchronously.
	roundLocks sync.Map // round id -> *sync.Mutex
}

func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

// AutoMigrate runs database migrations
func (r *GORMRepository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&models.User{},
		&models.Leaderboard{},
		&models.Round{},
		&models.Generation{},
		&models.ChatMessage{},
		&models.RefreshToken{},
	)
}

func (r *GORMRepository) roundLock(roundID string) *sync.Mutex {
	lock, _ := r.roundLocks.LoadOrStore(roundID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// User operations
func (r *GORMRepository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		slog.Error("Failed to create user", "error", err)
		return err
	}
	slog.Info("User created", "user_id", user.ID, "email", user.Email)
	return nil
}

func (r *GORMRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get user by email", "error", err, "email", email)
		return nil, err
	}
	return &user, nil
}

func (r *GORMRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get user by ID", "error", err, "user_id", id)
		return nil, err
	}
	return &user, nil
}

// Token operations
func (r *GORMRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		slog.Error("Failed to create refresh token", "error", err)
		return err
	}
	return nil
}

func (r *GORMRepository) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var refreshToken models.RefreshToken
	if err := r.db.WithContext(ctx).Where("token = ? AND expires_at > ?", token, time.Now()).First(&refreshToken).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get refresh token", "error", err)
		return nil, err
	}
	return &refreshToken, nil
}

func (r *GORMRepository) DeleteRefreshToken(ctx context.Context, token string) error {
	if err := r.db.WithContext(ctx).Where("token = ?", token).Delete(&models.RefreshToken{}).Error; err != nil {
		slog.Error("Failed to delete refresh token", "error", err)
		return err
	}
	return nil
}

func (r *GORMRepository) DeleteAllUserTokens(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		slog.Error("Failed to delete user refresh tokens", "error", err, "user_id", userID)
		return err
	}
	return nil
}

// Leaderboard operations
func (r *GORMRepository) CreateLeaderboard(ctx context.Context, leaderboard *models.Leaderboard) error {
	if err := r.db.WithContext(ctx).Create(leaderboard).Error; err != nil {
		slog.Error("Failed to create leaderboard", "error", err)
		return err
	}
	slog.Info("Leaderboard created", "leaderboard_id", leaderboard.ID, "title", leaderboard.Title)
	return nil
}

func (r *GORMRepository) GetLeaderboardByID(ctx context.Context, id string) (*models.Leaderboard, error) {
	var leaderboard models.Leaderboard
	if err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", id, true).First(&leaderboard).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get leaderboard by ID", "error", err, "leaderboard_id", id)
		return nil, err
	}
	return &leaderboard, nil
}

func (r *GORMRepository) ListLeaderboards(ctx context.Context) ([]models.Leaderboard, error) {
	var leaderboards []models.Leaderboard
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("created_at").Find(&leaderboards).Error; err != nil {
		slog.Error("Failed to list leaderboards", "error", err)
		return nil, err
	}
	return leaderboards, nil
}

// CountLeaderboards returns the number of leaderboards including inactive
// ones. Used by the seeder to decide whether demo data is needed.
func (r *GORMRepository) CountLeaderboards(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Leaderboard{}).Count(&count).Error; err != nil {
		slog.Error("Failed to count leaderboards", "error", err)
		return 0, err
	}
	return count, nil
}

// GetStandings aggregates completed rounds into a per-player ranking for one
// leaderboard, best total first.
func (r *GORMRepository) GetStandings(ctx context.Context, leaderboardID string, limit int) ([]models.Standing, error) {
	var standings []models.Standing
	err := r.db.WithContext(ctx).
		Table("rounds").
		Select(`rounds.player_id,
			users.full_name AS player_name,
			MAX(generations.score_total) AS best_total,
			COUNT(DISTINCT rounds.id) AS rounds`).
		Joins("JOIN generations ON generations.round_id = rounds.id AND generations.completed").
		Joins("JOIN users ON users.id = rounds.player_id").
		Where("rounds.leaderboard_id = ? AND rounds.stage = ?", leaderboardID, models.StageEnded).
		Group("rounds.player_id, users.full_name").
		Order("best_total DESC").
		Limit(limit).
		Scan(&standings).Error
	if err != nil {
		slog.Error("Failed to get standings", "error", err, "leaderboard_id", leaderboardID)
		return nil, err
	}
	return standings, nil
}

// Round operations

// SaveRoundSnapshot upserts the round record together with its transcript and
// generations. Writes for one round are serialized so a late snapshot never
// overtakes a newer one; the write itself is idempotent on retry.
func (r *GORMRepository) SaveRoundSnapshot(ctx context.Context, round *models.Round) error {
	lock := r.roundLock(round.ID)
	lock.Lock()
	defer lock.Unlock()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := *round
		record.Messages = nil
		record.Generations = nil
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&record).Error; err != nil {
			return err
		}

		for i := range round.Messages {
			msg := round.Messages[i]
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&msg).Error; err != nil {
				return err
			}
		}
		for i := range round.Generations {
			gen := round.Generations[i]
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).Create(&gen).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("Failed to save round snapshot", "error", err, "round_id", round.ID)
		return err
	}

	slog.Info("Round snapshot saved", "round_id", round.ID, "stage", round.Stage,
		"messages", len(round.Messages), "generations", len(round.Generations))
	return nil
}

func (r *GORMRepository) SaveGeneration(ctx context.Context, gen *models.Generation) error {
	lock := r.roundLock(gen.RoundID)
	lock.Lock()
	defer lock.Unlock()

	record := *gen
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&record).Error; err != nil {
		slog.Error("Failed to save generation", "error", err, "generation_id", gen.ID)
		return err
	}
	slog.Info("Generation saved", "generation_id", gen.ID, "round_id", gen.RoundID, "completed", gen.Completed)
	return nil
}

func (r *GORMRepository) SaveChatMessage(ctx context.Context, msg *models.ChatMessage) error {
	lock := r.roundLock(msg.RoundID)
	lock.Lock()
	defer lock.Unlock()

	record := *msg
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&record).Error; err != nil {
		slog.Error("Failed to save chat message", "error", err, "message_id", msg.ID)
		return err
	}
	return nil
}

func (r *GORMRepository) GetRoundsForPlayer(ctx context.Context, playerID string) ([]models.Round, error) {
	var rounds []models.Round
	err := r.db.WithContext(ctx).
		Where("player_id = ?", playerID).
		Preload("Leaderboard").
		Order("started_at DESC").
		Find(&rounds).Error
	if err != nil {
		slog.Error("Failed to get rounds for player", "error", err, "player_id", playerID)
		return nil, err
	}
	return rounds, nil
}

func (r *GORMRepository) GetRoundWithDetails(ctx context.Context, roundID, playerID string) (*models.Round, error) {
	var round models.Round
	err := r.db.WithContext(ctx).
		Where("id = ? AND player_id = ?", roundID, playerID).
		Preload("Leaderboard").
		Preload("Generations").
		Preload("Messages", func(db *gorm.DB) *gorm.DB {
			return db.Order("turn_order")
		}).
		First(&round).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get round with details", "error", err, "round_id", roundID, "player_id", playerID)
		return nil, err
	}
	return &round, nil
}

// GetActiveRound returns the player's non-terminal round on a leaderboard, if
// one exists. Used to restore a session after a reconnect.
func (r *GORMRepository) GetActiveRound(ctx context.Context, playerID, leaderboardID string) (*models.Round, error) {
	var round models.Round
	err := r.db.WithContext(ctx).
		Where("player_id = ? AND leaderboard_id = ? AND stage <> ?", playerID, leaderboardID, models.StageEnded).
		First(&round).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get active round", "error", err, "player_id", playerID)
		return nil, err
	}
	return &round, nil
}
