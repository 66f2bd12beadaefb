package models

import (
	"time"

	"gorm.io/gorm"
)

// Leaderboard holds one original image that players describe, together with the
// reference description and keywords the scoring engine compares against.
type Leaderboard struct {
	ID            string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Title         string         `gorm:"not null" json:"title"`
	OriginalImage string         `gorm:"size:500;not null" json:"original_image"` // object key in the image store
	ReferenceText string         `gorm:"type:text;not null" json:"reference_text"`
	Keywords      string         `gorm:"type:text" json:"keywords,omitempty"` // comma-separated
	Program       string         `gorm:"size:100" json:"program,omitempty"`
	IsActive      bool           `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Rounds []Round `gorm:"foreignKey:LeaderboardID" json:"rounds,omitempty"`
}

// Standing is one row of a leaderboard ranking, aggregated from completed rounds.
type Standing struct {
	PlayerID   string  `json:"player_id"`
	PlayerName string  `json:"player_name"`
	BestTotal  float64 `json:"best_total"`
	BestRank   string  `json:"best_rank"`
	Rounds     int64   `json:"rounds"`
}
