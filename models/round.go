package models

import (
	"time"

	"gorm.io/gorm"
)

// Round stages. A round is created in StageStarted and is immutable once it
// reaches StageEnded.
const (
	StageStarted           = "started"
	StageSentenceSubmitted = "sentence_submitted"
	StageEvaluated         = "evaluated"
	StageEnded             = "ended"
)

// Round records one attempt by one player at describing a leaderboard's
// original image. At most one round per (player, leaderboard) pair is active
// at a time.
type Round struct {
	ID               string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	PlayerID         string         `gorm:"type:uuid;not null;index" json:"player_id"`
	LeaderboardID    string         `gorm:"type:uuid;not null;index" json:"leaderboard_id"`
	Stage            string         `gorm:"not null;default:'started';check:stage IN ('started', 'sentence_submitted', 'evaluated', 'ended')" json:"stage"`
	Program          string         `gorm:"size:100" json:"program,omitempty"`
	Model            string         `gorm:"size:100" json:"model,omitempty"`
	LastGenerationID string         `gorm:"type:uuid" json:"last_generation_id,omitempty"`
	StartedAt        time.Time      `gorm:"not null" json:"started_at"`
	EndedAt          *time.Time     `json:"ended_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Player      User          `gorm:"foreignKey:PlayerID" json:"player,omitempty"`
	Leaderboard Leaderboard   `gorm:"foreignKey:LeaderboardID" json:"leaderboard,omitempty"`
	Generations []Generation  `gorm:"foreignKey:RoundID" json:"generations,omitempty"`
	Messages    []ChatMessage `gorm:"foreignKey:RoundID" json:"messages,omitempty"`
}

// Generation is one submitted sentence within a round and everything derived
// from it. Exactly one generation is live per round; a resubmission supersedes
// the previous one. Immutable once Completed is set.
type Generation struct {
	ID                string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	RoundID           string         `gorm:"type:uuid;not null;index" json:"round_id"`
	Sentence          string         `gorm:"type:text;not null" json:"sentence"`
	CorrectedSentence string         `gorm:"type:text" json:"corrected_sentence,omitempty"`
	InterpretedImage  string         `gorm:"size:500" json:"interpreted_image,omitempty"` // object key in the image store
	Completed         bool           `gorm:"default:false" json:"completed"`
	Score             *Score         `gorm:"embedded;embeddedPrefix:score_" json:"score,omitempty"`
	SubmittedAt       time.Time      `gorm:"not null" json:"submitted_at"`
	CompletedAt       *time.Time     `json:"completed_at,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Round *Round `gorm:"foreignKey:RoundID" json:"round,omitempty"`
}

// Score is the immutable result of evaluating one generation. Total is a
// deterministic function of the component scores; Rank is a step function of
// Total.
type Score struct {
	Grammar       float64 `gorm:"type:decimal(5,2)" json:"grammar"`        // 0 to 100
	Vocabulary    float64 `gorm:"type:decimal(5,2)" json:"vocabulary"`     // 0 to 100
	Keyword       float64 `gorm:"type:decimal(4,3)" json:"keyword"`        // 0 to 1, content similarity
	Structural    float64 `gorm:"type:decimal(4,3)" json:"structural"`     // 0 to 1, image-vs-image similarity
	Effectiveness float64 `gorm:"type:decimal(5,2)" json:"effectiveness"`  // 0 to 100, blended similarity
	Total         float64 `gorm:"type:decimal(5,2)" json:"total"`          // 0 to 100
	Rank          string  `gorm:"size:3" json:"rank"`                      // SSS..F
}
