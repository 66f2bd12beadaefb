package models

import (
	"time"

	"gorm.io/gorm"
)

// Chat message senders.
const (
	SenderPlayer    = "player"
	SenderAssistant = "assistant"
	SenderSystem    = "system"
)

// ChatMessage is one turn in the hint/feedback conversation of a round.
// Messages are append-only and strictly ordered by TurnOrder within a round.
type ChatMessage struct {
	ID        string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	RoundID   string         `gorm:"type:uuid;not null;index" json:"round_id"`
	TurnOrder int            `gorm:"not null" json:"turn_order"`
	Sender    string         `gorm:"not null;check:sender IN ('player', 'assistant', 'system')" json:"sender"`
	Content   string         `gorm:"type:text;not null" json:"content"`
	IsHint    bool           `gorm:"default:false" json:"is_hint"`
	Timestamp time.Time      `gorm:"not null" json:"timestamp"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Round *Round `gorm:"foreignKey:RoundID" json:"round,omitempty"`
}
