package models

import (
	"time"

	"github.com/google/uuid"
)

type ParticipantStatus string

const (
	ParticipantActive   ParticipantStatus = "active"
	ParticipantInactive ParticipantStatus = "inactive"
)

// Participant is a user's membership in one conversation. Rows are never
// deleted; removal flips Status to inactive and stamps LeftAt. The unique
// index keeps one row per (conversation, user), so re-adding reactivates.
type Participant struct {
	Model
	ConversationID uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_participants_member,priority:1" json:"conversation_id"`
	UserID         string            `gorm:"type:varchar(64);not null;uniqueIndex:idx_participants_member,priority:2;index" json:"user_id"`
	Status         ParticipantStatus `gorm:"type:varchar(16);not null;default:active;index" json:"status"`
	JoinedAt       time.Time         `gorm:"not null" json:"joined_at"`
	LastReadAt     time.Time         `gorm:"not null" json:"last_read_at"`
	LeftAt         *time.Time        `json:"left_at,omitempty"`
}

func (p *Participant) IsActive() bool {
	return p.Status == ParticipantActive
}
