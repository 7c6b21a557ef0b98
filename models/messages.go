package models

import (
	"time"

	"github.com/google/uuid"
)

type MessageStatus string

const (
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
)

// Rank orders statuses along sent → delivered → read. Unknown statuses rank -1.
func (s MessageStatus) Rank() int {
	switch s {
	case MessageSent:
		return 0
	case MessageDelivered:
		return 1
	case MessageRead:
		return 2
	default:
		return -1
	}
}

func (s MessageStatus) Valid() bool {
	return s.Rank() >= 0
}

// Below returns the statuses a message may hold to be advanced to s.
func (s MessageStatus) Below() []MessageStatus {
	var out []MessageStatus
	for _, st := range []MessageStatus{MessageSent, MessageDelivered, MessageRead} {
		if st.Rank() < s.Rank() {
			out = append(out, st)
		}
	}
	return out
}

type MessageVisibility string

const (
	MessageVisible MessageVisibility = "visible"
	MessageDeleted MessageVisibility = "deleted"
)

const MessageTypeText = "text"

type Message struct {
	Model
	ConversationID uuid.UUID         `gorm:"type:uuid;not null;index:idx_messages_conversation_created,priority:1" json:"conversation_id"`
	SenderID       string            `gorm:"type:varchar(64);not null;index" json:"sender_id"`
	Content        string            `gorm:"type:text" json:"content"`
	Type           string            `gorm:"type:varchar(32);not null;default:text" json:"type"`
	Status         MessageStatus     `gorm:"type:varchar(16);not null;default:sent" json:"status"`
	Visibility     MessageVisibility `gorm:"type:varchar(16);not null;default:visible" json:"visibility"`
	DeletedAt      *time.Time        `json:"deleted_at,omitempty"`
}

func (m *Message) IsDeleted() bool {
	return m.Visibility == MessageDeleted
}

// MessagePage is one cursor page of a conversation, newest first.
type MessagePage struct {
	Messages   []Message `json:"messages"`
	TotalCount int64     `json:"total_count"`
	HasMore    bool      `json:"has_more"`
	NextCursor *string   `json:"next_cursor"`
}
