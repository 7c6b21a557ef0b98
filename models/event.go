package models

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventConversationCreated EventType = "conversation.created"
	EventMessageCreated      EventType = "message.created"
	EventMessageDeleted      EventType = "message.deleted"
	EventMessageStatus       EventType = "message.status"
	EventConversationRead    EventType = "conversation.read"
	EventParticipantAdded    EventType = "participant.added"
	EventParticipantRemoved  EventType = "participant.removed"
	EventPresenceChanged     EventType = "presence.changed"
)

// Event is a state change pushed to connected clients. Recipients is
// resolved at publish time; an empty list means every connected user.
type Event struct {
	Type           EventType   `json:"type"`
	ConversationID *uuid.UUID  `json:"conversation_id,omitempty"`
	Recipients     []string    `json:"-"`
	Data           interface{} `json:"data"`
	OccurredAt     time.Time   `json:"occurred_at"`
}

type ReadReceipt struct {
	UserID     string    `json:"user_id"`
	LastReadAt time.Time `json:"last_read_at"`
}
