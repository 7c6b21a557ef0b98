package models

import (
	"sort"
	"strings"
)

type ConversationType string

const (
	ConversationPrivate ConversationType = "private"
	ConversationGroup   ConversationType = "group"
)

func (t ConversationType) Valid() bool {
	return t == ConversationPrivate || t == ConversationGroup
}

// Conversation is a durable container of messages among participants.
// PairKey is only set for private conversations and is unique, which is
// what makes lookup-or-create safe under concurrent requests.
type Conversation struct {
	Model
	Type         ConversationType `gorm:"type:varchar(16);not null;index" json:"type"`
	Name         *string          `gorm:"type:varchar(255)" json:"name,omitempty"`
	PairKey      *string          `gorm:"type:varchar(160);uniqueIndex" json:"-"`
	Participants []Participant    `gorm:"foreignKey:ConversationID" json:"participants"`
}

// PrivatePairKey returns the canonical key of a two-user conversation.
func PrivatePairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "|")
}

// ConversationSummary is one row of a user's conversation list.
type ConversationSummary struct {
	Conversation
	LastMessage *Message `json:"last_message"`
	UnreadCount int64    `json:"unread_count"`
}

type ConversationList struct {
	Conversations []ConversationSummary `json:"conversations"`
	Total         int64                 `json:"total"`
	Limit         int                   `json:"limit"`
	Offset        int                   `json:"offset"`
}

// ConversationDetail is returned on creation: the conversation with its
// participants and empty message fields.
type ConversationDetail struct {
	Conversation
	Messages    []Message `json:"messages"`
	LastMessage *Message  `json:"last_message"`
}
