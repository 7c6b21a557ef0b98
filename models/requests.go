package models

import "github.com/google/uuid"

type CreateConversationRequest struct {
	ParticipantIDs []string         `json:"participant_ids" binding:"required,min=1,dive,required,max=64"`
	Type           ConversationType `json:"type" binding:"required,oneof=private group"`
	Name           *string          `json:"name" binding:"omitempty,max=255"`
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required" conform:"trim"`
	Type    string `json:"type" binding:"omitempty,max=32" conform:"trim,lower"`
}

type AddParticipantsRequest struct {
	UserIDs []string `json:"user_ids" binding:"required,min=1,dive,required,max=64"`
}

type MarkReadRequest struct {
	MessageID *uuid.UUID `json:"message_id"`
}

type UpdateMessageStatusRequest struct {
	Status MessageStatus `json:"status" binding:"required" conform:"trim,lower"`
}

type SetPresenceRequest struct {
	IsOnline *bool `json:"is_online" binding:"required"`
}

type RealtimeTokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	URL       string `json:"url"`
}
