package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/techagentng/citizenchat/config"
	"github.com/techagentng/citizenchat/db"
	apiError "github.com/techagentng/citizenchat/errors"
	"github.com/techagentng/citizenchat/models"
)

// MessageService handles messages inside conversations the caller belongs to.
type MessageService interface {
	CreateMessage(ctx context.Context, conversationID uuid.UUID, senderID string, req *models.SendMessageRequest) (*models.Message, error)
	GetMessages(ctx context.Context, conversationID uuid.UUID, userID string, limit int, cursor string) (*models.MessagePage, error)
	DeleteMessage(ctx context.Context, messageID uuid.UUID, userID string) (*models.Message, error)
	UpdateMessageStatus(ctx context.Context, messageID uuid.UUID, status models.MessageStatus, userID string) (*models.Message, error)
	SearchMessages(ctx context.Context, conversationID uuid.UUID, userID, query string, limit int) ([]models.Message, error)
}

type messageService struct {
	Config   *config.Config
	convRepo db.ConversationRepository
	msgRepo  db.MessageRepository
	notifier Notifier
}

func NewMessageService(convRepo db.ConversationRepository, msgRepo db.MessageRepository, conf *config.Config, notifier Notifier) MessageService {
	return &messageService{
		Config:   conf,
		convRepo: convRepo,
		msgRepo:  msgRepo,
		notifier: notifierOrNop(notifier),
	}
}

func (s *messageService) CreateMessage(ctx context.Context, conversationID uuid.UUID, senderID string, req *models.SendMessageRequest) (*models.Message, error) {
	if req == nil || strings.TrimSpace(req.Content) == "" {
		return nil, apiError.Validation("content is required")
	}
	if n := utf8.RuneCountInString(req.Content); n > s.Config.MaxMessageLength {
		return nil, apiError.Validation("content exceeds %d characters", s.Config.MaxMessageLength)
	}
	msgType := strings.ToLower(strings.TrimSpace(req.Type))
	if msgType == "" {
		msgType = models.MessageTypeText
	}

	if err := requireParticipant(ctx, s.convRepo, conversationID, senderID); err != nil {
		return nil, err
	}
	msg := &models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        req.Content,
		Type:           msgType,
	}
	if err := s.msgRepo.Create(ctx, msg); err != nil {
		return nil, err
	}
	log.Debug("message created", "id", msg.ID, "conversation", conversationID, "sender", senderID)
	publishToMembers(ctx, s.convRepo, s.notifier, conversationID, models.EventMessageCreated, msg)
	return msg, nil
}

// GetMessages returns one page of the conversation, newest first. cursor is
// the NextCursor of the previous page, or empty for the first page.
func (s *messageService) GetMessages(ctx context.Context, conversationID uuid.UUID, userID string, limit int, cursor string) (*models.MessagePage, error) {
	if err := requireParticipant(ctx, s.convRepo, conversationID, userID); err != nil {
		return nil, err
	}
	limit, err := pageSize(limit, s.Config.DefaultPageSize, s.Config.MaxPageSize)
	if err != nil {
		return nil, err
	}
	var after *db.Cursor
	if cursor != "" {
		if after, err = db.DecodeCursor(cursor); err != nil {
			return nil, err
		}
	}

	msgs, hasMore, err := s.msgRepo.Page(ctx, conversationID, limit, after)
	if err != nil {
		return nil, err
	}
	total, err := s.msgRepo.Count(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	page := &models.MessagePage{
		Messages:   msgs,
		TotalCount: total,
		HasMore:    hasMore,
	}
	if page.Messages == nil {
		page.Messages = []models.Message{}
	}
	if hasMore {
		next := db.CursorFor(&msgs[len(msgs)-1]).Encode()
		page.NextCursor = &next
	}
	return page, nil
}

func (s *messageService) DeleteMessage(ctx context.Context, messageID uuid.UUID, userID string) (*models.Message, error) {
	msg, err := s.msgRepo.Tombstone(ctx, messageID, userID)
	if err != nil {
		return nil, err
	}
	log.Info("message deleted", "id", msg.ID, "conversation", msg.ConversationID)
	publishToMembers(ctx, s.convRepo, s.notifier, msg.ConversationID, models.EventMessageDeleted, msg)
	return msg, nil
}

func (s *messageService) UpdateMessageStatus(ctx context.Context, messageID uuid.UUID, status models.MessageStatus, userID string) (*models.Message, error) {
	status = models.MessageStatus(strings.ToLower(strings.TrimSpace(string(status))))
	if !status.Valid() {
		return nil, apiError.Validation("status must be one of sent, delivered, read")
	}
	msg, err := s.msgRepo.AdvanceStatus(ctx, messageID, userID, status)
	if err != nil {
		return nil, err
	}
	publishToMembers(ctx, s.convRepo, s.notifier, msg.ConversationID, models.EventMessageStatus, msg)
	return msg, nil
}

// SearchMessages matches content case-insensitively within one conversation.
// Results are ordered by recency, newest first.
func (s *messageService) SearchMessages(ctx context.Context, conversationID uuid.UUID, userID, query string, limit int) ([]models.Message, error) {
	if err := requireParticipant(ctx, s.convRepo, conversationID, userID); err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apiError.Validation("query is required")
	}
	limit, err := pageSize(limit, s.Config.MaxSearchResults, s.Config.MaxSearchResults)
	if err != nil {
		return nil, err
	}
	msgs, err := s.msgRepo.Search(ctx, conversationID, query, limit)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return msgs, nil
}
