package services

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/techagentng/citizenchat/config"
	"github.com/techagentng/citizenchat/db"
	apiError "github.com/techagentng/citizenchat/errors"
	"github.com/techagentng/citizenchat/models"
)

// ConversationService owns conversation lifecycle, membership and read markers.
type ConversationService interface {
	CreateConversation(ctx context.Context, userID string, req *models.CreateConversationRequest) (*models.ConversationDetail, bool, error)
	ListConversations(ctx context.Context, userID string, limit, offset int) (*models.ConversationList, error)
	GetConversation(ctx context.Context, conversationID uuid.UUID, userID string) (*models.Conversation, error)
	AddParticipants(ctx context.Context, conversationID uuid.UUID, actingUserID string, userIDs []string) ([]models.Participant, error)
	RemoveParticipant(ctx context.Context, conversationID uuid.UUID, targetUserID, actingUserID string) (bool, error)
	MarkMessagesAsRead(ctx context.Context, conversationID uuid.UUID, userID string, upToMessageID *uuid.UUID) error
	GetUnreadCount(ctx context.Context, conversationID uuid.UUID, userID string) (int64, error)
	IsActiveParticipant(ctx context.Context, conversationID uuid.UUID, userID string) (bool, error)
}

type conversationService struct {
	Config   *config.Config
	convRepo db.ConversationRepository
	notifier Notifier
}

func NewConversationService(convRepo db.ConversationRepository, conf *config.Config, notifier Notifier) ConversationService {
	return &conversationService{
		Config:   conf,
		convRepo: convRepo,
		notifier: notifierOrNop(notifier),
	}
}

// normalizeUserIDs trims ids, drops blanks and keeps first occurrences in order.
func normalizeUserIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func (s *conversationService) IsActiveParticipant(ctx context.Context, conversationID uuid.UUID, userID string) (bool, error) {
	return s.convRepo.IsActiveParticipant(ctx, conversationID, userID)
}

// requireParticipant is the capability check run first by every
// participant-gated operation.
func requireParticipant(ctx context.Context, repo db.ConversationRepository, conversationID uuid.UUID, userID string) error {
	ok, err := repo.IsActiveParticipant(ctx, conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apiError.ErrNotAParticipant
	}
	return nil
}

// CreateConversation creates a conversation including the caller. A private
// conversation between an existing pair is returned instead of duplicated;
// the boolean reports whether a new row was created.
func (s *conversationService) CreateConversation(ctx context.Context, userID string, req *models.CreateConversationRequest) (*models.ConversationDetail, bool, error) {
	if req == nil {
		return nil, false, apiError.ErrValidation
	}
	if !req.Type.Valid() {
		return nil, false, apiError.Validation("type must be one of private, group")
	}
	participantIDs := normalizeUserIDs(req.ParticipantIDs)
	if len(participantIDs) == 0 {
		return nil, false, apiError.Validation("participant_ids must name at least one user")
	}
	members := normalizeUserIDs(append([]string{userID}, participantIDs...))

	var (
		conv    *models.Conversation
		created bool
		err     error
	)
	switch req.Type {
	case models.ConversationPrivate:
		if len(members) != 2 {
			return nil, false, apiError.Validation("a private conversation has exactly two distinct participants")
		}
		conv, created, err = s.convRepo.FindOrCreatePrivate(ctx, userID, members[1])
	default:
		var name *string
		if req.Name != nil {
			if trimmed := strings.TrimSpace(*req.Name); trimmed != "" {
				name = &trimmed
			}
		}
		conv, err = s.convRepo.CreateGroup(ctx, members, name)
		created = err == nil
	}
	if err != nil {
		return nil, false, err
	}

	if created {
		log.Info("conversation created", "id", conv.ID, "type", conv.Type, "participants", len(members))
		s.notifier.Publish(models.Event{
			Type:           models.EventConversationCreated,
			ConversationID: &conv.ID,
			Recipients:     members,
			Data:           conv,
			OccurredAt:     conv.CreatedAt,
		})
	}
	return &models.ConversationDetail{
		Conversation: *conv,
		Messages:     []models.Message{},
	}, created, nil
}

func (s *conversationService) ListConversations(ctx context.Context, userID string, limit, offset int) (*models.ConversationList, error) {
	limit, err := pageSize(limit, s.Config.DefaultPageSize, s.Config.MaxPageSize)
	if err != nil {
		return nil, err
	}
	if err := checkOffset(offset); err != nil {
		return nil, err
	}
	summaries, total, err := s.convRepo.ListForUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return &models.ConversationList{
		Conversations: summaries,
		Total:         total,
		Limit:         limit,
		Offset:        offset,
	}, nil
}

func (s *conversationService) GetConversation(ctx context.Context, conversationID uuid.UUID, userID string) (*models.Conversation, error) {
	if err := requireParticipant(ctx, s.convRepo, conversationID, userID); err != nil {
		return nil, err
	}
	return s.convRepo.FindByID(ctx, conversationID)
}

func (s *conversationService) AddParticipants(ctx context.Context, conversationID uuid.UUID, actingUserID string, userIDs []string) ([]models.Participant, error) {
	userIDs = normalizeUserIDs(userIDs)
	if len(userIDs) == 0 {
		return nil, apiError.Validation("user_ids must name at least one user")
	}
	added, err := s.convRepo.AddParticipants(ctx, conversationID, actingUserID, userIDs)
	if err != nil {
		return nil, err
	}
	if len(added) > 0 {
		s.publishToMembers(ctx, conversationID, models.EventParticipantAdded, added)
	}
	return added, nil
}

func (s *conversationService) RemoveParticipant(ctx context.Context, conversationID uuid.UUID, targetUserID, actingUserID string) (bool, error) {
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		targetUserID = actingUserID
	}
	removed, err := s.convRepo.RemoveParticipant(ctx, conversationID, targetUserID, actingUserID)
	if err != nil {
		return false, err
	}
	if removed {
		log.Info("participant removed", "conversation", conversationID, "user", targetUserID, "by", actingUserID)
		s.publishToMembers(ctx, conversationID, models.EventParticipantRemoved, map[string]string{"user_id": targetUserID}, targetUserID)
	}
	return removed, nil
}

func (s *conversationService) MarkMessagesAsRead(ctx context.Context, conversationID uuid.UUID, userID string, upToMessageID *uuid.UUID) error {
	p, err := s.convRepo.MarkRead(ctx, conversationID, userID, upToMessageID)
	if err != nil {
		return err
	}
	s.publishToMembers(ctx, conversationID, models.EventConversationRead, models.ReadReceipt{
		UserID:     p.UserID,
		LastReadAt: p.LastReadAt,
	})
	return nil
}

func (s *conversationService) GetUnreadCount(ctx context.Context, conversationID uuid.UUID, userID string) (int64, error) {
	if err := requireParticipant(ctx, s.convRepo, conversationID, userID); err != nil {
		return 0, err
	}
	return s.convRepo.UnreadCount(ctx, conversationID, userID)
}

func (s *conversationService) publishToMembers(ctx context.Context, conversationID uuid.UUID, typ models.EventType, data interface{}, extra ...string) {
	publishToMembers(ctx, s.convRepo, s.notifier, conversationID, typ, data, extra...)
}

// publishToMembers sends an event to the conversation's active members plus
// any extra recipients. Failing to resolve members only loses the event.
func publishToMembers(ctx context.Context, repo db.ConversationRepository, n Notifier, conversationID uuid.UUID, typ models.EventType, data interface{}, extra ...string) {
	recipients, err := repo.ActiveParticipantIDs(ctx, conversationID)
	if err != nil {
		log.Warn("unable to resolve event recipients", "type", typ, "conversation", conversationID, "err", err)
		return
	}
	recipients = normalizeUserIDs(append(recipients, extra...))
	id := conversationID
	n.Publish(models.Event{
		Type:           typ,
		ConversationID: &id,
		Recipients:     recipients,
		Data:           data,
		OccurredAt:     time.Now().UTC(),
	})
}
