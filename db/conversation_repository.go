package db

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	apiError "github.com/techagentng/citizenchat/errors"
	"github.com/techagentng/citizenchat/models"
	"gorm.io/gorm"
)

type ConversationRepository interface {
	FindOrCreatePrivate(ctx context.Context, userID, otherUserID string) (*models.Conversation, bool, error)
	CreateGroup(ctx context.Context, userIDs []string, name *string) (*models.Conversation, error)
	FindByID(ctx context.Context, conversationID uuid.UUID) (*models.Conversation, error)
	IsActiveParticipant(ctx context.Context, conversationID uuid.UUID, userID string) (bool, error)
	ActiveParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]string, error)
	AddParticipants(ctx context.Context, conversationID uuid.UUID, actingUserID string, userIDs []string) ([]models.Participant, error)
	RemoveParticipant(ctx context.Context, conversationID uuid.UUID, targetUserID, actingUserID string) (bool, error)
	MarkRead(ctx context.Context, conversationID uuid.UUID, userID string, upToMessageID *uuid.UUID) (*models.Participant, error)
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.ConversationSummary, int64, error)
	UnreadCount(ctx context.Context, conversationID uuid.UUID, userID string) (int64, error)
}

type conversationRepo struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewConversationRepo(db *GormDB) ConversationRepository {
	return &conversationRepo{DB: db.DB, now: db.Now}
}

// FindOrCreatePrivate returns the private conversation between userID and
// otherUserID, creating it when absent. The boolean reports whether it was
// created. If userID had left an existing one, their membership is
// reactivated with the read marker reset to the rejoin time.
func (r *conversationRepo) FindOrCreatePrivate(ctx context.Context, userID, otherUserID string) (*models.Conversation, bool, error) {
	key := models.PrivatePairKey(userID, otherUserID)
	conv, err := r.rejoinPrivate(ctx, key, userID)
	if err == nil {
		return conv, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, errors.Wrap(err, "finding private conversation")
	}

	conv = &models.Conversation{Type: models.ConversationPrivate, PairKey: &key}
	err = r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.createWithParticipants(tx, conv, []string{userID, otherUserID})
	})
	if err != nil {
		if isUniqueViolation(err) {
			// lost the race to a concurrent creator; theirs is the conversation
			log.Debug("private conversation created concurrently", "pair", key)
			conv, err = r.rejoinPrivate(ctx, key, userID)
			if err != nil {
				return nil, false, errors.Wrap(err, "reloading private conversation")
			}
			return conv, false, nil
		}
		return nil, false, errors.Wrap(err, "creating private conversation")
	}
	return conv, true, nil
}

// rejoinPrivate loads the conversation for a pair key and reactivates
// userID's row if it is inactive. gorm.ErrRecordNotFound is returned as is.
func (r *conversationRepo) rejoinPrivate(ctx context.Context, key, userID string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("pair_key = ?", key).Take(&conv).Error; err != nil {
			return err
		}
		ts := r.now()
		res := tx.Model(&models.Participant{}).
			Where("conversation_id = ? AND user_id = ? AND status = ?", conv.ID, userID, models.ParticipantInactive).
			Updates(map[string]interface{}{
				"status":       models.ParticipantActive,
				"left_at":      nil,
				"last_read_at": ts,
				"updated_at":   ts,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			log.Info("participant rejoined private conversation", "conversation", conv.ID, "user", userID)
		}
		return tx.Preload("Participants", "status = ?", models.ParticipantActive).
			Where("id = ?", conv.ID).
			Take(&conv).Error
	})
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepo) CreateGroup(ctx context.Context, userIDs []string, name *string) (*models.Conversation, error) {
	conv := &models.Conversation{Type: models.ConversationGroup, Name: name}
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.createWithParticipants(tx, conv, userIDs)
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating group conversation")
	}
	return conv, nil
}

// createWithParticipants inserts the conversation and one active row per
// user. Read markers start at creation time so nobody begins with unread.
func (r *conversationRepo) createWithParticipants(tx *gorm.DB, conv *models.Conversation, userIDs []string) error {
	ts := r.now()
	conv.CreatedAt, conv.UpdatedAt = ts, ts
	if err := tx.Omit("Participants").Create(conv).Error; err != nil {
		return err
	}
	participants := make([]models.Participant, 0, len(userIDs))
	for _, uid := range userIDs {
		p := models.Participant{
			ConversationID: conv.ID,
			UserID:         uid,
			Status:         models.ParticipantActive,
			JoinedAt:       ts,
			LastReadAt:     ts,
		}
		p.CreatedAt, p.UpdatedAt = ts, ts
		participants = append(participants, p)
	}
	if err := tx.Create(&participants).Error; err != nil {
		return err
	}
	conv.Participants = participants
	return nil
}

func (r *conversationRepo) FindByID(ctx context.Context, conversationID uuid.UUID) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.DB.WithContext(ctx).
		Preload("Participants", "status = ?", models.ParticipantActive).
		Where("id = ?", conversationID).
		Take(&conv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.ErrConversationMissing
		}
		return nil, errors.Wrap(err, "finding conversation")
	}
	return &conv, nil
}

func (r *conversationRepo) IsActiveParticipant(ctx context.Context, conversationID uuid.UUID, userID string) (bool, error) {
	return isActiveParticipant(r.DB.WithContext(ctx), conversationID, userID)
}

func isActiveParticipant(tx *gorm.DB, conversationID uuid.UUID, userID string) (bool, error) {
	var count int64
	err := tx.Model(&models.Participant{}).
		Where("conversation_id = ? AND user_id = ? AND status = ?", conversationID, userID, models.ParticipantActive).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrap(err, "checking participant")
	}
	return count > 0, nil
}

func findActiveParticipant(tx *gorm.DB, conversationID uuid.UUID, userID string) (*models.Participant, error) {
	var p models.Participant
	err := tx.Where("conversation_id = ? AND user_id = ? AND status = ?", conversationID, userID, models.ParticipantActive).
		Take(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.ErrNotAParticipant
		}
		return nil, errors.Wrap(err, "finding participant")
	}
	return &p, nil
}

func (r *conversationRepo) ActiveParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]string, error) {
	var ids []string
	err := r.DB.WithContext(ctx).Model(&models.Participant{}).
		Where("conversation_id = ? AND status = ?", conversationID, models.ParticipantActive).
		Order("joined_at ASC").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, errors.Wrap(err, "listing participants")
	}
	return ids, nil
}

// AddParticipants adds users to a group conversation on behalf of an active
// participant. Active members are skipped; inactive rows are reactivated
// with their read marker reset to the rejoin time. Only rows actually
// added or reactivated are returned.
func (r *conversationRepo) AddParticipants(ctx context.Context, conversationID uuid.UUID, actingUserID string, userIDs []string) ([]models.Participant, error) {
	var added []models.Participant
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.Where("id = ?", conversationID).Take(&conv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apiError.ErrConversationMissing
			}
			return err
		}
		ok, err := isActiveParticipant(tx, conversationID, actingUserID)
		if err != nil {
			return err
		}
		if !ok {
			return apiError.NotAuthorized("only active participants can add members")
		}
		if conv.Type == models.ConversationPrivate {
			return apiError.Validation("participants cannot be added to a private conversation")
		}

		ts := r.now()
		for _, uid := range userIDs {
			var p models.Participant
			err := tx.Where("conversation_id = ? AND user_id = ?", conversationID, uid).Take(&p).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				p = models.Participant{
					ConversationID: conversationID,
					UserID:         uid,
					Status:         models.ParticipantActive,
					JoinedAt:       ts,
					LastReadAt:     ts,
				}
				p.CreatedAt, p.UpdatedAt = ts, ts
				if err := tx.Create(&p).Error; err != nil {
					return err
				}
			case err != nil:
				return err
			case p.IsActive():
				continue
			default:
				err := tx.Model(&models.Participant{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
					"status":       models.ParticipantActive,
					"left_at":      nil,
					"last_read_at": ts,
					"updated_at":   ts,
				}).Error
				if err != nil {
					return err
				}
				p.Status, p.LeftAt, p.LastReadAt, p.UpdatedAt = models.ParticipantActive, nil, ts, ts
			}
			added = append(added, p)
		}
		return nil
	})
	if err != nil {
		return nil, wrapTx(err, "adding participants")
	}
	return added, nil
}

// RemoveParticipant soft-removes the target. Anyone may remove themselves;
// removing someone else requires the actor to be an active participant.
// It reports false when the target had no active membership.
func (r *conversationRepo) RemoveParticipant(ctx context.Context, conversationID uuid.UUID, targetUserID, actingUserID string) (bool, error) {
	var removed bool
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if targetUserID != actingUserID {
			ok, err := isActiveParticipant(tx, conversationID, actingUserID)
			if err != nil {
				return err
			}
			if !ok {
				return apiError.NotAuthorized("only active participants can remove members")
			}
		}
		ts := r.now()
		res := tx.Model(&models.Participant{}).
			Where("conversation_id = ? AND user_id = ? AND status = ?", conversationID, targetUserID, models.ParticipantActive).
			Updates(map[string]interface{}{
				"status":     models.ParticipantInactive,
				"left_at":    ts,
				"updated_at": ts,
			})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, wrapTx(err, "removing participant")
	}
	return removed, nil
}

// MarkRead advances the participant's read marker to now, or to the
// creation time of upToMessageID. The marker never moves backwards.
func (r *conversationRepo) MarkRead(ctx context.Context, conversationID uuid.UUID, userID string, upToMessageID *uuid.UUID) (*models.Participant, error) {
	var participant *models.Participant
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := findActiveParticipant(tx, conversationID, userID)
		if err != nil {
			return err
		}

		ts := r.now()
		target := ts
		if upToMessageID != nil {
			var m models.Message
			err := tx.Select("created_at").
				Where("id = ? AND conversation_id = ?", *upToMessageID, conversationID).
				Take(&m).Error
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apiError.ErrMessageMissing
				}
				return err
			}
			target = m.CreatedAt
		}

		err = tx.Model(&models.Participant{}).
			Where("id = ? AND last_read_at < ?", p.ID, target).
			Updates(map[string]interface{}{"last_read_at": target, "updated_at": ts}).Error
		if err != nil {
			return err
		}
		if err := tx.Where("id = ?", p.ID).Take(p).Error; err != nil {
			return err
		}
		participant = p
		return nil
	})
	if err != nil {
		return nil, wrapTx(err, "marking conversation read")
	}
	return participant, nil
}

type unreadRow struct {
	ConversationID uuid.UUID
	Unread         int64
}

// unreadCounts derives unread counts at query time: messages from others
// created after the viewer's read marker.
func unreadCounts(tx *gorm.DB, userID string, conversationIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return counts, nil
	}
	var rows []unreadRow
	err := tx.Table("messages").
		Select("messages.conversation_id AS conversation_id, COUNT(*) AS unread").
		Joins("JOIN participants ON participants.conversation_id = messages.conversation_id").
		Where("participants.user_id = ? AND messages.conversation_id IN ?", userID, conversationIDs).
		Where("messages.created_at > participants.last_read_at AND messages.sender_id <> ?", userID).
		Group("messages.conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.ConversationID] = row.Unread
	}
	return counts, nil
}

func (r *conversationRepo) UnreadCount(ctx context.Context, conversationID uuid.UUID, userID string) (int64, error) {
	counts, err := unreadCounts(r.DB.WithContext(ctx), userID, []uuid.UUID{conversationID})
	if err != nil {
		return 0, errors.Wrap(err, "counting unread messages")
	}
	return counts[conversationID], nil
}

// ListForUser returns the user's active conversations, most recently
// updated first, each with its last visible message and unread count.
func (r *conversationRepo) ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.ConversationSummary, int64, error) {
	db := r.DB.WithContext(ctx)
	memberOf := func() *gorm.DB {
		return db.Model(&models.Conversation{}).
			Joins("JOIN participants ON participants.conversation_id = conversations.id").
			Where("participants.user_id = ? AND participants.status = ?", userID, models.ParticipantActive)
	}

	var total int64
	if err := memberOf().Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "counting conversations")
	}

	var convs []models.Conversation
	err := memberOf().
		Select("conversations.*").
		Preload("Participants", "status = ?", models.ParticipantActive).
		Order("conversations.updated_at DESC, conversations.id DESC").
		Limit(limit).
		Offset(offset).
		Find(&convs).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing conversations")
	}

	ids := make([]uuid.UUID, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, c.ID)
	}
	counts, err := unreadCounts(db, userID, ids)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting unread messages")
	}

	last, err := lastMessages(db, ids)
	if err != nil {
		return nil, 0, errors.Wrap(err, "loading last messages")
	}

	summaries := make([]models.ConversationSummary, 0, len(convs))
	for _, c := range convs {
		summary := models.ConversationSummary{Conversation: c, UnreadCount: counts[c.ID]}
		if m, ok := last[c.ID]; ok {
			m := m
			summary.LastMessage = &m
		}
		summaries = append(summaries, summary)
	}
	return summaries, total, nil
}

// lastMessages loads the newest visible message of each conversation in a
// single query.
func lastMessages(tx *gorm.DB, conversationIDs []uuid.UUID) (map[uuid.UUID]models.Message, error) {
	out := make(map[uuid.UUID]models.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return out, nil
	}
	ranked := tx.Model(&models.Message{}).
		Select("messages.*, ROW_NUMBER() OVER (PARTITION BY conversation_id ORDER BY created_at DESC, id DESC) AS rn").
		Where("conversation_id IN ? AND visibility = ?", conversationIDs, models.MessageVisible)
	var msgs []models.Message
	if err := tx.Table("(?) AS ranked", ranked).Where("rn = 1").Find(&msgs).Error; err != nil {
		return nil, err
	}
	for _, m := range msgs {
		out[m.ConversationID] = m
	}
	return out, nil
}

// wrapTx keeps typed errors returned from inside a transaction intact and
// turns concurrent-insert collisions into a conflict.
func wrapTx(err error, msg string) error {
	var typed *apiError.Error
	if errors.As(err, &typed) {
		return typed
	}
	if isUniqueViolation(err) {
		return apiError.New("the resource was modified concurrently, retry", http.StatusConflict)
	}
	return errors.Wrap(err, msg)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value")
}
