package db

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	apiError "github.com/techagentng/citizenchat/errors"
	"github.com/techagentng/citizenchat/models"
	"gorm.io/gorm"
)

type MessageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	FindByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error)
	Page(ctx context.Context, conversationID uuid.UUID, limit int, cursor *Cursor) ([]models.Message, bool, error)
	Count(ctx context.Context, conversationID uuid.UUID) (int64, error)
	Tombstone(ctx context.Context, messageID uuid.UUID, userID string) (*models.Message, error)
	AdvanceStatus(ctx context.Context, messageID uuid.UUID, userID string, status models.MessageStatus) (*models.Message, error)
	Search(ctx context.Context, conversationID uuid.UUID, query string, limit int) ([]models.Message, error)
}

type messageRepo struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewMessageRepo(db *GormDB) MessageRepository {
	return &messageRepo{DB: db.DB, now: db.Now}
}

// Create inserts the message and bumps the conversation's updated_at in one
// transaction. The sender must hold an active membership when it commits.
func (r *messageRepo) Create(ctx context.Context, msg *models.Message) error {
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := isActiveParticipant(tx, msg.ConversationID, msg.SenderID)
		if err != nil {
			return err
		}
		if !ok {
			return apiError.ErrNotAParticipant
		}

		ts := r.now()
		msg.CreatedAt, msg.UpdatedAt = ts, ts
		msg.Status = models.MessageSent
		msg.Visibility = models.MessageVisible
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", msg.ConversationID).
			UpdateColumn("updated_at", ts).Error
	})
	if err != nil {
		return wrapTx(err, "creating message")
	}
	return nil
}

func (r *messageRepo) FindByID(ctx context.Context, messageID uuid.UUID) (*models.Message, error) {
	return findMessage(r.DB.WithContext(ctx), messageID)
}

func findMessage(tx *gorm.DB, messageID uuid.UUID) (*models.Message, error) {
	var m models.Message
	if err := tx.Where("id = ?", messageID).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apiError.ErrMessageMissing
		}
		return nil, errors.Wrap(err, "finding message")
	}
	return &m, nil
}

// Page returns up to limit messages older than cursor, newest first, and
// whether more remain beyond them.
func (r *messageRepo) Page(ctx context.Context, conversationID uuid.UUID, limit int, cursor *Cursor) ([]models.Message, bool, error) {
	q := r.DB.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if cursor != nil {
		q = q.Where("((created_at < ?) OR (created_at = ? AND id < ?))", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var msgs []models.Message
	err := q.Order("created_at DESC, id DESC").Limit(limit + 1).Find(&msgs).Error
	if err != nil {
		return nil, false, errors.Wrap(err, "paging messages")
	}
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	return msgs, hasMore, nil
}

func (r *messageRepo) Count(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	var total int64
	err := r.DB.WithContext(ctx).Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&total).Error
	if err != nil {
		return 0, errors.Wrap(err, "counting messages")
	}
	return total, nil
}

// Tombstone clears a message's content and marks it deleted. The row stays
// so ordering and history remain intact. Only the sender may do this, and
// repeating it returns the already-deleted message.
func (r *messageRepo) Tombstone(ctx context.Context, messageID uuid.UUID, userID string) (*models.Message, error) {
	var msg *models.Message
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := findMessage(tx, messageID)
		if err != nil {
			return err
		}
		if m.SenderID != userID {
			return apiError.NotAuthorized("you can only delete your own messages")
		}
		if m.IsDeleted() {
			msg = m
			return nil
		}
		ts := r.now()
		err = tx.Model(&models.Message{}).Where("id = ?", m.ID).Updates(map[string]interface{}{
			"visibility": models.MessageDeleted,
			"content":    "",
			"deleted_at": ts,
			"updated_at": ts,
		}).Error
		if err != nil {
			return err
		}
		m.Visibility, m.Content, m.DeletedAt, m.UpdatedAt = models.MessageDeleted, "", &ts, ts
		msg = m
		return nil
	})
	if err != nil {
		return nil, wrapTx(err, "deleting message")
	}
	return msg, nil
}

// AdvanceStatus moves a message forward along sent → delivered → read.
// Requesting the current status is a no-op; requesting an earlier one is
// rejected. The update is conditional so concurrent writers cannot regress it.
func (r *messageRepo) AdvanceStatus(ctx context.Context, messageID uuid.UUID, userID string, status models.MessageStatus) (*models.Message, error) {
	var msg *models.Message
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := findMessage(tx, messageID)
		if err != nil {
			return err
		}
		ok, err := isActiveParticipant(tx, m.ConversationID, userID)
		if err != nil {
			return err
		}
		if !ok {
			// outside the caller's visibility: indistinguishable from missing
			return apiError.ErrMessageMissing
		}

		switch {
		case status.Rank() == m.Status.Rank():
			msg = m
			return nil
		case status.Rank() < m.Status.Rank():
			return apiError.Validation("message status cannot move from %s back to %s", m.Status, status)
		}

		ts := r.now()
		res := tx.Model(&models.Message{}).
			Where("id = ? AND status IN ?", m.ID, status.Below()).
			Updates(map[string]interface{}{"status": status, "updated_at": ts})
		if res.Error != nil {
			return res.Error
		}
		msg, err = findMessage(tx, m.ID)
		return err
	})
	if err != nil {
		return nil, wrapTx(err, "updating message status")
	}
	return msg, nil
}

// Search matches content case-insensitively within one conversation,
// newest first. Deleted messages never match. Case folding is the store's
// LOWER: postgres with a UTF-8 locale folds non-ASCII letters, sqlite only
// folds ASCII.
func (r *messageRepo) Search(ctx context.Context, conversationID uuid.UUID, query string, limit int) ([]models.Message, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	var msgs []models.Message
	err := r.DB.WithContext(ctx).
		Where("conversation_id = ? AND visibility = ?", conversationID, models.MessageVisible).
		Where("LOWER(content) LIKE ? ESCAPE '!'", pattern).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&msgs).Error
	if err != nil {
		return nil, errors.Wrap(err, "searching messages")
	}
	return msgs, nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
