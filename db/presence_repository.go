package db

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/techagentng/citizenchat/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PresenceRepository interface {
	Upsert(ctx context.Context, userID string, isOnline bool, sessionID *string) (*models.Presence, error)
	FindMany(ctx context.Context, userIDs []string) ([]models.Presence, error)
	List(ctx context.Context, excludeUserID string, includeOffline bool, limit, offset int) ([]models.Presence, int64, error)
	MarkStaleOffline(ctx context.Context, ttl time.Duration) ([]string, error)
}

type presenceRepo struct {
	DB  *gorm.DB
	now func() time.Time
}

func NewPresenceRepo(db *GormDB) PresenceRepository {
	return &presenceRepo{DB: db.DB, now: db.Now}
}

// Upsert records a presence report. last_seen always moves to now; a
// report older than the stored one cannot overwrite it, so racing
// heartbeats settle on the latest.
func (r *presenceRepo) Upsert(ctx context.Context, userID string, isOnline bool, sessionID *string) (*models.Presence, error) {
	ts := r.now()
	rec := models.Presence{
		UserID:    userID,
		IsOnline:  isOnline,
		LastSeen:  ts,
		SessionID: sessionID,
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	db := r.DB.WithContext(ctx)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_online", "last_seen", "session_id", "updated_at"}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "presences.last_seen <= excluded.last_seen"},
		}},
	}).Create(&rec).Error
	if err != nil {
		return nil, errors.Wrap(err, "upserting presence")
	}

	var stored models.Presence
	if err := db.Where("user_id = ?", userID).Take(&stored).Error; err != nil {
		return nil, errors.Wrap(err, "reloading presence")
	}
	return &stored, nil
}

func (r *presenceRepo) FindMany(ctx context.Context, userIDs []string) ([]models.Presence, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	var recs []models.Presence
	if err := r.DB.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&recs).Error; err != nil {
		return nil, errors.Wrap(err, "finding presence")
	}
	return recs, nil
}

// List returns online users first, then by most recent last_seen.
func (r *presenceRepo) List(ctx context.Context, excludeUserID string, includeOffline bool, limit, offset int) ([]models.Presence, int64, error) {
	scoped := func() *gorm.DB {
		q := r.DB.WithContext(ctx).Model(&models.Presence{})
		if excludeUserID != "" {
			q = q.Where("user_id <> ?", excludeUserID)
		}
		if !includeOffline {
			q = q.Where("is_online = ?", true)
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "counting presence")
	}
	var recs []models.Presence
	err := scoped().
		Order("is_online DESC, last_seen DESC, user_id ASC").
		Limit(limit).
		Offset(offset).
		Find(&recs).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing presence")
	}
	return recs, total, nil
}

// MarkStaleOffline flips online users whose last heartbeat is older than
// ttl to offline and returns who changed. last_seen keeps the final heartbeat.
func (r *presenceRepo) MarkStaleOffline(ctx context.Context, ttl time.Duration) ([]string, error) {
	cutoff := r.now().Add(-ttl)
	var ids []string
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Presence{}).
			Where("is_online = ? AND last_seen < ?", true, cutoff).
			Pluck("user_id", &ids).Error
		if err != nil || len(ids) == 0 {
			return err
		}
		return tx.Model(&models.Presence{}).
			Where("user_id IN ? AND is_online = ? AND last_seen < ?", ids, true, cutoff).
			Updates(map[string]interface{}{
				"is_online":  false,
				"session_id": nil,
				"updated_at": r.now(),
			}).Error
	})
	if err != nil {
		return nil, errors.Wrap(err, "expiring presence")
	}
	return ids, nil
}
