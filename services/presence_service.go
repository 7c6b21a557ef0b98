package services

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/techagentng/citizenchat/config"
	"github.com/techagentng/citizenchat/db"
	apiError "github.com/techagentng/citizenchat/errors"
	"github.com/techagentng/citizenchat/models"
)

// PresenceService tracks who is online, independent of any conversation.
type PresenceService interface {
	SetOnline(ctx context.Context, userID string, isOnline bool, sessionID *string) (*models.Presence, error)
	GetStatus(ctx context.Context, userIDs []string) (map[string]models.PresenceStatus, error)
	ListOnline(ctx context.Context, excludeUserID string, includeOffline bool, limit, offset int) (*models.PresenceList, error)
	ExpireStale(ctx context.Context) ([]string, error)
	RunReaper(ctx context.Context)
}

type presenceService struct {
	Config       *config.Config
	presenceRepo db.PresenceRepository
	notifier     Notifier
}

func NewPresenceService(presenceRepo db.PresenceRepository, conf *config.Config, notifier Notifier) PresenceService {
	return &presenceService{
		Config:       conf,
		presenceRepo: presenceRepo,
		notifier:     notifierOrNop(notifier),
	}
}

// SetOnline records a presence report. last_seen is refreshed in both
// directions.
func (s *presenceService) SetOnline(ctx context.Context, userID string, isOnline bool, sessionID *string) (*models.Presence, error) {
	rec, err := s.presenceRepo.Upsert(ctx, userID, isOnline, sessionID)
	if err != nil {
		return nil, err
	}
	s.publish(rec.UserID, rec.IsOnline, rec.LastSeen)
	return rec, nil
}

// GetStatus answers a bulk lookup. Users without a record are reported
// offline with no last_seen.
func (s *presenceService) GetStatus(ctx context.Context, userIDs []string) (map[string]models.PresenceStatus, error) {
	userIDs = normalizeUserIDs(userIDs)
	if len(userIDs) > s.Config.MaxPresenceBatch {
		return nil, apiError.RateLimited(fmt.Sprintf("at most %d users per presence query", s.Config.MaxPresenceBatch))
	}
	statuses := make(map[string]models.PresenceStatus, len(userIDs))
	for _, id := range userIDs {
		statuses[id] = models.PresenceStatus{}
	}
	recs, err := s.presenceRepo.FindMany(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		lastSeen := rec.LastSeen
		statuses[rec.UserID] = models.PresenceStatus{IsOnline: rec.IsOnline, LastSeen: &lastSeen}
	}
	return statuses, nil
}

func (s *presenceService) ListOnline(ctx context.Context, excludeUserID string, includeOffline bool, limit, offset int) (*models.PresenceList, error) {
	limit, err := pageSize(limit, s.Config.DefaultPageSize, s.Config.MaxPageSize)
	if err != nil {
		return nil, err
	}
	if err := checkOffset(offset); err != nil {
		return nil, err
	}
	recs, total, err := s.presenceRepo.List(ctx, excludeUserID, includeOffline, limit, offset)
	if err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []models.Presence{}
	}
	return &models.PresenceList{Users: recs, Total: total, Limit: limit, Offset: offset}, nil
}

// ExpireStale marks users offline whose heartbeat is older than the
// presence TTL.
func (s *presenceService) ExpireStale(ctx context.Context) ([]string, error) {
	expired, err := s.presenceRepo.MarkStaleOffline(ctx, s.Config.PresenceTTL)
	if err != nil {
		return nil, err
	}
	if len(expired) > 0 {
		log.Info("presence expired", "users", len(expired))
		recs, err := s.presenceRepo.FindMany(ctx, expired)
		if err != nil {
			return expired, err
		}
		for _, rec := range recs {
			s.publish(rec.UserID, rec.IsOnline, rec.LastSeen)
		}
	}
	return expired, nil
}

// RunReaper calls ExpireStale every sweep interval until ctx is done.
func (s *presenceService) RunReaper(ctx context.Context) {
	ticker := time.NewTicker(s.Config.PresenceSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.ExpireStale(ctx); err != nil {
				log.Error("presence sweep failed", "err", err)
			}
		}
	}
}

func (s *presenceService) publish(userID string, isOnline bool, lastSeen time.Time) {
	s.notifier.Publish(models.Event{
		Type: models.EventPresenceChanged,
		Data: map[string]interface{}{
			"user_id":   userID,
			"is_online": isOnline,
			"last_seen": lastSeen,
		},
		OccurredAt: lastSeen,
	})
}
