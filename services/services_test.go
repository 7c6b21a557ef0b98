package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/techagentng/citizenchat/config"
	"github.com/techagentng/citizenchat/db"
	"github.com/techagentng/citizenchat/db/dbtest"
	"github.com/techagentng/citizenchat/models"
	"github.com/techagentng/citizenchat/services"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recorder) Publish(e models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(typ models.EventType) []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	conf     *config.Config
	clock    *dbtest.Clock
	events   *recorder
	convs    services.ConversationService
	msgs     services.MessageService
	presence services.PresenceService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conf := config.Default()
	clock := dbtest.NewClock(t0)
	store := dbtest.WithClock(t, clock)
	events := &recorder{}

	convRepo := db.NewConversationRepo(store)
	msgRepo := db.NewMessageRepo(store)
	return &harness{
		conf:     conf,
		clock:    clock,
		events:   events,
		convs:    services.NewConversationService(convRepo, conf, events),
		msgs:     services.NewMessageService(convRepo, msgRepo, conf, events),
		presence: services.NewPresenceService(db.NewPresenceRepo(store), conf, events),
	}
}

func (h *harness) send(t *testing.T, conv *models.ConversationDetail, sender, content string) *models.Message {
	t.Helper()
	h.clock.Advance(time.Second)
	m, err := h.msgs.CreateMessage(context.Background(), conv.ID, sender, &models.SendMessageRequest{Content: content})
	require.NoError(t, err)
	return m
}

func (h *harness) group(t *testing.T, creator string, others ...string) *models.ConversationDetail {
	t.Helper()
	conv, created, err := h.convs.CreateConversation(context.Background(), creator, &models.CreateConversationRequest{
		ParticipantIDs: others,
		Type:           models.ConversationGroup,
	})
	require.NoError(t, err)
	require.True(t, created)
	return conv
}

func unreadFor(t *testing.T, h *harness, userID string, conv *models.ConversationDetail) int64 {
	t.Helper()
	list, err := h.convs.ListConversations(context.Background(), userID, 0, 0)
	require.NoError(t, err)
	for _, c := range list.Conversations {
		if c.ID == conv.ID {
			return c.UnreadCount
		}
	}
	t.Fatalf("conversation %s not listed for %s", conv.ID, userID)
	return 0
}
