package db_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/techagentng/citizenchat/db"
	"github.com/techagentng/citizenchat/db/dbtest"
	apiError "github.com/techagentng/citizenchat/errors"
	"github.com/techagentng/citizenchat/models"
)

type messageFixture struct {
	clock *dbtest.Clock
	convs db.ConversationRepository
	msgs  db.MessageRepository
	conv  *models.Conversation
}

func newMessageFixture(t *testing.T) *messageFixture {
	t.Helper()
	clock := dbtest.NewClock(t0)
	store := dbtest.WithClock(t, clock)
	f := &messageFixture{
		clock: clock,
		convs: db.NewConversationRepo(store),
		msgs:  db.NewMessageRepo(store),
	}
	conv, err := f.convs.CreateGroup(context.Background(), []string{"alice", "bob"}, nil)
	require.NoError(t, err)
	f.conv = conv
	return f
}

func (f *messageFixture) send(t *testing.T, sender, content string) *models.Message {
	t.Helper()
	m := &models.Message{ConversationID: f.conv.ID, SenderID: sender, Content: content, Type: models.MessageTypeText}
	require.NoError(t, f.msgs.Create(context.Background(), m))
	return m
}

func TestMessageCreate(t *testing.T) {
	ctx := context.Background()
	f := newMessageFixture(t)

	f.clock.Advance(time.Minute)
	m := f.send(t, "alice", "hello")
	require.NotEqual(t, uuid.Nil, m.ID)
	require.Equal(t, models.MessageSent, m.Status)
	require.True(t, m.CreatedAt.Equal(t0.Add(time.Minute)))

	conv, err := f.convs.FindByID(ctx, f.conv.ID)
	require.NoError(t, err)
	require.True(t, conv.UpdatedAt.Equal(m.CreatedAt))

	err = f.msgs.Create(ctx, &models.Message{ConversationID: f.conv.ID, SenderID: "mallory", Content: "x"})
	require.ErrorIs(t, err, apiError.ErrNotAParticipant)
}

func TestMessagePage_SharedTimestamps(t *testing.T) {
	ctx := context.Background()
	f := newMessageFixture(t)

	// every message lands on the same instant; only the id breaks ties
	var want []uuid.UUID
	for i := 0; i < 7; i++ {
		want = append([]uuid.UUID{f.send(t, "alice", "m").ID}, want...)
	}

	var got []uuid.UUID
	var cursor *db.Cursor
	for {
		page, hasMore, err := f.msgs.Page(ctx, f.conv.ID, 3, cursor)
		require.NoError(t, err)
		for _, m := range page {
			got = append(got, m.ID)
		}
		if !hasMore {
			break
		}
		next := db.CursorFor(&page[len(page)-1])
		decoded, err := db.DecodeCursor(next.Encode())
		require.NoError(t, err)
		cursor = decoded
	}
	require.Equal(t, want, got)

	total, err := f.msgs.Count(ctx, f.conv.ID)
	require.NoError(t, err)
	require.EqualValues(t, 7, total)
}

func TestMessageTombstone(t *testing.T) {
	ctx := context.Background()
	f := newMessageFixture(t)
	m := f.send(t, "alice", "secret")

	_, err := f.msgs.Tombstone(ctx, m.ID, "bob")
	require.ErrorIs(t, err, apiError.ErrNotAuthorized)

	deleted, err := f.msgs.Tombstone(ctx, m.ID, "alice")
	require.NoError(t, err)
	require.True(t, deleted.IsDeleted())
	require.Empty(t, deleted.Content)
	require.NotNil(t, deleted.DeletedAt)

	again, err := f.msgs.Tombstone(ctx, m.ID, "alice")
	require.NoError(t, err)
	require.True(t, again.DeletedAt.Equal(*deleted.DeletedAt))

	page, _, err := f.msgs.Page(ctx, f.conv.ID, 10, nil)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, models.MessageDeleted, page[0].Visibility)

	_, err = f.msgs.Tombstone(ctx, uuid.New(), "alice")
	require.ErrorIs(t, err, apiError.ErrNotFound)
}

func TestMessageAdvanceStatus(t *testing.T) {
	ctx := context.Background()
	f := newMessageFixture(t)
	m := f.send(t, "alice", "hello")

	got, err := f.msgs.AdvanceStatus(ctx, m.ID, "bob", models.MessageRead)
	require.NoError(t, err)
	require.Equal(t, models.MessageRead, got.Status)

	got, err = f.msgs.AdvanceStatus(ctx, m.ID, "bob", models.MessageRead)
	require.NoError(t, err)
	require.Equal(t, models.MessageRead, got.Status)

	_, err = f.msgs.AdvanceStatus(ctx, m.ID, "bob", models.MessageDelivered)
	require.ErrorIs(t, err, apiError.ErrValidation)

	_, err = f.msgs.AdvanceStatus(ctx, m.ID, "mallory", models.MessageRead)
	require.ErrorIs(t, err, apiError.ErrNotFound)
}

// ASCII case folding holds on every store; see
// TestMessageSearch_FoldsNonASCIIOnPostgres for the rest.
func TestMessageSearch(t *testing.T) {
	ctx := context.Background()
	f := newMessageFixture(t)

	f.clock.Advance(time.Second)
	hello := f.send(t, "alice", "Hello World")
	f.clock.Advance(time.Second)
	later := f.send(t, "bob", "well, hello again")
	f.clock.Advance(time.Second)
	f.send(t, "bob", "100% sure")
	f.clock.Advance(time.Second)
	gone := f.send(t, "alice", "hello from the past")
	_, err := f.msgs.Tombstone(ctx, gone.ID, "alice")
	require.NoError(t, err)

	found, err := f.msgs.Search(ctx, f.conv.ID, "HELLO", 10)
	require.NoError(t, err)
	require.Len(t, found, 2)
	require.Equal(t, later.ID, found[0].ID)
	require.Equal(t, hello.ID, found[1].ID)

	found, err = f.msgs.Search(ctx, f.conv.ID, "%", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)

	found, err = f.msgs.Search(ctx, f.conv.ID, "_", 10)
	require.NoError(t, err)
	require.Empty(t, found)

	found, err = f.msgs.Search(ctx, f.conv.ID, "hello", 1)
	require.NoError(t, err)
	require.Len(t, found, 1)
}

// Needs a database with a UTF-8 LC_CTYPE; under the C locale postgres
// LOWER folds ASCII only.
func TestMessageSearch_FoldsNonASCIIOnPostgres(t *testing.T) {
	ctx := context.Background()
	store := dbtest.Postgres(t)
	convs := db.NewConversationRepo(store)
	msgs := db.NewMessageRepo(store)

	conv, err := convs.CreateGroup(ctx, []string{"alice", "bob"}, nil)
	require.NoError(t, err)
	m := &models.Message{ConversationID: conv.ID, SenderID: "alice", Content: "ÉCOLE ÜBER ALLES", Type: models.MessageTypeText}
	require.NoError(t, msgs.Create(ctx, m))

	found, err := msgs.Search(ctx, conv.ID, "école über", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, m.ID, found[0].ID)
}
