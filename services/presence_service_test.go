package services_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	apiError "github.com/techagentng/citizenchat/errors"
	"github.com/techagentng/citizenchat/models"
)

func TestPresence_SetAndGet(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	rec, err := h.presence.SetOnline(ctx, "A", true, nil)
	require.NoError(t, err)
	require.True(t, rec.IsOnline)

	h.clock.Advance(time.Minute)
	rec, err = h.presence.SetOnline(ctx, "A", false, nil)
	require.NoError(t, err)
	require.False(t, rec.IsOnline)
	require.True(t, rec.LastSeen.Equal(t0.Add(time.Minute)))

	statuses, err := h.presence.GetStatus(ctx, []string{"A", "ghost"})
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	require.False(t, statuses["A"].IsOnline)
	require.True(t, statuses["A"].LastSeen.Equal(t0.Add(time.Minute)))
	require.Equal(t, models.PresenceStatus{}, statuses["ghost"])

	require.Len(t, h.events.ofType(models.EventPresenceChanged), 2)
}

func TestPresence_BatchLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	ids := make([]string, h.conf.MaxPresenceBatch+1)
	for i := range ids {
		ids[i] = fmt.Sprintf("user-%d", i)
	}
	_, err := h.presence.GetStatus(ctx, ids)
	require.ErrorIs(t, err, apiError.ErrRateLimited)

	statuses, err := h.presence.GetStatus(ctx, ids[:h.conf.MaxPresenceBatch])
	require.NoError(t, err)
	require.Len(t, statuses, h.conf.MaxPresenceBatch)
}

func TestPresence_ListOnline(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	for _, u := range []string{"A", "B", "C"} {
		h.clock.Advance(time.Second)
		_, err := h.presence.SetOnline(ctx, u, u != "B", nil)
		require.NoError(t, err)
	}

	list, err := h.presence.ListOnline(ctx, "A", false, 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, list.Total)
	require.Equal(t, "C", list.Users[0].UserID)

	list, err = h.presence.ListOnline(ctx, "", true, 0, 0)
	require.NoError(t, err)
	require.EqualValues(t, 3, list.Total)
	require.Equal(t, []string{"C", "A", "B"}, []string{list.Users[0].UserID, list.Users[1].UserID, list.Users[2].UserID})
}

func TestPresence_ExpireStale(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.presence.SetOnline(ctx, "A", true, nil)
	require.NoError(t, err)
	h.clock.Advance(h.conf.PresenceTTL + time.Second)
	_, err = h.presence.SetOnline(ctx, "B", true, nil)
	require.NoError(t, err)

	expired, err := h.presence.ExpireStale(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, expired)

	statuses, err := h.presence.GetStatus(ctx, []string{"A", "B"})
	require.NoError(t, err)
	require.False(t, statuses["A"].IsOnline)
	require.True(t, statuses["B"].IsOnline)
}
