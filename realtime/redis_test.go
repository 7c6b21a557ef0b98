package realtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/techagentng/citizenchat/models"
)

// Runs only when a redis server is available, e.g.
// CITIZENCHAT_TEST_REDIS_URL=redis://localhost:6379/0
func TestRedisBroadcasterFansOutAcrossHubs(t *testing.T) {
	url := os.Getenv("CITIZENCHAT_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CITIZENCHAT_TEST_REDIS_URL not set")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := NewRedisClient(ctx, url)
	require.NoError(t, err)
	defer rdb.Close()

	channel := "citizenchat:test:" + t.Name()
	local, remote := NewHub(), NewHub()
	go local.Run(ctx)
	go remote.Run(ctx)
	publisher := NewRedisBroadcaster(rdb, local, channel)
	subscriber := NewRedisBroadcaster(rdb, remote, channel)
	go publisher.Run(ctx)
	go subscriber.Run(ctx)

	client := &Client{hub: remote, send: make(chan []byte, 4), userID: "bob"}
	require.True(t, remote.Register(client))
	time.Sleep(100 * time.Millisecond)

	publisher.Publish(models.Event{Type: models.EventMessageCreated, Recipients: []string{"bob"}})
	select {
	case payload := <-client.send:
		require.Contains(t, string(payload), string(models.EventMessageCreated))
	case <-time.After(2 * time.Second):
		t.Fatal("event never crossed redis")
	}
}
