package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
	"github.com/techagentng/citizenchat/models"
)

// DefaultChannel is the pub/sub channel every instance shares.
const DefaultChannel = "citizenchat:events"

// envelope carries an event between instances together with its recipients,
// which the client-facing encoding omits.
type envelope struct {
	Recipients []string        `json:"recipients"`
	Event      json.RawMessage `json:"event"`
}

// RedisBroadcaster publishes events to redis so that every instance's hub
// delivers them to its own clients.
type RedisBroadcaster struct {
	rdb     *redis.Client
	channel string
	hub     *Hub
	out     chan []byte
}

func NewRedisBroadcaster(rdb *redis.Client, hub *Hub, channel string) *RedisBroadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroadcaster{
		rdb:     rdb,
		channel: channel,
		hub:     hub,
		out:     make(chan []byte, 256),
	}
}

// NewRedisClient parses url and checks the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// Publish queues the event for redis without blocking.
func (b *RedisBroadcaster) Publish(event models.Event) {
	raw, err := json.Marshal(event)
	if err != nil {
		log.Error("unable to encode event", "type", event.Type, "err", err)
		return
	}
	msg, err := json.Marshal(envelope{Recipients: event.Recipients, Event: raw})
	if err != nil {
		log.Error("unable to encode envelope", "type", event.Type, "err", err)
		return
	}
	select {
	case b.out <- msg:
	default:
		log.Warn("redis publish queue full, dropping event", "type", event.Type)
	}
}

// Run publishes queued events and forwards subscribed ones to the hub
// until ctx is done.
func (b *RedisBroadcaster) Run(ctx context.Context) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()
	incoming := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-b.out:
			if err := b.rdb.Publish(ctx, b.channel, msg).Err(); err != nil {
				log.Warn("redis publish failed", "channel", b.channel, "err", err)
			}
		case m, ok := <-incoming:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
				log.Warn("discarding malformed event", "channel", m.Channel, "err", err)
				continue
			}
			b.hub.Deliver(env.Recipients, env.Event)
		}
	}
}
