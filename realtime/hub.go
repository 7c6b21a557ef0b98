package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/techagentng/citizenchat/models"
)

// PresenceReporter records connection-driven presence changes.
type PresenceReporter interface {
	SetOnline(ctx context.Context, userID string, isOnline bool, sessionID *string) (*models.Presence, error)
}

type presenceChange struct {
	userID  string
	online  bool
	session *string
}

type delivery struct {
	recipients []string
	// client, when set, narrows the delivery to one connection.
	client  *Client
	payload []byte
}

// Hub holds the websocket clients of this instance, keyed by user, and
// fans events out to them. All client maps are owned by the Run goroutine.
type Hub struct {
	// Presence, when set, is told when a user's first connection opens and
	// when their last one closes.
	Presence PresenceReporter

	clients    map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	heartbeat  chan *Client
	done       chan struct{}

	// pending holds the latest unapplied presence change per user. One
	// worker applies them, so writes for a user land in report order.
	presenceMu   sync.Mutex
	pending      map[string]presenceChange
	presenceWake chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:      make(map[string]map[*Client]struct{}),
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		deliver:      make(chan delivery, 256),
		heartbeat:    make(chan *Client, 64),
		done:         make(chan struct{}),
		pending:      make(map[string]presenceChange),
		presenceWake: make(chan struct{}, 1),
	}
}

// Run processes registrations and deliveries until ctx is done, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	go h.applyPresence(ctx)
	for {
		select {
		case <-ctx.Done():
			for _, conns := range h.clients {
				for c := range conns {
					close(c.send)
				}
			}
			h.clients = make(map[string]map[*Client]struct{})
			return
		case c := <-h.register:
			conns, ok := h.clients[c.userID]
			if !ok {
				conns = make(map[*Client]struct{})
				h.clients[c.userID] = conns
			}
			conns[c] = struct{}{}
			log.Debug("client registered", "user", c.userID, "session", c.sessionID)
			if len(conns) == 1 {
				h.reportPresence(c, true)
			}
		case c := <-h.unregister:
			h.remove(c)
		case c := <-h.heartbeat:
			if _, ok := h.clients[c.userID][c]; ok {
				h.reportPresence(c, true)
			}
		case d := <-h.deliver:
			h.fanOut(d)
		}
	}
}

func (h *Hub) remove(c *Client) {
	conns, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, exists := conns[c]; !exists {
		return
	}
	delete(conns, c)
	close(c.send)
	if len(conns) == 0 {
		delete(h.clients, c.userID)
		h.reportPresence(c, false)
	}
}

func (h *Hub) fanOut(d delivery) {
	if d.client != nil {
		if _, ok := h.clients[d.client.userID][d.client]; ok {
			h.sendTo(map[*Client]struct{}{d.client: {}}, d.payload)
		}
		return
	}
	if len(d.recipients) == 0 {
		for _, conns := range h.clients {
			h.sendTo(conns, d.payload)
		}
		return
	}
	for _, userID := range d.recipients {
		if conns, ok := h.clients[userID]; ok {
			h.sendTo(conns, d.payload)
		}
	}
}

func (h *Hub) sendTo(conns map[*Client]struct{}, payload []byte) {
	for c := range conns {
		select {
		case c.send <- payload:
		default:
			// slow consumer: disconnect it instead of stalling the hub
			h.remove(c)
		}
	}
}

// reportPresence queues a presence change for the worker. A newer report
// for the same user replaces one not yet applied.
func (h *Hub) reportPresence(c *Client, online bool) {
	if h.Presence == nil {
		return
	}
	change := presenceChange{userID: c.userID, online: online}
	if online {
		id := c.sessionID
		change.session = &id
	}
	h.presenceMu.Lock()
	h.pending[c.userID] = change
	h.presenceMu.Unlock()
	select {
	case h.presenceWake <- struct{}{}:
	default:
	}
}

// applyPresence writes queued presence changes one at a time until ctx is
// done, then flushes what is left.
func (h *Hub) applyPresence(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.flushPresence()
			return
		case <-h.presenceWake:
			h.flushPresence()
		}
	}
}

func (h *Hub) flushPresence() {
	h.presenceMu.Lock()
	batch := h.pending
	h.pending = make(map[string]presenceChange)
	h.presenceMu.Unlock()

	for _, change := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := h.Presence.SetOnline(ctx, change.userID, change.online, change.session)
		cancel()
		if err != nil {
			log.Warn("unable to record presence", "user", change.userID, "online", change.online, "err", err)
		}
	}
}

// Publish queues an event for the local clients among its recipients. It
// never blocks; when the queue is full the event is dropped.
func (h *Hub) Publish(event models.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error("unable to encode event", "type", event.Type, "err", err)
		return
	}
	h.Deliver(event.Recipients, payload)
}

// Deliver queues an encoded payload. An empty recipient list reaches every
// connected user.
func (h *Hub) Deliver(recipients []string, payload []byte) {
	select {
	case h.deliver <- delivery{recipients: recipients, payload: payload}:
	default:
		log.Warn("realtime queue full, dropping event", "recipients", len(recipients))
	}
}

// Register adds a client. It reports false when the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) touch(c *Client) {
	select {
	case h.heartbeat <- c:
	default:
	}
}

func (h *Hub) replyTo(c *Client, payload []byte) {
	select {
	case h.deliver <- delivery{client: c, payload: payload}:
	default:
	}
}
