package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"screentime/internal/domain"
	"screentime/internal/logger"
	"screentime/internal/metrics"
)

const (
	TriggerTick   = "tick"
	TriggerChange = "change"
	TriggerJoin   = "join"
)

// ActiveUsageSource lists the usage rows of every active task.
type ActiveUsageSource interface {
	ListActive(ctx context.Context) ([]domain.ScreenTime, error)
}

// Hub pushes active usage rows to every connected client, on a fixed
// interval and whenever Notify is called.
type Hub struct {
	source   ActiveUsageSource
	interval time.Duration
	log      *slog.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
	wake    chan struct{}
	joined  chan *Client
}

func NewHub(source ActiveUsageSource, interval time.Duration) *Hub {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Hub{
		source:   source,
		interval: interval,
		log:      logger.Component("ws"),
		clients:  make(map[*Client]struct{}),
		wake:     make(chan struct{}, 1),
		joined:   make(chan *Client, 64),
	}
}

// Run drives the push loop until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer func() {
		ticker.Stop()
		h.closeAll()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.broadcast(ctx, TriggerTick)
		case <-h.wake:
			h.broadcast(ctx, TriggerChange)
		case c := <-h.joined:
			h.sendSnapshot(ctx, c)
		}
	}
}

// Notify asks for an immediate push. Bursts collapse into one.
func (h *Hub) Notify() {
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.FeedSubscribers.Set(float64(n))
	h.log.Info("usage feed client joined", "user_id", c.UserID, "admin", c.Admin, "clients", n)

	select {
	case h.joined <- c:
	default:
		// the next tick reaches it
	}
}

func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.Send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.FeedSubscribers.Set(float64(n))
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(ctx context.Context, trigger string) {
	if h.Len() == 0 {
		return
	}
	rows, err := h.source.ListActive(ctx)
	if err != nil {
		h.log.Error("failed to load active usage", "trigger", trigger, "error", err)
		return
	}
	metrics.FeedBroadcasts.WithLabelValues(trigger).Inc()

	h.mu.Lock()
	defer h.mu.Unlock()

	var all []byte
	for c := range h.clients {
		var msg []byte
		if c.Admin {
			if all == nil {
				all = encode(rows)
			}
			msg = all
		} else {
			msg = encode(RowsFor(rows, c))
		}
		h.deliver(c, msg)
	}
}

func (h *Hub) sendSnapshot(ctx context.Context, c *Client) {
	rows, err := h.source.ListActive(ctx)
	if err != nil {
		h.log.Error("failed to load active usage", "trigger", TriggerJoin, "error", err)
		return
	}
	metrics.FeedBroadcasts.WithLabelValues(TriggerJoin).Inc()

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.deliver(c, encode(RowsFor(rows, c)))
}

// deliver must be called with h.mu held. A client that cannot keep up is
// dropped rather than stalling the others.
func (h *Hub) deliver(c *Client, msg []byte) {
	select {
	case c.Send <- msg:
	default:
		h.log.Warn("usage feed client too slow, dropping", "user_id", c.UserID)
		delete(h.clients, c)
		close(c.Send)
		metrics.FeedSubscribers.Set(float64(len(h.clients)))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.Send)
	}
	metrics.FeedSubscribers.Set(0)
}

// RowsFor filters rows down to what c may see.
func RowsFor(rows []domain.ScreenTime, c *Client) []domain.ScreenTime {
	if c.Admin {
		return rows
	}
	out := make([]domain.ScreenTime, 0, len(rows))
	for _, r := range rows {
		if r.UserID == c.UserID {
			out = append(out, r)
		}
	}
	return out
}

func encode(rows []domain.ScreenTime) []byte {
	if rows == nil {
		rows = []domain.ScreenTime{}
	}
	b, err := json.Marshal(rows)
	if err != nil {
		// rows are plain data; this only fails on programmer error
		return []byte("[]")
	}
	return b
}
