// Package broadcast fans accepted placements out to every live subscriber.
//
// Delivery is at-most-once and best-effort. Publish never blocks. A
// subscriber whose buffer is full is evicted rather than skipped, so a client
// is never silently left behind: its channel closes, Lagged reports true, and
// the client is expected to reconnect and refetch the grid.
package broadcast

import (
	"log/slog"
	"sync"

	"github.com/ryanbastic/go-pixelgrid/internal/metrics"
	"github.com/ryanbastic/go-pixelgrid/internal/pixel"
)

// Hub is an in-process publish/subscribe fan-out of pixel updates.
type Hub struct {
	mu         sync.RWMutex
	subs       map[uint64]*Subscription
	nextID     uint64
	bufferSize int
	closed     bool
	logger     *slog.Logger
}

// NewHub creates a Hub whose subscriptions each buffer up to bufferSize events.
func NewHub(bufferSize int, logger *slog.Logger) *Hub {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Hub{
		subs:       make(map[uint64]*Subscription),
		bufferSize: bufferSize,
		logger:     logger,
	}
}

// Subscription is one connection's view of the hub.
type Subscription struct {
	id     uint64
	hub    *Hub
	ch     chan pixel.Cell
	once   sync.Once
	lagged bool // guarded by hub.mu
}

// Subscribe registers a new subscription. Events published before this call
// are never delivered to it. After Close, the returned subscription is
// already ended.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	s := &Subscription{
		id:  h.nextID,
		hub: h,
		ch:  make(chan pixel.Cell, h.bufferSize),
	}
	if h.closed {
		s.once.Do(func() { close(s.ch) })
		return s
	}
	h.subs[s.id] = s
	metrics.SubscriberAdded()
	return s
}

// Publish hands c to every current subscriber without blocking. Callers that
// need per-coordinate ordering must serialize their Publish calls for that
// coordinate; each subscription then sees them in call order.
func (h *Hub) Publish(c pixel.Cell) {
	var laggards []*Subscription

	h.mu.RLock()
	delivered := 0
	for _, s := range h.subs {
		select {
		case s.ch <- c:
			delivered++
		default:
			laggards = append(laggards, s)
		}
	}
	h.mu.RUnlock()

	metrics.BroadcastDelivered(delivered)

	for _, s := range laggards {
		h.logger.Warn("evicting lagging subscriber", "subscriber", s.id, "buffer", h.bufferSize)
		metrics.BroadcastEvicted()
		h.remove(s, true)
	}
}

// Len returns the number of live subscriptions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close ends every subscription and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		h.remove(s, false)
	}
}

func (h *Hub) remove(s *Subscription, lagged bool) {
	s.once.Do(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		s.lagged = lagged
		delete(h.subs, s.id)
		close(s.ch)
		metrics.SubscriberRemoved()
	})
}

// Events returns the channel of updates. It is closed when the subscription
// ends, either by Close or by eviction.
func (s *Subscription) Events() <-chan pixel.Cell {
	return s.ch
}

// Lagged reports whether the hub evicted this subscription for falling behind.
func (s *Subscription) Lagged() bool {
	s.hub.mu.RLock()
	defer s.hub.mu.RUnlock()
	return s.lagged
}

// Close detaches the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s, false)
}
