// Package statusapi serves batch history and live progress over HTTP.
package statusapi

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/observability"
)

// Hub fans progress events out to live subscribers. Slow subscribers miss
// events rather than block the publisher.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan domain.ProgressEvent
	nextID int
	buffer int
	logger *observability.Logger
}

// NewHub creates a hub whose subscribers buffer up to buffer events.
func NewHub(buffer int, logger *observability.Logger) *Hub {
	if logger == nil {
		logger = observability.Nop()
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{subs: make(map[int]chan domain.ProgressEvent), buffer: buffer, logger: logger}
}

// Publish implements domain.ProgressSink.
func (h *Hub) Publish(ctx context.Context, event domain.ProgressEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.logger.Debug().Int("subscriber", id).Msg("Subscriber too slow, event dropped")
		}
	}
	return nil
}

// Subscribe returns a channel of events and a func that ends the
// subscription and closes the channel.
func (h *Hub) Subscribe() (<-chan domain.ProgressEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	ch := make(chan domain.ProgressEvent, h.buffer)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Feed publishes JSON-encoded events from msgs, such as a Redis
// subscription, until msgs closes or ctx ends.
func (h *Hub) Feed(ctx context.Context, msgs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-msgs:
			if !ok {
				return
			}
			var ev domain.ProgressEvent
			if err := json.Unmarshal(raw, &ev); err != nil {
				h.logger.Warn().Err(err).Msg("Dropping malformed progress message")
				continue
			}
			_ = h.Publish(ctx, ev)
		}
	}
}
