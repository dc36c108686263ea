// Package broadcast pushes state changes from the background context to every
// subscribed page context. One authoritative store, N read-only observers.
package broadcast

import (
	"sync"

	"browsepulse/internal/ipc"

	"go.uber.org/zap"
)

// SendFunc delivers one push frame to a subscriber. A returned error drops
// the subscriber.
type SendFunc func(ipc.Command) error

// Hub is the subscriber registry.
type Hub struct {
	mu     sync.Mutex
	subs   map[int]SendFunc
	nextID int
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[int]SendFunc),
		logger: logger,
	}
}

// Subscribe registers a page context. The returned function unsubscribes it.
func (h *Hub) Subscribe(send func(ipc.Command) error) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextID
	h.nextID++
	h.subs[id] = send

	h.logger.Debug("Page context subscribed", zap.Int("subscriber_id", id))

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

// Publish pushes one frame to all subscribers. Dead subscribers are removed
// as they fail; a slow page never blocks the others for longer than its own
// write.
func (h *Hub) Publish(name string, payload interface{}) {
	frame := ipc.Command{Name: name}
	if payload != nil {
		frame.Payload = ipc.Marshal(payload)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, send := range h.subs {
		if err := send(frame); err != nil {
			h.logger.Debug("Dropping dead subscriber",
				zap.Int("subscriber_id", id),
				zap.Error(err),
			)
			delete(h.subs, id)
		}
	}
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
