// Package hub fans events out to connected dashboard observers.
package hub

import (
	"log/slog"
	"sync"

	"github.com/livedesk-ai/livedesk/pkg/protocol"
)

// Observer receives broadcast frames. Send must be safe for concurrent use.
type Observer interface {
	ID() string
	Send(data []byte) error
}

// Hub is the observer registry. Broadcast delivers to a snapshot taken in
// registration order; observers whose Send fails are dropped from the
// registry after the sweep completes, so one bad connection never blocks
// delivery to the rest. There is no per-send timeout; a stalled socket is
// surfaced as a write error by the transport.
type Hub struct {
	mu        sync.RWMutex
	order     []string
	observers map[string]Observer
}

func New() *Hub {
	return &Hub{observers: make(map[string]Observer)}
}

// Connect registers an observer. Reconnecting with an existing ID replaces
// the old entry in place.
func (h *Hub) Connect(obs Observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.observers[obs.ID()]; !exists {
		h.order = append(h.order, obs.ID())
	}
	h.observers[obs.ID()] = obs
	slog.Info("observer connected", "observer_id", obs.ID(), "total", len(h.observers))
}

// Disconnect removes an observer. Unknown IDs are a no-op.
func (h *Hub) Disconnect(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.observers[id]; !exists {
		return
	}
	h.remove(id)
	slog.Info("observer disconnected", "observer_id", id, "total", len(h.observers))
}

// Count reports the number of registered observers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Broadcast marshals the event once and delivers it to every observer.
// With zero observers it does nothing, not even the marshal.
func (h *Hub) Broadcast(event protocol.Envelope) {
	h.mu.RLock()
	snapshot := make([]Observer, 0, len(h.order))
	for _, id := range h.order {
		snapshot = append(snapshot, h.observers[id])
	}
	h.mu.RUnlock()

	if len(snapshot) == 0 {
		return
	}

	data, err := event.Marshal()
	if err != nil {
		slog.Error("broadcast marshal failed", "error", err)
		return
	}

	var failed []string
	for _, obs := range snapshot {
		if err := obs.Send(data); err != nil {
			slog.Warn("observer send failed", "observer_id", obs.ID(), "error", err)
			failed = append(failed, obs.ID())
		}
	}

	if len(failed) > 0 {
		h.mu.Lock()
		for _, id := range failed {
			h.remove(id)
		}
		h.mu.Unlock()
		slog.Info("removed failed observers", "count", len(failed))
	}
}

// remove must be called with mu held for writing.
func (h *Hub) remove(id string) {
	delete(h.observers, id)
	for i, oid := range h.order {
		if oid == id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}
