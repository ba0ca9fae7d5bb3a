// Package message implements the Message Handler of spec.md §4.6 and
// the "framework-managed user-scoped queues" redesign: an explicit
// per-session outbound channel plus delivery to every session in a
// room, so the framing protocol terminator (external, spec.md §1)
// only needs to wire a Sink per connection and hand decoded frames to
// Handle.
package message

import (
	"sync"
)

// Sink delivers one outbound frame to a single connection. The
// framing protocol terminator supplies the implementation; Send must
// not block indefinitely.
type Sink interface {
	Send(v any) error
}

// Hub is the "send frame F to session S" / "send frame F to every
// session in room R" abstraction: a registry of per-session sinks.
// Room membership itself lives in session.Registry; Hub only holds the
// transport-facing handle for delivery.
type Hub struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

func NewHub() *Hub {
	return &Hub{sinks: make(map[string]Sink)}
}

// Register associates a session with its outbound sink, replacing any
// prior sink for that session.
func (h *Hub) Register(sessionID string, sink Sink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks[sessionID] = sink
}

// Unregister removes a session's sink, for use on disconnect.
func (h *Hub) Unregister(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sinks, sessionID)
}

// Send delivers v to a single session. It returns false if the
// session has no registered sink (already disconnected).
func (h *Hub) Send(sessionID string, v any) (sent bool, err error) {
	h.mu.RLock()
	sink, ok := h.sinks[sessionID]
	h.mu.RUnlock()

	if !ok {
		return false, nil
	}
	return true, sink.Send(v)
}

// SendToRoom delivers v to every session id in sessionIDs that still
// has a registered sink, skipping the rest.
func (h *Hub) SendToRoom(sessionIDs []string, v any) {
	for _, sessionID := range sessionIDs {
		_, _ = h.Send(sessionID, v)
	}
}
