package session

import (
	"context"
	"sync"

	"goa.design/mcpcore/internal/jsonvalue"
)

// Hub tracks every currently connected session and fans a notification out
// to all of them at once — the multi-session counterpart to Session.Notify,
// used for the list_changed family of notifications where every peer needs
// to hear about a registry change, not just the one that triggered it.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{sessions: make(map[string]*Session)}
}

// Add registers s so it receives future Broadcast calls.
func (h *Hub) Add(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID()] = s
	h.mu.Unlock()
}

// Remove unregisters the session with the given id, typically called when a
// transport's connection for that session ends.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

// Len reports the number of currently tracked sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Broadcast sends method/params as a notification to every tracked session.
// A send failure for one session is logged to nothing and does not stop
// delivery to the others; Session.Notify already treats its SendFunc as
// best-effort per connection.
func (h *Hub) Broadcast(ctx context.Context, method string, params jsonvalue.Value) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		_ = s.Notify(ctx, method, params)
	}
}
