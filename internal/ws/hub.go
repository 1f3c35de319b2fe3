package ws

import (
	"log"
	"sync"

	"vigil/internal/session"
)

// Hub tracks the live analysis sessions so the status endpoint can
// report on them. Sessions register on connect and unregister on close.
type Hub struct {
	sessions map[string]*session.Session
	mu       sync.RWMutex
}

// NewHub creates an empty session registry
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*session.Session),
	}
}

// Register adds a session to the registry
func (h *Hub) Register(s *session.Session) {
	h.mu.Lock()
	h.sessions[s.ID()] = s
	total := len(h.sessions)
	h.mu.Unlock()
	log.Printf("[WS] Session %s registered (total: %d)", s.ID(), total)
}

// Unregister removes a session from the registry
func (h *Hub) Unregister(s *session.Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID())
	h.mu.Unlock()
	log.Printf("[WS] Session %s unregistered", s.ID())
}

// SessionCount returns the number of live sessions
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Stats returns a snapshot of every live session
func (h *Hub) Stats() []session.Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := make([]session.Stats, 0, len(h.sessions))
	for _, s := range h.sessions {
		stats = append(stats, s.Stats())
	}
	return stats
}
