package websocket

import (
	"sync"

	"watchtower/internal/session"
)

// Registry tracks live sessions by handle ID, for stats and for closing
// everything on shutdown. Group membership is the channel layer's concern;
// the registry only knows which sessions exist.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*session.Session),
	}
}

// Register adds a session.
func (r *Registry) Register(s *session.Session) error {
	if s == nil {
		return ErrNilSession
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.HandleID()] = s
	return nil
}

// Unregister removes a session. Idempotent, and removal only happens for
// the exact instance registered under that handle.
func (r *Registry) Unregister(s *session.Session) {
	if s == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if registered, exists := r.sessions[s.HandleID()]; exists && registered == s {
		delete(r.sessions, s.HandleID())
	}
}

// Stats reports connection counts for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tokenSessions := 0
	for _, s := range r.sessions {
		if s.TokenKey() != "" {
			tokenSessions++
		}
	}

	return map[string]int{
		"total_connections": len(r.sessions),
		"token_sessions":    tokenSessions,
	}
}

// CloseAll closes every registered session. Used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	sessions := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}
