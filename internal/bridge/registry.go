package bridge

import (
	"fmt"
	"sync"
)

// Registry is a thread-safe, in-memory store of active bridge sessions,
// keyed by the transport connection id. Purely process-lifetime state; no
// persistence.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an initialised, empty Registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create adds a new session for id. Connection ids come from the transport
// layer and are never reused, so a duplicate is a programming error and is
// rejected.
func (r *Registry) Create(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return nil, fmt.Errorf("bridge: session %q already registered", id)
	}
	s := newSession(id)
	r.sessions[id] = s
	return s, nil
}

// Get returns the Session for id, or (nil, false) when not found.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	return s, ok
}

// Remove deletes the session entry. It does not close the session; the
// owning gateway goroutine is responsible for that.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// All returns a snapshot of all currently registered sessions. The returned
// slice is a copy; the caller may iterate it without holding any lock.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	return out
}
