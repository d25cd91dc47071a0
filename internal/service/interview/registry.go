package interview

import (
	"errors"
	"sync"
)

var ErrSessionExists = errors.New("a live session already uses this token")

// Registry 进程内的活跃会话表，以会话凭证为键。
// 谁从表中移除了会话，谁就负责结束它。
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Insert registers s under token, failing if another session holds it.
func (r *Registry) Insert(token string, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[token]; exists {
		return ErrSessionExists
	}
	r.sessions[token] = s
	return nil
}

func (r *Registry) Get(token string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[token]
	return s, ok
}

// Remove deletes token only while it still maps to s. It reports whether this
// call performed the removal.
func (r *Registry) Remove(token string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if current, ok := r.sessions[token]; !ok || current != s {
		return false
	}
	delete(r.sessions, token)
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
