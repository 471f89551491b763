package memory

import (
	"context"
	"sync"

	"voice_review/internal/domain"
)

// Sessions is a process-local SessionStore. Values are cloned on the way in
// and out so callers never share state with the map.
type Sessions struct {
	mu sync.RWMutex
	m  map[string]*domain.ReviewSession
}

func NewSessions() *Sessions {
	return &Sessions{m: make(map[string]*domain.ReviewSession)}
}

func (s *Sessions) Get(_ context.Context, sender string) (*domain.ReviewSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.m[sender]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return rs.Clone(), nil
}

func (s *Sessions) Put(_ context.Context, rs *domain.ReviewSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[rs.Sender] = rs.Clone()
	return nil
}

func (s *Sessions) Delete(_ context.Context, sender string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, sender)
	return nil
}

func (s *Sessions) List(_ context.Context) ([]*domain.ReviewSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.ReviewSession, 0, len(s.m))
	for _, rs := range s.m {
		out = append(out, rs.Clone())
	}
	return out, nil
}
