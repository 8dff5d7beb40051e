package session

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	userID    int
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Expired entries are dropped
// lazily on access.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	sessions map[string]entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now, sessions: map[string]entry{}}
}

func (s *MemoryStore) Get(_ context.Context, token string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[token]
	if !ok {
		return 0, ErrNotFound
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.sessions, token)
		return 0, ErrNotFound
	}
	return e.userID, nil
}

// Set stores the session; a ttl of zero never expires.
func (s *MemoryStore) Set(_ context.Context, token string, userID int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry{userID: userID}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.sessions[token] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

// SetClock replaces the clock used for expiry.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}
