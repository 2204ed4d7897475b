package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps attempts in process. Attempts are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	attempts map[string]Attempt
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{attempts: make(map[string]Attempt)}
}

func (s *MemoryStore) SaveAttempt(_ context.Context, a Attempt) error {
	if err := validateAttempt(&a); err != nil {
		return err
	}
	s.mu.Lock()
	if prev, ok := s.attempts[a.ID]; ok {
		a.CreatedAt = prev.CreatedAt
	}
	s.attempts[a.ID] = a
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	return a, nil
}

func (s *MemoryStore) ListAttempts(_ context.Context, sessionID string, limit int) ([]Attempt, error) {
	s.mu.RLock()
	out := make([]Attempt, 0)
	for _, a := range s.attempts {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
