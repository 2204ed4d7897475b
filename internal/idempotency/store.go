// Package idempotency replays the response of a repeated checkout submission
// instead of placing a second order.
package idempotency

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Response is a captured handler response.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	CachedAt   time.Time
}

// Store keeps responses by scoped key.
type Store interface {
	Get(ctx context.Context, key string) (*Response, bool)
	Set(ctx context.Context, key string, resp *Response, ttl time.Duration) error
	// Reserve claims key for an in-flight request. It returns false when the
	// key is already reserved or answered.
	Reserve(ctx context.Context, key string, ttl time.Duration) bool
	Release(ctx context.Context, key string)
}

type entry struct {
	key      string
	resp     *Response // nil while reserved
	expires  time.Time
	position *list.Element
}

// MemoryStore is an LRU-bounded in-process store. Expired entries are dropped
// on access and by a periodic sweep.
type MemoryStore struct {
	capacity int
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // front is most recently used

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewMemoryStore holds at most capacity keys (10000 when capacity <= 0).
func NewMemoryStore(capacity int) *MemoryStore {
	return newMemoryStore(capacity, time.Now, 5*time.Minute)
}

func newMemoryStore(capacity int, now func() time.Time, sweepEvery time.Duration) *MemoryStore {
	if capacity <= 0 {
		capacity = 10000
	}
	s := &MemoryStore{
		capacity: capacity,
		now:      now,
		entries:  make(map[string]*entry),
		order:    list.New(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.sweepLoop(sweepEvery)
	return s
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.liveLocked(key)
	if e == nil || e.resp == nil {
		return nil, false
	}
	s.order.MoveToFront(e.position)
	return e.resp, true
}

func (s *MemoryStore) Set(_ context.Context, key string, resp *Response, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(key, resp, ttl)
	return nil
}

func (s *MemoryStore) Reserve(_ context.Context, key string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.liveLocked(key) != nil {
		return false
	}
	s.putLocked(key, nil, ttl)
	return true
}

// Release drops a reservation that never got a response.
func (s *MemoryStore) Release(_ context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.resp == nil {
		s.removeLocked(e)
	}
}

// Len counts entries, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *MemoryStore) liveLocked(key string) *entry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !s.now().Before(e.expires) {
		s.removeLocked(e)
		return nil
	}
	return e
}

func (s *MemoryStore) putLocked(key string, resp *Response, ttl time.Duration) {
	expires := s.now().Add(ttl)
	if e, ok := s.entries[key]; ok {
		e.resp, e.expires = resp, expires
		s.order.MoveToFront(e.position)
		return
	}
	for len(s.entries) >= s.capacity {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.removeLocked(oldest.Value.(*entry))
	}
	e := &entry{key: key, resp: resp, expires: expires}
	e.position = s.order.PushFront(e)
	s.entries[key] = e
}

func (s *MemoryStore) removeLocked(e *entry) {
	s.order.Remove(e.position)
	delete(s.entries, e.key)
}

func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, e := range s.entries {
		if !now.Before(e.expires) {
			s.removeLocked(e)
		}
	}
}

func (s *MemoryStore) sweepLoop(every time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

// Close stops the sweep goroutine.
func (s *MemoryStore) Close() error {
	s.once.Do(func() {
		close(s.stop)
		<-s.done
	})
	return nil
}
