// Package cacheutil has small generic helpers for TTL read-through caches.
package cacheutil

import (
	"sync"
	"time"
)

// CachedValue is a value plus the time it was fetched.
type CachedValue[T any] struct {
	Value     T
	FetchedAt time.Time
}

// Fresh reports whether the value is younger than ttl at now.
func (c CachedValue[T]) Fresh(now time.Time, ttl time.Duration) bool {
	return !c.FetchedAt.IsZero() && now.Sub(c.FetchedAt) < ttl
}

// ReadThrough returns a cached value when check finds one, otherwise calls fetch
// under the write lock. check runs again after the write lock is taken so that
// callers queued behind a fetch reuse its result instead of fetching again.
func ReadThrough[T any](
	mu *sync.RWMutex,
	check func(now time.Time) (T, bool),
	fetch func(now time.Time) (T, error),
) (T, error) {
	mu.RLock()
	if v, ok := check(time.Now()); ok {
		mu.RUnlock()
		return v, nil
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()

	now := time.Now()
	if v, ok := check(now); ok {
		return v, nil
	}
	return fetch(now)
}

// Map is a keyed TTL cache. The zero value is not usable; call NewMap.
type Map[K comparable, V any] struct {
	ttl time.Duration
	mu  sync.RWMutex
	m   map[K]CachedValue[V]
}

// NewMap returns an empty cache whose entries live for ttl.
func NewMap[K comparable, V any](ttl time.Duration) *Map[K, V] {
	return &Map[K, V]{ttl: ttl, m: make(map[K]CachedValue[V])}
}

// Get returns the cached value for key, fetching it on a miss. The bool
// reports a hit.
func (c *Map[K, V]) Get(key K, fetch func() (V, error)) (V, bool, error) {
	hit := true
	v, err := ReadThrough(&c.mu,
		func(now time.Time) (V, bool) {
			e, ok := c.m[key]
			if ok && e.Fresh(now, c.ttl) {
				return e.Value, true
			}
			var zero V
			return zero, false
		},
		func(now time.Time) (V, error) {
			hit = false
			v, err := fetch()
			if err != nil {
				return v, err
			}
			c.m[key] = CachedValue[V]{Value: v, FetchedAt: now}
			return v, nil
		},
	)
	return v, hit, err
}

// Invalidate drops every entry.
func (c *Map[K, V]) Invalidate() {
	c.mu.Lock()
	c.m = make(map[K]CachedValue[V])
	c.mu.Unlock()
}

// Len counts entries, fresh or not.
func (c *Map[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
