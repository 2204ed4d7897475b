// Package cart holds the visitor's cart lines, kept in step with the backend.
//
// Mutations never touch local state directly: each one is a backend round trip
// followed by a full re-fetch, and mutations on the same cart run one at a time.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/veya/storefront/internal/apiclient"
	"github.com/veya/storefront/internal/logger"
	"github.com/veya/storefront/internal/metrics"
	"github.com/veya/storefront/internal/money"
	"github.com/veya/storefront/internal/pricing"
	"golang.org/x/sync/singleflight"
)

// ErrInvalidQuantity is returned when adding fewer than one unit.
var ErrInvalidQuantity = errors.New("cart: quantity must be at least 1")

// Backend is the slice of the REST API the store needs.
type Backend interface {
	GetCart(ctx context.Context) ([]apiclient.CartItem, error)
	AddToCart(ctx context.Context, productID int64, quantity int) error
	UpdateCartItem(ctx context.Context, itemID int64, quantity int) error
	RemoveCartItem(ctx context.Context, itemID int64) error
}

// Deps are shared across every visitor's store.
type Deps struct {
	Locks   *KeyedMutex
	Flights *singleflight.Group
	Metrics *metrics.Metrics
}

// Store is one visitor's cart.
type Store struct {
	backend Backend
	key     func() string
	locks   *KeyedMutex
	flights *singleflight.Group
	metrics *metrics.Metrics

	mu         sync.RWMutex
	items      []apiclient.CartItem
	guest      bool
	loaded     bool
	fetchedAt  time.Time
	seq        uint64 // last issued fetch
	appliedSeq uint64 // fetch whose result is in items
}

// NewStore builds a store. key returns the cart identity (the backend user when
// known, otherwise the visitor session); it is read on every operation because
// signing in changes it.
func NewStore(backend Backend, key func() string, deps Deps) *Store {
	if deps.Locks == nil {
		deps.Locks = NewKeyedMutex()
	}
	if deps.Flights == nil {
		deps.Flights = &singleflight.Group{}
	}
	return &Store{
		backend: backend,
		key:     key,
		locks:   deps.Locks,
		flights: deps.Flights,
		metrics: deps.Metrics,
	}
}

// Fetch refreshes the cart from the backend. A visitor who is not signed in has
// an empty cart; that is not an error. Concurrent fetches of the same cart share
// one request.
func (s *Store) Fetch(ctx context.Context) ([]apiclient.CartItem, error) {
	if err := s.fetch(ctx); err != nil {
		return nil, err
	}
	return s.Items(), nil
}

func (s *Store) fetch(ctx context.Context) error {
	return s.fetchKey(ctx, false)
}

// fetchKey issues a fetch. fresh forces a new backend request instead of
// joining one already in flight, which may predate a mutation.
func (s *Store) fetchKey(ctx context.Context, fresh bool) error {
	flightKey := "cart:" + s.key()
	if fresh {
		s.flights.Forget(flightKey)
	}

	s.mu.Lock()
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	v, err, _ := s.flights.Do(flightKey, func() (interface{}, error) {
		return s.backend.GetCart(ctx)
	})

	switch {
	case errors.Is(err, apiclient.ErrUnauthenticated):
		s.apply(seq, nil, true)
		s.metrics.ObserveCartFetch("guest")
		return nil
	case err != nil:
		s.metrics.ObserveCartFetch("error")
		return fmt.Errorf("fetch cart: %w", err)
	}

	items, _ := v.([]apiclient.CartItem)
	s.apply(seq, items, false)
	s.metrics.ObserveCartFetch("ok")
	return nil
}

// apply installs a fetch result unless a newer fetch already landed.
func (s *Store) apply(seq uint64, items []apiclient.CartItem, guest bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < s.appliedSeq {
		return
	}
	s.appliedSeq = seq
	s.items = normalize(items)
	s.guest = guest
	s.loaded = true
	s.fetchedAt = time.Now()
}

// normalize copies items, dropping any line the backend reports below one unit.
func normalize(items []apiclient.CartItem) []apiclient.CartItem {
	out := make([]apiclient.CartItem, 0, len(items))
	for _, it := range items {
		if it.Quantity >= 1 {
			out = append(out, it)
		}
	}
	return out
}

// Add puts quantity units of a product in the cart. Failures, including
// ErrUnauthenticated, are returned so the caller can prompt a sign-in.
func (s *Store) Add(ctx context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	return s.mutate(ctx, "add", func() error {
		return s.backend.AddToCart(ctx, productID, quantity)
	})
}

// UpdateQuantity sets a line's quantity. Anything below 1 removes the line.
func (s *Store) UpdateQuantity(ctx context.Context, itemID int64, quantity int) error {
	if quantity < 1 {
		return s.Remove(ctx, itemID)
	}
	return s.mutate(ctx, "update", func() error {
		return s.backend.UpdateCartItem(ctx, itemID, quantity)
	})
}

// Remove deletes a line.
func (s *Store) Remove(ctx context.Context, itemID int64) error {
	return s.mutate(ctx, "remove", func() error {
		return s.backend.RemoveCartItem(ctx, itemID)
	})
}

// mutate runs op and the follow-up re-fetch while holding the cart's lock, so
// rapid +/- clicks apply in order and each sees the previous result.
func (s *Store) mutate(ctx context.Context, op string, fn func() error) error {
	unlock := s.locks.Lock(s.key())
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	err := fn()
	s.metrics.ObserveCartMutation(op, err)
	if err != nil {
		return fmt.Errorf("cart %s: %w", op, err)
	}

	// The mutation landed; a failed refresh leaves the last known cart in place.
	if err := s.fetchKey(ctx, true); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("op", op).Msg("cart.refresh_failed")
	}
	return nil
}

// Items returns a copy of the current lines.
func (s *Store) Items() []apiclient.CartItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]apiclient.CartItem, len(s.items))
	copy(out, s.items)
	return out
}

// Total sums the backend's per-line totals; it is not recomputed locally.
func (s *Store) Total() money.Money {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total money.Money
	for _, it := range s.items {
		total += it.TotalPrice
	}
	return total
}

// Count is the number of units across all lines.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, it := range s.items {
		n += it.Quantity
	}
	return n
}

// Empty reports whether the cart has no lines.
func (s *Store) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items) == 0
}

// Guest reports whether the last fetch found no signed-in user.
func (s *Store) Guest() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.guest
}

// Loaded reports whether any fetch has completed.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// Lines converts the cart into pricing input.
func (s *Store) Lines() []pricing.Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lines := make([]pricing.Line, 0, len(s.items))
	for _, it := range s.items {
		lines = append(lines, pricing.Line{
			Price:         it.Product.Price,
			DiscountPrice: it.Product.DiscountPrice,
			Quantity:      it.Quantity,
		})
	}
	return lines
}

// Reset forgets local state, e.g. after sign-out.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.guest = true
	s.loaded = false
	s.appliedSeq = s.seq
}

// FetchedAt is when the current lines were last synchronized.
func (s *Store) FetchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchedAt
}
