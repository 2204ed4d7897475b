package cart

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/veya/storefront/internal/apiclient"
	"github.com/veya/storefront/internal/money"
	"golang.org/x/sync/errgroup"
)

type mockBackend struct {
	getCart func(ctx context.Context) ([]apiclient.CartItem, error)
	add     func(ctx context.Context, productID int64, quantity int) error
	update  func(ctx context.Context, itemID int64, quantity int) error
	remove  func(ctx context.Context, itemID int64) error

	gets atomic.Int32
}

func (m *mockBackend) GetCart(ctx context.Context) ([]apiclient.CartItem, error) {
	m.gets.Add(1)
	if m.getCart != nil {
		return m.getCart(ctx)
	}
	return nil, nil
}

func (m *mockBackend) AddToCart(ctx context.Context, productID int64, quantity int) error {
	if m.add != nil {
		return m.add(ctx, productID, quantity)
	}
	return nil
}

func (m *mockBackend) UpdateCartItem(ctx context.Context, itemID int64, quantity int) error {
	if m.update != nil {
		return m.update(ctx, itemID, quantity)
	}
	return nil
}

func (m *mockBackend) RemoveCartItem(ctx context.Context, itemID int64) error {
	if m.remove != nil {
		return m.remove(ctx, itemID)
	}
	return nil
}

func staticKey() string { return "visitor-1" }

func TestFetchUnauthenticatedIsEmptyCart(t *testing.T) {
	b := &mockBackend{getCart: func(context.Context) ([]apiclient.CartItem, error) {
		return nil, &apiclient.APIError{Status: 401}
	}}
	s := NewStore(b, staticKey, Deps{})

	items, err := s.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 0 || !s.Guest() || !s.Empty() || !s.Loaded() {
		t.Errorf("items=%v guest=%v empty=%v loaded=%v", items, s.Guest(), s.Empty(), s.Loaded())
	}
}

func TestFetchOtherErrorsPropagate(t *testing.T) {
	b := &mockBackend{getCart: func(context.Context) ([]apiclient.CartItem, error) {
		return nil, apiclient.ErrNetwork
	}}
	s := NewStore(b, staticKey, Deps{})
	if _, err := s.Fetch(context.Background()); !errors.Is(err, apiclient.ErrNetwork) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestUpdateQuantityBelowOneRemoves(t *testing.T) {
	for _, qty := range []int{0, -1} {
		var removed int64
		b := &mockBackend{
			update: func(context.Context, int64, int) error {
				t.Fatalf("update must not be called with quantity %d", qty)
				return nil
			},
			remove: func(_ context.Context, id int64) error {
				removed = id
				return nil
			},
		}
		s := NewStore(b, staticKey, Deps{})
		if err := s.UpdateQuantity(context.Background(), 9, qty); err != nil {
			t.Fatalf("UpdateQuantity(%d): %v", qty, err)
		}
		if removed != 9 {
			t.Errorf("quantity %d: removed = %d, want 9", qty, removed)
		}
	}
}

func TestMutationsRefetch(t *testing.T) {
	cart := []apiclient.CartItem{
		{ID: 1, Quantity: 2, TotalPrice: money.Rupees(500)},
		{ID: 2, Quantity: 1, TotalPrice: money.Rupees(250)},
	}
	b := &mockBackend{getCart: func(context.Context) ([]apiclient.CartItem, error) { return cart, nil }}
	s := NewStore(b, staticKey, Deps{})
	ctx := context.Background()

	if err := s.Add(ctx, 7, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateQuantity(ctx, 1, 3); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if got := b.gets.Load(); got != 3 {
		t.Errorf("re-fetches = %d, want 3", got)
	}
	if s.Total() != money.Rupees(750) {
		t.Errorf("Total = %v", s.Total())
	}
	if s.Count() != 3 {
		t.Errorf("Count = %d", s.Count())
	}
}

func TestAddSurfacesAuthFailure(t *testing.T) {
	b := &mockBackend{add: func(context.Context, int64, int) error {
		return &apiclient.APIError{Status: 401}
	}}
	s := NewStore(b, staticKey, Deps{})

	err := s.Add(context.Background(), 1, 1)
	if !errors.Is(err, apiclient.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if b.gets.Load() != 0 {
		t.Error("failed mutation must not re-fetch")
	}
	if err := s.Add(context.Background(), 1, 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Errorf("Add(0) = %v", err)
	}
}

func TestMutationsAreSerializedPerCart(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	track := func(context.Context, int64, int) error {
		n := inFlight.Add(1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	}
	b := &mockBackend{add: track, update: track}

	locks := NewKeyedMutex()
	// Two stores for the same cart identity, e.g. two tabs of one signed-in user.
	s1 := NewStore(b, staticKey, Deps{Locks: locks})
	s2 := NewStore(b, staticKey, Deps{Locks: locks})

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		i := i
		g.Go(func() error {
			if i%2 == 0 {
				return s1.Add(context.Background(), 1, 1)
			}
			return s2.UpdateQuantity(context.Background(), 1, i)
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := maxInFlight.Load(); got != 1 {
		t.Errorf("max concurrent mutations = %d, want 1", got)
	}
	if locks.Len() != 0 {
		t.Errorf("lock entries leaked: %d", locks.Len())
	}
}

func TestConcurrentFetchesAreCoalesced(t *testing.T) {
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(1)
	var once sync.Once
	b := &mockBackend{getCart: func(context.Context) ([]apiclient.CartItem, error) {
		once.Do(started.Done)
		<-release
		return []apiclient.CartItem{{ID: 1, Quantity: 1}}, nil
	}}
	s := NewStore(b, staticKey, Deps{})

	var g errgroup.Group
	g.Go(func() error { _, err := s.Fetch(context.Background()); return err })
	started.Wait()
	for i := 0; i < 4; i++ {
		g.Go(func() error { _, err := s.Fetch(context.Background()); return err })
	}
	time.Sleep(50 * time.Millisecond)
	close(release)

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if got := b.gets.Load(); got != 1 {
		t.Errorf("backend fetches = %d, want 1", got)
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d", s.Count())
	}
}

func TestCancelledContextSkipsMutation(t *testing.T) {
	called := false
	b := &mockBackend{add: func(context.Context, int64, int) error { called = true; return nil }}
	s := NewStore(b, staticKey, Deps{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Add(ctx, 1, 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Error("backend called after cancellation")
	}
}
