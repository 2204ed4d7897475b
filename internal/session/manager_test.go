package session

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/veya/storefront/internal/apiclient"
	"github.com/veya/storefront/internal/otp"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T, clock *fakeClock) *Manager {
	t.Helper()
	clients, err := apiclient.NewFactory(apiclient.Options{BaseURL: "http://127.0.0.1:1/api"})
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(Config{
		IdleTTL:         10 * time.Minute,
		CleanupInterval: time.Hour,
		OTP:             OTPConfig{CodeLength: 4, ResetCodeLength: 6, Cooldown: 30 * time.Second, MaxAttempts: 5, PopupDelay: 10 * time.Second},
		Now:             clock.Now,
	}, Deps{Clients: clients, Logger: zerolog.Nop()})
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestCreateAndGet(t *testing.T) {
	m := newTestManager(t, &fakeClock{now: time.Now()})

	s := m.Create()
	got, ok := m.Get(s.ID)
	if !ok || got != s {
		t.Fatal("Get did not return created session")
	}
	if s.OTP(otp.VariantEmail) == nil || s.OTP(otp.VariantPasswordReset) == nil {
		t.Fatal("OTP flows missing")
	}
	if got := s.OTP(otp.VariantPasswordReset).Status().CodeLength; got != 6 {
		t.Errorf("password reset code length = %d, want 6", got)
	}
	if got := s.OTP(otp.VariantEmail).Status().CodeLength; got != 4 {
		t.Errorf("email code length = %d, want 4", got)
	}

	other, created := m.GetOrCreate("unknown")
	if !created || other.ID == "unknown" || other.ID == s.ID {
		t.Errorf("GetOrCreate = %s, created=%v", other.ID, created)
	}
	if _, created := m.GetOrCreate(s.ID); created {
		t.Error("GetOrCreate created a session for a known id")
	}
	if m.Len() != 2 {
		t.Errorf("Len = %d, want 2", m.Len())
	}
}

func TestDisposeCancelsContext(t *testing.T) {
	m := newTestManager(t, &fakeClock{now: time.Now()})
	s := m.Create()

	m.Dispose(s.ID)
	select {
	case <-s.Context().Done():
	default:
		t.Fatal("context not cancelled")
	}
	if _, ok := m.Get(s.ID); ok {
		t.Error("disposed session still returned")
	}
	m.Dispose(s.ID) // second dispose is a no-op
}

func TestSweepDisposesIdleSessions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)}
	m := newTestManager(t, clock)

	idle := m.Create()
	active := m.Create()

	clock.Advance(8 * time.Minute)
	m.Get(active.ID)
	clock.Advance(3 * time.Minute)

	if n := m.Sweep(); n != 1 {
		t.Fatalf("Sweep = %d, want 1", n)
	}
	if _, ok := m.Get(idle.ID); ok {
		t.Error("idle session survived")
	}
	if _, ok := m.Get(active.ID); !ok {
		t.Error("active session disposed")
	}
}

func TestCartKeyFollowsSignIn(t *testing.T) {
	m := newTestManager(t, &fakeClock{now: time.Now()})
	s := m.Create()

	if got := s.cartKey(); got != "session:"+s.ID {
		t.Errorf("guest key = %q", got)
	}
	s.SetUser(&apiclient.User{ID: 7, Username: "asha"})
	if got := s.cartKey(); got != "user:asha" {
		t.Errorf("user key = %q", got)
	}
	s.SetUser(nil)
	if s.User() != nil {
		t.Error("sign-out kept user")
	}
}

func TestCloseDisposesAll(t *testing.T) {
	m := newTestManager(t, &fakeClock{now: time.Now()})
	a, b := m.Create(), m.Create()
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	for _, s := range []*Session{a, b} {
		if s.Context().Err() == nil {
			t.Errorf("session %s still live", s.ID)
		}
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d after Close", m.Len())
	}
}
