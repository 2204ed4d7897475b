package circuitbreaker

import (
	"errors"
	"testing"
	"time"
)

func TestManagerTripsAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackendAPI.ConsecutiveFailures = 2
	cfg.BackendAPI.Timeout = time.Hour
	m := NewManager(cfg)

	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		if _, err := m.Execute(ServiceBackendAPI, func() (interface{}, error) { return nil, boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: got %v, want boom", i, err)
		}
	}

	called := false
	_, err := m.Execute(ServiceBackendAPI, func() (interface{}, error) {
		called = true
		return nil, nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
	if called {
		t.Error("open breaker must not run the call")
	}
	if got := m.State(ServiceBackendAPI); got != "open" {
		t.Errorf("state = %q", got)
	}

	// Stripe has its own breaker.
	if got := m.State(ServiceStripe); got != "closed" {
		t.Errorf("stripe state = %q", got)
	}
}

func TestManagerDisabledPassesThrough(t *testing.T) {
	m := NewManager(Config{Enabled: false})
	out, err := m.Execute(ServiceBackendAPI, func() (interface{}, error) { return 42, nil })
	if err != nil || out.(int) != 42 {
		t.Fatalf("got %v, %v", out, err)
	}
	if m.State(ServiceBackendAPI) != "disabled" {
		t.Error("expected disabled state")
	}
}
