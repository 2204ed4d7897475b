package notify

import (
	"testing"
	"time"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestAutoDismiss(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	n := New(Config{Duration: 3 * time.Second, Now: clock.Now})

	n.Success("Order placed successfully!")
	clock.Advance(2 * time.Second)
	n.Error("Failed to place order. Please try again.")

	if got := len(n.Active()); got != 2 {
		t.Fatalf("active = %d, want 2", got)
	}

	clock.Advance(1500 * time.Millisecond)
	active := n.Active()
	if len(active) != 1 || active[0].Type != Error {
		t.Fatalf("active after 3.5s = %+v", active)
	}

	clock.Advance(2 * time.Second)
	if got := len(n.Active()); got != 0 {
		t.Errorf("active after 5.5s = %d, want 0", got)
	}
}

func TestQueueDropsOldest(t *testing.T) {
	n := New(Config{QueueSize: 2})
	n.Info("one")
	n.Info("two")
	n.Warning("three")

	active := n.Active()
	if len(active) != 2 || active[0].Message != "two" || active[1].Message != "three" {
		t.Errorf("active = %+v", active)
	}
}

func TestDrainAndDismiss(t *testing.T) {
	n := New(Config{})
	a := n.Push(Info, "a")
	n.Push(Info, "b")

	if !n.Dismiss(a.ID) {
		t.Fatal("Dismiss did not find toast")
	}
	if n.Dismiss("nope") {
		t.Error("Dismiss found unknown id")
	}

	drained := n.Drain()
	if len(drained) != 1 || drained[0].Message != "b" {
		t.Errorf("drained = %+v", drained)
	}
	if got := n.Drain(); len(got) != 0 {
		t.Errorf("second drain = %+v", got)
	}
}
