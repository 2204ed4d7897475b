package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveBackendRequest(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveBackendRequest("cart.list", "GET", 200, 30*time.Millisecond)
	m.ObserveBackendRequest("cart.list", "GET", 204, 30*time.Millisecond)
	m.ObserveBackendRequest("cart.list", "GET", 0, time.Second)

	if got := promtest.ToFloat64(m.BackendRequestsTotal.WithLabelValues("cart.list", "GET", "2xx")); got != 2 {
		t.Errorf("2xx = %.0f, want 2", got)
	}
	if got := promtest.ToFloat64(m.BackendRequestsTotal.WithLabelValues("cart.list", "GET", "error")); got != 1 {
		t.Errorf("error = %.0f, want 1", got)
	}
	if n := promtest.CollectAndCount(m.BackendRequestDuration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}
}

func TestObserveCartAndCheckout(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCartMutation("add", nil)
	m.ObserveCartMutation("add", errors.New("boom"))
	m.ObserveCheckout("online", "verified", 2*time.Second)
	m.ObserveOrderPlaced("INR", 39900)
	m.ObserveOrderPlaced("INR", 0)

	if got := promtest.ToFloat64(m.CartMutationsTotal.WithLabelValues("add", "error")); got != 1 {
		t.Errorf("add errors = %.0f", got)
	}
	if got := promtest.ToFloat64(m.CheckoutsTotal.WithLabelValues("online", "verified")); got != 1 {
		t.Errorf("checkouts = %.0f", got)
	}
	if got := promtest.ToFloat64(m.OrderValueTotal.WithLabelValues("INR")); got != 39900 {
		t.Errorf("order value = %.0f", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObserveOTP("email", "sent")
	m.ObserveNotification("success")
	m.SetActiveSessions(3)
	MeasureDBQuery(m, "save_attempt", "memory")()
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{0: "error", 200: "2xx", 401: "4xx", 503: "5xx"}
	for in, want := range tests {
		if got := statusClass(in); got != want {
			t.Errorf("statusClass(%d) = %q, want %q", in, got, want)
		}
	}
}
