package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	apierrors "github.com/veya/storefront/internal/errors"
	"github.com/veya/storefront/internal/metrics"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func hit(h http.Handler, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.GlobalEnabled || !cfg.PerIPEnabled || !cfg.OTPEnabled {
		t.Errorf("limiters disabled by default: %+v", cfg)
	}
	if cfg.OTPLimit >= cfg.PerIPLimit {
		t.Errorf("OTP limit %d should be tighter than per-IP %d", cfg.OTPLimit, cfg.PerIPLimit)
	}
}

func TestDisabledLimiterPassesThrough(t *testing.T) {
	h := GlobalLimiter(Config{})(okHandler())
	for i := 0; i < 50; i++ {
		if rec := hit(h, "10.0.0.1:1234"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
}

func TestGlobalLimiterEnforcesLimit(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := GlobalLimiter(Config{GlobalEnabled: true, GlobalLimit: 3, GlobalWindow: time.Minute, Metrics: m})(okHandler())

	for i := 0; i < 3; i++ {
		if rec := hit(h, "10.0.0.1:1234"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}
	// Different IP, same global bucket.
	rec := hit(h, "10.0.0.2:1234")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}
	var body apierrors.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != apierrors.ErrCodeRateLimited || !body.Error.Retryable {
		t.Errorf("error = %+v", body.Error)
	}
	if got := testutil.ToFloat64(m.RateLimitHitsTotal.WithLabelValues(LimitGlobal)); got != 1 {
		t.Errorf("rate limit metric = %v, want 1", got)
	}
}

func TestIPLimiterIsolatesClients(t *testing.T) {
	h := IPLimiter(Config{PerIPEnabled: true, PerIPLimit: 2, PerIPWindow: time.Minute})(okHandler())

	hit(h, "10.0.0.1:1000")
	hit(h, "10.0.0.1:1001")
	if rec := hit(h, "10.0.0.1:1002"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("third request from same IP: %d, want 429", rec.Code)
	}
	if rec := hit(h, "10.0.0.9:1000"); rec.Code != http.StatusOK {
		t.Errorf("other IP: %d, want 200", rec.Code)
	}
}

func TestOTPLimiterMessage(t *testing.T) {
	h := OTPLimiter(Config{OTPEnabled: true, OTPLimit: 1, OTPWindow: 10 * time.Minute})(okHandler())
	hit(h, "10.0.0.1:1000")
	rec := hit(h, "10.0.0.1:1000")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d", rec.Code)
	}
	var body apierrors.ErrorResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Error.Message != "Too many OTP requests. Please try again later." {
		t.Errorf("message = %q", body.Error.Message)
	}
	if body.Error.Details["retryAfterSeconds"] != float64(600) {
		t.Errorf("details = %v", body.Error.Details)
	}
}
