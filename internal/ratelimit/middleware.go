// Package ratelimit throttles storefront traffic with httprate.
package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
	apierrors "github.com/veya/storefront/internal/errors"
	"github.com/veya/storefront/internal/metrics"
)

// Limit types reported to metrics.
const (
	LimitGlobal = "global"
	LimitPerIP  = "per_ip"
	LimitOTP    = "otp"
)

// Config holds rate limiting configuration.
type Config struct {
	GlobalEnabled bool
	GlobalLimit   int
	GlobalWindow  time.Duration

	PerIPEnabled bool
	PerIPLimit   int
	PerIPWindow  time.Duration

	// OTP send and verify, keyed by IP.
	OTPEnabled bool
	OTPLimit   int
	OTPWindow  time.Duration

	Metrics *metrics.Metrics
}

func DefaultConfig() Config {
	return Config{
		GlobalEnabled: true,
		GlobalLimit:   1000,
		GlobalWindow:  time.Minute,

		PerIPEnabled: true,
		PerIPLimit:   120,
		PerIPWindow:  time.Minute,

		OTPEnabled: true,
		OTPLimit:   10,
		OTPWindow:  10 * time.Minute,
	}
}

func limitHandler(limitType string, window time.Duration, m *metrics.Metrics) http.HandlerFunc {
	message := "Too many requests. Please try again later."
	if limitType == LimitOTP {
		message = "Too many OTP requests. Please try again later."
	}
	retryAfter := int(window.Seconds())
	return func(w http.ResponseWriter, r *http.Request) {
		m.ObserveRateLimit(limitType)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		apierrors.WriteErrorWithDetail(w, apierrors.ErrCodeRateLimited, message, "retryAfterSeconds", retryAfter)
	}
}

func passthrough(next http.Handler) http.Handler { return next }

// GlobalLimiter caps the total request rate.
func GlobalLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.GlobalEnabled || cfg.GlobalLimit <= 0 {
		return passthrough
	}
	return httprate.Limit(
		cfg.GlobalLimit,
		cfg.GlobalWindow,
		httprate.WithKeyFuncs(func(*http.Request) (string, error) { return "global", nil }),
		httprate.WithLimitHandler(limitHandler(LimitGlobal, cfg.GlobalWindow, cfg.Metrics)),
	)
}

// IPLimiter caps the request rate per client IP.
func IPLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.PerIPEnabled || cfg.PerIPLimit <= 0 {
		return passthrough
	}
	return httprate.Limit(
		cfg.PerIPLimit,
		cfg.PerIPWindow,
		httprate.WithKeyByIP(),
		httprate.WithLimitHandler(limitHandler(LimitPerIP, cfg.PerIPWindow, cfg.Metrics)),
	)
}

// OTPLimiter is mounted on the OTP send and verify routes only.
func OTPLimiter(cfg Config) func(http.Handler) http.Handler {
	if !cfg.OTPEnabled || cfg.OTPLimit <= 0 {
		return passthrough
	}
	return httprate.Limit(
		cfg.OTPLimit,
		cfg.OTPWindow,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			ip, err := httprate.KeyByIP(r)
			return "otp:" + ip, err
		}),
		httprate.WithLimitHandler(limitHandler(LimitOTP, cfg.OTPWindow, cfg.Metrics)),
	)
}
