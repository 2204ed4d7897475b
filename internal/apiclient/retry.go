package apiclient

import (
	"context"
	"errors"
	"time"

	"github.com/veya/storefront/internal/logger"
)

// RetryPolicy configures exponential backoff for idempotent reads.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultRetryPolicy retries reads three times: 100ms, 200ms.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2,
	}
}

// withRetry runs operation until it succeeds, fails permanently, or attempts run out.
func withRetry[T any](ctx context.Context, policy RetryPolicy, op string, operation func() (T, error)) (T, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := policy.InitialInterval

	var result T
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err = operation()
		if err == nil || ctx.Err() != nil || !isRetryable(err) || attempt == attempts {
			return result, err
		}

		log := logger.FromContext(ctx)
		log.Warn().
			Err(err).
			Str("op", op).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Dur("retry_delay", delay).
			Msg("backend.request_retry")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return result, ctx.Err()
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * policy.Multiplier)
		if policy.MaxInterval > 0 && delay > policy.MaxInterval {
			delay = policy.MaxInterval
		}
	}
	return result, err
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrNetwork) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return false
}
