package idempotency

import (
	"bytes"
	"net/http"
	"time"

	apierrors "github.com/veya/storefront/internal/errors"
)

const (
	// HeaderKey carries the client's idempotency key.
	HeaderKey = "Idempotency-Key"
	// ReplayHeader is set on replayed responses.
	ReplayHeader = "X-Idempotency-Replay"
	// DefaultTTL is how long a response is replayed.
	DefaultTTL = 24 * time.Hour
	// reservationTTL bounds how long a crashed request can hold a key.
	reservationTTL = 2 * time.Minute
)

type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Middleware replays 2xx responses for a repeated Idempotency-Key. Keys are
// scoped by scope(r) (the visitor) plus method and path, so two visitors can
// use the same key. A repeat that arrives while the first request is still
// running gets 409.
func Middleware(store Store, ttl time.Duration, scope func(*http.Request) string) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(HeaderKey)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Method + ":" + r.URL.Path + ":" + raw
			if scope != nil {
				key = scope(r) + ":" + key
			}

			if cached, ok := store.Get(r.Context(), key); ok {
				for k, v := range cached.Headers {
					w.Header().Set(k, v)
				}
				w.Header().Set(ReplayHeader, "true")
				w.WriteHeader(cached.StatusCode)
				_, _ = w.Write(cached.Body)
				return
			}
			if !store.Reserve(r.Context(), key, reservationTTL) {
				apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidState, "A request with this idempotency key is already in progress")
				return
			}

			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.status >= 200 && rec.status < 300 {
				headers := make(map[string]string, len(w.Header()))
				for k := range w.Header() {
					headers[k] = w.Header().Get(k)
				}
				_ = store.Set(r.Context(), key, &Response{
					StatusCode: rec.status,
					Headers:    headers,
					Body:       rec.body.Bytes(),
					CachedAt:   time.Now(),
				}, ttl)
				return
			}
			// Failed attempts may be retried with the same key.
			store.Release(r.Context(), key)
		})
	}
}
