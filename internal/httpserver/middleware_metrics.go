package httpserver

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	apierrors "github.com/veya/storefront/internal/errors"
	"github.com/veya/storefront/internal/logger"
	"github.com/veya/storefront/internal/metrics"
)

// adminMetricsAuth protects /metrics with "Authorization: Bearer {key}".
// An empty key leaves the endpoint open.
func adminMetricsAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			want := []byte("Bearer " + apiKey)
			if subtle.ConstantTimeCompare([]byte(r.Header.Get("Authorization")), want) != 1 {
				apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidCredentials, "Invalid or missing admin API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestMetrics logs each finished request and records it by route pattern.
func requestMetrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)
			m.ObserveHTTPRequest(r.Method, route, status, elapsed)

			log := logger.FromContext(r.Context())
			log.Debug().
				Int("status", status).
				Str("route", route).
				Dur("duration", elapsed).
				Msg("request.completed")
		})
	}
}
