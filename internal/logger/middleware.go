package logger

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Middleware attaches a request-scoped logger and request ID to every request.
// An inbound X-Request-ID is honoured so the SPA can correlate its own logs.
func Middleware(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")
			if requestID == "" {
				requestID = "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")
			}
			w.Header().Set("X-Request-ID", requestID)

			reqLogger := base.With().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", ClientIP(r)).
				Logger()

			ctx := WithRequestID(WithContext(r.Context(), reqLogger), requestID)

			reqLogger.Debug().Str("user_agent", r.UserAgent()).Msg("request.started")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIP returns the originating client address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
