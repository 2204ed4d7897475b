package httpserver

import (
	"context"
	"net/http"

	apierrors "github.com/veya/storefront/internal/errors"
	"github.com/veya/storefront/internal/logger"
	"github.com/veya/storefront/internal/session"
)

type sessionKey struct{}

// sessionMiddleware resolves the visitor's session from the cookie, starting a
// new one (and setting the cookie) when it is missing or expired.
func (h *handlers) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.sessions == nil {
			apierrors.WriteSimpleError(w, apierrors.ErrCodeConfigError, "sessions unavailable")
			return
		}
		var id string
		if c, err := r.Cookie(h.cfg.Session.CookieName); err == nil {
			id = c.Value
		}
		s, created := h.sessions.GetOrCreate(id)
		if created {
			http.SetCookie(w, &http.Cookie{
				Name:     h.cfg.Session.CookieName,
				Value:    s.ID,
				Path:     "/",
				HttpOnly: true,
				Secure:   h.cfg.Session.SecureCookie,
				SameSite: http.SameSiteLaxMode,
			})
		}

		log := logger.FromContext(r.Context()).With().Str("session_id", logger.TruncateID(s.ID)).Logger()
		ctx := logger.WithContext(r.Context(), log)
		ctx = context.WithValue(ctx, sessionKey{}, s)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey{}).(*session.Session)
	return s
}

// sessionScope keys idempotent requests by visitor.
func sessionScope(r *http.Request) string {
	if s := sessionFrom(r.Context()); s != nil {
		return s.ID
	}
	return ""
}
