// Package session owns the per-visitor application state: the backend client
// with its cookie jar, the cart, the applied coupon, the checkout and OTP flows
// and the toast queue. Everything a session starts is cancelled when it is
// disposed.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/veya/storefront/internal/apiclient"
	"github.com/veya/storefront/internal/cart"
	"github.com/veya/storefront/internal/checkout"
	"github.com/veya/storefront/internal/coupons"
	"github.com/veya/storefront/internal/notify"
	"github.com/veya/storefront/internal/otp"
)

// Session is one visitor.
type Session struct {
	ID string

	API      *apiclient.Client
	Cart     *cart.Store
	Coupons  *coupons.Holder
	Checkout *checkout.Flow
	Notifier *notify.Notifier
	Popup    *otp.Popup

	ctx    context.Context
	cancel context.CancelFunc
	otp    map[otp.Variant]*otp.Flow

	mu       sync.RWMutex
	user     *apiclient.User
	lastSeen time.Time
}

// Context is cancelled when the session is disposed.
func (s *Session) Context() context.Context { return s.ctx }

// OTP returns the flow for v, or nil for an unknown variant.
func (s *Session) OTP(v otp.Variant) *otp.Flow { return s.otp[v] }

// User returns the signed-in user, or nil for a guest.
func (s *Session) User() *apiclient.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// SetUser records a sign-in or, with nil, a sign-out. The cart identity
// changes with it, so the cached cart and any applied coupon are dropped.
func (s *Session) SetUser(u *apiclient.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
	s.Cart.Reset()
	s.Coupons.Clear()
}

func (s *Session) cartKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user != nil && s.user.Username != "" {
		return "user:" + s.user.Username
	}
	return "session:" + s.ID
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// LastSeen is when the session last served a request.
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}
