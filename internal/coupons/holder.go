// Package coupons validates coupon codes against the backend and holds the one
// coupon a visitor has applied.
package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/veya/storefront/internal/apiclient"
	"github.com/veya/storefront/internal/metrics"
	"github.com/veya/storefront/internal/pricing"
)

var (
	// ErrEmptyCode is returned when no code was entered.
	ErrEmptyCode = errors.New("Please enter a coupon code")
	// ErrNoAmount is returned when the backend accepts a code but reports no discount.
	ErrNoAmount = errors.New("coupon has no discount amount")
)

// InvalidError carries the backend's reason for rejecting a code.
type InvalidError struct {
	Code   string
	Reason string
}

func (e *InvalidError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "Invalid coupon code"
}

// Validator checks a code for the signed-in user.
type Validator interface {
	ValidateCoupon(ctx context.Context, code string) (apiclient.CouponValidation, error)
}

// Holder keeps at most one applied coupon.
type Holder struct {
	validator Validator
	metrics   *metrics.Metrics

	mu      sync.RWMutex
	applied *pricing.Coupon
}

// NewHolder returns an empty holder.
func NewHolder(v Validator, m *metrics.Metrics) *Holder {
	return &Holder{validator: v, metrics: m}
}

// Apply validates code and, when valid, replaces any coupon already applied.
// A rejected code leaves the current coupon untouched.
func (h *Holder) Apply(ctx context.Context, code string) (pricing.Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return pricing.Coupon{}, ErrEmptyCode
	}

	res, err := h.validator.ValidateCoupon(ctx, code)
	if err != nil {
		h.metrics.ObserveCoupon("error")
		return pricing.Coupon{}, fmt.Errorf("validate coupon: %w", err)
	}
	if !res.Valid {
		h.metrics.ObserveCoupon("invalid")
		return pricing.Coupon{}, &InvalidError{Code: code, Reason: res.Error}
	}
	// The validation amount is always a flat discount, whatever it is called.
	if res.DiscountAmount <= 0 {
		h.metrics.ObserveCoupon("invalid")
		return pricing.Coupon{}, &InvalidError{Code: code, Reason: ErrNoAmount.Error()}
	}

	c := pricing.Coupon{Code: code, DiscountAmount: res.DiscountAmount}
	if res.Code != "" {
		c.Code = res.Code
	}

	h.mu.Lock()
	h.applied = &c
	h.mu.Unlock()
	h.metrics.ObserveCoupon("applied")
	return c, nil
}

// Applied returns a copy of the applied coupon, or nil.
func (h *Holder) Applied() *pricing.Coupon {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.applied == nil {
		return nil
	}
	c := *h.applied
	return &c
}

// Clear removes the applied coupon.
func (h *Holder) Clear() {
	h.mu.Lock()
	h.applied = nil
	h.mu.Unlock()
}
