// Package pricing turns cart lines and an optional coupon into a price breakdown.
// Everything here is pure: the same input always yields the same Snapshot.
package pricing

import (
	"errors"
	"fmt"

	"github.com/veya/storefront/internal/money"
)

// ErrInvalidQuantity is returned for a line whose quantity is below 1.
var ErrInvalidQuantity = errors.New("pricing: quantity must be at least 1")

// Rules are the configurable pricing constants.
type Rules struct {
	FreeShippingThreshold money.Money
	ShippingFee           money.Money
	Currency              string
	// ClampAtZero floors FinalTotal and TotalSaved at zero.
	ClampAtZero bool
}

// DefaultRules ships free at ₹999 and charges ₹199 below it.
func DefaultRules() Rules {
	return Rules{
		FreeShippingThreshold: money.Rupees(999),
		ShippingFee:           money.Rupees(199),
		Currency:              "INR",
		ClampAtZero:           true,
	}
}

// Line is one priced cart line. DiscountPrice is nil when the product has no sale price.
type Line struct {
	Price         money.Money
	DiscountPrice *money.Money
	Quantity      int
}

// UnitPrice is the sale price when present, otherwise the list price.
func (l Line) UnitPrice() money.Money {
	if l.DiscountPrice != nil {
		return *l.DiscountPrice
	}
	return l.Price
}

// Coupon is a flat discount. The amount is always absolute, never a percentage.
type Coupon struct {
	Code           string
	DiscountAmount money.Money
}

// Snapshot is a derived price breakdown. It is never persisted.
//
//	Subtotal   = OriginalTotal - ProductDiscount
//	FinalTotal = Subtotal - CouponDiscount + ShippingFee
type Snapshot struct {
	Empty                 bool        `json:"empty"`
	Currency              string      `json:"currency"`
	ItemCount             int         `json:"item_count"`
	OriginalTotal         money.Money `json:"original_total"`
	Subtotal              money.Money `json:"subtotal"`
	ProductDiscount       money.Money `json:"product_discount"`
	CouponCode            string      `json:"coupon_code,omitempty"`
	CouponDiscount        money.Money `json:"coupon_discount"`
	ShippingFee           money.Money `json:"shipping_fee"`
	FinalTotal            money.Money `json:"final_total"`
	TotalSaved            money.Money `json:"total_saved"`
	PercentOff            int         `json:"percent_off"`
	FreeShippingRemaining money.Money `json:"free_shipping_remaining"`
}

// Calculator applies Rules. The zero value is not useful; use New.
type Calculator struct {
	rules Rules
}

// New returns a Calculator for rules.
func New(rules Rules) *Calculator {
	return &Calculator{rules: rules}
}

// Rules returns the calculator's configuration.
func (c *Calculator) Rules() Rules { return c.rules }

// ShippingFee is zero at or above the free-shipping threshold.
func (c *Calculator) ShippingFee(subtotal money.Money) money.Money {
	if subtotal >= c.rules.FreeShippingThreshold {
		return money.Zero
	}
	return c.rules.ShippingFee
}

// Compute prices lines with an optional coupon. An empty cart yields an
// Empty snapshot with every amount zero. Errors only come from invalid
// quantities or arithmetic overflow.
func (c *Calculator) Compute(lines []Line, coupon *Coupon) (Snapshot, error) {
	snap := Snapshot{Currency: c.rules.Currency}
	if len(lines) == 0 {
		snap.Empty = true
		return snap, nil
	}

	for i, l := range lines {
		if l.Quantity < 1 {
			return Snapshot{}, fmt.Errorf("line %d: %w", i, ErrInvalidQuantity)
		}
		orig, err := l.Price.Mul(int64(l.Quantity))
		if err != nil {
			return Snapshot{}, fmt.Errorf("line %d: %w", i, err)
		}
		eff, err := l.UnitPrice().Mul(int64(l.Quantity))
		if err != nil {
			return Snapshot{}, fmt.Errorf("line %d: %w", i, err)
		}
		if snap.OriginalTotal, err = snap.OriginalTotal.Add(orig); err != nil {
			return Snapshot{}, fmt.Errorf("line %d: %w", i, err)
		}
		if snap.Subtotal, err = snap.Subtotal.Add(eff); err != nil {
			return Snapshot{}, fmt.Errorf("line %d: %w", i, err)
		}
		snap.ItemCount += l.Quantity
	}

	snap.ProductDiscount = snap.OriginalTotal - snap.Subtotal
	snap.ShippingFee = c.ShippingFee(snap.Subtotal)
	if coupon != nil {
		snap.CouponCode = coupon.Code
		snap.CouponDiscount = coupon.DiscountAmount
	}

	snap.FinalTotal = snap.Subtotal - snap.CouponDiscount + snap.ShippingFee
	if c.rules.ClampAtZero {
		snap.FinalTotal = snap.FinalTotal.ClampZero()
	}
	snap.TotalSaved = snap.OriginalTotal - snap.FinalTotal
	if c.rules.ClampAtZero {
		snap.TotalSaved = snap.TotalSaved.ClampZero()
	}

	snap.PercentOff = snap.ProductDiscount.PercentOf(snap.OriginalTotal)
	if snap.Subtotal < c.rules.FreeShippingThreshold {
		snap.FreeShippingRemaining = c.rules.FreeShippingThreshold - snap.Subtotal
	}
	return snap, nil
}
