package coupons

import (
	"context"
	"errors"
	"testing"

	"github.com/veya/storefront/internal/apiclient"
	"github.com/veya/storefront/internal/money"
)

type mockValidator struct {
	validate func(ctx context.Context, code string) (apiclient.CouponValidation, error)
}

func (m mockValidator) ValidateCoupon(ctx context.Context, code string) (apiclient.CouponValidation, error) {
	return m.validate(ctx, code)
}

func TestApplyKeepsAtMostOneCoupon(t *testing.T) {
	v := mockValidator{validate: func(_ context.Context, code string) (apiclient.CouponValidation, error) {
		switch code {
		case "FIRST100":
			return apiclient.CouponValidation{Valid: true, Code: code, DiscountAmount: money.Rupees(100)}, nil
		case "VEYA100ABC123":
			return apiclient.CouponValidation{Valid: true, Code: code, DiscountAmount: money.Rupees(100)}, nil
		default:
			return apiclient.CouponValidation{Valid: false, Error: "Invalid or already used coupon code"}, nil
		}
	}}
	h := NewHolder(v, nil)
	ctx := context.Background()

	if _, err := h.Apply(ctx, " first100 "); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if got := h.Applied(); got == nil || got.Code != "FIRST100" || got.DiscountAmount != money.Rupees(100) {
		t.Fatalf("Applied = %+v", got)
	}

	// Replacing swaps the coupon rather than stacking.
	if _, err := h.Apply(ctx, "veya100abc123"); err != nil {
		t.Fatal(err)
	}
	if got := h.Applied(); got.Code != "VEYA100ABC123" {
		t.Errorf("Applied = %+v", got)
	}

	// A rejected code keeps the previous one.
	_, err := h.Apply(ctx, "BOGUS")
	var invalid *InvalidError
	if !errors.As(err, &invalid) || invalid.Error() != "Invalid or already used coupon code" {
		t.Fatalf("expected InvalidError, got %v", err)
	}
	if got := h.Applied(); got.Code != "VEYA100ABC123" {
		t.Errorf("Applied after rejection = %+v", got)
	}

	h.Clear()
	if h.Applied() != nil {
		t.Error("Clear did not remove coupon")
	}
}

func TestApplyEmptyAndBackendErrors(t *testing.T) {
	boom := errors.New("boom")
	h := NewHolder(mockValidator{validate: func(context.Context, string) (apiclient.CouponValidation, error) {
		return apiclient.CouponValidation{}, boom
	}}, nil)

	if _, err := h.Apply(context.Background(), "   "); !errors.Is(err, ErrEmptyCode) {
		t.Errorf("empty code: %v", err)
	}
	if _, err := h.Apply(context.Background(), "X"); !errors.Is(err, boom) {
		t.Errorf("backend error not wrapped: %v", err)
	}
}

func TestAppliedReturnsCopy(t *testing.T) {
	h := NewHolder(mockValidator{validate: func(_ context.Context, code string) (apiclient.CouponValidation, error) {
		return apiclient.CouponValidation{Valid: true, Code: code, DiscountAmount: money.Rupees(50)}, nil
	}}, nil)
	if _, err := h.Apply(context.Background(), "A"); err != nil {
		t.Fatal(err)
	}
	c := h.Applied()
	c.DiscountAmount = money.Rupees(5000)
	if h.Applied().DiscountAmount != money.Rupees(50) {
		t.Error("Applied leaked internal state")
	}
}
