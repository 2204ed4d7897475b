// Package storage records checkout attempts: one row per order placement,
// updated as the payment settles. The ledger lets support reconcile an order
// whose verification failed after the customer was charged.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/veya/storefront/internal/money"
)

// ErrNotFound is returned when a requested attempt is missing.
var ErrNotFound = errors.New("storage: not found")

// DefaultQueryTimeout bounds ledger queries when the caller set no deadline.
const DefaultQueryTimeout = 5 * time.Second

// Attempt is one checkout attempt.
type Attempt struct {
	ID            string      `json:"id" bson:"_id"`
	SessionID     string      `json:"session_id" bson:"session_id"`
	OrderID       int64       `json:"order_id" bson:"order_id"`
	OrderNumber   string      `json:"order_number,omitempty" bson:"order_number"`
	PaymentMethod string      `json:"payment_method" bson:"payment_method"`
	Provider      string      `json:"provider,omitempty" bson:"provider"`
	State         string      `json:"state" bson:"state"`
	Amount        money.Money `json:"amount" bson:"amount"`
	Currency      string      `json:"currency" bson:"currency"`
	CouponCode    string      `json:"coupon_code,omitempty" bson:"coupon_code"`
	FailureReason string      `json:"failure_reason,omitempty" bson:"failure_reason"`
	CreatedAt     time.Time   `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at" bson:"updated_at"`
}

// Store persists attempts.
type Store interface {
	// SaveAttempt inserts or replaces the attempt with the same ID.
	SaveAttempt(ctx context.Context, a Attempt) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	// ListAttempts returns a session's attempts, newest first. limit <= 0 means no limit.
	ListAttempts(ctx context.Context, sessionID string, limit int) ([]Attempt, error)
	Close() error
}

func validateAttempt(a *Attempt) error {
	if strings.TrimSpace(a.ID) == "" {
		return fmt.Errorf("storage: attempt id required")
	}
	if a.State == "" {
		return fmt.Errorf("storage: attempt %s: state required", a.ID)
	}
	now := time.Now().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = now
	}
	return nil
}

func withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, DefaultQueryTimeout)
}
