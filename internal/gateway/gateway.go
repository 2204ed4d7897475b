// Package gateway adapts third-party payment widgets to the checkout flow.
//
// A widget is opened with an order's amount and reference, and its completion
// arrives later as a Callback that the flow turns into the payment id and
// signature the backend verifies.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/veya/storefront/internal/apiclient"
	"github.com/veya/storefront/internal/money"
)

var (
	// ErrNoGateway is returned when a payment is required but no widget is configured.
	ErrNoGateway = errors.New("gateway: no payment gateway configured")
	// ErrIncompleteCallback is returned when a callback lacks the fields the widget must send.
	ErrIncompleteCallback = errors.New("gateway: incomplete callback")
	// ErrOrderMismatch is returned when a callback names a different order.
	ErrOrderMismatch = errors.New("gateway: callback does not match order")
	// ErrNotPaid is returned when the gateway reports the payment as unpaid.
	ErrNotPaid = errors.New("gateway: payment not completed")
)

// Customer is the prefill data shown in the widget.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"contact"`
}

// Request describes the payment a widget should collect.
type Request struct {
	OrderID     int64
	OrderNumber string
	Amount      money.Money
	Currency    string
	Customer    Customer
	Init        apiclient.PaymentInit
}

// Handoff is what the browser needs to open the widget.
type Handoff struct {
	Provider    string         `json:"provider"`
	Params      map[string]any `json:"params,omitempty"`
	RedirectURL string         `json:"redirect_url,omitempty"`
	Reference   string         `json:"reference"`
}

// Callback is the widget's completion payload as posted by the browser.
type Callback struct {
	PaymentID      string `json:"payment_id"`
	Signature      string `json:"signature"`
	GatewayOrderID string `json:"gateway_order_id,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
}

// Confirmation is forwarded to the backend's payment verification.
type Confirmation struct {
	PaymentID string
	Signature string
}

// Widget is one payment provider. Check validates a callback's shape against
// the handoff without contacting the provider; Confirm runs Check first.
type Widget interface {
	Name() string
	Open(ctx context.Context, req Request) (Handoff, error)
	Check(handoff Handoff, cb Callback) error
	Confirm(ctx context.Context, handoff Handoff, cb Callback) (Confirmation, error)
}

// None is used when no provider is configured. Orders that need an online
// payment fail to open.
type None struct{}

func (None) Name() string { return "none" }

func (None) Open(context.Context, Request) (Handoff, error) {
	return Handoff{}, ErrNoGateway
}

func (None) Check(Handoff, Callback) error { return ErrNoGateway }

func (None) Confirm(context.Context, Handoff, Callback) (Confirmation, error) {
	return Confirmation{}, ErrNoGateway
}

func orderDescription(r Request) string {
	if r.OrderNumber != "" {
		return "Order " + r.OrderNumber
	}
	return fmt.Sprintf("Order %d", r.OrderID)
}
