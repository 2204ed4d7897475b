package gateway

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	stripeapi "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/checkout/session"

	"github.com/veya/storefront/internal/circuitbreaker"
)

// Sessions is the Stripe Checkout session API.
type Sessions interface {
	New(params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error)
	Get(id string, params *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error)
}

// StripeConfig configures the hosted checkout redirect.
type StripeConfig struct {
	SecretKey  string
	SuccessURL string // must contain {CHECKOUT_SESSION_ID}
	CancelURL  string
}

// Stripe redirects to a Stripe Checkout session for the order total. On return
// the session is re-read from Stripe; the payment intent id and session id are
// forwarded to the backend as payment id and signature.
type Stripe struct {
	cfg      StripeConfig
	sessions Sessions
	breakers *circuitbreaker.Manager
}

// NewStripe builds an adapter that talks to Stripe with cfg.SecretKey.
func NewStripe(cfg StripeConfig, breakers *circuitbreaker.Manager) *Stripe {
	return NewStripeWithSessions(cfg, session.Client{
		B:   stripeapi.GetBackend(stripeapi.APIBackend),
		Key: cfg.SecretKey,
	}, breakers)
}

// NewStripeWithSessions builds an adapter around a custom session API.
func NewStripeWithSessions(cfg StripeConfig, sessions Sessions, breakers *circuitbreaker.Manager) *Stripe {
	return &Stripe{cfg: cfg, sessions: sessions, breakers: breakers}
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) Open(ctx context.Context, req Request) (Handoff, error) {
	if req.Amount <= 0 {
		return Handoff{}, fmt.Errorf("gateway: stripe: amount required for order %d", req.OrderID)
	}
	currency := strings.ToLower(req.Currency)
	if currency == "" {
		currency = "inr"
	}
	orderID := strconv.FormatInt(req.OrderID, 10)

	params := &stripeapi.CheckoutSessionParams{
		Mode:               stripeapi.String(string(stripeapi.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripeapi.StringSlice([]string{"card"}),
		SuccessURL:         stripeapi.String(s.cfg.SuccessURL),
		CancelURL:          stripeapi.String(s.cfg.CancelURL),
		ClientReferenceID:  stripeapi.String(orderID),
		LineItems: []*stripeapi.CheckoutSessionLineItemParams{{
			Quantity: stripeapi.Int64(1),
			PriceData: &stripeapi.CheckoutSessionLineItemPriceDataParams{
				Currency: stripeapi.String(currency),
				ProductData: &stripeapi.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripeapi.String(orderDescription(req)),
				},
				UnitAmount: stripeapi.Int64(int64(req.Amount)),
			},
		}},
	}
	if req.Customer.Email != "" {
		params.CustomerEmail = stripeapi.String(req.Customer.Email)
	}
	params.Context = ctx
	params.AddMetadata("order_id", orderID)
	if req.OrderNumber != "" {
		params.AddMetadata("order_number", req.OrderNumber)
	}

	result, err := s.breakers.Execute(circuitbreaker.ServiceStripe, func() (any, error) {
		return s.sessions.New(params)
	})
	if err != nil {
		return Handoff{}, fmt.Errorf("gateway: stripe: create checkout session: %w", err)
	}
	cs := result.(*stripeapi.CheckoutSession)

	return Handoff{
		Provider:    s.Name(),
		RedirectURL: cs.URL,
		Reference:   cs.ID,
	}, nil
}

// Check accepts a callback without a session id; the handoff names the
// checkout session.
func (s *Stripe) Check(handoff Handoff, cb Callback) error {
	if handoff.Reference == "" {
		return ErrIncompleteCallback
	}
	if cb.SessionID != "" && cb.SessionID != handoff.Reference {
		return ErrOrderMismatch
	}
	return nil
}

func (s *Stripe) Confirm(ctx context.Context, handoff Handoff, cb Callback) (Confirmation, error) {
	if err := s.Check(handoff, cb); err != nil {
		return Confirmation{}, err
	}
	id := handoff.Reference

	params := &stripeapi.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("payment_intent")
	result, err := s.breakers.Execute(circuitbreaker.ServiceStripe, func() (any, error) {
		return s.sessions.Get(id, params)
	})
	if err != nil {
		return Confirmation{}, fmt.Errorf("gateway: stripe: get checkout session: %w", err)
	}
	cs := result.(*stripeapi.CheckoutSession)

	if cs.PaymentStatus != stripeapi.CheckoutSessionPaymentStatusPaid {
		return Confirmation{}, fmt.Errorf("%w: status %s", ErrNotPaid, cs.PaymentStatus)
	}
	paymentID := cs.ID
	if cs.PaymentIntent != nil && cs.PaymentIntent.ID != "" {
		paymentID = cs.PaymentIntent.ID
	}
	return Confirmation{PaymentID: paymentID, Signature: cs.ID}, nil
}
