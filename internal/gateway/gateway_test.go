package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	stripeapi "github.com/stripe/stripe-go/v72"

	"github.com/veya/storefront/internal/apiclient"
	"github.com/veya/storefront/internal/money"
)

func TestHostedOpenAndConfirm(t *testing.T) {
	h := Hosted{Merchant: "Veya", Theme: "#9333ea"}
	req := Request{
		OrderID:     42,
		OrderNumber: "ORD-42",
		Amount:      money.Rupees(399),
		Currency:    "INR",
		Customer:    Customer{Phone: "9876543210"},
		Init:        apiclient.PaymentInit{PaymentRequired: true, GatewayOrderID: "order_abc", AmountPaise: 39900, Currency: "INR", Key: "rzp_test"},
	}

	handoff, err := h.Open(context.Background(), req)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if handoff.Reference != "order_abc" || handoff.Params["amount"] != int64(39900) {
		t.Errorf("handoff = %+v", handoff)
	}
	if handoff.Params["description"] != "Order ORD-42" {
		t.Errorf("description = %v", handoff.Params["description"])
	}
	if c := handoff.Params["prefill"].(Customer); c.Name != "Customer" {
		t.Errorf("prefill name = %q", c.Name)
	}

	tests := []struct {
		name    string
		cb      Callback
		wantErr error
	}{
		{"ok", Callback{PaymentID: "pay_1", Signature: "sig", GatewayOrderID: "order_abc"}, nil},
		{"missing signature", Callback{PaymentID: "pay_1"}, ErrIncompleteCallback},
		{"wrong order", Callback{PaymentID: "pay_1", Signature: "sig", GatewayOrderID: "order_other"}, ErrOrderMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf, err := h.Confirm(context.Background(), handoff, tt.cb)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && (conf.PaymentID != "pay_1" || conf.Signature != "sig") {
				t.Errorf("conf = %+v", conf)
			}
		})
	}
}

func TestCheckRejectsMalformedCallbacks(t *testing.T) {
	hosted := Handoff{Provider: "razorpay", Reference: "order_abc"}
	if err := (Hosted{}).Check(hosted, Callback{}); !errors.Is(err, ErrIncompleteCallback) {
		t.Errorf("empty callback err = %v", err)
	}
	if err := (Hosted{}).Check(hosted, Callback{PaymentID: "pay_1", Signature: "sig"}); err != nil {
		t.Errorf("callback without gateway order id err = %v", err)
	}

	fake := &fakeSessions{}
	s := NewStripeWithSessions(StripeConfig{}, fake, nil)
	if err := s.Check(Handoff{Reference: "cs_1"}, Callback{SessionID: "cs_2"}); !errors.Is(err, ErrOrderMismatch) {
		t.Errorf("stripe mismatch err = %v", err)
	}
	if err := s.Check(Handoff{}, Callback{}); !errors.Is(err, ErrIncompleteCallback) {
		t.Errorf("stripe without session err = %v", err)
	}

	if err := (None{}).Check(hosted, Callback{PaymentID: "p", Signature: "s"}); !errors.Is(err, ErrNoGateway) {
		t.Errorf("none err = %v", err)
	}
}

func TestHostedOpenRequiresGatewayOrder(t *testing.T) {
	if _, err := (Hosted{}).Open(context.Background(), Request{OrderID: 1}); err == nil {
		t.Fatal("expected error without gateway order")
	}
}

type fakeSessions struct {
	created *stripeapi.CheckoutSessionParams
	status  stripeapi.CheckoutSessionPaymentStatus
}

func (f *fakeSessions) New(p *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	f.created = p
	return &stripeapi.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/cs_test_1"}, nil
}

func (f *fakeSessions) Get(id string, _ *stripeapi.CheckoutSessionParams) (*stripeapi.CheckoutSession, error) {
	return &stripeapi.CheckoutSession{
		ID:            id,
		PaymentStatus: f.status,
		PaymentIntent: &stripeapi.PaymentIntent{ID: "pi_1"},
	}, nil
}

func TestStripeOpenAndConfirm(t *testing.T) {
	fake := &fakeSessions{status: stripeapi.CheckoutSessionPaymentStatusPaid}
	s := NewStripeWithSessions(StripeConfig{SuccessURL: "https://shop.test/ok?session_id={CHECKOUT_SESSION_ID}"}, fake, nil)

	handoff, err := s.Open(context.Background(), Request{OrderID: 7, Amount: money.Rupees(1299), Currency: "INR"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if handoff.RedirectURL == "" || handoff.Reference != "cs_test_1" {
		t.Errorf("handoff = %+v", handoff)
	}
	if got := *fake.created.LineItems[0].PriceData.UnitAmount; got != 129900 {
		t.Errorf("unit amount = %d, want 129900", got)
	}
	if got := *fake.created.LineItems[0].PriceData.Currency; got != "inr" {
		t.Errorf("currency = %q", got)
	}

	conf, err := s.Confirm(context.Background(), handoff, Callback{SessionID: "cs_test_1"})
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if conf.PaymentID != "pi_1" || conf.Signature != "cs_test_1" {
		t.Errorf("conf = %+v", conf)
	}

	if _, err := s.Confirm(context.Background(), handoff, Callback{SessionID: "cs_other"}); !errors.Is(err, ErrOrderMismatch) {
		t.Errorf("mismatch err = %v", err)
	}

	fake.status = stripeapi.CheckoutSessionPaymentStatusUnpaid
	if _, err := s.Confirm(context.Background(), handoff, Callback{}); !errors.Is(err, ErrNotPaid) {
		t.Errorf("unpaid err = %v", err)
	}
}

func TestPendingResolvesOnce(t *testing.T) {
	p := NewPending(Handoff{Reference: "r"})
	if err := p.Resolve(Callback{PaymentID: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := p.Resolve(Callback{PaymentID: "b"}); !errors.Is(err, ErrAlreadyResolved) {
		t.Errorf("second Resolve = %v", err)
	}
	cb, err := p.Wait(context.Background())
	if err != nil || cb.PaymentID != "a" {
		t.Errorf("Wait = %+v, %v", cb, err)
	}
}

func TestPendingWaitHonorsContext(t *testing.T) {
	p := NewPending(Handoff{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := p.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v", err)
	}
}
