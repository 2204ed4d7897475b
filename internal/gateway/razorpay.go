package gateway

import (
	"context"
	"fmt"
)

// Hosted opens the backend-provisioned hosted widget. The backend creates the
// gateway order in create_payment; the browser loads the widget with these
// params and posts back the payment id and signature it receives.
type Hosted struct {
	// Merchant is the name shown in the widget header.
	Merchant string
	Theme    string
}

func (h Hosted) Name() string { return "razorpay" }

func (h Hosted) Open(_ context.Context, req Request) (Handoff, error) {
	init := req.Init
	if init.GatewayOrderID == "" || init.Key == "" {
		return Handoff{}, fmt.Errorf("gateway: backend returned no gateway order for order %d", req.OrderID)
	}

	amount := init.AmountPaise
	if amount == 0 {
		amount = int64(req.Amount)
	}
	currency := init.Currency
	if currency == "" {
		currency = req.Currency
	}
	customer := req.Customer
	if customer.Name == "" {
		customer.Name = "Customer"
	}

	params := map[string]any{
		"key":         init.Key,
		"amount":      amount,
		"currency":    currency,
		"name":        h.Merchant,
		"description": orderDescription(req),
		"order_id":    init.GatewayOrderID,
		"prefill":     customer,
	}
	if h.Theme != "" {
		params["theme"] = map[string]string{"color": h.Theme}
	}

	return Handoff{
		Provider:  h.Name(),
		Params:    params,
		Reference: init.GatewayOrderID,
	}, nil
}

func (h Hosted) Check(handoff Handoff, cb Callback) error {
	if cb.PaymentID == "" || cb.Signature == "" {
		return ErrIncompleteCallback
	}
	if cb.GatewayOrderID != "" && cb.GatewayOrderID != handoff.Reference {
		return ErrOrderMismatch
	}
	return nil
}

// Confirm passes the widget's payment id and signature through unchanged; the
// backend checks the signature against the gateway order.
func (h Hosted) Confirm(_ context.Context, handoff Handoff, cb Callback) (Confirmation, error) {
	if err := h.Check(handoff, cb); err != nil {
		return Confirmation{}, err
	}
	return Confirmation{PaymentID: cb.PaymentID, Signature: cb.Signature}, nil
}
