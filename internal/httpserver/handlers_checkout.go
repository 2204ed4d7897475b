package httpserver

import (
	"net/http"

	"github.com/veya/storefront/internal/checkout"
	"github.com/veya/storefront/internal/gateway"
	"github.com/veya/storefront/internal/logger"
	"github.com/veya/storefront/pkg/responders"
)

// submitCheckout places an order for the current cart. For online payment the
// response carries the widget handoff and the flow waits for the callback.
func (h *handlers) submitCheckout(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	var req checkout.SubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if req.Entry == "" {
		req.Entry = checkout.EntryPage
	}

	snap, err := s.Checkout.Submit(r.Context(), req)
	if err != nil {
		writeCheckoutError(w, r, err, snap)
		return
	}
	status := http.StatusOK
	if snap.State == checkout.StatePaymentPending {
		status = http.StatusAccepted
	}
	responders.JSON(w, status, snap)
}

// callbackRequest accepts both our field names and the ones the Razorpay
// handler hands to the page.
type callbackRequest struct {
	PaymentID      string `json:"payment_id"`
	Signature      string `json:"signature"`
	GatewayOrderID string `json:"gateway_order_id"`
	SessionID      string `json:"session_id"`

	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
	RazorpayOrderID   string `json:"razorpay_order_id"`
}

func (c callbackRequest) callback() gateway.Callback {
	cb := gateway.Callback{
		PaymentID:      c.PaymentID,
		Signature:      c.Signature,
		GatewayOrderID: c.GatewayOrderID,
		SessionID:      c.SessionID,
	}
	if cb.PaymentID == "" {
		cb.PaymentID = c.RazorpayPaymentID
	}
	if cb.Signature == "" {
		cb.Signature = c.RazorpaySignature
	}
	if cb.GatewayOrderID == "" {
		cb.GatewayOrderID = c.RazorpayOrderID
	}
	return cb
}

// paymentCallback delivers the widget result and answers once the payment
// has been verified or has failed.
func (h *handlers) paymentCallback(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	orderID, ok := pathID(r, "order_id")
	if !ok {
		writeError(w, r, errBadOrderID, "")
		return
	}
	var req callbackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	log := logger.FromContext(r.Context())
	log.Info().
		Int64("order_id", orderID).
		Str("payment_id", logger.TruncateID(req.callback().PaymentID)).
		Msg("checkout.callback.received")

	snap, err := s.Checkout.Callback(r.Context(), orderID, req.callback())
	if err != nil {
		writeCheckoutError(w, r, err, snap)
		return
	}
	responders.OK(w, snap)
}

func (h *handlers) checkoutState(w http.ResponseWriter, r *http.Request) {
	responders.OK(w, sessionFrom(r.Context()).Checkout.Snapshot())
}

// resetCheckout starts over after a finished attempt.
func (h *handlers) resetCheckout(w http.ResponseWriter, r *http.Request) {
	s := sessionFrom(r.Context())
	if err := s.Checkout.Reset(); err != nil {
		writeCheckoutError(w, r, err, s.Checkout.Snapshot())
		return
	}
	responders.OK(w, s.Checkout.Snapshot())
}

// writeCheckoutError includes the flow state so the page can render it.
func writeCheckoutError(w http.ResponseWriter, r *http.Request, err error, snap checkout.Snapshot) {
	writeStateError(w, r, err, checkout.MsgOrderFailed, "checkout", snap)
}
