// Package checkout runs one visitor's order placement: delivery details, order
// creation, the payment widget hand-off and payment verification.
//
// States move collecting_details -> order_created -> payment_pending and end in
// verified or failed. Cash on delivery, and orders the backend says need no
// payment, go straight from order_created to verified.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/veya/storefront/internal/apiclient"
	apierrors "github.com/veya/storefront/internal/errors"
	"github.com/veya/storefront/internal/gateway"
	"github.com/veya/storefront/internal/logger"
	"github.com/veya/storefront/internal/metrics"
	"github.com/veya/storefront/internal/pricing"
	"github.com/veya/storefront/internal/storage"
)

// State is the flow's position.
type State string

const (
	StateCollecting     State = "collecting_details"
	StateOrderCreated   State = "order_created"
	StatePaymentPending State = "payment_pending"
	StateVerified       State = "verified"
	StateFailed         State = "failed"
)

// Method is how the customer pays.
type Method string

const (
	MethodOnline Method = "online"
	MethodCOD    Method = "cod"
)

// Entry is the form the order was placed from. The full checkout page
// requires every delivery field; the quick checkout dialog does not.
type Entry string

const (
	EntryQuick Entry = "quick"
	EntryPage  Entry = "page"
)

// Customer-facing messages.
const (
	MsgOrderPlaced    = "Order placed successfully!"
	MsgOrderFailed    = "Failed to place order. Please try again."
	MsgVerifyFailed   = "Payment verification failed. Please contact support."
	MsgPaymentTimeout = "Payment was not completed. If you were charged, please contact support."
	MsgEmptyCart      = "Your cart is empty"
	MsgLoginRequired  = "Please log in to place an order"
	MsgBadCallback    = "Payment details were incomplete. Please complete the payment again."
)

// Error is a checkout failure with the message the customer sees.
type Error struct {
	Code    apierrors.ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) ErrorCode() apierrors.ErrorCode { return e.Code }

var (
	ErrEmptyCart        = &Error{Code: apierrors.ErrCodeEmptyCart, Message: MsgEmptyCart}
	ErrLoginRequired    = &Error{Code: apierrors.ErrCodeAuthRequired, Message: MsgLoginRequired}
	ErrInProgress       = &Error{Code: apierrors.ErrCodeInvalidState, Message: "An order is already being placed"}
	ErrNoPendingPayment = &Error{Code: apierrors.ErrCodeCheckoutNotFound, Message: "No payment is awaiting confirmation for this order"}
	ErrCODDisabled      = &Error{Code: apierrors.ErrCodeInvalidField, Message: "Cash on delivery is not available"}
)

// Backend is the order API.
type Backend interface {
	CreateOrder(ctx context.Context, req apiclient.CreateOrderRequest) (apiclient.Order, error)
	CreatePayment(ctx context.Context, orderID int64) (apiclient.PaymentInit, error)
	VerifyPayment(ctx context.Context, orderID int64, paymentID, signature string) error
}

// Cart is the visitor's cart store.
type Cart interface {
	Fetch(ctx context.Context) ([]apiclient.CartItem, error)
	Lines() []pricing.Line
	Empty() bool
	Guest() bool
}

// Coupons holds the applied coupon.
type Coupons interface {
	Applied() *pricing.Coupon
	Clear()
}

// Notifier shows toasts.
type Notifier interface {
	Success(msg string)
	Error(msg string)
}

// Config tunes the flow.
type Config struct {
	StrictDelivery  bool
	AllowCOD        bool
	CallbackTimeout time.Duration
}

// Deps are the flow's collaborators. Ledger and Metrics may be nil.
type Deps struct {
	Backend    Backend
	Cart       Cart
	Coupons    Coupons
	Calculator *pricing.Calculator
	Widget     gateway.Widget
	Notifier   Notifier
	Ledger     storage.Store
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// Snapshot is the flow's state as reported to the browser.
type Snapshot struct {
	State         State             `json:"state"`
	AttemptID     string            `json:"attempt_id,omitempty"`
	PaymentMethod Method            `json:"payment_method,omitempty"`
	Order         *apiclient.Order  `json:"order,omitempty"`
	Pricing       *pricing.Snapshot `json:"pricing,omitempty"`
	Handoff       *gateway.Handoff  `json:"handoff,omitempty"`
	Message       string            `json:"message,omitempty"`
	Redirect      string            `json:"redirect,omitempty"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// SubmitRequest starts a checkout.
type SubmitRequest struct {
	Delivery apiclient.DeliveryDetails `json:"delivery"`
	Method   Method                    `json:"payment_method"`
	Entry    Entry                     `json:"entry"`
}

// Flow is one visitor's checkout. Its lifetime is bound to ctx: when the
// session ends, a payment still waiting for its callback is abandoned.
type Flow struct {
	ctx       context.Context
	sessionID string
	cfg       Config
	deps      Deps

	mu      sync.Mutex
	busy    bool
	snap    Snapshot
	lastErr error
	entry   Entry
	started time.Time
	attempt storage.Attempt
	pending *gateway.Pending
	settled chan struct{}
	// late is the handoff of a payment that timed out; a callback that
	// arrives afterwards is still verified.
	late *gateway.Handoff
}

// New returns a flow in collecting_details.
func New(ctx context.Context, sessionID string, cfg Config, deps Deps) *Flow {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Widget == nil {
		deps.Widget = gateway.None{}
	}
	if deps.Calculator == nil {
		deps.Calculator = pricing.New(pricing.DefaultRules())
	}
	settled := make(chan struct{})
	close(settled)
	return &Flow{
		ctx:       ctx,
		sessionID: sessionID,
		cfg:       cfg,
		deps:      deps,
		snap:      Snapshot{State: StateCollecting, UpdatedAt: deps.Now()},
		settled:   settled,
	}
}

// Snapshot returns the current state.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

// Settled is closed once no payment is awaiting a callback.
func (f *Flow) Settled() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settled
}

// Submit places an order for the current cart. A new attempt may start from
// collecting_details or after a previous attempt finished.
func (f *Flow) Submit(ctx context.Context, req SubmitRequest) (Snapshot, error) {
	f.mu.Lock()
	if f.busy || f.snap.State == StateOrderCreated || f.snap.State == StatePaymentPending {
		snap := f.snap
		f.mu.Unlock()
		return snap, ErrInProgress
	}
	f.busy = true
	f.entry = req.Entry
	f.started = f.deps.Now()
	f.lastErr = nil
	f.late = nil
	f.snap = Snapshot{State: StateCollecting, UpdatedAt: f.started}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.busy = false
		f.mu.Unlock()
	}()

	if req.Method == "" {
		req.Method = MethodOnline
	}
	if req.Method != MethodOnline && req.Method != MethodCOD {
		return f.reject(&Error{Code: apierrors.ErrCodeInvalidField, Message: "Unknown payment method"})
	}
	if req.Method == MethodCOD && !f.cfg.AllowCOD {
		return f.reject(ErrCODDisabled)
	}

	delivery := NormalizeDelivery(req.Delivery)
	if err := ValidateDelivery(delivery, f.cfg.StrictDelivery || req.Entry == EntryPage); err != nil {
		return f.reject(err)
	}

	if _, err := f.deps.Cart.Fetch(ctx); err != nil {
		return f.reject(&Error{Code: apierrors.ErrCodeNetworkError, Message: MsgOrderFailed, Err: err})
	}
	if f.deps.Cart.Guest() {
		return f.reject(ErrLoginRequired)
	}
	if f.deps.Cart.Empty() {
		return f.reject(ErrEmptyCart)
	}

	coupon := f.deps.Coupons.Applied()
	quote, err := f.deps.Calculator.Compute(f.deps.Cart.Lines(), coupon)
	if err != nil {
		return f.reject(&Error{Code: apierrors.ErrCodeInternalError, Message: MsgOrderFailed, Err: err})
	}

	orderReq := apiclient.CreateOrderRequest{DeliveryDetails: delivery, TotalAmount: quote.FinalTotal}
	if coupon != nil {
		orderReq.CouponCode = coupon.Code
	}
	order, err := f.deps.Backend.CreateOrder(ctx, orderReq)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("checkout.create_order.failed")
		f.deps.Metrics.ObserveCheckout(string(req.Method), "order_failed", f.since())
		return f.reject(&Error{Code: apierrors.ErrCodeOrderFailed, Message: MsgOrderFailed, Err: err})
	}

	f.mu.Lock()
	f.attempt = storage.Attempt{
		ID:            uuid.NewString(),
		SessionID:     f.sessionID,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		PaymentMethod: string(req.Method),
		Provider:      f.deps.Widget.Name(),
		Amount:        quote.FinalTotal,
		Currency:      quote.Currency,
		CouponCode:    orderReq.CouponCode,
		CreatedAt:     f.started,
	}
	f.snap = Snapshot{
		State:         StateOrderCreated,
		AttemptID:     f.attempt.ID,
		PaymentMethod: req.Method,
		Order:         &order,
		Pricing:       &quote,
		UpdatedAt:     f.deps.Now(),
	}
	f.mu.Unlock()
	f.record(ctx, StateOrderCreated, "")

	log := logger.FromContext(ctx)
	log.Info().
		Int64("order_id", order.ID).
		Str("order_number", order.OrderNumber).
		Str("payment_method", string(req.Method)).
		Str("total", quote.FinalTotal.Major()).
		Msg("checkout.order_created")

	if req.Method == MethodCOD {
		return f.complete(ctx)
	}

	init, err := f.deps.Backend.CreatePayment(ctx, order.ID)
	if err != nil {
		return f.failNow(ctx, &Error{Code: apierrors.ErrCodePaymentFailed, Message: MsgOrderFailed, Err: err})
	}
	if !init.PaymentRequired {
		return f.complete(ctx)
	}

	handoff, err := f.deps.Widget.Open(ctx, gateway.Request{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Amount:      quote.FinalTotal,
		Currency:    quote.Currency,
		Customer:    gateway.Customer{Name: delivery.FullName, Email: delivery.Email, Phone: delivery.Phone},
		Init:        init,
	})
	if err != nil {
		return f.failNow(ctx, &Error{Code: apierrors.ErrCodeGatewayError, Message: MsgOrderFailed, Err: err})
	}

	pending := gateway.NewPending(handoff)
	settled := make(chan struct{})

	f.mu.Lock()
	f.pending = pending
	f.settled = settled
	f.snap.State = StatePaymentPending
	f.snap.Handoff = &handoff
	f.snap.UpdatedAt = f.deps.Now()
	snap := f.snap
	f.mu.Unlock()
	f.record(ctx, StatePaymentPending, "")

	go f.await(pending, settled)
	return snap, nil
}

// Callback delivers the widget's completion for orderID and waits for the
// verification to finish. A malformed callback is rejected and the payment
// stays pending.
func (f *Flow) Callback(ctx context.Context, orderID int64, cb gateway.Callback) (Snapshot, error) {
	f.mu.Lock()
	if f.snap.Order == nil || f.snap.Order.ID != orderID {
		f.mu.Unlock()
		return f.Snapshot(), ErrNoPendingPayment
	}
	if f.snap.State == StateFailed && f.late != nil {
		return f.lateCallback(ctx, cb)
	}
	if f.snap.State != StatePaymentPending {
		f.mu.Unlock()
		return f.Snapshot(), ErrNoPendingPayment
	}
	pending, settled := f.pending, f.settled
	f.mu.Unlock()

	if err := f.deps.Widget.Check(pending.Handoff, cb); err != nil {
		return f.Snapshot(), badCallback(err)
	}
	if err := pending.Resolve(cb); err != nil && !errors.Is(err, gateway.ErrAlreadyResolved) {
		return f.Snapshot(), err
	}

	select {
	case <-settled:
	case <-ctx.Done():
		return f.Snapshot(), ctx.Err()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.lastErr
}

// lateCallback verifies a payment whose callback arrived after the flow gave
// up waiting. Called with f.mu held; it releases the lock.
func (f *Flow) lateCallback(ctx context.Context, cb gateway.Callback) (Snapshot, error) {
	if f.busy {
		snap := f.snap
		f.mu.Unlock()
		return snap, ErrInProgress
	}
	handoff, orderID := *f.late, f.snap.Order.ID
	f.busy = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.busy = false
		f.mu.Unlock()
	}()

	if err := f.deps.Widget.Check(handoff, cb); err != nil {
		return f.Snapshot(), badCallback(err)
	}
	log := logger.FromContext(ctx)
	log.Info().Int64("order_id", orderID).Msg("checkout.late_callback")

	if err := f.verify(ctx, handoff, orderID, cb); err != nil {
		f.mu.Lock()
		f.late = nil
		f.mu.Unlock()
		log.Error().Err(err).Int64("order_id", orderID).Msg("checkout.verify.failed")
		verr := &Error{Code: apierrors.ErrCodePaymentVerificationFailed, Message: MsgVerifyFailed, Err: err}
		f.settle(StateFailed, verr, true)
		return f.Snapshot(), verr
	}
	f.mu.Lock()
	f.late = nil
	f.mu.Unlock()
	return f.complete(ctx)
}

// verify confirms the callback with the widget and forwards it to the
// backend's payment verification.
func (f *Flow) verify(ctx context.Context, handoff gateway.Handoff, orderID int64, cb gateway.Callback) error {
	conf, err := f.deps.Widget.Confirm(ctx, handoff, cb)
	if err != nil {
		return err
	}
	return f.deps.Backend.VerifyPayment(ctx, orderID, conf.PaymentID, conf.Signature)
}

func badCallback(err error) *Error {
	return &Error{Code: apierrors.ErrCodeInvalidField, Message: MsgBadCallback, Err: err}
}

// Reset returns a finished flow to collecting_details.
func (f *Flow) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy || f.snap.State == StateOrderCreated || f.snap.State == StatePaymentPending {
		return ErrInProgress
	}
	f.snap = Snapshot{State: StateCollecting, UpdatedAt: f.deps.Now()}
	f.lastErr = nil
	f.late = nil
	return nil
}

func (f *Flow) await(pending *gateway.Pending, settled chan struct{}) {
	defer close(settled)

	waitCtx, cancel := f.ctx, context.CancelFunc(func() {})
	if f.cfg.CallbackTimeout > 0 {
		waitCtx, cancel = context.WithTimeout(f.ctx, f.cfg.CallbackTimeout)
	}
	defer cancel()

	log := logger.FromContext(f.ctx)
	waitStart := f.deps.Now()
	cb, err := pending.Wait(waitCtx)
	if err != nil {
		if f.ctx.Err() != nil {
			// Session ended; nobody is left to notify.
			log.Info().Msg("checkout.payment_abandoned")
			f.settle(StateFailed, &Error{Code: apierrors.ErrCodePaymentTimeout, Message: MsgPaymentTimeout, Err: err}, false)
			return
		}
		log.Warn().Dur("waited", f.deps.Now().Sub(waitStart)).Msg("checkout.payment_callback_timeout")
		f.mu.Lock()
		handoff := pending.Handoff
		f.late = &handoff
		f.mu.Unlock()
		f.settle(StateFailed, &Error{Code: apierrors.ErrCodePaymentTimeout, Message: MsgPaymentTimeout, Err: err}, true)
		return
	}
	f.deps.Metrics.ObservePaymentCallback(f.deps.Now().Sub(waitStart))

	f.mu.Lock()
	order := *f.snap.Order
	f.mu.Unlock()

	if err := f.verify(f.ctx, pending.Handoff, order.ID, cb); err != nil {
		// The customer may already have been charged, so this is terminal.
		log.Error().Err(err).Int64("order_id", order.ID).Msg("checkout.verify.failed")
		f.settle(StateFailed, &Error{Code: apierrors.ErrCodePaymentVerificationFailed, Message: MsgVerifyFailed, Err: err}, true)
		return
	}

	_, _ = f.complete(f.ctx)
}

// complete moves to verified, refreshes the cart the backend has cleared and
// drops the spent coupon.
func (f *Flow) complete(ctx context.Context) (Snapshot, error) {
	f.deps.Coupons.Clear()
	if _, err := f.deps.Cart.Fetch(ctx); err != nil {
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Msg("checkout.cart_refresh_failed")
	}

	f.mu.Lock()
	order := f.snap.Order
	method := f.snap.PaymentMethod
	f.snap.State = StateVerified
	f.snap.Handoff = nil
	f.snap.Message = MsgOrderPlaced
	f.snap.Redirect = "/orders"
	if f.entry != EntryPage && order != nil {
		f.snap.Redirect = fmt.Sprintf("/orders/%d", order.ID)
	}
	f.snap.UpdatedAt = f.deps.Now()
	snap := f.snap
	currency := f.attempt.Currency
	amount := f.attempt.Amount
	f.mu.Unlock()

	f.deps.Notifier.Success(MsgOrderPlaced)
	f.deps.Metrics.ObserveCheckout(string(method), string(StateVerified), f.since())
	f.deps.Metrics.ObserveOrderPlaced(currency, int64(amount))
	f.record(ctx, StateVerified, "")
	log := logger.FromContext(ctx)
	log.Info().Str("attempt_id", snap.AttemptID).Msg("checkout.completed")
	return snap, nil
}

// reject keeps the flow in collecting_details so the customer can correct and
// resubmit.
func (f *Flow) reject(err error) (Snapshot, error) {
	f.deps.Notifier.Error(customerMessage(err))
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.State = StateCollecting
	f.snap.Message = customerMessage(err)
	f.snap.UpdatedAt = f.deps.Now()
	return f.snap, err
}

func (f *Flow) failNow(ctx context.Context, err *Error) (Snapshot, error) {
	log := logger.FromContext(ctx)
	log.Warn().Err(err.Err).Str("code", string(err.Code)).Msg("checkout.payment_setup_failed")
	f.settle(StateFailed, err, true)
	return f.Snapshot(), err
}

func (f *Flow) settle(state State, err *Error, notify bool) {
	f.mu.Lock()
	f.snap.State = state
	f.snap.Handoff = nil
	f.snap.Message = err.Message
	f.snap.UpdatedAt = f.deps.Now()
	f.lastErr = err
	method := f.snap.PaymentMethod
	f.mu.Unlock()

	if notify {
		f.deps.Notifier.Error(err.Message)
	}
	f.deps.Metrics.ObserveCheckout(string(method), string(err.Code), f.since())
	f.record(f.ctx, state, err.Error())
}

func (f *Flow) record(ctx context.Context, state State, reason string) {
	if f.deps.Ledger == nil {
		return
	}
	f.mu.Lock()
	a := f.attempt
	f.mu.Unlock()
	if a.ID == "" {
		return
	}
	a.State = string(state)
	a.FailureReason = reason
	a.UpdatedAt = f.deps.Now()
	// Ledger writes outlive the request that triggered them.
	if err := f.deps.Ledger.SaveAttempt(context.WithoutCancel(ctx), a); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("attempt_id", a.ID).Msg("checkout.ledger_write_failed")
	}
}

func (f *Flow) since() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deps.Now().Sub(f.started)
}

func customerMessage(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Message
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return MsgOrderFailed
}
