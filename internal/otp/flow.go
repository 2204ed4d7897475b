// Package otp runs the one-time-code verification flows: the marketing email
// popup, mobile verification, registration and password reset.
//
// Each flow moves collect -> otp_sent -> verified. A wrong code keeps the flow
// in otp_sent; too many wrong codes lock it until a new code is requested.
package otp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/veya/storefront/internal/apiclient"
	apierrors "github.com/veya/storefront/internal/errors"
	"github.com/veya/storefront/internal/logger"
	"github.com/veya/storefront/internal/metrics"
)

// Variant names a flow.
type Variant string

const (
	VariantEmail         Variant = "email"
	VariantMobile        Variant = "mobile"
	VariantRegister      Variant = "register"
	VariantPasswordReset Variant = "password-reset"
)

// ParseVariant accepts the names used in routes.
func ParseVariant(s string) (Variant, bool) {
	switch v := Variant(strings.ToLower(s)); v {
	case VariantEmail, VariantMobile, VariantRegister, VariantPasswordReset:
		return v, true
	}
	return "", false
}

// State is the flow's position.
type State string

const (
	StateCollect  State = "collect"
	StateSent     State = "otp_sent"
	StateVerified State = "verified"
	StateLocked   State = "locked"
)

const (
	MsgSendFailed   = "Could not send OTP. Please try again."
	MsgInvalidCode  = "Invalid or expired OTP."
	MsgLocked       = "Too many incorrect attempts. Please request a new OTP."
	MsgVerifyFailed = "Could not verify OTP. Please try again."
)

// Error is an OTP failure with the message the visitor sees.
type Error struct {
	Code    apierrors.ErrorCode
	Message string
	// RetryAfter is set for cooldown errors.
	RetryAfter time.Duration
	Err        error
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
	ErrBusy    = &Error{Code: apierrors.ErrCodeInvalidState, Message: "Please wait for the current request to finish."}
	ErrNotSent = &Error{Code: apierrors.ErrCodeInvalidState, Message: "Please request an OTP first."}
	ErrLocked  = &Error{Code: apierrors.ErrCodeOTPLocked, Message: MsgLocked}
)

// Backend sends and checks codes for one variant.
type Backend interface {
	Send(ctx context.Context, identifier string) (string, error)
	Verify(ctx context.Context, identifier, code string) (apiclient.OTPResult, error)
}

// Config tunes a flow. Zero values fall back to a 30s cooldown, 4-digit codes
// and 5 attempts.
type Config struct {
	CodeLength  int
	Cooldown    time.Duration
	MaxAttempts int
	Now         func() time.Time
	Metrics     *metrics.Metrics
}

// Status is the flow's state as reported to the browser.
type Status struct {
	Variant           Variant                 `json:"variant"`
	State             State                   `json:"state"`
	Identifier        string                  `json:"identifier,omitempty"`
	CodeLength        int                     `json:"code_length"`
	CooldownRemaining int                     `json:"cooldown_remaining"`
	CanResend         bool                    `json:"can_resend"`
	AttemptsLeft      int                     `json:"attempts_left"`
	InFlight          bool                    `json:"in_flight"`
	Message           string                  `json:"message,omitempty"`
	Reward            *apiclient.RewardCoupon `json:"reward,omitempty"`
}

// Flow is one visitor's instance of a variant.
type Flow struct {
	variant Variant
	backend Backend
	cfg     Config

	mu         sync.Mutex
	state      State
	identifier string
	code       string // last verified code; the password reset confirm needs it
	sentAt     time.Time
	inFlight   bool
	attempts   int
	message    string
	reward     *apiclient.RewardCoupon
}

// New returns a flow in collect.
func New(variant Variant, backend Backend, cfg Config) *Flow {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 4
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Flow{variant: variant, backend: backend, cfg: cfg, state: StateCollect}
}

// Variant returns the flow's variant.
func (f *Flow) Variant() Variant { return f.variant }

// Status reports the current state.
func (f *Flow) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusLocked()
}

func (f *Flow) statusLocked() Status {
	remaining := f.cooldownLocked(f.cfg.Now())
	return Status{
		Variant:           f.variant,
		State:             f.state,
		Identifier:        f.identifier,
		CodeLength:        f.cfg.CodeLength,
		CooldownRemaining: int((remaining + time.Second - 1) / time.Second),
		CanResend:         remaining == 0 && !f.inFlight,
		AttemptsLeft:      max(f.cfg.MaxAttempts-f.attempts, 0),
		InFlight:          f.inFlight,
		Message:           f.message,
		Reward:            f.reward,
	}
}

func (f *Flow) cooldownLocked(now time.Time) time.Duration {
	if f.sentAt.IsZero() {
		return 0
	}
	left := f.cfg.Cooldown - now.Sub(f.sentAt)
	if left < 0 {
		return 0
	}
	return left
}

// RequestCode sends a code to identifier. It is refused while a request is in
// flight or the resend cooldown is running. On failure the state is unchanged.
func (f *Flow) RequestCode(ctx context.Context, identifier string) (Status, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return f.Status(), &Error{Code: apierrors.ErrCodeMissingField, Message: f.missingIdentifierMessage()}
	}

	f.mu.Lock()
	if f.inFlight {
		st := f.statusLocked()
		f.mu.Unlock()
		return st, ErrBusy
	}
	if left := f.cooldownLocked(f.cfg.Now()); left > 0 {
		st := f.statusLocked()
		f.mu.Unlock()
		f.cfg.Metrics.ObserveOTP(string(f.variant), "cooldown")
		return st, &Error{
			Code:       apierrors.ErrCodeOTPCooldown,
			Message:    fmt.Sprintf("Please wait %ds before requesting another OTP.", st.CooldownRemaining),
			RetryAfter: left,
		}
	}
	f.inFlight = true
	f.mu.Unlock()

	msg, err := f.backend.Send(ctx, identifier)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
	log := logger.FromContext(ctx).With().Str("variant", string(f.variant)).Str("identifier", redact(f.variant, identifier)).Logger()

	if err != nil {
		f.message = serverMessageOr(err, MsgSendFailed)
		f.cfg.Metrics.ObserveOTP(string(f.variant), "send_failed")
		log.Warn().Err(err).Msg("otp.send.failed")
		return f.statusLocked(), &Error{Code: classify(err, apierrors.ErrCodeInvalidField), Message: f.message, Err: err}
	}

	if msg == "" {
		msg = fmt.Sprintf("OTP sent. Enter the %d digits below.", f.cfg.CodeLength)
	}
	f.state = StateSent
	f.identifier = identifier
	f.code = ""
	f.sentAt = f.cfg.Now()
	f.attempts = 0
	f.reward = nil
	f.message = msg
	f.cfg.Metrics.ObserveOTP(string(f.variant), "sent")
	log.Info().Msg("otp.sent")
	return f.statusLocked(), nil
}

// VerifyCode checks code against the last identifier a code was sent to.
func (f *Flow) VerifyCode(ctx context.Context, code string) (Status, error) {
	code = strings.TrimSpace(code)

	f.mu.Lock()
	switch {
	case f.inFlight:
		st := f.statusLocked()
		f.mu.Unlock()
		return st, ErrBusy
	case f.state == StateLocked:
		st := f.statusLocked()
		f.mu.Unlock()
		return st, ErrLocked
	case f.state != StateSent:
		st := f.statusLocked()
		f.mu.Unlock()
		return st, ErrNotSent
	}
	if !validCode(code, f.cfg.CodeLength) {
		f.message = fmt.Sprintf("Please enter the %d-digit OTP.", f.cfg.CodeLength)
		st := f.statusLocked()
		f.mu.Unlock()
		return st, &Error{Code: apierrors.ErrCodeInvalidOTP, Message: st.Message}
	}
	identifier := f.identifier
	f.inFlight = true
	f.mu.Unlock()

	res, err := f.backend.Verify(ctx, identifier, code)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight = false
	log := logger.FromContext(ctx).With().Str("variant", string(f.variant)).Str("identifier", redact(f.variant, identifier)).Logger()

	if err != nil {
		if !rejected(err) {
			f.message = MsgVerifyFailed
			log.Warn().Err(err).Msg("otp.verify.error")
			return f.statusLocked(), &Error{Code: classify(err, apierrors.ErrCodeNetworkError), Message: f.message, Err: err}
		}

		f.attempts++
		if f.attempts >= f.cfg.MaxAttempts {
			f.state = StateLocked
			f.message = MsgLocked
			f.cfg.Metrics.ObserveOTP(string(f.variant), "locked")
			log.Warn().Int("attempts", f.attempts).Msg("otp.locked")
			return f.statusLocked(), &Error{Code: apierrors.ErrCodeOTPLocked, Message: MsgLocked, Err: err}
		}
		f.message = serverMessageOr(err, MsgInvalidCode)
		f.cfg.Metrics.ObserveOTP(string(f.variant), "invalid")
		return f.statusLocked(), &Error{Code: apierrors.ErrCodeInvalidOTP, Message: f.message, Err: err}
	}

	f.state = StateVerified
	f.code = code
	f.message = res.Message
	f.reward = res.Coupon
	f.cfg.Metrics.ObserveOTP(string(f.variant), "verified")
	log.Info().Msg("otp.verified")
	return f.statusLocked(), nil
}

// VerifiedCode returns the identifier and code of a verified flow.
func (f *Flow) VerifiedCode() (identifier, code string, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateVerified {
		return "", "", false
	}
	return f.identifier, f.code, true
}

// Reset returns the flow to collect. The cooldown keeps running.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateCollect
	f.identifier = ""
	f.code = ""
	f.attempts = 0
	f.message = ""
	f.reward = nil
}

func (f *Flow) missingIdentifierMessage() string {
	if f.variant == VariantMobile {
		return "Please enter a mobile number."
	}
	return "Please enter an email."
}

func validCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// rejected reports whether the backend refused the code itself, as opposed to
// failing to check it.
func rejected(err error) bool {
	status := apiclient.StatusOf(err)
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}

func classify(err error, clientCode apierrors.ErrorCode) apierrors.ErrorCode {
	status := apiclient.StatusOf(err)
	switch {
	case status == http.StatusTooManyRequests:
		return apierrors.ErrCodeRateLimited
	case status >= 400 && status < 500:
		return clientCode
	case errors.Is(err, apiclient.ErrNetwork):
		return apierrors.ErrCodeNetworkError
	default:
		return apierrors.ErrCodeBackendError
	}
}

func serverMessageOr(err error, fallback string) string {
	if msg := apiclient.ServerMessage(err); msg != "" {
		return msg
	}
	return fallback
}

func redact(v Variant, identifier string) string {
	if v == VariantMobile {
		return logger.RedactPhone(identifier)
	}
	return logger.RedactEmail(identifier)
}
