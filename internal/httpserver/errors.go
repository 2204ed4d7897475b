package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/veya/storefront/internal/apiclient"
	"github.com/veya/storefront/internal/cart"
	"github.com/veya/storefront/internal/catalog"
	"github.com/veya/storefront/internal/checkout"
	"github.com/veya/storefront/internal/circuitbreaker"
	"github.com/veya/storefront/internal/coupons"
	apierrors "github.com/veya/storefront/internal/errors"
	"github.com/veya/storefront/internal/logger"
	"github.com/veya/storefront/internal/otp"
)

const (
	msgNetwork    = "Network error. Please check your connection and try again."
	msgGeneric    = "Something went wrong. Please try again."
	msgLoginFirst = "Please login to continue"
)

// classifyError maps a domain or backend error onto a client error code and
// the message the customer sees. fallback replaces messages that would leak
// internals.
func classifyError(err error, fallback string) (apierrors.ErrorCode, string, map[string]interface{}) {
	if fallback == "" {
		fallback = msgGeneric
	}

	var (
		validation  *checkout.ValidationError
		checkoutErr *checkout.Error
		otpErr      *otp.Error
		coded       apierrors.Coded
		invalid     *coupons.InvalidError
	)
	switch {
	case errors.As(err, &validation):
		return validation.ErrorCode(), validation.Message, map[string]interface{}{"field": validation.Field}
	case errors.As(err, &checkoutErr):
		return checkoutErr.Code, checkoutErr.Message, nil
	case errors.As(err, &otpErr):
		var details map[string]interface{}
		if otpErr.RetryAfter > 0 {
			details = map[string]interface{}{"retryAfterSeconds": int((otpErr.RetryAfter + time.Second - 1) / time.Second)}
		}
		return otpErr.Code, otpErr.Message, details
	case errors.As(err, &coded):
		return coded.ErrorCode(), coded.Error(), nil
	case errors.As(err, &invalid):
		return apierrors.ErrCodeInvalidCoupon, invalid.Error(), nil
	case errors.Is(err, coupons.ErrEmptyCode):
		return apierrors.ErrCodeMissingField, coupons.ErrEmptyCode.Error(), nil
	case errors.Is(err, cart.ErrInvalidQuantity):
		return apierrors.ErrCodeInvalidQuantity, "Quantity must be at least 1", nil
	case errors.Is(err, catalog.ErrProductNotFound):
		return apierrors.ErrCodeProductNotFound, "Product not found", nil
	case errors.Is(err, apiclient.ErrUnauthenticated):
		return apierrors.ErrCodeAuthRequired, msgLoginFirst, nil
	case errors.Is(err, circuitbreaker.ErrOpen):
		return apierrors.ErrCodeCircuitOpen, "The store is temporarily unavailable. Please try again shortly.", nil
	case errors.Is(err, apiclient.ErrNetwork), errors.Is(err, context.DeadlineExceeded):
		return apierrors.ErrCodeNetworkError, msgNetwork, nil
	}

	status := apiclient.StatusOf(err)
	switch {
	case status == http.StatusNotFound:
		return apierrors.ErrCodeResourceNotFound, messageOr(err, "Not found"), nil
	case status == http.StatusTooManyRequests:
		return apierrors.ErrCodeRateLimited, messageOr(err, "Too many requests. Please try again later."), nil
	case status >= 400 && status < 500:
		return apierrors.ErrCodeInvalidField, messageOr(err, fallback), nil
	case status >= 500:
		return apierrors.ErrCodeBackendError, fallback, nil
	}
	return apierrors.ErrCodeInternalError, fallback, nil
}

func messageOr(err error, fallback string) string {
	if msg := apiclient.ServerMessage(err); msg != "" {
		return msg
	}
	return fallback
}

// writeError logs err and writes the error envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	code, message, details := classifyError(err, fallback)

	log := logger.FromContext(r.Context())
	event := log.Warn()
	if code.HTTPStatus() >= 500 {
		event = log.Error()
	}
	event.Err(err).Str("code", string(code)).Msg("request.failed")

	apierrors.WriteError(w, code, message, details)
}

// writeStateError is writeError with the caller's flow state attached under key.
func writeStateError(w http.ResponseWriter, r *http.Request, err error, fallback, key string, state any) {
	code, message, details := classifyError(err, fallback)
	if details == nil {
		details = map[string]interface{}{}
	}
	details[key] = state

	log := logger.FromContext(r.Context())
	event := log.Warn()
	if code == apierrors.ErrCodePaymentVerificationFailed || code.HTTPStatus() >= 500 {
		event = log.Error()
	}
	event.Err(err).Str("code", string(code)).Msg(key + ".request_failed")

	apierrors.WriteError(w, code, message, details)
}

// writeBadRequest answers an undecodable body.
func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	log.Debug().Err(err).Msg("request.invalid_body")
	apierrors.WriteSimpleError(w, apierrors.ErrCodeInvalidField, "invalid request body")
}

// requestError is a malformed request caught before any service call.
type requestError struct {
	code apierrors.ErrorCode
	msg  string
}

func (e *requestError) Error() string                  { return e.msg }
func (e *requestError) ErrorCode() apierrors.ErrorCode { return e.code }

var (
	errMissingProduct  = &requestError{apierrors.ErrCodeMissingField, "product_id is required"}
	errBadItemID       = &requestError{apierrors.ErrCodeInvalidField, "invalid cart item id"}
	errBadOrderID      = &requestError{apierrors.ErrCodeInvalidField, "invalid order id"}
	errUnknownVariant  = &requestError{apierrors.ErrCodeResourceNotFound, "unknown verification flow"}
	errMissingEmail    = &requestError{apierrors.ErrCodeMissingField, "Please enter your email address"}
	errMissingOrderRef = &requestError{apierrors.ErrCodeMissingField, "Please enter an order number"}
)
