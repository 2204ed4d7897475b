package errors

// ErrorCode represents a machine-readable error identifier for frontend error handling.
type ErrorCode string

// Authentication
const (
	// The visitor must sign in; guest state is not an error elsewhere.
	ErrCodeAuthRequired       ErrorCode = "auth_required"
	ErrCodeInvalidCredentials ErrorCode = "invalid_credentials"
)

// Validation Errors (Request input validation)
const (
	ErrCodeMissingField    ErrorCode = "missing_field"
	ErrCodeInvalidField    ErrorCode = "invalid_field"
	ErrCodeInvalidQuantity ErrorCode = "invalid_quantity"
	ErrCodeInvalidCoupon   ErrorCode = "invalid_coupon"
	ErrCodeEmptyCart       ErrorCode = "empty_cart"
	ErrCodeInvalidOTP      ErrorCode = "invalid_otp"
	ErrCodeInvalidState    ErrorCode = "invalid_state"
)

// OTP throttling
const (
	ErrCodeOTPCooldown ErrorCode = "otp_cooldown"
	ErrCodeOTPLocked   ErrorCode = "otp_locked"
	ErrCodeRateLimited ErrorCode = "rate_limited"
)

// Resource/State Errors
const (
	ErrCodeResourceNotFound ErrorCode = "resource_not_found"
	ErrCodeOrderNotFound    ErrorCode = "order_not_found"
	ErrCodeProductNotFound  ErrorCode = "product_not_found"
	ErrCodeCheckoutNotFound ErrorCode = "checkout_not_found"
)

// Payment Errors
const (
	ErrCodeOrderFailed   ErrorCode = "order_failed"
	ErrCodePaymentFailed ErrorCode = "payment_failed"
	// Raised after the gateway has charged the customer; never retried by the client.
	ErrCodePaymentVerificationFailed ErrorCode = "payment_verification_failed"
	ErrCodePaymentTimeout            ErrorCode = "payment_timeout"
)

// External Service Errors (backend API, gateway)
const (
	ErrCodeBackendError  ErrorCode = "backend_error"
	ErrCodeNetworkError  ErrorCode = "network_error"
	ErrCodeGatewayError  ErrorCode = "gateway_error"
	ErrCodeCircuitOpen   ErrorCode = "circuit_open"
	ErrCodeStripeError   ErrorCode = "stripe_error"
	ErrCodeInternalError ErrorCode = "internal_error"
	ErrCodeDatabaseError ErrorCode = "database_error"
	ErrCodeConfigError   ErrorCode = "config_error"
)

// IsRetryable returns whether an error code represents a retryable error.
// Retryable errors are typically transient network/service issues, not validation failures.
func (e ErrorCode) IsRetryable() bool {
	switch e {
	case ErrCodeBackendError,
		ErrCodeNetworkError,
		ErrCodeGatewayError,
		ErrCodeCircuitOpen,
		ErrCodeStripeError,
		ErrCodeOrderFailed,
		ErrCodeRateLimited:
		return true

	// Post-payment verification is deliberately terminal.
	default:
		return false
	}
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e ErrorCode) HTTPStatus() int {
	switch e {
	case ErrCodeAuthRequired,
		ErrCodeInvalidCredentials:
		return 401

	case ErrCodeMissingField,
		ErrCodeInvalidField,
		ErrCodeInvalidQuantity,
		ErrCodeInvalidCoupon,
		ErrCodeEmptyCart,
		ErrCodeInvalidOTP:
		return 400

	case ErrCodeResourceNotFound,
		ErrCodeOrderNotFound,
		ErrCodeProductNotFound,
		ErrCodeCheckoutNotFound:
		return 404

	case ErrCodeInvalidState,
		ErrCodeOTPLocked:
		return 409

	case ErrCodePaymentFailed,
		ErrCodePaymentVerificationFailed:
		return 402

	case ErrCodeOTPCooldown,
		ErrCodeRateLimited:
		return 429

	case ErrCodeBackendError,
		ErrCodeNetworkError,
		ErrCodeGatewayError,
		ErrCodeStripeError,
		ErrCodeOrderFailed:
		return 502

	case ErrCodeCircuitOpen:
		return 503

	case ErrCodePaymentTimeout:
		return 504

	default:
		return 500
	}
}
