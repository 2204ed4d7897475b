package errors

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx storefront response:
//
//	{"error":{"code":"invalid_coupon","message":"Coupon has expired","retryable":false}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail is the inner error object. Details carries context such as the
// offending delivery field or the seconds left on an OTP cooldown.
type ErrorDetail struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Retryable bool                   `json:"retryable"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// Coded is implemented by domain errors that know their client-facing code.
type Coded interface {
	error
	ErrorCode() ErrorCode
}

// WriteError writes the envelope with the status code's HTTP status.
func WriteError(w http.ResponseWriter, code ErrorCode, message string, details map[string]interface{}) {
	body := ErrorResponse{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		Retryable: code.IsRetryable(),
		Details:   details,
	}}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code.HTTPStatus())
	_ = json.NewEncoder(w).Encode(body)
}

// WriteSimpleError writes an error with no details.
func WriteSimpleError(w http.ResponseWriter, code ErrorCode, message string) {
	WriteError(w, code, message, nil)
}

// WriteErrorWithDetail writes an error with a single detail entry.
func WriteErrorWithDetail(w http.ResponseWriter, code ErrorCode, message string, key string, value interface{}) {
	WriteError(w, code, message, map[string]interface{}{key: value})
}
