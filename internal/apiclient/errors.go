package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	// ErrUnauthenticated matches any 401 from the backend.
	ErrUnauthenticated = errors.New("apiclient: not authenticated")
	// ErrNetwork wraps transport failures (DNS, refused, timeout).
	ErrNetwork = errors.New("apiclient: network error")
)

// APIError is a non-2xx backend response. Message is the server's own message when it sent one.
type APIError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.Status)
}

// Is lets errors.Is(err, ErrUnauthenticated) match 401 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrUnauthenticated && e.Status == http.StatusUnauthorized
}

// Temporary reports whether the failure is worth retrying.
func (e *APIError) Temporary() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// ServerMessage returns the backend's message for err, or "" when there is none.
func ServerMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// StatusOf returns the backend status for err, or 0 for non-API errors.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// extractMessage pulls a human message out of DRF-style error bodies:
//
//	{"error": "..."} {"detail": "..."} {"message": "..."}
//	{"non_field_errors": ["..."]} {"email": ["..."]}
func extractMessage(body []byte) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}
	for _, key := range []string{"error", "detail", "message", "non_field_errors"} {
		if msg := rawToMessage(obj[key]); msg != "" {
			return msg
		}
	}
	// Field errors: report the first field in a stable order.
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if msg := rawToMessage(obj[k]); msg != "" {
			return k + ": " + msg
		}
	}
	return ""
}

func rawToMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return strings.TrimSpace(list[0])
	}
	return ""
}
