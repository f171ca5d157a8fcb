package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors used throughout the application.
// The HTTP handlers translate these to status codes via a single mapError function.
var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidKind           = errors.New("invalid kind: must be progress-event, progress-snapshot, or assignment-request")
	ErrInvalidPriority       = errors.New("invalid priority: must be high, medium, or low")
	ErrMissingIdempotencyKey = errors.New("idempotency key must not be empty")
	ErrNotInitialized        = errors.New("queue has not been initialized")
	ErrBusClosed             = errors.New("broadcast bus is closed")
)

// Machine-readable codes carried by APIError. Callers pattern-match on these
// (and Status), never on message text.
const (
	CodeNotAuthenticated   = "not_authenticated"
	CodeTimeout            = "timeout"
	CodeNetworkUnreachable = "network_unreachable"
	CodeServerError        = "server_error"
	CodeClientError        = "client_error"
	CodeRateLimited        = "rate_limited"
)

// APIError is the one error type the request pipeline produces for remote
// failures. Status is the HTTP-like status (0 when the call never reached
// the server), Code is one of the Code* constants above.
type APIError struct {
	Status int
	Code   string
	msg    string
}

func NewAPIError(status int, code, msg string) *APIError {
	return &APIError{Status: status, Code: code, msg: msg}
}

func (e *APIError) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("api error: status=%d code=%s", e.Status, e.Code)
	}
	return fmt.Sprintf("api error: status=%d code=%s: %s", e.Status, e.Code, e.msg)
}

// IsRetriable reports whether err is worth queueing and retrying later:
// the network was unreachable, the request timed out, the server was
// degraded, or we were throttled. Client errors and auth failures are final.
func IsRetriable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case CodeTimeout, CodeNetworkUnreachable, CodeServerError, CodeRateLimited:
		return true
	}
	return false
}

// IsAuthError reports whether err means the session is missing or expired.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == CodeNotAuthenticated || apiErr.Status == 401
}
