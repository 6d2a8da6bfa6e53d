package gateway

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConfigured is returned before any network call when required
	// credentials or URLs are missing from the settings.
	ErrNotConfigured = errors.New("payment gateway not configured")

	// ErrNotPaid is returned by Finalize on poll-style APIs when the remote
	// transaction exists but is not paid.
	ErrNotPaid = errors.New("Customer did not pay.")
)

// NotConfigured wraps ErrNotConfigured with the names of the missing settings.
func NotConfigured(gateway string, missing ...string) error {
	return fmt.Errorf("%s: %w: missing %s", gateway, ErrNotConfigured, strings.Join(missing, ", "))
}

// TransportError covers network failures, timeouts, non-2xx responses,
// undecodable bodies and an open circuit breaker.
type TransportError struct {
	Gateway    string
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: HTTP %d: %v", e.Gateway, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Gateway, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is returned when the transport succeeded but the remote API's
// embedded status reports a failure.
type APIError struct {
	Gateway string
	Op      string
	Message string // remote-supplied, already prefixed for display
}

func (e *APIError) Error() string {
	return e.Message
}

// IsTransport reports whether err is, or wraps, a *TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsAPI reports whether err is, or wraps, an *APIError.
func IsAPI(err error) bool {
	var ae *APIError
	return errors.As(err, &ae)
}
