package models

import (
	"errors"
	"fmt"
)

// ErrAuthorizationMismatch marks a realtime event for an order outside the
// current user's visibility. It is expected traffic and never shown.
var ErrAuthorizationMismatch = errors.New("order outside session visibility")

// ErrOrderNotFound is returned when a view has no local copy of an order.
var ErrOrderNotFound = errors.New("order not found")

// ValidationError rejects a record that lacks identity fields.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order: %s %s", e.Field, e.Reason)
}

// TransientNetworkError wraps a fetch or push-channel failure. Existing
// repository state is kept; the user gets a retryable notice.
type TransientNetworkError struct {
	Op  string
	Err error
}

func (e *TransientNetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// UpstreamRejection is a 4xx/5xx answer to a write. No local mutation
// happens when it is returned.
type UpstreamRejection struct {
	Status  int
	Message string
}

func (e *UpstreamRejection) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream rejected request with status %d", e.Status)
	}
	return fmt.Sprintf("upstream rejected request (%d): %s", e.Status, e.Message)
}

// IsTransient reports whether err is (or wraps) a TransientNetworkError.
func IsTransient(err error) bool {
	var t *TransientNetworkError
	return errors.As(err, &t)
}

// ErrMalformedEvent marks a push-channel payload that could not be decoded.
// The message is skipped; the connection stays up.
var ErrMalformedEvent = errors.New("malformed order event")
