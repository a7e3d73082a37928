package core

import (
	"errors"
	"fmt"
)

// ErrUnauthenticated is returned when a credential is missing, invalid, or
// could not be verified. Verification failures and transport failures are
// indistinguishable to callers: on any ambiguity the gateway fails closed.
var ErrUnauthenticated = errors.New("unauthenticated")

// ValidationError marks a malformed event payload. The offending event is
// ignored and the client notified; the connection stays open.
type ValidationError struct {
	Event  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s payload: %s", e.Event, e.Reason)
}

// NewValidationError builds a ValidationError for the named event.
func NewValidationError(event, reason string) *ValidationError {
	return &ValidationError{Event: event, Reason: reason}
}
