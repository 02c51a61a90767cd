// Package errs holds the error taxonomy shared by the engine components.
package errs

import (
	"errors"
	"fmt"
)

// ErrValidation marks input rejected before any network call.
var ErrValidation = errors.New("validation failed")

var (
	ErrEmptyDraft      = fmt.Errorf("%w: draft is empty", ErrValidation)
	ErrDraftTooLong    = fmt.Errorf("%w: draft exceeds max length", ErrValidation)
	ErrRateLimited     = fmt.Errorf("%w: rate limited", ErrValidation)
	ErrNoActiveChannel = fmt.Errorf("%w: no active channel", ErrValidation)
	ErrChannelLocked   = fmt.Errorf("%w: tier too low for channel", ErrValidation)
)

// ErrStaleResponse is returned internally when a newer request superseded
// the one a response belongs to.
var ErrStaleResponse = errors.New("stale response")

// ErrNotFound is returned when a referenced message or notification is not
// in the loaded window.
var ErrNotFound = errors.New("not found")

// TransportError wraps a failed collaborator call.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Transport wraps err as a TransportError for op. A nil err stays nil.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// IsTransport reports whether err carries a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// Reason returns a short machine readable code for validation errors.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrEmptyDraft):
		return "empty_draft"
	case errors.Is(err, ErrDraftTooLong):
		return "draft_too_long"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrNoActiveChannel):
		return "no_active_channel"
	case errors.Is(err, ErrChannelLocked):
		return "channel_locked"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case IsTransport(err):
		return "transport"
	default:
		return "internal"
	}
}
