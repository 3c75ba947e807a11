package core

import (
	"errors"
	"fmt"
)

// Error taxonomy of the coordination core. CAS losses are not errors:
// the affected operations return (false, nil) when another writer won.
var (
	// ErrNotFound covers missing rooms, attendees and sessions.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized covers ban vetoes, permission denials and join
	// attempts that no room type allows.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidPassword is returned by join when the room password does
	// not match and no listing bypass applies.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrDuplicate is a unique-constraint collision. Idempotent add paths
	// use the insert-or-ignore store primitives instead and never see it;
	// it only surfaces where an insert must have created the only row.
	ErrDuplicate = errors.New("duplicate entry")

	// ErrRemoteFailure is a federation notify that did not succeed. The
	// local speculative state has already been rolled back when a caller
	// sees it.
	ErrRemoteFailure = errors.New("remote notify failed")

	// ErrNoSession is returned when a call-membership change is requested
	// without an active session.
	ErrNoSession = errors.New("participant has no active session")
)

// ValidationError reports a rejected input by field. Matching is done on
// the field, so handlers can map it without parsing text.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
