package identity

import (
	"errors"
	"fmt"
)

// AuthErrorKind classifies authentication failures
type AuthErrorKind string

const (
	AuthErrorExpired          AuthErrorKind = "expired"
	AuthErrorInvalid          AuthErrorKind = "invalid"
	AuthErrorAlreadyExchanged AuthErrorKind = "already_exchanged"
)

// AuthError reports a failed authentication, session establishment or
// credential exchange. The façade never produces a partial session
// alongside an AuthError.
type AuthError struct {
	Kind AuthErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth error (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("auth error (%s)", e.Kind)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NewAuthError creates an AuthError of the given kind
func NewAuthError(kind AuthErrorKind, err error) *AuthError {
	return &AuthError{Kind: kind, Err: err}
}

// AuthErrorOfKind reports whether err is an AuthError of the given kind
func AuthErrorOfKind(err error, kind AuthErrorKind) bool {
	var ae *AuthError
	return errors.As(err, &ae) && ae.Kind == kind
}

// ValidationError reports a rejected field on a create/update request
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// ConflictError reports a mutation rejected because it conflicts with an
// invariant, e.g. a member attempting to delete themself.
type ConflictError struct {
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Reason)
}

var (
	// ErrNotFound is returned when a requested member, organization or
	// connection is absent or outside the caller's visibility.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned when a façade operation is reached
	// without the evaluator granting it. Handlers check authorization before
	// calling; this is the defense-in-depth double-check.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrNoSession is returned when an operation requires an established
	// session and none is present.
	ErrNoSession = errors.New("no active session")
)

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is a ConflictError
func IsConflict(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}
