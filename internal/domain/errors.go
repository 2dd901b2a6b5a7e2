package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures surfaced by the moderation core.
type ErrorKind string

const (
	KindValidation      ErrorKind = "VALIDATION"
	KindNotFound        ErrorKind = "NOT_FOUND"
	KindConflict        ErrorKind = "CONFLICT"
	KindExternalService ErrorKind = "EXTERNAL_SERVICE"
)

// Error is a classified failure. Callers match it with errors.Is against the
// sentinel values below, or errors.As to read the kind and message.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrExternalService = &Error{Kind: KindExternalService}
)

func (e *Error) Error() string {
	switch {
	case e.Message == "" && e.Err == nil:
		return string(e.Kind)
	case e.Message == "":
		return e.Err.Error()
	default:
		return e.Message
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind when target is a sentinel (no message).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Message != "" || t.Err != nil {
		return e == t
	}
	return e.Kind == t.Kind
}

// newError keeps the message of every wrapped error but only the cause of a
// wrapped *Error, so the result matches exactly one kind.
func newError(kind ErrorKind, format string, args ...any) error {
	wrapped := fmt.Errorf(format, args...)
	cause := errors.Unwrap(wrapped)
	var inner *Error
	if errors.As(cause, &inner) {
		cause = inner.Err
	}
	return &Error{
		Kind:    kind,
		Message: wrapped.Error(),
		Err:     cause,
	}
}

// Validationf reports a malformed request. %w verbs are preserved for unwrapping.
func Validationf(format string, args ...any) error {
	return newError(KindValidation, format, args...)
}

// NotFoundf reports a missing or inactive record.
func NotFoundf(format string, args ...any) error {
	return newError(KindNotFound, format, args...)
}

// Conflictf reports a state that forbids the requested transition.
func Conflictf(format string, args ...any) error {
	return newError(KindConflict, format, args...)
}

// ExternalServicef reports a failing collaborator such as the geocoder.
func ExternalServicef(format string, args ...any) error {
	return newError(KindExternalService, format, args...)
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind, true
	}
	return "", false
}
