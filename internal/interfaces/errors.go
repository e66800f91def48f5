package interfaces

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable category reported for every rejected operation.
type ErrorKind string

const (
	KindNotFound               ErrorKind = "not_found"
	KindInvalidStateTransition ErrorKind = "invalid_state_transition"
	KindConfiguration          ErrorKind = "configuration_error"
	KindExternalService        ErrorKind = "external_service_error"
	KindResourceConflict       ErrorKind = "resource_conflict"
)

// Error carries a kind, a human-readable reason and an optional cause.
type Error struct {
	Kind   ErrorKind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so the sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrInvalidStateTransition = &Error{Kind: KindInvalidStateTransition}
	ErrConfiguration          = &Error{Kind: KindConfiguration}
	ErrExternalService        = &Error{Kind: KindExternalService}
	ErrResourceConflict       = &Error{Kind: KindResourceConflict}
)

func NewNotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Reason: fmt.Sprintf(format, args...)}
}

func NewInvalidStateTransition(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidStateTransition, Reason: fmt.Sprintf(format, args...)}
}

func NewConfigurationError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConfiguration, Reason: fmt.Sprintf(format, args...)}
}

func NewResourceConflict(format string, args ...interface{}) *Error {
	return &Error{Kind: KindResourceConflict, Reason: fmt.Sprintf(format, args...)}
}

// NewExternalServiceError wraps the last error of a failed external call.
func NewExternalServiceError(err error, format string, args ...interface{}) *Error {
	return &Error{Kind: KindExternalService, Reason: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" for untyped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// ReasonOf returns the human-readable reason of a typed error, or err.Error().
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
