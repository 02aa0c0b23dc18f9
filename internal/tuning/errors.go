package tuning

import (
	"errors"
	"fmt"
)

// Kind classifies a tuning error so callers can match on the failure class
// with errors.Is regardless of the wrapping context.
type Kind string

const (
	// KindInvalidSearchSpace marks an empty or malformed search space.
	KindInvalidSearchSpace Kind = "invalid_search_space"
	// KindInvalidConfiguration marks an encode/decode mismatch; it indicates
	// an engine bug and is fatal to the run.
	KindInvalidConfiguration Kind = "invalid_configuration"
	// KindEvaluationFailed marks a failure of the caller-supplied evaluator
	// for a single configuration.
	KindEvaluationFailed Kind = "evaluation_failed"
	// KindEvaluationTimedOut marks a single evaluation exceeding its deadline.
	KindEvaluationTimedOut Kind = "evaluation_timed_out"
	// KindNumericalInstability marks a surrogate linear solve that failed
	// even after the jitter-retry fallback.
	KindNumericalInstability Kind = "numerical_instability"
	// KindAlreadyRunning marks a second Optimize call on a live run.
	KindAlreadyRunning Kind = "already_running"
)

// Error is the tuning error type. It carries a failure class, a
// human-readable message and optional operation/component context.
type Error struct {
	// Kind is the failure class.
	Kind Kind
	// Message describes the error that occurred.
	Message string
	// Op is the operation that caused the error.
	Op string
	// Component is the component where the error occurred.
	Component string
	// Err is the underlying error that triggered this one, if any.
	Err error
}

// Error returns the string representation of the error.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var prefix string
	switch {
	case e.Component != "" && e.Op != "":
		prefix = fmt.Sprintf("%s: %s", e.Component, e.Op)
	case e.Component != "":
		prefix = e.Component
	case e.Op != "":
		prefix = e.Op
	}

	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}

	if e.Err != nil {
		if prefix != "" {
			return fmt.Sprintf("%s: %s: %v", prefix, msg, e.Err)
		}
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}

	if prefix != "" {
		return fmt.Sprintf("%s: %s", prefix, msg)
	}
	return msg
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is a *Error of the same Kind. This makes
// errors.Is(err, &Error{Kind: KindAlreadyRunning}) work across wrapping.
func (e *Error) Is(target error) bool {
	var te *Error
	if !errors.As(target, &te) {
		return false
	}
	return te.Kind == e.Kind
}

// WithOperation adds operation context to the error.
func (e *Error) WithOperation(op string) *Error {
	e.Op = op
	return e
}

// WithComponent adds component context to the error.
func (e *Error) WithComponent(component string) *Error {
	e.Component = component
	return e
}

// NewError creates a new tuning error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewErrorf creates a new tuning error with a formatted message.
func NewErrorf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError wraps an existing error with a kind and message. If err is nil,
// WrapError returns nil.
func WrapError(err error, kind Kind, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// IsKind reports whether err (or anything it wraps) is a tuning error of
// the given kind.
func IsKind(err error, kind Kind) bool {
	var te *Error
	if !errors.As(err, &te) {
		return false
	}
	return te.Kind == kind
}

// Sentinel errors, one per failure kind. All are *Error values with an
// empty message, matchable via errors.Is.
var (
	ErrInvalidSearchSpace   = &Error{Kind: KindInvalidSearchSpace}
	ErrInvalidConfiguration = &Error{Kind: KindInvalidConfiguration}
	ErrEvaluationFailed     = &Error{Kind: KindEvaluationFailed}
	ErrEvaluationTimedOut   = &Error{Kind: KindEvaluationTimedOut}
	ErrNumericalInstability = &Error{Kind: KindNumericalInstability}
	ErrAlreadyRunning       = &Error{Kind: KindAlreadyRunning}
)
