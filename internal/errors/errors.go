// Package errors provides the typed error vocabulary shared by every
// memcore component.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how a caller should react to it. Every
// component returns errors wrapped in one of these kinds rather than raw
// backend errors, so the retrieval facade and control surface can make a
// single decision (retry, 404, 409, ...) regardless of which tier or
// backend produced the failure.
type Kind string

const (
	NotFound           Kind = "not_found"
	InvalidInput       Kind = "invalid_input"
	BackendUnavailable Kind = "backend_unavailable"
	DeadlineExceeded   Kind = "deadline_exceeded"
	Conflict           Kind = "conflict"
	PrivacyExpired     Kind = "privacy_expired"
	Internal           Kind = "internal"
)

// Error is the concrete error type every package in this module returns.
type Error struct {
	Kind    Kind
	Op      string // component/operation that produced the error, e.g. "router.Get"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a bare error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Newf builds a bare error of the given kind with a formatted message.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and operation to an underlying cause. Wrapping nil
// returns nil so call sites can do `return errors.Wrap(..., err)` unconditionally.
func Wrap(kind Kind, op string, cause error) *Error {
	if cause == nil {
		return nil
	}
	var existing *Error
	if errors.As(cause, &existing) {
		return &Error{Kind: kind, Op: op, Message: existing.Message, Cause: existing}
	}
	return &Error{Kind: kind, Op: op, Message: cause.Error(), Cause: cause}
}

// GetKind extracts the Kind from err, defaulting to Internal for errors
// that never went through this package.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err (or something it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}

// Retryable reports whether a caller should retry the operation that
// produced err. Only transient backend conditions are retryable; a
// NotFound, InvalidInput, Conflict or PrivacyExpired is never retryable
// because retrying it would reproduce the same outcome.
func Retryable(err error) bool {
	switch GetKind(err) {
	case BackendUnavailable, DeadlineExceeded:
		return true
	default:
		return false
	}
}

// NotFoundf is a convenience constructor for the common NotFound case.
func NotFoundf(op, format string, args ...interface{}) *Error {
	return Newf(NotFound, op, format, args...)
}

// InvalidInputf is a convenience constructor for the common InvalidInput case.
func InvalidInputf(op, format string, args ...interface{}) *Error {
	return Newf(InvalidInput, op, format, args...)
}

// Conflictf is a convenience constructor for the common Conflict case.
func Conflictf(op, format string, args ...interface{}) *Error {
	return Newf(Conflict, op, format, args...)
}

// PrivacyExpiredf is a convenience constructor for a tombstoned record still
// within its grace window.
func PrivacyExpiredf(op, format string, args ...interface{}) *Error {
	return Newf(PrivacyExpired, op, format, args...)
}
