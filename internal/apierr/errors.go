// Package apierr implements the error taxonomy of §7: a fixed set of
// kinds each component maps to a stable HTTP status, plus a typed
// error that carries a correlation id and an optional wrapped cause.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the eight taxonomy buckets from §7.
type Kind string

const (
	Validation        Kind = "validation"
	Auth              Kind = "auth"
	Quota             Kind = "quota"
	NotFound          Kind = "not_found"
	Conflict          Kind = "conflict"
	UpstreamFailure   Kind = "upstream_failure"
	Privacy           Kind = "privacy"
	InternalInvariant Kind = "internal_invariant"
)

// HTTPStatus maps a Kind to its §7 status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case Auth:
		return http.StatusUnauthorized
	case Quota:
		return http.StatusTooManyRequests
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case UpstreamFailure:
		return http.StatusBadGateway
	case Privacy:
		return http.StatusUnprocessableEntity
	case InternalInvariant:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error is the typed error every component returns for non-local
// failures. It wraps an optional cause so callers can use errors.Is/As.
type Error struct {
	Kind          Kind
	Message       string
	CorrelationID string
	Cause         error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithCorrelation attaches a correlation id and returns e for chaining.
func (e *Error) WithCorrelation(id string) *Error {
	e.CorrelationID = id
	return e
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// defaulting to InternalInvariant otherwise — "should not happen"
// failures are never silently swallowed (§7 "Propagation").
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalInvariant
}

var (
	ErrNotFound        = New(NotFound, "not found")
	ErrConflict        = New(Conflict, "conflict")
	ErrQuotaExhausted  = New(Quota, "quota exhausted")
	ErrCapacityExhausted = New(Quota, "capacity exhausted")
)
