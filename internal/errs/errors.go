// Package errs provides the unified error type used across the service.
//
// Every subsystem (ingest, store, archive, insight, …) wraps its native
// errors into *errs.Error before returning them to callers. Callers use the
// Is* predicates to handle errors without importing subsystem packages.
//
// Usage:
//
//	// In the pager — wrap a transport failure:
//	return errs.Wrap(errs.ErrKindTransport, "request failed", netErr)
//
//	// In a handler — check error kind:
//	if errs.IsNotFound(err) {
//	    http.Error(w, "not found", http.StatusNotFound)
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
// All backends (HTTP sources, SQL stores, object stores, …) map their
// native errors to one of these kinds, giving callers a single consistent API.
type ErrKind int

const (
	ErrKindUnknown           ErrKind = iota
	ErrKindNotFound                  // missing connection, job, or stored object
	ErrKindConflict                  // overlapping ingestion run, duplicate key
	ErrKindInvalidInput              // bad arguments from the caller
	ErrKindTransport                 // network failure or request timeout
	ErrKindHTTPStatus                // non-2xx, non-429 response from a source
	ErrKindRateLimited               // 429 after the retry budget was exhausted
	ErrKindUnsupportedFormat         // payload matched neither JSON nor XML
	ErrKindTimeout                   // context deadline / cancellation
	ErrKindStorage                   // repository or archive operation error
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConflict:
		return "conflict"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindTransport:
		return "transport"
	case ErrKindHTTPStatus:
		return "http_status"
	case ErrKindRateLimited:
		return "rate_limited"
	case ErrKindUnsupportedFormat:
		return "unsupported_format"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all subsystems.
// Producers fill it in; callers inspect it via the Is* predicates below.
type Error struct {
	Kind    ErrKind
	Message string
	Status  int   // HTTP status from the remote source, when applicable
	Cause   error // original lower-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// Status creates an *Error for a failing HTTP response from a data source.
// A 429 becomes ErrKindRateLimited, everything else ErrKindHTTPStatus.
func Status(status int, msg string) *Error {
	kind := ErrKindHTTPStatus
	if status == 429 {
		kind = ErrKindRateLimited
	}
	return &Error{Kind: kind, Message: msg, Status: status}
}

// --- Predicates ---

// IsNotFound reports whether err represents a missing record or object.
func IsNotFound(err error) bool {
	return kindOf(err) == ErrKindNotFound
}

// IsConflict reports whether err represents an overlapping or duplicate operation.
func IsConflict(err error) bool {
	return kindOf(err) == ErrKindConflict
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// IsTransport reports whether err is a network or request-level failure.
func IsTransport(err error) bool {
	return kindOf(err) == ErrKindTransport
}

// IsHTTPStatus reports whether err is a non-2xx, non-429 source response.
func IsHTTPStatus(err error) bool {
	return kindOf(err) == ErrKindHTTPStatus
}

// IsRateLimited reports whether err is a 429 that survived the retry budget.
func IsRateLimited(err error) bool {
	return kindOf(err) == ErrKindRateLimited
}

// IsUnsupportedFormat reports whether err means no parser accepted the payload.
func IsUnsupportedFormat(err error) bool {
	return kindOf(err) == ErrKindUnsupportedFormat
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return kindOf(err) == ErrKindTimeout
}

// IsStorage reports whether err is a repository or archive failure.
func IsStorage(err error) bool {
	return kindOf(err) == ErrKindStorage
}

// kindOf extracts the ErrKind from any error in the chain.
func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
