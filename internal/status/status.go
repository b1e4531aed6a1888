package status

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers that decide whether to retry,
// fix their input, or page an operator.
type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "RESOURCE_CONFLICT"
	CodeRateLimited  Code = "RATE_LIMITED"
	CodeDatabase     Code = "DATABASE_ERROR"
	CodeProvider     Code = "PROVIDER_API_ERROR"
	CodeCalculation  Code = "CALCULATION_ERROR"
)

var (
	ErrNotFound         = &Error{Code: CodeNotFound, Message: "record not found"}
	ErrVersionConflict  = &Error{Code: CodeConflict, Message: "stale version, reload and retry"}
	ErrDuplicatePayment = &Error{Code: CodeConflict, Message: "an active or completed payment already exists for this attendance"}
	ErrPayoutInProgress = &Error{Code: CodeConflict, Message: "a payout is already pending or processing for this event"}
	ErrUnauthenticated  = &Error{Code: CodeUnauthorized, Message: "webhook signature verification failed"}
	ErrRateLimited      = &Error{Code: CodeRateLimited, Message: "too many requests"}
)

// Error carries a taxonomy code next to a human-readable message.
// Wrapped causes stay reachable through errors.Unwrap.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on code so errors.Is(err, status.ErrVersionConflict)
// keeps working across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && (t.Message == "" || t.Message == e.Message)
}

func Errorf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf extracts the taxonomy code, defaulting to DATABASE_ERROR for
// unclassified infrastructure failures.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeDatabase
}

// AsError unwraps to the taxonomy error if one is in the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// Retryable reports whether the caller may retry after backoff.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeRateLimited, CodeDatabase, CodeProvider:
		return true
	}
	return false
}
