// Package common defines shared constants and sentinel errors used across
// tooltool components. Callers should use errors.Is / errors.As to match them.
package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Request-level errors.
	ErrorMalformed    = errors.New("malformed request")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")
	ErrorNotFound     = errors.New("not found")
	ErrorConflict     = errors.New("conflict")

	// Operational errors, surfaced as internal errors.
	ErrorMisconfigured = errors.New("misconfigured")
	ErrorInternal      = errors.New("internal error")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
)

// ConflictError reports that an operation is not possible yet.
// RetryAfter is the time the caller should wait before trying again.
type ConflictError struct {
	RetryAfter time.Duration
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: retry after %ds", int(e.RetryAfter.Seconds()))
}

// Unwrap makes errors.Is(err, ErrorConflict) true.
func (e *ConflictError) Unwrap() error {
	return ErrorConflict
}

// Malformed wraps ErrorMalformed with a human-readable reason.
func Malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrorMalformed, fmt.Sprintf(format, args...))
}

// Misconfigured wraps ErrorMisconfigured with a human-readable reason.
func Misconfigured(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrorMisconfigured, fmt.Sprintf(format, args...))
}
