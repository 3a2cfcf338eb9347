// Package errors defines the typed failure taxonomy shared by the content
// pipeline. Every failure a caller can observe resolves to one of these codes
// with an explicit retryable flag; internal components wrap causes with %w.
package errors

import (
	"errors"
	"fmt"
)

// Code identifies a failure category in the pipeline taxonomy.
type Code string

const (
	CodeCacheUnavailable      Code = "cache_unavailable"
	CodeGenerationTimeout     Code = "generation_timeout"
	CodeGenerationFailed      Code = "generation_failed"
	CodeConsistencyViolation  Code = "consistency_violation"
	CodeDuplicateEventReplay  Code = "duplicate_event_rejected"
	CodeSessionExpired        Code = "session_expired"
	CodeSessionNotFound       Code = "session_not_found"
	CodeInvalidRequest        Code = "invalid_request"
)

// Error is a structured pipeline error carrying a taxonomy code and a
// retryable hint for callers.
type Error struct {
	Code      Code
	Message   string
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches errors by taxonomy code so callers can use errors.Is against
// the sentinel values below regardless of message or cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Sentinel values for errors.Is checks.
var (
	ErrCacheUnavailable     = &Error{Code: CodeCacheUnavailable, Message: "durable cache tier unavailable", Retryable: true}
	ErrGenerationTimeout    = &Error{Code: CodeGenerationTimeout, Message: "generation exceeded time budget", Retryable: true}
	ErrGenerationFailed     = &Error{Code: CodeGenerationFailed, Message: "generation attempts exhausted", Retryable: false}
	ErrConsistencyViolation = &Error{Code: CodeConsistencyViolation, Message: "generated content violates session invariants", Retryable: false}
	ErrDuplicateEvent       = &Error{Code: CodeDuplicateEventReplay, Message: "outcome event already applied", Retryable: false}
	ErrSessionExpired       = &Error{Code: CodeSessionExpired, Message: "session expired", Retryable: false}
	ErrSessionNotFound      = &Error{Code: CodeSessionNotFound, Message: "session not found", Retryable: false}
	ErrInvalidRequest       = &Error{Code: CodeInvalidRequest, Message: "invalid request", Retryable: false}
)

// CacheUnavailable wraps a durable-tier failure.
func CacheUnavailable(cause error) *Error {
	return &Error{Code: CodeCacheUnavailable, Message: "durable cache tier unavailable", Retryable: true, Cause: cause}
}

// GenerationTimeout reports a waiter whose time budget elapsed before the
// backend responded.
func GenerationTimeout(budgetMs int) *Error {
	return &Error{
		Code:      CodeGenerationTimeout,
		Message:   fmt.Sprintf("no content within %dms budget", budgetMs),
		Retryable: true,
	}
}

// GenerationFailed reports retries exhausted against the backend.
func GenerationFailed(attempts int, cause error) *Error {
	return &Error{
		Code:      CodeGenerationFailed,
		Message:   fmt.Sprintf("generation failed after %d attempts", attempts),
		Retryable: false,
		Cause:     cause,
	}
}

// ConsistencyViolation reports a bundle rejected by the validation gate.
func ConsistencyViolation(violations []string) *Error {
	return &Error{
		Code:      CodeConsistencyViolation,
		Message:   fmt.Sprintf("bundle rejected: %v", violations),
		Retryable: false,
	}
}

// InvalidRequest reports a malformed inbound request.
func InvalidRequest(msg string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: msg, Retryable: false}
}
