// Package apperr defines the domain error taxonomy shared by the chat guard,
// the background workers, and the HTTP boundary.
package apperr

import (
	"errors"
	"fmt"
)

// API-facing error codes. Handlers translate these into HTTP responses so
// callers can tell an expected stop condition from a transient failure.
const (
	CodeTurnLimitExceeded = "MESSAGE_LIMIT_EXCEEDED"
	CodeProfileIncomplete = "PROFILE_INCOMPLETE"
	CodeGenerationFailed  = "LLM_ERROR"
	CodeDataIncomplete    = "DATA_INCOMPLETE"
	CodeLetterSubmitted   = "LETTER_ALREADY_SUBMITTED"
	CodeProfileExists     = "PROFILE_ALREADY_EXISTS"
	CodeProfilesExist     = "FUTURE_PROFILES_ALREADY_EXIST"
	CodeReportNotFound    = "REPORT_NOT_FOUND"
	CodeReportNotReady    = "REPORT_NOT_READY"
	CodeNotFound          = "NOT_FOUND"
	CodeValidation        = "VALIDATION_ERROR"
	CodeInternal          = "INTERNAL_ERROR"
)

// Error carries a stable code alongside the message. It wraps an optional
// cause so errors.Is/As keep working through the boundary.
type Error struct {
	code    string
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *Error) Code() string { return e.code }

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error without a cause.
func New(code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code, message string, cause error) *Error {
	return &Error{code: code, message: message, cause: cause}
}

// Code extracts the error code, or CodeInternal when the error carries none.
func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code()
	}
	return CodeInternal
}

// Sentinel errors for the core flows.
var (
	// ErrTurnLimitExceeded is returned by the chat guard when the user has
	// spent all turns for a persona. Expected, not an entity failure.
	ErrTurnLimitExceeded = New(CodeTurnLimitExceeded, "chat turn limit reached")

	// ErrProfileIncomplete is returned when the current or future profile
	// required for generation is missing.
	ErrProfileIncomplete = New(CodeProfileIncomplete, "profile data incomplete")

	// ErrGenerationFailed is returned when the generation service call
	// fails; nothing is persisted and no turn is consumed.
	ErrGenerationFailed = New(CodeGenerationFailed, "generation service call failed")

	// ErrDataIncomplete marks missing reference data inside a job. It is
	// non-retryable: absent rows will not appear on a retry.
	ErrDataIncomplete = New(CodeDataIncomplete, "required data missing")

	// ErrNotFound is the generic read-path miss.
	ErrNotFound = New(CodeNotFound, "not found")
)

// fatal wraps an error that a job runner must not retry.
type fatal struct {
	err error
}

func (f *fatal) Error() string { return f.err.Error() }

func (f *fatal) Unwrap() error { return f.err }

// Fatal marks err as non-retryable for the job runner. DataIncomplete-style
// failures use this; transient service errors stay retryable by default.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatal{err: err}
}

// IsFatal reports whether err (or any error it wraps) was marked with Fatal.
func IsFatal(err error) bool {
	var f *fatal
	return errors.As(err, &f)
}
