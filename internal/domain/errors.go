package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID     = "invalid"     // Invalid input or validation failure
	ENOTFOUND    = "not_found"   // Resource not found
	ECONFIG      = "config"      // Missing or malformed feature configuration (programmer error)
	ERATELIMIT   = "rate_limit"  // Usage quota exhausted for the current window
	EUNAVAILABLE = "unavailable" // Gated action failed transiently; no quota consumed
	EINTERNAL    = "internal"    // Internal error
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "gate.evaluate")
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
//
// Quota exhaustion and transient action failures carry distinct messages so
// the UI never collapses one into the other: exhaustion renders the cooldown
// popup, transient failures render a generic retry prompt.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Code == EINTERNAL {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Convenience constructors for common error types

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s with ID %q not found", resource, id),
	}
}

// ConfigMissing creates a configuration error for a feature with no config row.
// This is a programmer error surfaced at startup, never a runtime condition.
func ConfigMissing(op string, feature FeatureKey) *Error {
	return &Error{
		Code:    ECONFIG,
		Op:      op,
		Message: fmt.Sprintf("no feature config row for %q", feature),
	}
}

// QuotaExceeded creates a rate limit error for an exhausted usage window.
func QuotaExceeded(op string, feature FeatureKey, used, limit uint) *Error {
	return &Error{
		Code:    ERATELIMIT,
		Op:      op,
		Message: fmt.Sprintf("usage limit reached for %s (%d of %d). Please wait for the window to reset.", feature, used, limit),
	}
}

// ActionFailed wraps a transient failure of the gated action itself.
// The usage counter is never advanced for these.
func ActionFailed(err error, op string, feature FeatureKey) *Error {
	return &Error{
		Code:    EUNAVAILABLE,
		Op:      op,
		Message: fmt.Sprintf("%s could not be completed. Please try again.", feature),
		Err:     err,
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}
