package apperrors

import (
	"errors"
	"fmt"
)

// ErrorType classifies an error raised outside the analytical core. The
// analytical engines themselves never raise for rule or reference failures;
// those surface as typed statuses on result records.
type ErrorType string

const (
	// ErrorTypeValidation represents invalid caller input.
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeNotFound represents a missing snapshot or resource.
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeStorage represents a snapshot store failure.
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeParse represents unreadable ingestion input.
	ErrorTypeParse ErrorType = "parse"
	// ErrorTypeCancelled represents a cancelled or timed-out operation.
	ErrorTypeCancelled ErrorType = "cancelled"
)

// Error is a typed error with an optional cause.
type Error struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a typed error.
func New(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// Newf creates a typed error with a formatted message.
func Newf(errorType ErrorType, format string, args ...interface{}) *Error {
	return &Error{Type: errorType, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps a cause in a typed error. Returns nil when cause is nil.
func Wrap(errorType ErrorType, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Type: errorType, Message: message, Cause: cause}
}

// WithDetail attaches a key/value detail and returns the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsType reports whether err (or anything it wraps) is a typed error of the
// given type.
func IsType(err error, errorType ErrorType) bool {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Type == errorType
	}
	return false
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return IsType(err, ErrorTypeNotFound)
}
