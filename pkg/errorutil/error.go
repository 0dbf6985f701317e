package errorutil

import (
	"errors"
	"fmt"
)

// Error carries a retry classification alongside the message shown to callers.
type Error struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	DevDetails string `json:"dev_details,omitempty"`

	cause error
}

// Error implements error.
func (e *Error) Error() string {
	if e.cause != nil && e.DevDetails == "" {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// Retriable builds a transient error (network, quota, dependency down).
func Retriable(message string, cause error) *Error {
	e := &Error{
		Code:      503,
		Message:   message,
		Retryable: true,
		cause:     cause,
	}
	if cause != nil {
		e.DevDetails = cause.Error()
	}
	return e
}

// NonRetriable builds a permanent error (bad input, business rule).
func NonRetriable(message string, cause error) *Error {
	e := &Error{
		Code:      400,
		Message:   message,
		Retryable: false,
		cause:     cause,
	}
	if cause != nil {
		e.DevDetails = cause.Error()
	}
	return e
}

// Wrap converts any error into *Error; unknown errors are treated as non-retryable.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return &Error{
		Code:       500,
		Message:    err.Error(),
		Retryable:  false,
		DevDetails: fmt.Sprintf("%+v", err),
		cause:      err,
	}
}

// IsRetryable reports whether any *Error in the chain is marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
