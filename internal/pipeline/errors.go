// Package pipeline orchestrates inbound webhook deliveries from rate
// limiting through signature verification to order mutation, and owns the
// error taxonomy the HTTP layer maps onto status codes.
package pipeline

import (
	"errors"
	"net/http"
)

// Kind classifies a pipeline error for propagation policy: everything except
// Processing is detected before any order mutation and returned directly.
type Kind int

const (
	KindValidation Kind = iota
	KindAuthentication
	KindConflict
	KindNotFound
	KindRateLimit
	KindProcessing
)

// Error is a classified pipeline failure with a machine-readable code.
type Error struct {
	Kind    Kind
	Code    string
	Message string

	// RetryAfter is set for rate-limit errors, in seconds.
	RetryAfter int

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the error kind to its response status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func validationError(code, message string, err error) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message, Err: err}
}

func authError(code, message string) *Error {
	// Authentication failures stay terse; detail would feed an oracle.
	return &Error{Kind: KindAuthentication, Code: code, Message: message}
}

func conflictError(code, message string) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: message}
}

func notFoundError(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

func rateLimitError(code, message string, retryAfter int) *Error {
	return &Error{Kind: KindRateLimit, Code: code, Message: message, RetryAfter: retryAfter}
}

func processingError(code, message string, err error) *Error {
	return &Error{Kind: KindProcessing, Code: code, Message: message, Err: err}
}

// AsError extracts a pipeline error, wrapping anything unclassified as a
// generic processing failure.
func AsError(err error) *Error {
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}
	return processingError("INTERNAL_ERROR", "Internal server error", err)
}
