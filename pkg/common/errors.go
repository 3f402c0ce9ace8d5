package common

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the application-level error carried from services up to handlers.
// Code maps directly onto the HTTP status the handler should respond with.
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewBadRequestError creates a 400 error for malformed or invalid input.
func NewBadRequestError(message string, err error) *AppError {
	return &AppError{Code: http.StatusBadRequest, Message: message, Err: err}
}

// NewUnauthorizedError creates a 401 error.
func NewUnauthorizedError(message string) *AppError {
	return &AppError{Code: http.StatusUnauthorized, Message: message}
}

// NewForbiddenError creates a 403 error.
func NewForbiddenError(message string) *AppError {
	return &AppError{Code: http.StatusForbidden, Message: message}
}

// NewNotFoundError creates a 404 error.
func NewNotFoundError(message string, err error) *AppError {
	return &AppError{Code: http.StatusNotFound, Message: message, Err: err}
}

// NewConflictError creates a 409 error, used for reference collisions and
// concurrent-update guards.
func NewConflictError(message string, err error) *AppError {
	return &AppError{Code: http.StatusConflict, Message: message, Err: err}
}

// NewStateError creates a 409 error for operations not permitted in the
// entity's current lifecycle state. The reason string is surfaced verbatim.
func NewStateError(reason string) *AppError {
	return &AppError{Code: http.StatusConflict, Message: reason}
}

// NewGoneError creates a 410 error, used for expired quotes.
func NewGoneError(message string) *AppError {
	return &AppError{Code: http.StatusGone, Message: message}
}

// NewPaymentRequiredError creates a 402 error for payment initialization failures.
func NewPaymentRequiredError(message string, err error) *AppError {
	return &AppError{Code: http.StatusPaymentRequired, Message: message, Err: err}
}

// NewUpstreamError creates a 502 error for failures in external collaborators
// (distance provider, payment gateway).
func NewUpstreamError(message string, err error) *AppError {
	return &AppError{Code: http.StatusBadGateway, Message: message, Err: err}
}

// NewInternalError creates a 500 error wrapping an upstream cause.
func NewInternalError(message string, err error) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Message: message, Err: err}
}

// NewInternalServerError creates a 500 error without a cause.
func NewInternalServerError(message string) *AppError {
	return &AppError{Code: http.StatusInternalServerError, Message: message}
}

// AsAppError extracts an *AppError from an error chain, or wraps the error
// as an internal error when it is not one.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError("internal error", err)
}
