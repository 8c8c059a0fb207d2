package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application error carrying the HTTP status class of
// the failure. Every boundary maps errors into this shape so nothing
// propagates to callers as an unhandled fault.
type AppError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// StatusCode is read by the error middleware when mapping to a response.
func (e *AppError) StatusCode() int {
	return e.Status
}

func BadRequest(message string, err error) *AppError {
	return &AppError{Status: http.StatusBadRequest, Message: message, Err: err}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{Status: http.StatusUnauthorized, Message: message, Err: err}
}

func Forbidden(message string, err error) *AppError {
	return &AppError{Status: http.StatusForbidden, Message: message, Err: err}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{Status: http.StatusNotFound, Message: fmt.Sprintf("%s not found", resource), Err: err}
}

func TooManyRequests(message string) *AppError {
	return &AppError{Status: http.StatusTooManyRequests, Message: message}
}

func Internal(message string, err error) *AppError {
	return &AppError{Status: http.StatusInternalServerError, Message: message, Err: err}
}

// StatusOf extracts the HTTP status from err, defaulting to 500.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return http.StatusInternalServerError
}

// MessageOf extracts the user-facing message from err.
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "internal server error"
}
