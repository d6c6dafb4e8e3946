// Package errors defines the error taxonomy shared by the annotation server:
// client input errors, execution timeouts, and execution failures. Every
// error maps to an HTTP status and a one-line diagnostic for the caller.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrUnknownAnnotator  = errors.New("unknown annotator")
	ErrMissingPattern    = errors.New("missing pattern")
	ErrPatternSyntax     = errors.New("pattern syntax error")
	ErrTimeout           = errors.New("operation timed out")
	ErrExecution         = errors.New("execution failed")
	ErrMissingLayer      = errors.New("missing annotation layer")
	ErrUnavailable       = errors.New("service unavailable")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Invalidf builds a client input error wrapping sentinel.
func Invalidf(sentinel error, format string, args ...any) *AppError {
	return Newf(sentinel, http.StatusBadRequest, format, args...)
}

// Failf builds a server-side execution failure wrapping sentinel.
func Failf(sentinel error, format string, args ...any) *AppError {
	return Newf(sentinel, http.StatusInternalServerError, format, args...)
}

// IsClientError reports whether err is the caller's fault.
func IsClientError(err error) bool {
	return HTTPStatusCode(err) == http.StatusBadRequest
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrUnsupportedFormat),
		errors.Is(err, ErrUnknownAnnotator),
		errors.Is(err, ErrMissingPattern),
		errors.Is(err, ErrPatternSyntax):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Diagnostic renders err as the single-line message sent to callers. Client
// errors carry only their message; server failures are prefixed with the
// failure category.
func Diagnostic(err error) string {
	if err == nil {
		return ""
	}
	var msg string
	var appErr *AppError
	switch {
	case errors.As(err, &appErr) && appErr.StatusCode == http.StatusBadRequest:
		msg = appErr.Message
	case errors.As(err, &appErr):
		msg = appErr.Err.Error() + ": " + appErr.Message
	default:
		msg = err.Error()
	}
	return strings.Join(strings.Fields(msg), " ")
}
