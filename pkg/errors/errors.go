package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unique error code
type ErrorCode string

const (
	// Generic errors
	ErrCodeInternal          ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput      ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"

	// Application lifecycle errors
	ErrCodeValidationFailed      ErrorCode = "VALIDATION_FAILED"
	ErrCodeDuplicateApplication  ErrorCode = "DUPLICATE_APPLICATION"
	ErrCodeInvalidStatus         ErrorCode = "INVALID_STATUS"
	ErrCodeDuplicateTransaction  ErrorCode = "DUPLICATE_TRANSACTION"
	ErrCodeMissingRequiredFields ErrorCode = "MISSING_REQUIRED"

	// Identity provider errors
	ErrCodeUpstream  ErrorCode = "UPSTREAM_ERROR"
	ErrCodeDecode    ErrorCode = "DECODE_ERROR"
	ErrCodeKeyImport ErrorCode = "KEY_IMPORT_ERROR"
	ErrCodeSigning   ErrorCode = "SIGNING_ERROR"
)

// Error represents a structured error with code, message, and optional details
type Error struct {
	Code    ErrorCode              // Unique error code
	Message string                 // Human-readable error message
	Details map[string]interface{} // Optional additional details
	Err     error                  // Wrapped underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Is and errors.As
func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetail adds a detail to the error
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *Error) HTTPStatusCode() int {
	return MapErrorCodeToHTTPStatus(e.Code)
}

// New creates a new Error with the given code and message
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsCode checks if an error has a specific error code
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// MapErrorCodeToHTTPStatus maps error codes to HTTP status codes
func MapErrorCodeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeInvalidInput, ErrCodeValidationFailed, ErrCodeDuplicateApplication,
		ErrCodeInvalidStatus, ErrCodeMissingRequiredFields:
		return http.StatusBadRequest

	case ErrCodeNotFound:
		return http.StatusNotFound

	case ErrCodeDuplicateTransaction:
		return http.StatusConflict

	case ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests

	// eSignet and crypto failures surface as 500 with the cause attached
	case ErrCodeUpstream, ErrCodeDecode, ErrCodeKeyImport, ErrCodeSigning:
		return http.StatusInternalServerError

	case ErrCodeInternal:
		fallthrough
	default:
		return http.StatusInternalServerError
	}
}

// InternalWrap wraps an internal error
func InternalWrap(err error, message string) *Error {
	return Wrap(err, ErrCodeInternal, message)
}

// ValidationFailed creates a "validation failed" error carrying per-field messages
func ValidationFailed(messages []string) *Error {
	return New(ErrCodeValidationFailed, "Validation Error").WithDetail("errors", messages)
}

// RateLimitExceeded creates a "rate limit exceeded" error
func RateLimitExceeded(retryAfter string) *Error {
	err := New(ErrCodeRateLimitExceeded, "rate limit exceeded")
	if retryAfter != "" {
		err.WithDetail("retry_after", retryAfter)
	}
	return err
}
