package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the gateway.
type ErrorCode string

// Request error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrForbidden      ErrorCode = "FORBIDDEN"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrNotFound       ErrorCode = "NOT_FOUND"
)

// Routing and upstream error codes
const (
	ErrRouting            ErrorCode = "ROUTING_ERROR"
	ErrUpstreamHTTP       ErrorCode = "UPSTREAM_HTTP"
	ErrUpstreamTransport  ErrorCode = "UPSTREAM_TRANSPORT"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrParse              ErrorCode = "PARSE_ERROR"
	ErrAmbiguousSentinel  ErrorCode = "AMBIGUOUS_SENTINEL"
	ErrCredentialFetch    ErrorCode = "CREDENTIAL_FETCH"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Storage and background error codes
const (
	ErrPersistence   ErrorCode = "PERSISTENCE_ERROR"
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
	ErrJobNotFound   ErrorCode = "JOB_NOT_FOUND"
	ErrInvalidAction ErrorCode = "INVALID_ACTION"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the upstream engine name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorCode reports whether err carries the given code anywhere in its chain.
func IsErrorCode(err error, code ErrorCode) bool {
	if e, ok := AsError(err); ok {
		return e.Code == code
	}
	return false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// NewRoutingError 平台来源无法识别
func NewRoutingError(message string) *Error {
	return NewError(ErrRouting, message).WithHTTPStatus(500)
}

// NewInvalidRequestError 请求参数错误
func NewInvalidRequestError(message string) *Error {
	return NewError(ErrInvalidRequest, message).WithHTTPStatus(400)
}

// NewPersistenceError wraps a storage failure. Never surfaced to clients.
func NewPersistenceError(op string, cause error) *Error {
	return NewError(ErrPersistence, op).WithCause(cause).WithHTTPStatus(500)
}
