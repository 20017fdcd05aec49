package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies gateway failures for HTTP mapping and failover logic.
type ErrorCode string

const (
	CodeBackendNotFound  ErrorCode = "BACKEND_NOT_FOUND"
	CodeConfigMissing    ErrorCode = "CONFIG_MISSING"
	CodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	CodeUpstreamError    ErrorCode = "UPSTREAM_ERROR"
	CodeInternal         ErrorCode = "INTERNAL_ERROR"
)

// AppError carries a code, a human-readable message and an optional cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error

	// Status carries the upstream HTTP status for CodeUpstreamError.
	Status int
	// Body carries the raw upstream error body for CodeUpstreamError.
	Body string
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewBackendNotFoundError signals an unknown backend prefix in a model id.
func NewBackendNotFoundError(message string) *AppError {
	return &AppError{Code: CodeBackendNotFound, Message: message}
}

// NewConfigMissingError signals required configuration that is absent.
func NewConfigMissingError(message string) *AppError {
	return &AppError{Code: CodeConfigMissing, Message: message}
}

// NewConnectionFailedError wraps a transport-level failure (dial, timeout).
// These are the only errors eligible for backend failover.
func NewConnectionFailedError(message string, cause error) *AppError {
	return &AppError{Code: CodeConnectionFailed, Message: message, Err: cause}
}

// NewUpstreamError wraps a protocol-level failure: the backend was reachable
// and answered with an error status. Never a failover candidate.
func NewUpstreamError(status int, body string) *AppError {
	return &AppError{
		Code:    CodeUpstreamError,
		Message: fmt.Sprintf("upstream returned status %d", status),
		Status:  status,
		Body:    body,
	}
}

// NewInternalError creates an internal error with an optional cause.
func NewInternalError(message string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Err: cause}
}

func codeOf(err error) (ErrorCode, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code, true
	}
	return "", false
}

// IsConnectionFailed reports whether err is a transport-level failure.
func IsConnectionFailed(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeConnectionFailed
}

// IsBackendNotFound reports whether err names an unknown backend.
func IsBackendNotFound(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeBackendNotFound
}

// IsConfigMissing reports whether err is a configuration gap.
func IsConfigMissing(err error) bool {
	c, ok := codeOf(err)
	return ok && c == CodeConfigMissing
}

// AsUpstream extracts an upstream protocol error, if err is one.
func AsUpstream(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code == CodeUpstreamError {
		return appErr, true
	}
	return nil, false
}
