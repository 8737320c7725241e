package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a dashboard error code.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST" // 400
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"    // 401
	ErrNotFound       ErrorCode = "NOT_FOUND"       // 404
	ErrRateLimited    ErrorCode = "RATE_LIMITED"    // 429
	ErrInternal       ErrorCode = "INTERNAL"        // 500
	ErrRemoteAccess   ErrorCode = "REMOTE_ACCESS"   // 502
)

// Reasons attached to ErrRemoteAccess errors.
const (
	ReasonAuth      = "auth"
	ReasonNotFound  = "not_found"
	ReasonTransport = "transport"
)

// DashError represents a structured error with code, status, and details.
type DashError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *DashError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *DashError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *DashError {
	return &DashError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewUnauthorized creates a 401 error for requests without a valid session.
func NewUnauthorized(msg string) *DashError {
	return &DashError{
		Code:    ErrUnauthorized,
		Status:  401,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for an unknown resource.
func NewNotFound(identifier string) *DashError {
	return &DashError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("not found: %s", identifier),
		Details: map[string]any{"identifier": identifier},
	}
}

// NewRateLimited creates a 429 error carrying the suggested retry delay in seconds.
func NewRateLimited(retryAfter int) *DashError {
	return &DashError{
		Code:    ErrRateLimited,
		Status:  429,
		Message: "too many requests, try again later",
		Details: map[string]any{"retry_after": retryAfter},
	}
}

// NewRemoteAccess creates a 502 error for a failed read of the remote row source.
// reason is one of ReasonAuth, ReasonNotFound or ReasonTransport.
func NewRemoteAccess(reason string, err error) *DashError {
	msg := "remote source unavailable"
	if err != nil {
		msg = fmt.Sprintf("remote source unavailable (%s): %v", reason, err)
	}
	return &DashError{
		Code:    ErrRemoteAccess,
		Status:  502,
		Message: msg,
		Details: map[string]any{"reason": reason},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *DashError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &DashError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if err is, or wraps, a DashError with the given code.
func Is(err error, code ErrorCode) bool {
	var dErr *DashError
	if stderrors.As(err, &dErr) {
		return dErr.Code == code
	}
	return false
}

// Reason returns the remote access reason carried by err, or "".
func Reason(err error) string {
	var dErr *DashError
	if !stderrors.As(err, &dErr) || dErr.Details == nil {
		return ""
	}
	reason, _ := dErr.Details["reason"].(string)
	return reason
}
