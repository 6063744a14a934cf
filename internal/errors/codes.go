package errors

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for runtime operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors (4xx equivalent)
	ErrCodeInvalidArgument ErrorCode = 1000
	ErrCodeInvalidScope    ErrorCode = 1001
	ErrCodeInvalidKey      ErrorCode = 1002
	ErrCodeInvalidTTL      ErrorCode = 1003
	ErrCodeDuplicateJob    ErrorCode = 1004

	// Setup errors
	ErrCodeInvalidConfig ErrorCode = 1500

	// Server errors (5xx equivalent)
	ErrCodeInternal         ErrorCode = 2000
	ErrCodeJobExecution     ErrorCode = 2001
	ErrCodeWatchdogFailure  ErrorCode = 2002
	ErrCodeStoreUnavailable ErrorCode = 2003
)

// RuntimeError represents a structured error with code and context
type RuntimeError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *RuntimeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *RuntimeError) Unwrap() error {
	return e.Cause
}

// ToGRPCStatus converts RuntimeError to gRPC status for boundary surfaces
func (e *RuntimeError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

// toGRPCCode maps internal error codes to gRPC codes
func (e *RuntimeError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument, ErrCodeInvalidScope, ErrCodeInvalidKey,
		ErrCodeInvalidTTL, ErrCodeInvalidConfig:
		return codes.InvalidArgument
	case ErrCodeDuplicateJob:
		return codes.AlreadyExists
	case ErrCodeStoreUnavailable, ErrCodeWatchdogFailure:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// NewRuntimeError creates a new RuntimeError
func NewRuntimeError(code ErrorCode, message string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *RuntimeError) WithDetail(key string, value interface{}) *RuntimeError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *RuntimeError {
	return NewRuntimeError(ErrCodeInvalidArgument, message, cause)
}

func InvalidScope(scope, reason string) *RuntimeError {
	return NewRuntimeError(ErrCodeInvalidScope, fmt.Sprintf("invalid scope '%s': %s", scope, reason), nil).
		WithDetail("scope", scope).
		WithDetail("reason", reason)
}

func InvalidKey(key, reason string) *RuntimeError {
	return NewRuntimeError(ErrCodeInvalidKey, fmt.Sprintf("invalid key '%s': %s", key, reason), nil).
		WithDetail("key", key).
		WithDetail("reason", reason)
}

func InvalidTTL(ttl string, reason string) *RuntimeError {
	return NewRuntimeError(ErrCodeInvalidTTL, fmt.Sprintf("invalid ttl %s: %s", ttl, reason), nil).
		WithDetail("ttl", ttl).
		WithDetail("reason", reason)
}

func InvalidConfig(field, reason string) *RuntimeError {
	return NewRuntimeError(ErrCodeInvalidConfig, fmt.Sprintf("invalid configuration: %s: %s", field, reason), nil).
		WithDetail("field", field).
		WithDetail("reason", reason)
}

func DuplicateJob(name string) *RuntimeError {
	return NewRuntimeError(ErrCodeDuplicateJob, fmt.Sprintf("job already scheduled: %s", name), nil).
		WithDetail("name", name)
}

func JobExecution(name string, cause error) *RuntimeError {
	return NewRuntimeError(ErrCodeJobExecution, fmt.Sprintf("job execution failed: %s", name), cause).
		WithDetail("name", name)
}

func WatchdogFailure(target string, attempts int, cause error) *RuntimeError {
	return NewRuntimeError(ErrCodeWatchdogFailure, fmt.Sprintf("backing store unreachable: %s", target), cause).
		WithDetail("target", target).
		WithDetail("attempts", attempts)
}

func StoreUnavailable(message string, cause error) *RuntimeError {
	return NewRuntimeError(ErrCodeStoreUnavailable, message, cause)
}

func InternalError(message string, cause error) *RuntimeError {
	return NewRuntimeError(ErrCodeInternal, message, cause)
}

// IsRuntimeError checks if an error is a RuntimeError
func IsRuntimeError(err error) bool {
	_, ok := err.(*RuntimeError)
	return ok
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if re, ok := err.(*RuntimeError); ok {
		return re.Code
	}
	return ErrCodeInternal
}
