package errors

import (
	"fmt"
)

// ErrorCode represents a specific error type for the conversation engine.
type ErrorCode string

const (
	// ErrCodeNotFound indicates an unknown user, episode, or session.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeGenerationFailed indicates the response generator returned an error.
	ErrCodeGenerationFailed ErrorCode = "GENERATION_FAILED"
	// ErrCodeGenerationTimeout indicates the response generator exceeded its deadline.
	ErrCodeGenerationTimeout ErrorCode = "GENERATION_TIMEOUT"
	// ErrCodeGraphError indicates the branch graph is malformed or cyclic.
	ErrCodeGraphError ErrorCode = "GRAPH_ERROR"
	// ErrCodeSessionEnded indicates an operation on a session that is no longer active.
	ErrCodeSessionEnded ErrorCode = "SESSION_ENDED"
	// ErrCodeRateLimitExceeded indicates the per-user rate limit has been exceeded.
	ErrCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
)

// EngineError represents a structured error for conversation engine operations.
type EngineError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *EngineError) WithContext(key string, value interface{}) *EngineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// GetCode returns the error code.
func (e *EngineError) GetCode() ErrorCode {
	return e.Code
}

// Convenience constructors for common error types.

// NotFound creates a not found error.
func NotFound(entity string, id interface{}) *EngineError {
	return &EngineError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found: %v", entity, id),
	}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *EngineError {
	return &EngineError{Code: ErrCodeInvalidArgument, Message: msg}
}

// GenerationFailed creates a generation failed error.
func GenerationFailed(cause error) *EngineError {
	return &EngineError{Code: ErrCodeGenerationFailed, Message: "response generation failed", Cause: cause}
}

// GenerationTimeout creates a generation timeout error.
func GenerationTimeout(cause error) *EngineError {
	return &EngineError{Code: ErrCodeGenerationTimeout, Message: "response generation timed out", Cause: cause}
}

// GraphCycle creates a graph error for a cycle detected at runtime.
func GraphCycle(node string) *EngineError {
	return &EngineError{
		Code:    ErrCodeGraphError,
		Message: fmt.Sprintf("branch graph cycle detected at node: %s", node),
	}
}

// GraphMalformed creates a graph error for a graph that failed to compile.
func GraphMalformed(cause error) *EngineError {
	return &EngineError{Code: ErrCodeGraphError, Message: "malformed branch graph", Cause: cause}
}

// SessionEnded creates a session ended error.
func SessionEnded(sessionUID string) *EngineError {
	return &EngineError{
		Code:    ErrCodeSessionEnded,
		Message: fmt.Sprintf("session already ended: %s", sessionUID),
	}
}

// RateLimitExceeded creates a rate limit exceeded error.
func RateLimitExceeded(msg string) *EngineError {
	return &EngineError{Code: ErrCodeRateLimitExceeded, Message: msg}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if an error is of a specific code.
func IsCode(err error, code ErrorCode) bool {
	if engineErr, ok := err.(*EngineError); ok {
		return engineErr.Code == code
	}
	return false
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if the error is not an EngineError.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	if engineErr, ok := err.(*EngineError); ok {
		return engineErr.Code
	}
	return defaultCode
}
