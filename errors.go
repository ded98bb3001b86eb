package agrisage

import (
	"errors"
	"fmt"
)

// Error codes for specific failure types
const (
	ErrCodeInvalidInput          = "INVALID_INPUT"
	ErrCodeServiceUnavailable    = "SERVICE_UNAVAILABLE"
	ErrCodeCapability            = "CAPABILITY_ERROR"
	ErrCodeCacheIO               = "CACHE_IO_ERROR"
	ErrCodeInternalOrchestration = "INTERNAL_ORCHESTRATION_ERROR"
	ErrCodeCancelled             = "CANCELLED"
	ErrCodeConfiguration         = "CONFIGURATION_ERROR"
)

// AgriSageError is the error type returned by the orchestrator.
type AgriSageError struct {
	Code    string // A machine-readable error code (e.g., ErrCodeInvalidInput)
	Message string // A human-readable message
	Stage   string // The stage where the error occurred (e.g., "planning", "execution")
	Cause   error  // The underlying error, if any
}

// Error implements the error interface.
func (e *AgriSageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Stage, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Stage, e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error, allowing for error chaining.
func (e *AgriSageError) Unwrap() error {
	return e.Cause
}

// NewError creates a new AgriSageError.
func NewError(code, stage, message string, cause error) *AgriSageError {
	return &AgriSageError{
		Code:    code,
		Stage:   stage,
		Message: message,
		Cause:   cause,
	}
}

func NewInvalidInputError(message string) *AgriSageError {
	return NewError(ErrCodeInvalidInput, "validation", message, nil)
}

func NewServiceUnavailableError(message string, cause error) *AgriSageError {
	return NewError(ErrCodeServiceUnavailable, "validation", message, cause)
}

// NewCapabilityError describes a capability fault. It is rendered into text
// for the model and never returned from Handle.
func NewCapabilityError(capability string, cause error) *AgriSageError {
	return NewError(ErrCodeCapability, "execution", fmt.Sprintf("capability '%s' failed", capability), cause)
}

func NewCacheIOError(operation, key string, cause error) *AgriSageError {
	return NewError(ErrCodeCacheIO, "cache", fmt.Sprintf("cache %s failed for key '%s'", operation, key), cause)
}

func NewInternalOrchestrationError(stage string, cause error) *AgriSageError {
	return NewError(ErrCodeInternalOrchestration, stage, "orchestration failed", cause)
}

func NewCancelledError(stage string, cause error) *AgriSageError {
	return NewError(ErrCodeCancelled, stage, "request cancelled", cause)
}

func NewConfigurationError(message string, cause error) *AgriSageError {
	return NewError(ErrCodeConfiguration, "initialization", message, cause)
}

// ErrorCode returns the code of the first AgriSageError in err's chain, or "".
func ErrorCode(err error) string {
	var ae *AgriSageError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func IsInvalidInput(err error) bool       { return ErrorCode(err) == ErrCodeInvalidInput }
func IsServiceUnavailable(err error) bool { return ErrorCode(err) == ErrCodeServiceUnavailable }
func IsCancelled(err error) bool          { return ErrorCode(err) == ErrCodeCancelled }
