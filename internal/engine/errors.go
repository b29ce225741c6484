package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/ifuzz/internal/ir"
)

// RuntimeError represents a recoverable failure of one call during Execute.
//
// Runtime errors include:
//   - Unknown instance: the call names an instance not (yet) registered
//   - Unknown function: the instance's interface does not declare it
//   - Invoke failed: the Invoker returned an error
//
// None of these abort a sequence.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Instance and Function identify the call.
	Instance string
	Function string

	// Err is the underlying failure, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeUnknownInstance indicates a call to an unregistered instance.
	ErrCodeUnknownInstance RuntimeErrorCode = "UNKNOWN_INSTANCE"

	// ErrCodeUnknownFunction indicates a call to an undeclared function.
	ErrCodeUnknownFunction RuntimeErrorCode = "UNKNOWN_FUNCTION"

	// ErrCodeInvokeFailed indicates the Invoker reported a failure.
	ErrCodeInvokeFailed RuntimeErrorCode = "INVOKE_FAILED"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Instance != "" {
		return fmt.Sprintf("%s: %s (call=%s.%s)", e.Code, e.Message, e.Instance, e.Function)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// CallError wraps the failure of one call with its position in the sequence.
type CallError struct {
	Index int
	Key   ir.CallKey
	Err   error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call %d (%s): %v", e.Index, e.Key, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// IsRuntimeCode reports whether err wraps a RuntimeError with the given code.
func IsRuntimeCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// NewUnknownInstanceError creates a RuntimeError for an unregistered instance.
func NewUnknownInstanceError(key ir.CallKey) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeUnknownInstance,
		Message:  "instance not registered",
		Instance: key.Instance,
		Function: key.Function,
	}
}

// NewUnknownFunctionError creates a RuntimeError for an undeclared function.
func NewUnknownFunctionError(key ir.CallKey, typeName string) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeUnknownFunction,
		Message:  fmt.Sprintf("function not declared by %s", typeName),
		Instance: key.Instance,
		Function: key.Function,
	}
}

// NewInvokeError creates a RuntimeError for an Invoker failure.
func NewInvokeError(key ir.CallKey, err error) *RuntimeError {
	return &RuntimeError{
		Code:     ErrCodeInvokeFailed,
		Message:  err.Error(),
		Instance: key.Instance,
		Function: key.Function,
		Err:      err,
	}
}
