package executor

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes executor errors.
type ErrorCode string

const (
	// ErrCodeWaitPrimitiveFailure indicates the wait primitive returned an
	// error. The pass is abandoned; the next call starts fresh.
	ErrCodeWaitPrimitiveFailure ErrorCode = "WAIT_PRIMITIVE_FAILURE"

	// ErrCodeCallbackInvocation indicates a callback returned an error or
	// panicked. It is reported to the ErrorHandler and never stops the loop.
	ErrCodeCallbackInvocation ErrorCode = "CALLBACK_INVOCATION"

	// ErrCodeRegistrationConflict indicates a node that already belongs to
	// another executor.
	ErrCodeRegistrationConflict ErrorCode = "REGISTRATION_CONFLICT"
)

// Error is an executor error with structured fields for diagnostics.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Node is the fully qualified name of the node involved, if any.
	Node string

	// Entity is the name of the entity involved, if any.
	Entity string

	// EntityKind is the kind of the entity involved, if any.
	EntityKind string

	// Seq is the dispatch seq for callback errors.
	Seq int64

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Entity != "" {
		msg = fmt.Sprintf("%s (node=%s, %s=%s)", msg, e.Node, e.EntityKind, e.Entity)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func isCode(err error, code ErrorCode) bool {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Code == code
	}
	return false
}

// IsWaitPrimitiveFailure returns true if err is a WAIT_PRIMITIVE_FAILURE.
// Uses errors.As to handle wrapped errors.
func IsWaitPrimitiveFailure(err error) bool {
	return isCode(err, ErrCodeWaitPrimitiveFailure)
}

// IsCallbackInvocation returns true if err is a CALLBACK_INVOCATION error.
func IsCallbackInvocation(err error) bool {
	return isCode(err, ErrCodeCallbackInvocation)
}

// IsRegistrationConflict returns true if err is a REGISTRATION_CONFLICT.
func IsRegistrationConflict(err error) bool {
	return isCode(err, ErrCodeRegistrationConflict)
}

// PanicError wraps a value recovered from a panicking callback.
type PanicError struct {
	Value any
	Stack []byte
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("callback panicked: %v", e.Value)
}

// IsPanic returns true if err wraps a recovered panic.
func IsPanic(err error) bool {
	var pe *PanicError
	return errors.As(err, &pe)
}

// ErrAlreadySpinning is returned when Spin or SpinOnce is called while
// another goroutine is spinning the same executor.
var ErrAlreadySpinning = errors.New("executor is already spinning")

// ErrShutdown is returned by AddNode after Shutdown.
var ErrShutdown = errors.New("executor is shut down")
