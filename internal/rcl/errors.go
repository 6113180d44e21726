package rcl

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode categorizes errors returned by the rcl layer.
type ErrorCode string

const (
	// ErrCodeRCL is a generic failure inside the client library.
	ErrCodeRCL ErrorCode = "RCL_ERROR"

	// ErrCodeInvalidROSArgs indicates a malformed --ros-args section.
	ErrCodeInvalidROSArgs ErrorCode = "INVALID_ROS_ARGS"

	// ErrCodeUnknownROSArgs indicates flags inside --ros-args that are not understood.
	ErrCodeUnknownROSArgs ErrorCode = "UNKNOWN_ROS_ARGS"

	// ErrCodeNotInitialized indicates use of a context before Init or after Shutdown.
	ErrCodeNotInitialized ErrorCode = "NOT_INITIALIZED"

	// ErrCodeAlreadyInitialized indicates a second Init on the same context.
	ErrCodeAlreadyInitialized ErrorCode = "ALREADY_INITIALIZED"

	// ErrCodeAlreadyShutdown indicates a second Shutdown on the same context.
	ErrCodeAlreadyShutdown ErrorCode = "ALREADY_SHUTDOWN"

	// ErrCodeInvalidHandle indicates use of a destroyed node or entity.
	ErrCodeInvalidHandle ErrorCode = "INVALID_HANDLE"

	// ErrCodeNodeNameNonExistent indicates a graph query for an unknown node.
	ErrCodeNodeNameNonExistent ErrorCode = "NODE_NAME_NON_EXISTENT"

	// ErrCodeInvalidArgument indicates a bad argument such as an invalid name or period.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"

	// ErrCodeTypeMismatch indicates a message whose type does not match the endpoint.
	ErrCodeTypeMismatch ErrorCode = "TYPE_MISMATCH"

	// ErrCodeGoalEventInvalid indicates a goal state transition that is not allowed.
	ErrCodeGoalEventInvalid ErrorCode = "ACTION_GOAL_EVENT_INVALID"
)

// Error is the error type returned by the rcl layer.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code ErrorCode, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// UnknownROSArgsError lists the arguments inside --ros-args sections that
// were not recognized.
type UnknownROSArgsError struct {
	Args []string
}

// Error implements the error interface.
func (e *UnknownROSArgsError) Error() string {
	quoted := make([]string, len(e.Args))
	for i, a := range e.Args {
		quoted[i] = "'" + a + "'"
	}
	return fmt.Sprintf("%s: found unknown ROS arguments: [%s]", ErrCodeUnknownROSArgs, strings.Join(quoted, ", "))
}

// CodeOf returns the ErrorCode carried by err, or "" if err is not an rcl error.
func CodeOf(err error) ErrorCode {
	var re *Error
	if errors.As(err, &re) {
		return re.Code
	}
	var ue *UnknownROSArgsError
	if errors.As(err, &ue) {
		return ErrCodeUnknownROSArgs
	}
	return ""
}

// IsNotInitialized reports whether err is a NOT_INITIALIZED error.
// Uses errors.As to handle wrapped errors.
func IsNotInitialized(err error) bool {
	return CodeOf(err) == ErrCodeNotInitialized
}

// IsInvalidHandle reports whether err is an INVALID_HANDLE error.
func IsInvalidHandle(err error) bool {
	return CodeOf(err) == ErrCodeInvalidHandle
}

// IsUnknownROSArgs reports whether err lists unknown ROS arguments.
func IsUnknownROSArgs(err error) bool {
	var ue *UnknownROSArgsError
	return errors.As(err, &ue)
}

// IsNodeNameNonExistent reports whether err is a NODE_NAME_NON_EXISTENT error.
func IsNodeNameNonExistent(err error) bool {
	return CodeOf(err) == ErrCodeNodeNameNonExistent
}

// IsTypeMismatch reports whether err is a TYPE_MISMATCH error.
func IsTypeMismatch(err error) bool {
	return CodeOf(err) == ErrCodeTypeMismatch
}

// ErrNodeAttached is returned by Node.AttachExecutor when the node already
// belongs to an executor.
var ErrNodeAttached = errors.New("node is already attached to an executor")

// ErrServiceUnavailable is returned when a request is sent with no server.
var ErrServiceUnavailable = errors.New("service is not available")

// ErrFutureCanceled is the result of a Future canceled before completion.
var ErrFutureCanceled = errors.New("future canceled")
