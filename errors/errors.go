// Package errors provides custom error types for the board coordination kit
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents the type of error that occurred
type ErrorCode string

const (
	ErrCodeStorageFailure    ErrorCode = "STORAGE_FAILURE"
	ErrCodeConflictFailure   ErrorCode = "CONFLICT_FAILURE"
	ErrCodeValidationFailure ErrorCode = "VALIDATION_FAILURE"
	ErrCodeRoutingFailure    ErrorCode = "ROUTING_FAILURE"
	ErrCodeHandlerFailure    ErrorCode = "HANDLER_FAILURE"
	ErrCodeWatchFailure      ErrorCode = "WATCH_FAILURE"
)

// Operation represents the type of coordination operation
type Operation string

const (
	OpExecute    Operation = "execute"
	OpPublish    Operation = "publish"
	OpSetBoard   Operation = "set_board"
	OpInvalidate Operation = "invalidate"
	OpSave       Operation = "save"
	OpDrain      Operation = "drain"
	OpCancel     Operation = "cancel"
	OpDetect     Operation = "detect"
	OpResolve    Operation = "resolve"
	OpBackup     Operation = "backup"
	OpWatch      Operation = "watch"
	OpLoad       Operation = "load"
	OpStore      Operation = "store"
	OpClose      Operation = "close"
)

// CoordError represents an error that occurred inside the coordination core
type CoordError struct {
	// Operation during which the error occurred
	Op Operation

	// Component that generated the error (e.g., "save", "cache", "command")
	Component string

	// Underlying error
	Err error

	// Whether the operation can be retried
	Retryable bool

	// Error code for the error type
	Code ErrorCode

	// Metadata for additional context
	Metadata map[string]interface{}
}

func (e *CoordError) Error() string {
	var msg string
	if e.Component != "" {
		msg = fmt.Sprintf("%s operation failed in %s component", e.Op, e.Component)
	} else {
		msg = fmt.Sprintf("%s operation failed", e.Op)
	}

	if e.Code != "" {
		msg += fmt.Sprintf(" [%s]", e.Code)
	}

	return msg + fmt.Sprintf(": %v", e.Err)
}

func (e *CoordError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new storage-related CoordError
func NewStorageError(op Operation, cause error) *CoordError {
	return &CoordError{
		Code:      ErrCodeStorageFailure,
		Op:        op,
		Component: "store",
		Err:       cause,
		Retryable: true,
	}
}

// NewConflictError creates a new conflict-related CoordError
func NewConflictError(op Operation, cause error) *CoordError {
	return &CoordError{
		Code:      ErrCodeConflictFailure,
		Op:        op,
		Component: "conflict",
		Err:       cause,
		Retryable: false,
	}
}

// NewValidationError creates a new validation-related CoordError
func NewValidationError(op Operation, cause error) *CoordError {
	return &CoordError{
		Code:      ErrCodeValidationFailure,
		Op:        op,
		Err:       cause,
		Retryable: false,
	}
}

// NewRoutingError creates an error for a command with no registered handler
func NewRoutingError(op Operation, cause error) *CoordError {
	return &CoordError{
		Code:      ErrCodeRoutingFailure,
		Op:        op,
		Component: "command",
		Err:       cause,
		Retryable: false,
	}
}

// NewHandlerError wraps an error returned by a command handler
func NewHandlerError(op Operation, cause error) *CoordError {
	return &CoordError{
		Code:      ErrCodeHandlerFailure,
		Op:        op,
		Component: "command",
		Err:       cause,
		Retryable: false,
	}
}

// New creates a new CoordError
func New(op Operation, err error) *CoordError {
	return &CoordError{
		Op:  op,
		Err: err,
	}
}

// NewWithComponent creates a new CoordError with component information
func NewWithComponent(op Operation, component string, err error) *CoordError {
	return &CoordError{
		Op:        op,
		Component: component,
		Err:       err,
	}
}

// NewRetryable creates a new retryable CoordError
func NewRetryable(op Operation, err error) *CoordError {
	return &CoordError{
		Op:        op,
		Err:       err,
		Retryable: true,
	}
}

// IsRetryable checks if an error is a retryable CoordError
func IsRetryable(err error) bool {
	var coordErr *CoordError
	if errors.As(err, &coordErr) {
		return coordErr.Retryable
	}
	return false
}
