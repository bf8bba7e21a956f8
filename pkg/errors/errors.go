package errors

import (
	"context"
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeDB         ErrorType = "database"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeState      ErrorType = "state"

	// Export stream failures
	ErrorTypeHeader    ErrorType = "header"
	ErrorTypeSource    ErrorType = "source"
	ErrorTypeSink      ErrorType = "sink"
	ErrorTypeCancelled ErrorType = "cancelled"
)

// AppError is a structured error with context
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
	Op      string // Operation that failed
}

// Error returns the error message
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError of the given type
func New(errorType ErrorType, op, message string, err error) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Err:     err,
		Op:      op,
	}
}

// NewConfigError creates a new configuration error
func NewConfigError(op, message string, err error) *AppError {
	return New(ErrorTypeConfig, op, message, err)
}

// NewDBError creates a new database error
func NewDBError(op, message string, err error) *AppError {
	return New(ErrorTypeDB, op, message, err)
}

// NewValidationError creates a new validation error
func NewValidationError(op, message string, err error) *AppError {
	return New(ErrorTypeValidation, op, message, err)
}

// NewIOError creates a new I/O error
func NewIOError(op, message string, err error) *AppError {
	return New(ErrorTypeIO, op, message, err)
}

// NewStateError creates a new state error
func NewStateError(op, message string, err error) *AppError {
	return New(ErrorTypeState, op, message, err)
}

// NewHeaderError reports that file headers could not be resolved
func NewHeaderError(op, message string, err error) *AppError {
	return New(ErrorTypeHeader, op, message, err)
}

// NewSourceError reports a row source fault during streaming
func NewSourceError(op, message string, err error) *AppError {
	return New(ErrorTypeSource, op, message, err)
}

// NewSinkError reports a failed write or flush to the output sink
func NewSinkError(op, message string, err error) *AppError {
	return New(ErrorTypeSink, op, message, err)
}

// NewCancelledError reports that the stream stopped because ctx was done
func NewCancelledError(op string, err error) *AppError {
	return New(ErrorTypeCancelled, op, "export cancelled", err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if err == nil {
		return false
	}
	ok := errors.As(err, &appErr)
	return ok && appErr.Type == errorType
}

// IsCancelled reports whether err is a cancellation, either typed or a bare
// context error.
func IsCancelled(err error) bool {
	if IsType(err, ErrorTypeCancelled) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// GetOp returns the operation from an error, if available
func GetOp(err error) string {
	var appErr *AppError
	if err == nil {
		return ""
	}
	if errors.As(err, &appErr) {
		return appErr.Op
	}
	return ""
}
