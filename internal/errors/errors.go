// Package errors provides coded application errors for the POS backend.
// Codes cross the API boundary verbatim so the shell and operator tooling can
// branch on them without parsing messages.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies one failure class.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Database errors
	ErrDatabase  ErrorCode = "DATABASE_ERROR"
	ErrMigration ErrorCode = "MIGRATION_FAILED"

	// Queue errors
	ErrCapacityExceeded     ErrorCode = "CAPACITY_EXCEEDED"
	ErrEntryNotFound        ErrorCode = "ENTRY_NOT_FOUND"
	ErrDuplicateEntry       ErrorCode = "DUPLICATE_ENTRY"
	ErrConfirmationRequired ErrorCode = "CONFIRMATION_REQUIRED"

	// Sync errors
	ErrSyncFailed       ErrorCode = "SYNC_FAILED"
	ErrSyncTimeout      ErrorCode = "SYNC_TIMEOUT"
	ErrBatchUnsupported ErrorCode = "BATCH_UNSUPPORTED"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if any error in the chain carries the code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// Code extracts the code from an error chain, defaulting to INTERNAL_ERROR
// for plain errors.
func Code(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}
