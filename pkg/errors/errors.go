package errors

import (
	"errors"
	"fmt"
)

// ErrorType defines different categories of errors
type ErrorType string

const (
	ErrorTypeValidation      ErrorType = "VALIDATION"
	ErrorTypeNotFound        ErrorType = "NOT_FOUND"
	ErrorTypeInternal        ErrorType = "INTERNAL"
	ErrorTypeAuthExpired     ErrorType = "AUTH_EXPIRED"
	ErrorTypeMissingIdentity ErrorType = "MISSING_IDENTITY"
	ErrorTypeRecordTooLarge  ErrorType = "RECORD_TOO_LARGE"
	ErrorTypeConflict        ErrorType = "CONFLICT"
	ErrorTypeUnavailable     ErrorType = "STORE_UNAVAILABLE"
)

// AppError is the custom error type for the application
type AppError struct {
	Type    ErrorType
	Message string
	Err     error

	// Size holds the final measured serialized size for RECORD_TOO_LARGE errors.
	Size int
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap allows errors.Is and errors.As to work
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidation creates a validation error
func NewValidation(message string) error {
	return &AppError{Type: ErrorTypeValidation, Message: message}
}

// NewNotFound creates a not found error
func NewNotFound(message string) error {
	return &AppError{Type: ErrorTypeNotFound, Message: message}
}

// NewInternal creates an internal error
func NewInternal(message string, err error) error {
	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

// NewAuthExpired creates an error indicating stale session credentials.
// It is recoverable by a single refresh-and-retry of the failing operation.
func NewAuthExpired(message string, err error) error {
	return &AppError{Type: ErrorTypeAuthExpired, Message: message, Err: err}
}

// NewMissingIdentity creates an error for operations attempted without a
// usable user id or zone claim.
func NewMissingIdentity(message string) error {
	return &AppError{Type: ErrorTypeMissingIdentity, Message: message}
}

// NewRecordTooLarge creates the fatal over-ceiling error, carrying the final
// measured size so callers can report what needs trimming.
func NewRecordTooLarge(size, ceiling int) error {
	return &AppError{
		Type:    ErrorTypeRecordTooLarge,
		Message: fmt.Sprintf("record is %d bytes after all reduction tiers, ceiling is %d", size, ceiling),
		Size:    size,
	}
}

// NewConflict creates a version conflict error for concurrent writes.
func NewConflict(message string, err error) error {
	return &AppError{Type: ErrorTypeConflict, Message: message, Err: err}
}

// NewUnavailable creates a store availability error for throughput exhaustion
// and similar transient conditions.
func NewUnavailable(message string, err error) error {
	return &AppError{Type: ErrorTypeUnavailable, Message: message, Err: err}
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}

	// If it's already an AppError, preserve the type
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Type:    appErr.Type,
			Message: fmt.Sprintf("%s: %s", message, appErr.Message),
			Err:     appErr.Err,
			Size:    appErr.Size,
		}
	}

	// Otherwise, create an internal error
	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

func isType(err error, t ErrorType) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == t
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool { return isType(err, ErrorTypeValidation) }

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool { return isType(err, ErrorTypeNotFound) }

// IsInternal checks if an error is an internal error
func IsInternal(err error) bool { return isType(err, ErrorTypeInternal) }

// IsAuthExpired checks if an error signals expired session credentials
func IsAuthExpired(err error) bool { return isType(err, ErrorTypeAuthExpired) }

// IsMissingIdentity checks if an error is a missing identity error
func IsMissingIdentity(err error) bool { return isType(err, ErrorTypeMissingIdentity) }

// IsRecordTooLarge checks if an error is the over-ceiling error
func IsRecordTooLarge(err error) bool { return isType(err, ErrorTypeRecordTooLarge) }

// IsConflict checks if an error is a version conflict error
func IsConflict(err error) bool { return isType(err, ErrorTypeConflict) }

// IsUnavailable checks if an error is a transient store availability error
func IsUnavailable(err error) bool { return isType(err, ErrorTypeUnavailable) }

// SizeOf returns the measured size carried by a RECORD_TOO_LARGE error, or 0.
func SizeOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Type == ErrorTypeRecordTooLarge {
		return appErr.Size
	}
	return 0
}
