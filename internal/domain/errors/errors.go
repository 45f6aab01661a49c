package errors

import (
	"errors"
	"fmt"
)

var (
	// Catalog errors
	ErrBookNotFound      = errors.New("book not found")
	ErrBookAlreadyExists = errors.New("book already exists")

	// Transaction errors
	ErrNoTransaction      = errors.New("no transaction in context")
	ErrSavepointReused    = errors.New("savepoint name already used in this transaction")
	ErrTransactionTimeout = errors.New("transaction timed out")

	// Batch errors
	ErrBatchAborted = errors.New("batch aborted")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with a stable code and an HTTP-class status.
type DomainError struct {
	Code    string
	Status  int
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code string, status int, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Status:  status,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a single-field validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
