package errors

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Kind is the closed set of failure categories the engine recognizes.
type Kind string

const (
	KindDeadlock            Kind = "deadlock"
	KindTimeout             Kind = "timeout"
	KindConstraintViolation Kind = "constraint_violation"
	KindConnectionError     Kind = "connection_error"
	KindValidationError     Kind = "validation_error"
	KindBusinessLogicError  Kind = "business_logic_error"
	KindUnknown             Kind = "unknown"
)

// Record is the result of classifying a raw failure. It is a value:
// created per failure, never mutated.
type Record struct {
	Kind      Kind
	Message   string
	Retryable bool
	Cause     error
}

// Classify maps a raw failure onto the error taxonomy. It is deterministic,
// never panics, and matches on the lower-cased message rather than driver
// exception types so it works unchanged across Postgres, MySQL and SQLite.
func Classify(err error) Record {
	if err == nil {
		return Record{Kind: KindUnknown, Message: "no error", Cause: nil}
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "deadlock") || strings.Contains(msg, "lock wait") || strings.Contains(msg, "lock-wait"):
		return Record{
			Kind:      KindDeadlock,
			Message:   "operation conflicted with a concurrent transaction",
			Retryable: true,
			Cause:     err,
		}

	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "canceling statement"):
		return Record{
			Kind:      KindTimeout,
			Message:   "operation timed out",
			Retryable: true,
			Cause:     err,
		}

	case strings.Contains(msg, "constraint") || strings.Contains(msg, "unique") ||
		strings.Contains(msg, "foreign key") || strings.Contains(msg, "duplicate"):
		return Record{
			Kind:      KindConstraintViolation,
			Message:   constraintMessage(msg),
			Retryable: false,
			Cause:     err,
		}

	case strings.Contains(msg, "econnrefused") || strings.Contains(msg, "etimedout") ||
		strings.Contains(msg, "connection") || strings.Contains(msg, "connect") ||
		strings.Contains(msg, "broken pipe"):
		return Record{
			Kind:      KindConnectionError,
			Message:   "database connection failed",
			Retryable: true,
			Cause:     err,
		}
	}

	if isValidation(err) {
		// Client-facing error: pass the message through verbatim.
		return Record{Kind: KindValidationError, Message: err.Error(), Retryable: false, Cause: err}
	}

	if isBusiness(err) {
		return Record{Kind: KindBusinessLogicError, Message: err.Error(), Retryable: false, Cause: err}
	}

	return Record{
		Kind:      KindUnknown,
		Message:   "an internal error occurred",
		Retryable: false,
		Cause:     err,
	}
}

// constraintMessage derives a user-facing message from the violated
// constraint category without leaking raw driver text.
func constraintMessage(msg string) string {
	switch {
	case strings.Contains(msg, "email"):
		return "An account with this email already exists"
	case strings.Contains(msg, "isbn"):
		return "A book with this ISBN already exists"
	case strings.Contains(msg, "foreign key"):
		return "Referenced record does not exist"
	case strings.Contains(msg, "check"):
		return "Value violates a data constraint"
	case strings.Contains(msg, "not null") || strings.Contains(msg, "not-null"):
		return "A required field is missing"
	default:
		return "A record with these values already exists"
	}
}

func isValidation(err error) bool {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		return true
	}
	var de *DomainError
	if errors.As(err, &de) && de.Status > 0 && de.Status < http.StatusInternalServerError {
		return true
	}
	return errors.Is(err, ErrValidationFailed) || errors.Is(err, ErrInvalidInput)
}

func isBusiness(err error) bool {
	for _, target := range []error{
		ErrBookNotFound,
		ErrBookAlreadyExists,
		ErrBatchAborted,
		ErrSavepointReused,
		ErrNoTransaction,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// DomainError maps a classified record onto the client error shape.
// Validation and business errors are returned as the original cause
// unchanged; everything else gets a taxonomy-derived code and status.
func (r Record) DomainError() error {
	switch r.Kind {
	case KindValidationError, KindBusinessLogicError:
		return r.Cause
	case KindDeadlock:
		return NewDomainError("CONFLICT", http.StatusConflict, r.Message, r.Cause)
	case KindTimeout:
		return NewDomainError("REQUEST_TIMEOUT", http.StatusRequestTimeout, r.Message, r.Cause)
	case KindConstraintViolation:
		return NewDomainError("CONSTRAINT_VIOLATION", http.StatusBadRequest, r.Message, r.Cause)
	case KindConnectionError:
		return NewDomainError("SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, r.Message, r.Cause)
	default:
		return NewDomainError("INTERNAL_ERROR", http.StatusInternalServerError, "an internal error occurred", r.Cause)
	}
}
