package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_TransientKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"postgres deadlock", errors.New("ERROR: deadlock detected (SQLSTATE 40P01)"), KindDeadlock},
		{"mysql lock wait", errors.New("Lock wait timeout exceeded; try restarting transaction"), KindDeadlock},
		{"statement timeout", errors.New("ERROR: canceling statement due to statement timeout"), KindTimeout},
		{"context deadline", fmt.Errorf("query: %w", errors.New("context deadline exceeded")), KindTimeout},
		{"transaction timed out", ErrTransactionTimeout, KindTimeout},
		{"refused", errors.New("dial tcp 127.0.0.1:5432: connect: ECONNREFUSED"), KindConnectionError},
		{"broken pipe", errors.New("write: broken pipe"), KindConnectionError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Classify(tt.err)
			assert.Equal(t, tt.kind, rec.Kind)
			assert.True(t, rec.Retryable)
			assert.Equal(t, tt.err, rec.Cause)
		})
	}
}

func TestClassify_ConstraintMessages(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{
			"isbn unique",
			errors.New(`duplicate key value violates unique constraint "books_isbn_key"`),
			"A book with this ISBN already exists",
		},
		{
			"email unique",
			errors.New(`duplicate key value violates unique constraint "users_email_key"`),
			"An account with this email already exists",
		},
		{
			"foreign key",
			errors.New(`insert or update on table "books" violates foreign key constraint "books_author_id_fkey"`),
			"Referenced record does not exist",
		},
		{
			"check constraint",
			errors.New(`new row for relation "books" violates check constraint "books_price_cents_check"`),
			"Value violates a data constraint",
		},
		{
			"generic unique",
			errors.New(`duplicate key value violates unique constraint "genres_name_key"`),
			"A record with these values already exists",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Classify(tt.err)
			assert.Equal(t, KindConstraintViolation, rec.Kind)
			assert.False(t, rec.Retryable)
			assert.Equal(t, tt.message, rec.Message)
			assert.NotContains(t, rec.Message, "SQLSTATE")
		})
	}
}

func TestClassify_ValidationPassthrough(t *testing.T) {
	err := NewValidationError("price", "price must be greater than 0")
	rec := Classify(err)

	assert.Equal(t, KindValidationError, rec.Kind)
	assert.False(t, rec.Retryable)
	assert.Equal(t, err.Error(), rec.Message)
}

func TestClassify_ClientFacingDomainError(t *testing.T) {
	err := NewDomainError("BAD_REQUEST", http.StatusBadRequest, "title is required", nil)
	rec := Classify(err)
	assert.Equal(t, KindValidationError, rec.Kind)
}

func TestClassify_BusinessLogic(t *testing.T) {
	err := fmt.Errorf("%w: 978-0-13-468599-1", ErrBookAlreadyExists)
	rec := Classify(err)

	assert.Equal(t, KindBusinessLogicError, rec.Kind)
	assert.False(t, rec.Retryable)
	assert.Equal(t, err.Error(), rec.Message)
}

func TestClassify_UnknownNeverLeaks(t *testing.T) {
	err := errors.New("pq: internal table xyz_partition_7f3a corrupted at page 1234")
	rec := Classify(err)

	assert.Equal(t, KindUnknown, rec.Kind)
	assert.False(t, rec.Retryable)
	assert.NotContains(t, rec.Message, "xyz_partition")
}

func TestRecord_DomainError(t *testing.T) {
	dl := Classify(errors.New("deadlock detected")).DomainError()
	var de *DomainError
	require.ErrorAs(t, dl, &de)
	assert.Equal(t, "CONFLICT", de.Code)
	assert.Equal(t, http.StatusConflict, de.Status)

	to := Classify(errors.New("operation timeout")).DomainError()
	require.ErrorAs(t, to, &de)
	assert.Equal(t, http.StatusRequestTimeout, de.Status)

	conn := Classify(errors.New("connection refused")).DomainError()
	require.ErrorAs(t, conn, &de)
	assert.Equal(t, http.StatusServiceUnavailable, de.Status)

	// Validation errors surface unchanged.
	ve := NewValidationError("title", "title is required")
	assert.Same(t, error(ve), Classify(ve).DomainError())

	unknown := Classify(errors.New("something odd")).DomainError()
	require.ErrorAs(t, unknown, &de)
	assert.Equal(t, http.StatusInternalServerError, de.Status)
	assert.Equal(t, "an internal error occurred", de.Message)
}

func TestClassify_Deterministic(t *testing.T) {
	err := errors.New("deadlock detected")
	first := Classify(err)
	second := Classify(err)
	assert.Equal(t, first, second)
}
