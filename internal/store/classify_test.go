package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"storefront/internal/apperr"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestClassifyErrorSQLState(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"rls with check", &pq.Error{Code: "42501", Message: `new row violates row-level security policy for table "products"`}, apperr.Authorization},
		{"missing grant", &pq.Error{Code: "42501", Message: "permission denied for table products"}, apperr.Authorization},
		{"check violation", &pq.Error{Code: "23514", Message: `new row for relation "products" violates check constraint`}, apperr.ClientInput},
		{"invalid uuid", &pq.Error{Code: "22P02", Message: "invalid input syntax for type uuid"}, apperr.ClientInput},
		{"unique violation", &pq.Error{Code: "23505", Message: "duplicate key value"}, apperr.Conflict},
		{"connection failure", &pq.Error{Code: "08006", Message: "connection failure"}, apperr.Transient},
		{"query canceled", &pq.Error{Code: "57014", Message: "canceling statement due to user request"}, apperr.Transient},
		{"undefined table", &pq.Error{Code: "42P01", Message: `relation "products" does not exist`}, apperr.Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyError("op", fmt.Errorf("wrapped: %w", tt.err))
			assert.Equal(t, tt.want, apperr.KindOf(err))
		})
	}
}

func TestClassifyErrorCodeBeatsMessage(t *testing.T) {
	// A validation failure whose text happens to mention permissions must not
	// be treated as an authorization denial.
	err := ClassifyError("op", &pq.Error{Code: "23514", Message: "check constraint permission denied_flag"})
	assert.Equal(t, apperr.ClientInput, apperr.KindOf(err))
}

func TestClassifyErrorHeuristic(t *testing.T) {
	err := ClassifyError("op", errors.New("Permission denied for table products"))
	assert.Equal(t, apperr.Authorization, apperr.KindOf(err))

	err = ClassifyError("op", errors.New("something else"))
	assert.Equal(t, apperr.Unknown, apperr.KindOf(err))
}

func TestClassifyErrorContextAndNoRows(t *testing.T) {
	assert.Equal(t, apperr.Transient, apperr.KindOf(ClassifyError("op", context.DeadlineExceeded)))
	assert.Equal(t, apperr.NotFound, apperr.KindOf(ClassifyError("op", sql.ErrNoRows)))
	assert.NoError(t, ClassifyError("op", nil))
}

func TestClassifyErrorKeepsClassification(t *testing.T) {
	original := apperr.New(apperr.NotFound, "", "cart item not found")
	assert.Same(t, original, ClassifyError("op", original))
}

func TestUnmatchedUpdateError(t *testing.T) {
	hidden := UnmatchedUpdateError("Store.SaveProduct", "products", true)
	assert.Equal(t, apperr.Authorization, apperr.KindOf(hidden))
	assert.Contains(t, hidden.Error(), "row-level security")

	missing := UnmatchedUpdateError("Store.SaveProduct", "products", false)
	assert.Equal(t, apperr.NotFound, apperr.KindOf(missing))

	// already classified, so the store boundary keeps the kind
	assert.Same(t, hidden, ClassifyError("Store.SaveProduct", hidden))
}
