package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert role: %w", &pgconn.PgError{Code: "23505"})
	missing := &pgconn.PgError{Code: "42P01"}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUndefinedTable(unique))
	assert.True(t, IsUndefinedTable(missing))
	assert.False(t, IsUniqueViolation(errors.New("boom")))
	assert.False(t, IsUndefinedTable(nil))
}
