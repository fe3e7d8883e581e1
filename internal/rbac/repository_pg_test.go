package rbac

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTx records savepoint traffic. Queries fail with queryErr.
type fakeTx struct {
	pgx.Tx
	queryErr   error
	savepoints []*fakeTx
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	sp := &fakeTx{queryErr: f.queryErr}
	f.savepoints = append(f.savepoints, sp)
	return sp, nil
}

func (f *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, f.queryErr
}

func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(ctx context.Context) error {
	f.rolledBack = true
	return nil
}

func TestListUserOverridesMissingTableInsideTx(t *testing.T) {
	tx := &fakeTx{queryErr: &pgconn.PgError{Code: "42P01"}}
	repo := &PGRepository{db: tx, tx: tx}

	_, err := repo.ListUserOverrides(context.Background(), 7)
	require.ErrorIs(t, err, ErrOverridesUnavailable)

	require.Len(t, tx.savepoints, 1)
	assert.True(t, tx.savepoints[0].rolledBack)
	assert.False(t, tx.rolledBack)
	assert.False(t, tx.committed)
}
