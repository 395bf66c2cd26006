package pool_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/FxRayHughes/ptcmapper/internal/dialect/sqlite"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
	"github.com/FxRayHughes/ptcmapper/internal/pool"
)

var errBoom = errors.New("boom")

func openMemDB(t *testing.T) *sql.DB {
	t.Helper()
	d, err := dialect.Get(dialect.SQLite)
	require.NoError(t, err)
	p := pool.New()
	db, err := p.Open(context.Background(), d, d.OpenDSN(dialect.ConnParams{}))
	require.NoError(t, err)
	return db
}

func TestTransactionCommitsOnSuccess(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)")
	require.NoError(t, err)

	err = pool.Transaction(ctx, db, func(ctx context.Context) error {
		exec := pool.Conn(ctx, db)
		_, err := exec.ExecContext(ctx, "INSERT INTO t (v) VALUES (?)", "a")
		return err
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(1) FROM t").Scan(&count))
	require.Equal(t, 1, count)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)")
	require.NoError(t, err)

	err = pool.Transaction(ctx, db, func(ctx context.Context) error {
		exec := pool.Conn(ctx, db)
		if _, err := exec.ExecContext(ctx, "INSERT INTO t (v) VALUES (?)", "a"); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(1) FROM t").Scan(&count))
	require.Equal(t, 0, count)
}

func TestNestedTransactionReusesOuterHandle(t *testing.T) {
	db := openMemDB(t)
	ctx := context.Background()

	_, err := db.ExecContext(ctx, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)")
	require.NoError(t, err)

	err = pool.Transaction(ctx, db, func(outerCtx context.Context) error {
		outerTx, ok := pool.CurrentTx(outerCtx)
		require.True(t, ok)

		return pool.Transaction(outerCtx, db, func(innerCtx context.Context) error {
			innerTx, ok := pool.CurrentTx(innerCtx)
			require.True(t, ok)
			require.Same(t, outerTx, innerTx)
			return nil
		})
	})
	require.NoError(t, err)
}

func TestConnWithoutTransactionReturnsDB(t *testing.T) {
	db := openMemDB(t)
	exec := pool.Conn(context.Background(), db)
	require.Same(t, db, exec)
}
