package schema_test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
)

func openMem(t *testing.T, d dialect.Dialect) (*sql.DB, error) {
	t.Helper()
	db, err := sql.Open(d.DriverName(), d.OpenDSN(dialect.ConnParams{}))
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(context.Background()); err != nil {
		return nil, err
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, nil
}
