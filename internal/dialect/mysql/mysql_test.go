package mysql

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
	"github.com/FxRayHughes/ptcmapper/internal/entity"
)

func TestColumnTypeAppliesLength(t *testing.T) {
	d := New()
	col := &entity.Column{MySQLType: "VARCHAR", Length: 32}
	require.Equal(t, "VARCHAR(32)", d.ColumnType(col))
}

func TestUpsertSQLUsesOnDuplicateKey(t *testing.T) {
	d := New()
	got := d.UpsertSQL(nil, []string{"world", "x"})
	require.Equal(t, "ON DUPLICATE KEY UPDATE `world` = VALUES(`world`), `x` = VALUES(`x`)", got)
}

func TestOpenDSNDefaultsPort(t *testing.T) {
	d := New()
	dsn := d.OpenDSN(dialect.ConnParams{Host: "db.internal", User: "root", Password: "secret", Database: "ptc"})
	require.Contains(t, dsn, "tcp(db.internal:3306)")
}

func TestDriverName(t *testing.T) {
	require.Equal(t, "mysql", New().DriverName())
}
