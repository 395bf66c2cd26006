package postgres

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
	"github.com/FxRayHughes/ptcmapper/internal/entity"
)

func TestColumnTypeAppliesLength(t *testing.T) {
	d := New()
	col := &entity.Column{PostgreType: "VARCHAR", Length: 32}
	require.Equal(t, "VARCHAR(32)", d.ColumnType(col))
}

func TestPlaceholderUsesDollarSyntax(t *testing.T) {
	d := New()
	require.Equal(t, "$1", d.Placeholder(1))
	require.Equal(t, "$3", d.Placeholder(3))
}

func TestUpsertSQLUsesOnConflict(t *testing.T) {
	d := New()
	got := d.UpsertSQL([]string{"id"}, []string{"name"})
	require.Equal(t, `ON CONFLICT ("id") DO UPDATE SET "name" = excluded."name"`, got)
}

// TestReturningClauseIsRequired guards against a regression where Insert
// relied on sql.Result.LastInsertId, which pgx's stdlib driver does not
// implement — every auto-increment insert would fail on this dialect
// without a RETURNING clause to read the generated key back explicitly.
func TestReturningClauseIsRequired(t *testing.T) {
	d := New()
	require.Equal(t, `RETURNING "id"`, d.ReturningClause("id"))
}

func TestOpenDSNDefaultsPort(t *testing.T) {
	d := New()
	dsn := d.OpenDSN(dialect.ConnParams{Host: "db.internal", User: "ptc", Password: "secret", Database: "ptcdb"})
	require.Contains(t, dsn, "db.internal:5432")
	require.Contains(t, dsn, "/ptcdb")
}

func TestDriverName(t *testing.T) {
	require.Equal(t, "pgx", New().DriverName())
}
