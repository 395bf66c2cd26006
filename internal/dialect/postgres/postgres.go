// Package postgres implements dialect.Dialect for PostgreSQL, backed by
// jackc/pgx's database/sql-compatible stdlib driver — the driver
// xaas-cloud-genai-toolbox's postgres source also registers under.
package postgres

import (
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
	"github.com/FxRayHughes/ptcmapper/internal/entity"
)

func init() {
	dialect.Register(dialect.PostgreSQL, func() dialect.Dialect { return New() })
}

// Dialect implements dialect.Dialect for PostgreSQL.
type Dialect struct{}

// New constructs a PostgreSQL dialect instance.
func New() *Dialect { return &Dialect{} }

func (d *Dialect) Name() dialect.Type { return dialect.PostgreSQL }

func (d *Dialect) Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func (d *Dialect) ColumnType(col *entity.Column) string {
	t := col.PostgreType
	if t == "" {
		t = "VARCHAR"
	}
	if strings.EqualFold(t, "VARCHAR") && col.Length > 0 {
		return fmt.Sprintf("VARCHAR(%d)", col.Length)
	}
	return t
}

// Placeholder renders PostgreSQL's positional "$n" placeholder, the one
// real syntactic divergence spec.md §6 calls out by name.
func (d *Dialect) Placeholder(position int) string {
	return fmt.Sprintf("$%d", position)
}

func (d *Dialect) LimitOffset(limit, offset int) string {
	if offset < 0 {
		return fmt.Sprintf("LIMIT %d", limit)
	}
	return fmt.Sprintf("LIMIT %d OFFSET %d", limit, offset)
}

func (d *Dialect) UpsertSQL(conflictCols, updateCols []string) string {
	var b strings.Builder
	b.WriteString("ON CONFLICT (")
	b.WriteString(strings.Join(quoteAll(d, conflictCols), ", "))
	b.WriteString(") DO UPDATE SET ")
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		q := d.Quote(c)
		sets[i] = q + " = excluded." + q
	}
	b.WriteString(strings.Join(sets, ", "))
	return b.String()
}

func (d *Dialect) GeneratedKeysBehavior() dialect.KeysBehavior { return dialect.KeysAllRows }

// ReturningClause renders "RETURNING col": pgx's stdlib driver does not
// implement sql.Result.LastInsertId, so generated keys must be read back
// explicitly via RETURNING and QueryRowContext instead of ExecContext.
func (d *Dialect) ReturningClause(column string) string {
	return "RETURNING " + d.Quote(column)
}

func (d *Dialect) CreateSchemaIfNotExists(schema string) string {
	if schema == "" {
		return ""
	}
	return "CREATE SCHEMA IF NOT EXISTS " + d.Quote(schema)
}

func (d *Dialect) OpenDSN(cfg dialect.ConnParams) string {
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", cfg.User, cfg.Password, cfg.Host, port, cfg.Database)
	if cfg.Schema != "" {
		dsn += "&search_path=" + cfg.Schema
	}
	return dsn
}

func (d *Dialect) DriverName() string { return "pgx" }

func quoteAll(d *Dialect, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = d.Quote(c)
	}
	return out
}
