// Package sqlite implements dialect.Dialect for SQLite, backed by the
// pure-Go ncruces/go-sqlite3 driver (no cgo), the same driver choice the
// untoldecay-BeadsLog / steveyegge-beads repos in the retrieval pack make
// for their own embedded storage.
package sqlite

import (
	"fmt"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
	"github.com/FxRayHughes/ptcmapper/internal/entity"
)

func init() {
	dialect.Register(dialect.SQLite, func() dialect.Dialect { return New() })
}

// Dialect implements dialect.Dialect for SQLite.
type Dialect struct{}

// New constructs a SQLite dialect instance.
func New() *Dialect { return &Dialect{} }

func (d *Dialect) Name() dialect.Type { return dialect.SQLite }

func (d *Dialect) Quote(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

func (d *Dialect) ColumnType(col *entity.Column) string {
	t := col.SQLiteType
	if t == "" {
		t = "TEXT"
	}
	return t
}

func (d *Dialect) Placeholder(int) string { return "?" }

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

func (d *Dialect) GeneratedKeysBehavior() dialect.KeysBehavior { return dialect.KeysLastOnly }

func (d *Dialect) ReturningClause(string) string { return "" }

func (d *Dialect) CreateSchemaIfNotExists(string) string { return "" }

func (d *Dialect) OpenDSN(cfg dialect.ConnParams) string {
	if cfg.Path == "" {
		return "file::memory:?cache=shared"
	}
	return "file:" + cfg.Path
}

func (d *Dialect) DriverName() string { return "sqlite3" }

func quoteAll(d *Dialect, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = d.Quote(c)
	}
	return out
}
