// Package mysql implements dialect.Dialect for MySQL, grounded on the
// teacher's internal/dialect/mysql package (Pieczasz-smf) — same
// ctor-registry self-registration, same backtick quoting, same driver.
package mysql

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
	"github.com/FxRayHughes/ptcmapper/internal/entity"
)

func init() {
	dialect.Register(dialect.MySQL, func() dialect.Dialect { return New() })
}

// Dialect implements dialect.Dialect for MySQL.
type Dialect struct{}

// New constructs a MySQL dialect instance.
func New() *Dialect { return &Dialect{} }

func (d *Dialect) Name() dialect.Type { return dialect.MySQL }

func (d *Dialect) Quote(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

func (d *Dialect) ColumnType(col *entity.Column) string {
	t := col.MySQLType
	if t == "" {
		t = "VARCHAR(64)"
	}
	if strings.EqualFold(t, "VARCHAR") && col.Length > 0 {
		return fmt.Sprintf("VARCHAR(%d)", col.Length)
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

func (d *Dialect) ReturningClause(string) string { return "" }

func (d *Dialect) UpsertSQL(_, updateCols []string) string {
	var b strings.Builder
	b.WriteString("ON DUPLICATE KEY UPDATE ")
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		q := d.Quote(c)
		sets[i] = q + " = VALUES(" + q + ")"
	}
	b.WriteString(strings.Join(sets, ", "))
	return b.String()
}

func (d *Dialect) GeneratedKeysBehavior() dialect.KeysBehavior { return dialect.KeysAllRows }

func (d *Dialect) CreateSchemaIfNotExists(string) string { return "" }

func (d *Dialect) OpenDSN(cfg dialect.ConnParams) string {
	port := cfg.Port
	if port == 0 {
		port = 3306
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		cfg.User, cfg.Password, cfg.Host, port, cfg.Database)
}

func (d *Dialect) DriverName() string { return "mysql" }
