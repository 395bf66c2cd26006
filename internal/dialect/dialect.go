// Package dialect provides a unified interface over the three backends
// spec.md §1 names: SQLite, MySQL, and PostgreSQL. It mirrors the teacher's
// ctor-registry (internal/dialect/dialect.go in Pieczasz-smf) so that each
// backend sub-package self-registers via an init() blank import, the way
// internal/dialect/mysql does for the migration tool.
package dialect

import (
	"fmt"
	"sync"

	"github.com/FxRayHughes/ptcmapper/internal/entity"
)

// Type identifies a supported SQL dialect.
type Type string

const (
	SQLite     Type = "sqlite"
	MySQL      Type = "mysql"
	PostgreSQL Type = "postgresql"
)

// KeysBehavior documents how a backend reports generated keys for a batch
// insert (spec.md §4.3 / Non-goals: no cross-backend parity promised here).
type KeysBehavior string

const (
	KeysAllRows  KeysBehavior = "all_rows"  // MySQL, PostgreSQL
	KeysLastOnly KeysBehavior = "last_only" // SQLite
)

// Dialect is the closed per-backend interface spec.md §4.3 describes:
// identifier quoting, type-name mapping, LIMIT/OFFSET syntax, upsert
// syntax, generated-keys behavior, and CREATE SCHEMA.
type Dialect interface {
	Name() Type

	// Quote quotes a single identifier with the dialect-appropriate
	// character (backtick for MySQL/SQLite, double-quote for PostgreSQL).
	Quote(identifier string) string

	// ColumnType renders the SQL type text for col, honoring any
	// @ColumnType/@Length override recorded on the Column.
	ColumnType(col *entity.Column) string

	// Placeholder renders the bound-parameter placeholder for the
	// 1-based position (always "?" except PostgreSQL's "$n").
	Placeholder(position int) string

	// LimitOffset renders the trailing "LIMIT n OFFSET m" clause.
	// offset < 0 means no OFFSET clause.
	LimitOffset(limit, offset int) string

	// UpsertSQL renders an "INSERT ... ON CONFLICT/DUPLICATE KEY" clause
	// appended after a base INSERT statement's VALUES list, given the
	// conflict columns and the columns to overwrite on conflict.
	UpsertSQL(conflictCols, updateCols []string) string

	// GeneratedKeysBehavior documents the batch-insert key-retrieval limit.
	GeneratedKeysBehavior() KeysBehavior

	// ReturningClause renders a trailing "RETURNING col" clause for
	// dialects whose driver does not implement sql.Result.LastInsertId
	// (pgx's stdlib driver returns an error for it), or "" for dialects
	// that support LastInsertId natively (MySQL, SQLite).
	ReturningClause(column string) string

	// CreateSchemaIfNotExists renders a "CREATE SCHEMA IF NOT EXISTS"
	// statement, or "" for dialects without schema namespaces (SQLite).
	CreateSchemaIfNotExists(schema string) string

	// OpenDSN builds a database/sql-compatible data source name from
	// connection coordinates (spec.md §6).
	OpenDSN(cfg ConnParams) string

	// DriverName is the name registered with database/sql.Register by
	// this dialect's driver package (e.g. "mysql", "sqlite3", "pgx").
	DriverName() string
}

// ConnParams carries the connection coordinates spec.md §6 recognizes.
type ConnParams struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Schema   string // PostgreSQL only
	Path     string // SQLite file path
}

var (
	mu       sync.RWMutex
	registry = map[Type]func() Dialect{}
)

// Register installs the constructor for a dialect. Backend sub-packages
// call this from their own init().
func Register(t Type, ctor func() Dialect) {
	mu.Lock()
	defer mu.Unlock()
	registry[t] = ctor
}

// Get constructs a fresh Dialect instance for t.
func Get(t Type) (Dialect, error) {
	mu.RLock()
	ctor, ok := registry[t]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("dialect: %q is not registered (missing blank import?)", t)
	}
	return ctor(), nil
}
