package rowops

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
	"github.com/FxRayHughes/ptcmapper/internal/entity"
	"github.com/FxRayHughes/ptcmapper/internal/pool"
	"github.com/FxRayHughes/ptcmapper/internal/typeregistry"
)

// InsertColumns returns the columns an INSERT statement binds: every
// declared column except a synthetic/auto-increment key, which the backend
// assigns (spec.md §4.7 "insert(e): persist all columns of e", read
// together with C3's generated-keys behavior).
func InsertColumns(desc *entity.Descriptor) []*entity.Column {
	out := make([]*entity.Column, 0, len(desc.Columns))
	for _, c := range desc.Columns {
		if c.IsAutoKey {
			continue
		}
		out = append(out, c)
	}
	return out
}

// BuildInsertSQL renders "INSERT INTO table (cols, fkCols...) VALUES (?, ...)".
// extraCols lets callers (internal/link) append link foreign-key columns,
// which are not part of desc.Columns, after the entity's own columns.
func BuildInsertSQL(d dialect.Dialect, desc *entity.Descriptor, extraCols []string) (string, []*entity.Column) {
	cols := InsertColumns(desc)
	names := make([]string, 0, len(cols)+len(extraCols))
	for _, c := range cols {
		names = append(names, d.Quote(c.ColumnName))
	}
	for _, name := range extraCols {
		names = append(names, d.Quote(name))
	}
	phs := make([]string, len(names))
	for i := range phs {
		phs[i] = d.Placeholder(i + 1)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.Quote(desc.TableName), strings.Join(names, ", "), strings.Join(phs, ", "))
	return sql, cols
}

// Insert executes a single-row INSERT for val against desc's table. extra
// supplies values for any link foreign-key columns (column name -> value),
// already resolved by internal/link's cascade save. When desc has an
// auto-increment primary key and d requires RETURNING to report it (pgx's
// stdlib driver does not implement sql.Result.LastInsertId), the generated
// key is read back via QueryRowContext and the returned sql.Result reports
// it through LastInsertId as usual, so callers never need to branch on
// dialect themselves.
func Insert(ctx context.Context, conn pool.Executor, d dialect.Dialect, reg *typeregistry.Registry, desc *entity.Descriptor, val reflect.Value, extra map[string]any) (sql.Result, error) {
	extraNames := sortedKeys(extra)
	stmt, cols := BuildInsertSQL(d, desc, extraNames)
	args := make([]any, 0, len(cols)+len(extraNames))
	for _, c := range cols {
		v, err := SerializeColumn(reg, c, val)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	for _, name := range extraNames {
		args = append(args, extra[name])
	}

	if desc.PrimaryKey != nil && desc.PrimaryKey.IsAutoKey {
		if returning := d.ReturningClause(desc.PrimaryKey.ColumnName); returning != "" {
			var id int64
			row := conn.QueryRowContext(ctx, stmt+" "+returning, args...)
			if err := row.Scan(&id); err != nil {
				return nil, err
			}
			return generatedKeyResult{id: id}, nil
		}
	}

	return conn.ExecContext(ctx, stmt, args...)
}

// generatedKeyResult implements sql.Result for Insert's RETURNING path,
// reporting the key scanned back from the RETURNING clause.
type generatedKeyResult struct{ id int64 }

func (r generatedKeyResult) LastInsertId() (int64, error) { return r.id, nil }
func (r generatedKeyResult) RowsAffected() (int64, error) { return 1, nil }

// BuildUpdateSQL renders "UPDATE table SET mutable = ?, fkCol = ? WHERE locator = ?".
func BuildUpdateSQL(d dialect.Dialect, desc *entity.Descriptor, extraCols []string) (string, []*entity.Column, []*entity.Column) {
	setCols := desc.MutableColumns()
	locCols := desc.LocatorColumns()

	sets := make([]string, 0, len(setCols)+len(extraCols))
	for _, c := range setCols {
		sets = append(sets, d.Quote(c.ColumnName))
	}
	for _, name := range extraCols {
		sets = append(sets, d.Quote(name))
	}
	for i, s := range sets {
		sets[i] = fmt.Sprintf("%s = %s", s, d.Placeholder(i+1))
	}
	wheres := make([]string, len(locCols))
	for i, c := range locCols {
		wheres[i] = fmt.Sprintf("%s = %s", d.Quote(c.ColumnName), d.Placeholder(len(sets)+i+1))
	}

	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s", d.Quote(desc.TableName), strings.Join(sets, ", "), strings.Join(wheres, " AND "))
	return stmt, setCols, locCols
}

// Update executes a single-row UPDATE for val, locating it by primary (and
// secondary, if any) key (spec.md §4.7 "update(e)"). extra supplies values
// for any link foreign-key columns, as with Insert.
func Update(ctx context.Context, conn pool.Executor, d dialect.Dialect, reg *typeregistry.Registry, desc *entity.Descriptor, val reflect.Value, extra map[string]any) (sql.Result, error) {
	extraNames := sortedKeys(extra)
	stmt, setCols, locCols := BuildUpdateSQL(d, desc, extraNames)
	args := make([]any, 0, len(setCols)+len(extraNames)+len(locCols))
	for _, c := range setCols {
		v, err := SerializeColumn(reg, c, val)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	for _, name := range extraNames {
		args = append(args, extra[name])
	}
	for _, c := range locCols {
		v, err := SerializeColumn(reg, c, val)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	return conn.ExecContext(ctx, stmt, args...)
}

// upsertColumns is InsertColumns, except a non-zero auto-increment primary
// key is kept rather than dropped: Upsert's ON CONFLICT/DUPLICATE KEY target
// always includes the primary key (desc.LocatorColumns' first entry), and a
// conflict on it can only ever fire if the INSERT actually supplies that
// value — which is exactly the case where val was previously fetched or
// inserted and already carries its assigned key. A zero-valued (unset,
// not-yet-inserted) auto key is still omitted so the backend assigns one.
func upsertColumns(desc *entity.Descriptor, val reflect.Value) []*entity.Column {
	out := make([]*entity.Column, 0, len(desc.Columns))
	for _, c := range desc.Columns {
		if c.IsAutoKey {
			if len(c.FieldIndex) == 0 || val.FieldByIndex(c.FieldIndex).IsZero() {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// Upsert executes an INSERT ... ON CONFLICT/DUPLICATE KEY UPDATE for val,
// using desc's locator columns as the conflict target and its mutable
// columns as the overwrite set (spec.md §4.7 "upsertBatch", C3's per-dialect
// UpsertSQL).
func Upsert(ctx context.Context, conn pool.Executor, d dialect.Dialect, reg *typeregistry.Registry, desc *entity.Descriptor, val reflect.Value, extra map[string]any) (sql.Result, error) {
	extraNames := sortedKeys(extra)
	cols := upsertColumns(desc, val)
	names := make([]string, 0, len(cols)+len(extraNames))
	for _, c := range cols {
		names = append(names, d.Quote(c.ColumnName))
	}
	for _, name := range extraNames {
		names = append(names, d.Quote(name))
	}
	phs := make([]string, len(names))
	for i := range phs {
		phs[i] = d.Placeholder(i + 1)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", d.Quote(desc.TableName), strings.Join(names, ", "), strings.Join(phs, ", "))

	conflictCols := make([]string, len(desc.LocatorColumns()))
	for i, c := range desc.LocatorColumns() {
		conflictCols[i] = c.ColumnName
	}
	updateCols := make([]string, 0, len(desc.MutableColumns()))
	for _, c := range desc.MutableColumns() {
		updateCols = append(updateCols, c.ColumnName)
	}
	stmt += " " + d.UpsertSQL(conflictCols, updateCols)

	args := make([]any, 0, len(cols)+len(extraNames))
	for _, c := range cols {
		v, err := SerializeColumn(reg, c, val)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
	}
	for _, name := range extraNames {
		args = append(args, extra[name])
	}
	return conn.ExecContext(ctx, stmt, args...)
}

func sortedKeys(m map[string]any) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// LocatorArgs extracts the bound values for desc.LocatorColumns() out of val.
func LocatorArgs(reg *typeregistry.Registry, desc *entity.Descriptor, val reflect.Value) ([]any, error) {
	locCols := desc.LocatorColumns()
	args := make([]any, len(locCols))
	for i, c := range locCols {
		v, err := SerializeColumn(reg, c, val)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// LocatorWhereSQL renders "col1 = ? AND col2 = ? ..." for desc's locator
// columns, with placeholders starting at startPos (1-based).
func LocatorWhereSQL(d dialect.Dialect, desc *entity.Descriptor, startPos int) string {
	locCols := desc.LocatorColumns()
	clauses := make([]string, len(locCols))
	for i, c := range locCols {
		clauses[i] = fmt.Sprintf("%s = %s", d.Quote(c.ColumnName), d.Placeholder(startPos+i))
	}
	return strings.Join(clauses, " AND ")
}

// PKWhereSQL renders "pkCol = ?" for desc's primary key, with the
// placeholder at startPos (1-based).
func PKWhereSQL(d dialect.Dialect, desc *entity.Descriptor, startPos int) string {
	return fmt.Sprintf("%s = %s", d.Quote(desc.PrimaryKey.ColumnName), d.Placeholder(startPos))
}

// Exists reports whether any row matches whereSQL/args against desc's table.
func Exists(ctx context.Context, conn pool.Executor, d dialect.Dialect, desc *entity.Descriptor, whereSQL string, args []any) (bool, error) {
	q := fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE %s LIMIT 1", d.Quote(desc.TableName), whereSQL)
	var n int64
	if err := conn.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteWhere deletes every row matching whereSQL/args from desc's table.
func DeleteWhere(ctx context.Context, conn pool.Executor, d dialect.Dialect, desc *entity.Descriptor, whereSQL string, args []any) (sql.Result, error) {
	q := fmt.Sprintf("DELETE FROM %s WHERE %s", d.Quote(desc.TableName), whereSQL)
	return conn.ExecContext(ctx, q, args...)
}

// SelectColumns returns the ColumnName projection for desc's own columns
// (scalar plus any flattened-collection columns; link FK columns and
// non-flattened collection child tables are handled separately).
func SelectColumns(desc *entity.Descriptor) []string {
	names := make([]string, len(desc.Columns))
	for i, c := range desc.Columns {
		names[i] = c.ColumnName
	}
	return names
}

// ScanRow maps rowCols/rawVals (as produced by a *sql.Rows Columns()/Scan()
// round trip) onto val's fields, matching by ColumnName against desc's own
// columns. Unknown columns (e.g. a join's link-namespaced columns) are
// silently skipped; callers that need those hand them to internal/link.
func ScanRow(reg *typeregistry.Registry, desc *entity.Descriptor, rowCols []string, rawVals []any, val reflect.Value) error {
	for i, name := range rowCols {
		col := desc.FindColumnByName(name)
		if col == nil {
			continue
		}
		if err := DeserializeColumn(reg, col, val, rawVals[i]); err != nil {
			return err
		}
	}
	return nil
}
