package mapper

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"github.com/FxRayHughes/ptcmapper/internal/pool"
	"github.com/FxRayHughes/ptcmapper/internal/query"
	"github.com/FxRayHughes/ptcmapper/internal/rowops"
)

// Count returns the number of rows matching pred (spec.md §4.7 "count").
func (m *Mapper[T]) Count(ctx context.Context, pred query.Predicate) (int64, error) {
	db, err := m.ensure(ctx)
	if err != nil {
		return 0, err
	}
	conn := pool.Conn(ctx, db)

	var args []any
	stmt := fmt.Sprintf("SELECT COUNT(1) FROM %s", m.d.Quote(m.desc.TableName))
	if pred != nil {
		stmt += " WHERE " + pred.Build(m.d, &args)
	}
	var n int64
	err = conn.QueryRowContext(ctx, stmt, args...).Scan(&n)
	return n, err
}

// Sort returns up to n rows ordered by col ascending (spec.md §4.7 "sort").
// Ties are broken by the backend's default ordering.
func (m *Mapper[T]) Sort(ctx context.Context, col string, n int) ([]*T, error) {
	return m.sorted(ctx, col, false, n)
}

// SortDescending is Sort ordered descending (spec.md §4.7 "sortDescending").
func (m *Mapper[T]) SortDescending(ctx context.Context, col string, n int) ([]*T, error) {
	return m.sorted(ctx, col, true, n)
}

func (m *Mapper[T]) sorted(ctx context.Context, col string, desc bool, n int) ([]*T, error) {
	db, err := m.ensure(ctx)
	if err != nil {
		return nil, err
	}
	conn := pool.Conn(ctx, db)

	stmt, args := m.selectSQL(nil, []query.OrderTerm{{Column: col, Desc: desc}}, n, -1, true)
	return m.queryCached("sort", stmt, args, func() ([]*T, error) {
		rows, err := conn.QueryContext(ctx, stmt, args...)
		if err != nil {
			return nil, err
		}
		return m.materialize(ctx, conn, rows)
	})
}

// FindPage returns the 1-based page of the given size plus the total row
// count (spec.md §4.7 "findPage"). A page beyond the last is an empty list
// with total still reflecting the full count.
func (m *Mapper[T]) FindPage(ctx context.Context, page, size int) ([]*T, int64, error) {
	return m.SortPage(ctx, m.desc.PrimaryKey.ColumnName, false, page, size)
}

// SortPage is FindPage with an explicit ORDER BY column and direction
// (spec.md §4.7 "sortPage").
func (m *Mapper[T]) SortPage(ctx context.Context, col string, desc bool, page, size int) ([]*T, int64, error) {
	db, err := m.ensure(ctx)
	if err != nil {
		return nil, 0, err
	}
	conn := pool.Conn(ctx, db)

	total, err := m.Count(ctx, nil)
	if err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * size
	stmt, args := m.selectSQL(nil, []query.OrderTerm{{Column: col, Desc: desc}}, size, offset, true)
	results, err := m.queryCached("sortPage", stmt, args, func() ([]*T, error) {
		rows, err := conn.QueryContext(ctx, stmt, args...)
		if err != nil {
			return nil, err
		}
		return m.materialize(ctx, conn, rows)
	})
	return results, total, err
}

// Cursor is a streaming, connection-holding read positioned by SortCursor.
// It must be Closed on every exit path once exhausted or abandoned (spec.md
// §5: "scoped-acquisition semantics with guaranteed release").
type Cursor[T any] struct {
	rows *sql.Rows
	m    *Mapper[T]
	conn pool.Executor
}

// SortCursor opens a cursor ordered by col, requiring an active transaction
// on ctx (spec.md §5: cursor operations fail predictably without one).
func (m *Mapper[T]) SortCursor(ctx context.Context, col string, desc bool) (*Cursor[T], error) {
	if _, ok := pool.CurrentTx(ctx); !ok {
		return nil, ErrNoTransaction
	}
	db, err := m.ensure(ctx)
	if err != nil {
		return nil, err
	}
	conn := pool.Conn(ctx, db)

	stmt, args := m.selectSQL(nil, []query.OrderTerm{{Column: col, Desc: desc}}, 0, 0, false)
	rows, err := conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	return &Cursor[T]{rows: rows, m: m, conn: conn}, nil
}

// Next advances the cursor and returns the next row, or ok=false once
// exhausted.
func (c *Cursor[T]) Next(ctx context.Context) (result *T, ok bool, err error) {
	if !c.rows.Next() {
		return nil, false, c.rows.Err()
	}

	rowCols, err := c.rows.Columns()
	if err != nil {
		return nil, false, err
	}
	dest := rowops.ScanDest(len(rowCols))
	if err := c.rows.Scan(dest...); err != nil {
		return nil, false, err
	}
	raw := rowops.DerefDest(dest)

	ptr := reflect.New(c.m.desc.Type)
	if err := c.m.linkPlan.Hydrate(c.m.reg, rowCols, raw, ptr.Elem()); err != nil {
		return nil, false, err
	}

	pk, err := c.m.pkOf(ptr.Elem())
	if err != nil {
		return nil, false, err
	}
	for _, cf := range c.m.desc.CollectionFields {
		if cf.Flattened {
			continue
		}
		grouped, err := c.m.coll.FetchForParents(ctx, c.conn, c.m.d, c.m.desc, cf, []any{pk})
		if err != nil {
			return nil, false, err
		}
		fv := ptr.Elem().FieldByIndex(cf.FieldIndex)
		if err := c.m.coll.ApplyToField(cf, grouped[beanKey(pk)], fv); err != nil {
			return nil, false, err
		}
	}

	return ptr.Interface().(*T), true, nil
}

// Close releases the cursor's underlying rows handle.
func (c *Cursor[T]) Close() error { return c.rows.Close() }

// Query runs a caller-assembled query.Query as an escape hatch, binding its
// parameters through C4 (spec.md §4.7 "query"). It scans only the scalar
// columns named in desc; link/collection hydration is the caller's concern
// for custom projections.
func (m *Mapper[T]) Query(ctx context.Context, q *query.Query) ([]*T, error) {
	db, err := m.ensure(ctx)
	if err != nil {
		return nil, err
	}
	conn := pool.Conn(ctx, db)

	stmt, args := q.Build(m.d)
	return m.queryCached("query", stmt, args, func() ([]*T, error) {
		rows, err := conn.QueryContext(ctx, stmt, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		rowCols, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		var out []*T
		for rows.Next() {
			dest := rowops.ScanDest(len(rowCols))
			if err := rows.Scan(dest...); err != nil {
				return nil, err
			}
			raw := rowops.DerefDest(dest)
			ptr := reflect.New(m.desc.Type)
			if err := rowops.ScanRow(m.reg, m.desc, rowCols, raw, ptr.Elem()); err != nil {
				return nil, err
			}
			out = append(out, ptr.Interface().(*T))
		}
		return out, rows.Err()
	})
}

// QueryOne is Query, returning only the first row.
func (m *Mapper[T]) QueryOne(ctx context.Context, q *query.Query) (*T, bool, error) {
	results, err := m.Query(ctx, q)
	if err != nil {
		return nil, false, err
	}
	if len(results) == 0 {
		return nil, false, nil
	}
	return results[0], true, nil
}

// RawQuery runs sqlText verbatim, handing the open *sql.Rows to fn (spec.md
// §4.7 "rawQuery"). fn must not retain rows past its own return.
func (m *Mapper[T]) RawQuery(ctx context.Context, sqlText string, args []any, fn func(*sql.Rows) error) error {
	db, err := m.ensure(ctx)
	if err != nil {
		return err
	}
	conn := pool.Conn(ctx, db)

	rows, err := conn.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	return fn(rows)
}

// RawUpdate runs sqlText verbatim as a write, clearing both caches wholesale
// (spec.md §4.7 "rawUpdate", §4.10's bulk-operation invalidation rule).
func (m *Mapper[T]) RawUpdate(ctx context.Context, sqlText string, args []any) (int64, error) {
	return m.rawWrite(ctx, sqlText, args)
}

// RawDelete runs sqlText verbatim as a write (spec.md §4.7 "rawDelete").
func (m *Mapper[T]) RawDelete(ctx context.Context, sqlText string, args []any) (int64, error) {
	return m.rawWrite(ctx, sqlText, args)
}

func (m *Mapper[T]) rawWrite(ctx context.Context, sqlText string, args []any) (int64, error) {
	db, err := m.ensure(ctx)
	if err != nil {
		return 0, err
	}
	conn := pool.Conn(ctx, db)

	res, err := conn.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return 0, err
	}
	m.invalidateBulk()
	return res.RowsAffected()
}

// Join runs q and returns its rows as untyped column-name-keyed bundles
// (spec.md §4.7 "join{...}.execute() -> [BundleMap]").
func (m *Mapper[T]) Join(ctx context.Context, q *query.Query) ([]map[string]any, error) {
	db, err := m.ensure(ctx)
	if err != nil {
		return nil, err
	}
	conn := pool.Conn(ctx, db)

	stmt, args := q.Build(m.d)
	rows, err := conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		dest := rowops.ScanDest(len(cols))
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		raw := rowops.DerefDest(dest)
		bundle := make(map[string]any, len(cols))
		for i, c := range cols {
			bundle[c] = raw[i]
		}
		out = append(out, bundle)
	}
	return out, rows.Err()
}

// Transaction runs fn within a transaction on T's data source, per spec.md
// §4.6's nested-transaction semantics.
func (m *Mapper[T]) Transaction(ctx context.Context, fn func(context.Context) error) error {
	db, err := m.ensure(ctx)
	if err != nil {
		return err
	}
	return pool.Transaction(ctx, db, fn)
}
