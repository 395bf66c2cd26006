package collection

import (
	"context"
	"fmt"
	"reflect"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
	"github.com/FxRayHughes/ptcmapper/internal/entity"
	"github.com/FxRayHughes/ptcmapper/internal/pool"
	"github.com/FxRayHughes/ptcmapper/internal/typeregistry"
)

// accessorBase carries the plumbing every live view needs: where to issue
// SQL, which child table, and which parent row it belongs to.
type accessorBase struct {
	reg      *typeregistry.Registry
	conn     pool.Executor
	d        dialect.Dialect
	table    string
	fkCol    string
	parentPK any
}

// ListAccessor is the live view spec.md §4.9 names for a List-kinded
// collection field: every read/write hits the child table immediately.
type ListAccessor struct {
	accessorBase
	elemType reflect.Type
}

// NewListAccessor builds a live accessor for one parent row's List field.
func NewListAccessor(reg *typeregistry.Registry, conn pool.Executor, d dialect.Dialect, parentDesc *entity.Descriptor, cf *entity.CollectionField, parentPK any) *ListAccessor {
	return &ListAccessor{
		accessorBase: accessorBase{reg: reg, conn: conn, d: d, table: cf.ChildTable, fkCol: ParentFKColumn(parentDesc), parentPK: parentPK},
		elemType:     cf.ElemType,
	}
}

// All returns every element in sort_order.
func (a *ListAccessor) All(ctx context.Context) ([]any, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s ORDER BY %s ASC",
		a.d.Quote("value"), a.d.Quote(a.table), a.d.Quote(a.fkCol), a.d.Placeholder(1), a.d.Quote("sort_order"))
	rows, err := a.conn.QueryContext(ctx, q, a.parentPK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		v, err := deserializeElem(a.reg, a.elemType, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v.Interface())
	}
	return out, rows.Err()
}

// Len reports the current element count.
func (a *ListAccessor) Len(ctx context.Context) (int, error) {
	q := fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE %s = %s", a.d.Quote(a.table), a.d.Quote(a.fkCol), a.d.Placeholder(1))
	var n int
	err := a.conn.QueryRowContext(ctx, q, a.parentPK).Scan(&n)
	return n, err
}

// InsertAt inserts v at index, shifting sort_order by 1 for every row at or
// past index (spec.md §4.9 "List insertion at index i shifts sort_order by
// 1 for all rows with sort_order >= i").
func (a *ListAccessor) InsertAt(ctx context.Context, index int, v any) error {
	shift := fmt.Sprintf("UPDATE %s SET %s = %s + 1 WHERE %s = %s AND %s >= %s",
		a.d.Quote(a.table), a.d.Quote("sort_order"), a.d.Quote("sort_order"),
		a.d.Quote(a.fkCol), a.d.Placeholder(1), a.d.Quote("sort_order"), a.d.Placeholder(2))
	if _, err := a.conn.ExecContext(ctx, shift, a.parentPK, index); err != nil {
		return err
	}

	raw, err := serializeElem(a.reg, reflect.ValueOf(v))
	if err != nil {
		return err
	}
	ins := fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (%s, %s, %s)",
		a.d.Quote(a.table), a.d.Quote(a.fkCol), a.d.Quote("value"), a.d.Quote("sort_order"),
		a.d.Placeholder(1), a.d.Placeholder(2), a.d.Placeholder(3))
	_, err = a.conn.ExecContext(ctx, ins, a.parentPK, raw, index)
	return err
}

// Append adds v after the current last element.
func (a *ListAccessor) Append(ctx context.Context, v any) error {
	n, err := a.Len(ctx)
	if err != nil {
		return err
	}
	return a.InsertAt(ctx, n, v)
}

// RemoveAt deletes the element at index, decrementing sort_order for every
// row above it (spec.md §4.9 "list removal at index i deletes that row and
// decrements sort_order for rows above").
func (a *ListAccessor) RemoveAt(ctx context.Context, index int) error {
	del := fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND %s = %s",
		a.d.Quote(a.table), a.d.Quote(a.fkCol), a.d.Placeholder(1), a.d.Quote("sort_order"), a.d.Placeholder(2))
	if _, err := a.conn.ExecContext(ctx, del, a.parentPK, index); err != nil {
		return err
	}

	shift := fmt.Sprintf("UPDATE %s SET %s = %s - 1 WHERE %s = %s AND %s > %s",
		a.d.Quote(a.table), a.d.Quote("sort_order"), a.d.Quote("sort_order"),
		a.d.Quote(a.fkCol), a.d.Placeholder(1), a.d.Quote("sort_order"), a.d.Placeholder(2))
	_, err := a.conn.ExecContext(ctx, shift, a.parentPK, index)
	return err
}

// SetAccessor is the live view for a Set-kinded collection field.
type SetAccessor struct {
	accessorBase
	elemType reflect.Type
}

// NewSetAccessor builds a live accessor for one parent row's Set field.
func NewSetAccessor(reg *typeregistry.Registry, conn pool.Executor, d dialect.Dialect, parentDesc *entity.Descriptor, cf *entity.CollectionField, parentPK any) *SetAccessor {
	return &SetAccessor{
		accessorBase: accessorBase{reg: reg, conn: conn, d: d, table: cf.ChildTable, fkCol: ParentFKColumn(parentDesc), parentPK: parentPK},
		elemType:     cf.ElemType,
	}
}

// Contains reports whether v is already a member.
func (a *SetAccessor) Contains(ctx context.Context, v any) (bool, error) {
	raw, err := serializeElem(a.reg, reflect.ValueOf(v))
	if err != nil {
		return false, err
	}
	q := fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE %s = %s AND %s = %s",
		a.d.Quote(a.table), a.d.Quote(a.fkCol), a.d.Placeholder(1), a.d.Quote("value"), a.d.Placeholder(2))
	var n int
	if err := a.conn.QueryRowContext(ctx, q, a.parentPK, raw).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// Add inserts v, a no-op if it is already a member (spec.md §4.9 "Set add
// is a no-op if the value already exists").
func (a *SetAccessor) Add(ctx context.Context, v any) error {
	ok, err := a.Contains(ctx, v)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	raw, err := serializeElem(a.reg, reflect.ValueOf(v))
	if err != nil {
		return err
	}
	q := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
		a.d.Quote(a.table), a.d.Quote(a.fkCol), a.d.Quote("value"), a.d.Placeholder(1), a.d.Placeholder(2))
	_, err = a.conn.ExecContext(ctx, q, a.parentPK, raw)
	return err
}

// Remove deletes v if present.
func (a *SetAccessor) Remove(ctx context.Context, v any) error {
	raw, err := serializeElem(a.reg, reflect.ValueOf(v))
	if err != nil {
		return err
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND %s = %s",
		a.d.Quote(a.table), a.d.Quote(a.fkCol), a.d.Placeholder(1), a.d.Quote("value"), a.d.Placeholder(2))
	_, err = a.conn.ExecContext(ctx, q, a.parentPK, raw)
	return err
}

// All returns every member, in no particular order.
func (a *SetAccessor) All(ctx context.Context) ([]any, error) {
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s", a.d.Quote("value"), a.d.Quote(a.table), a.d.Quote(a.fkCol), a.d.Placeholder(1))
	rows, err := a.conn.QueryContext(ctx, q, a.parentPK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var raw any
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		v, err := deserializeElem(a.reg, a.elemType, raw)
		if err != nil {
			return nil, err
		}
		out = append(out, v.Interface())
	}
	return out, rows.Err()
}

// MapAccessor is the live view for a Map-kinded collection field.
type MapAccessor struct {
	accessorBase
	keyType  reflect.Type
	elemType reflect.Type
}

// NewMapAccessor builds a live accessor for one parent row's Map field.
func NewMapAccessor(reg *typeregistry.Registry, conn pool.Executor, d dialect.Dialect, parentDesc *entity.Descriptor, cf *entity.CollectionField, parentPK any) *MapAccessor {
	return &MapAccessor{
		accessorBase: accessorBase{reg: reg, conn: conn, d: d, table: cf.ChildTable, fkCol: ParentFKColumn(parentDesc), parentPK: parentPK},
		keyType:      cf.KeyType,
		elemType:     cf.ElemType,
	}
}

// Get returns the value stored under key, if any.
func (a *MapAccessor) Get(ctx context.Context, key any) (any, bool, error) {
	kraw, err := serializeElem(a.reg, reflect.ValueOf(key))
	if err != nil {
		return nil, false, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s AND %s = %s",
		a.d.Quote("map_value"), a.d.Quote(a.table), a.d.Quote(a.fkCol), a.d.Placeholder(1), a.d.Quote("map_key"), a.d.Placeholder(2))
	var raw any
	err = a.conn.QueryRowContext(ctx, q, a.parentPK, kraw).Scan(&raw)
	if err != nil {
		return nil, false, nil
	}
	v, err := deserializeElem(a.reg, a.elemType, raw)
	if err != nil {
		return nil, false, err
	}
	return v.Interface(), true, nil
}

// Put replaces any existing value under key (spec.md §4.9 "Map put
// replaces any existing value under the same map_key").
func (a *MapAccessor) Put(ctx context.Context, key, value any) error {
	kraw, err := serializeElem(a.reg, reflect.ValueOf(key))
	if err != nil {
		return err
	}
	vraw, err := serializeElem(a.reg, reflect.ValueOf(value))
	if err != nil {
		return err
	}
	del := fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND %s = %s",
		a.d.Quote(a.table), a.d.Quote(a.fkCol), a.d.Placeholder(1), a.d.Quote("map_key"), a.d.Placeholder(2))
	if _, err := a.conn.ExecContext(ctx, del, a.parentPK, kraw); err != nil {
		return err
	}
	ins := fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (%s, %s, %s)",
		a.d.Quote(a.table), a.d.Quote(a.fkCol), a.d.Quote("map_key"), a.d.Quote("map_value"),
		a.d.Placeholder(1), a.d.Placeholder(2), a.d.Placeholder(3))
	_, err = a.conn.ExecContext(ctx, ins, a.parentPK, kraw, vraw)
	return err
}

// Delete removes any entry stored under key.
func (a *MapAccessor) Delete(ctx context.Context, key any) error {
	kraw, err := serializeElem(a.reg, reflect.ValueOf(key))
	if err != nil {
		return err
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND %s = %s",
		a.d.Quote(a.table), a.d.Quote(a.fkCol), a.d.Placeholder(1), a.d.Quote("map_key"), a.d.Placeholder(2))
	_, err = a.conn.ExecContext(ctx, q, a.parentPK, kraw)
	return err
}

// All returns every key/value pair.
func (a *MapAccessor) All(ctx context.Context) (map[any]any, error) {
	q := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = %s",
		a.d.Quote("map_key"), a.d.Quote("map_value"), a.d.Quote(a.table), a.d.Quote(a.fkCol), a.d.Placeholder(1))
	rows, err := a.conn.QueryContext(ctx, q, a.parentPK)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[any]any{}
	for rows.Next() {
		var kraw, vraw any
		if err := rows.Scan(&kraw, &vraw); err != nil {
			return nil, err
		}
		kv, err := deserializeElem(a.reg, a.keyType, kraw)
		if err != nil {
			return nil, err
		}
		vv, err := deserializeElem(a.reg, a.elemType, vraw)
		if err != nil {
			return nil, err
		}
		out[kv.Interface()] = vv.Interface()
	}
	return out, rows.Err()
}
