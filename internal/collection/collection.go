// Package collection implements the Collection Subtable Engine spec.md
// §4.9 describes: child tables for List/Set/Map-valued fields that aren't
// handled by a collection custom type, whole-row replace on update,
// cascade delete, and batched rehydration. Grounded on the teacher's child
// table conventions for migration-adjacent bookkeeping tables
// (internal/schema's _ptc_meta sibling) generalized to per-entity,
// per-field child tables.
package collection

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
	"github.com/FxRayHughes/ptcmapper/internal/entity"
	"github.com/FxRayHughes/ptcmapper/internal/pool"
	"github.com/FxRayHughes/ptcmapper/internal/typeregistry"
)

// Store implements read/replace/delete for one collection field's child
// table. A Store is stateless beyond the type registry and is safe to
// share across entities and fields.
type Store struct {
	reg *typeregistry.Registry
}

// New constructs a Store bound to reg, used to serialize/deserialize
// element (and map key) values.
func New(reg *typeregistry.Registry) *Store {
	return &Store{reg: reg}
}

// ParentFKColumn returns the "parent_<pk>" column name a collection's child
// table uses to reference its owning row.
func ParentFKColumn(parentDesc *entity.Descriptor) string {
	pk := "id"
	if parentDesc.PrimaryKey != nil {
		pk = parentDesc.PrimaryKey.ColumnName
	}
	return "parent_" + pk
}

// Row is one raw child-table row, before it's grouped by parent and
// deserialized into a Go slice/map.
type Row struct {
	ParentPK  any
	Value     any
	SortOrder int64
	MapKey    any
	MapValue  any
}

// FetchForParents loads every child row belonging to any of parentPKs in a
// single round trip (spec.md §4.9 "Read": "a single SELECT ... WHERE
// parent_<pk> IN (...) ... rehydrates all collections for all rows of the
// parent result"), grouped by a string form of the parent key.
func (s *Store) FetchForParents(ctx context.Context, conn pool.Executor, d dialect.Dialect, parentDesc *entity.Descriptor, cf *entity.CollectionField, parentPKs []any) (map[string][]Row, error) {
	out := map[string][]Row{}
	if len(parentPKs) == 0 {
		return out, nil
	}

	fkCol := ParentFKColumn(parentDesc)
	phs := make([]string, len(parentPKs))
	for i := range phs {
		phs[i] = d.Placeholder(i + 1)
	}

	cols := []string{fkCol, "value"}
	switch cf.Kind {
	case entity.KindList:
		cols = []string{fkCol, "value", "sort_order"}
	case entity.KindMap:
		cols = []string{fkCol, "map_key", "map_value"}
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = d.Quote(c)
	}

	q := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		strings.Join(quoted, ", "), d.Quote(cf.ChildTable), d.Quote(fkCol), strings.Join(phs, ", "))

	rows, err := conn.QueryContext(ctx, q, parentPKs...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		dest := make([]any, len(cols))
		for i := range dest {
			var v any
			dest[i] = &v
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		r := Row{ParentPK: *(dest[0].(*any))}
		switch cf.Kind {
		case entity.KindList:
			r.Value = *(dest[1].(*any))
			r.SortOrder, _ = toInt64(*(dest[2].(*any)))
		case entity.KindSet:
			r.Value = *(dest[1].(*any))
		case entity.KindMap:
			r.MapKey = *(dest[1].(*any))
			r.MapValue = *(dest[2].(*any))
		}
		key := fmt.Sprint(r.ParentPK)
		out[key] = append(out[key], r)
	}
	return out, rows.Err()
}

// ApplyToField deserializes rows into fieldVal, the addressable
// slice/map-kinded reflect.Value for cf on one parent record. List rows
// are ordered by SortOrder.
func (s *Store) ApplyToField(cf *entity.CollectionField, rows []Row, fieldVal reflect.Value) error {
	switch cf.Kind {
	case entity.KindList:
		sort.Slice(rows, func(i, j int) bool { return rows[i].SortOrder < rows[j].SortOrder })
		out := reflect.MakeSlice(fieldVal.Type(), 0, len(rows))
		for _, r := range rows {
			ev, err := deserializeElem(s.reg, cf.ElemType, r.Value)
			if err != nil {
				return err
			}
			out = reflect.Append(out, ev)
		}
		fieldVal.Set(out)
	case entity.KindSet:
		out := reflect.MakeSlice(fieldVal.Type(), 0, len(rows))
		for _, r := range rows {
			ev, err := deserializeElem(s.reg, cf.ElemType, r.Value)
			if err != nil {
				return err
			}
			out = reflect.Append(out, ev)
		}
		fieldVal.Set(out)
	case entity.KindMap:
		out := reflect.MakeMap(fieldVal.Type())
		for _, r := range rows {
			kv, err := deserializeElem(s.reg, cf.KeyType, r.MapKey)
			if err != nil {
				return err
			}
			vv, err := deserializeElem(s.reg, cf.ElemType, r.MapValue)
			if err != nil {
				return err
			}
			out.SetMapIndex(kv, vv)
		}
		fieldVal.Set(out)
	}
	return nil
}

// ReplaceAll deletes every existing child row for parentPK and re-inserts
// fieldVal's current contents (spec.md §4.9 "Update": "replaces all child
// rows for the affected parent: delete all existing, insert all new").
func (s *Store) ReplaceAll(ctx context.Context, conn pool.Executor, d dialect.Dialect, parentDesc *entity.Descriptor, cf *entity.CollectionField, parentPK any, fieldVal reflect.Value) error {
	if err := s.DeleteByParent(ctx, conn, d, parentDesc, cf, parentPK); err != nil {
		return err
	}
	return s.insertAll(ctx, conn, d, parentDesc, cf, parentPK, fieldVal)
}

func (s *Store) insertAll(ctx context.Context, conn pool.Executor, d dialect.Dialect, parentDesc *entity.Descriptor, cf *entity.CollectionField, parentPK any, fieldVal reflect.Value) error {
	fkCol := ParentFKColumn(parentDesc)

	switch cf.Kind {
	case entity.KindList:
		for i := 0; i < fieldVal.Len(); i++ {
			raw, err := serializeElem(s.reg, fieldVal.Index(i))
			if err != nil {
				return err
			}
			q := fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (%s, %s, %s)",
				d.Quote(cf.ChildTable), d.Quote(fkCol), d.Quote("value"), d.Quote("sort_order"),
				d.Placeholder(1), d.Placeholder(2), d.Placeholder(3))
			if _, err := conn.ExecContext(ctx, q, parentPK, raw, i); err != nil {
				return err
			}
		}
	case entity.KindSet:
		seen := map[any]bool{}
		for i := 0; i < fieldVal.Len(); i++ {
			raw, err := serializeElem(s.reg, fieldVal.Index(i))
			if err != nil {
				return err
			}
			if seen[raw] {
				continue
			}
			seen[raw] = true
			q := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
				d.Quote(cf.ChildTable), d.Quote(fkCol), d.Quote("value"), d.Placeholder(1), d.Placeholder(2))
			if _, err := conn.ExecContext(ctx, q, parentPK, raw); err != nil {
				return err
			}
		}
	case entity.KindMap:
		iter := fieldVal.MapRange()
		for iter.Next() {
			kraw, err := serializeElem(s.reg, iter.Key())
			if err != nil {
				return err
			}
			vraw, err := serializeElem(s.reg, iter.Value())
			if err != nil {
				return err
			}
			q := fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (%s, %s, %s)",
				d.Quote(cf.ChildTable), d.Quote(fkCol), d.Quote("map_key"), d.Quote("map_value"),
				d.Placeholder(1), d.Placeholder(2), d.Placeholder(3))
			if _, err := conn.ExecContext(ctx, q, parentPK, kraw, vraw); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeleteByParent removes every child row belonging to parentPK (spec.md
// §4.9 "Delete": deleteById/deleteWhere cascade-delete child rows).
func (s *Store) DeleteByParent(ctx context.Context, conn pool.Executor, d dialect.Dialect, parentDesc *entity.Descriptor, cf *entity.CollectionField, parentPK any) error {
	fkCol := ParentFKColumn(parentDesc)
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", d.Quote(cf.ChildTable), d.Quote(fkCol), d.Placeholder(1))
	_, err := conn.ExecContext(ctx, q, parentPK)
	return err
}

func serializeElem(reg *typeregistry.Registry, v reflect.Value) (any, error) {
	codec, ok := reg.LookupScalar(v.Type())
	if !ok {
		return nil, fmt.Errorf("collection: no codec registered for element type %s", v.Type())
	}
	return codec.Serialize(v)
}

func deserializeElem(reg *typeregistry.Registry, t reflect.Type, raw any) (reflect.Value, error) {
	codec, ok := reg.LookupScalar(t)
	if !ok {
		return reflect.Value{}, fmt.Errorf("collection: no codec registered for element type %s", t)
	}
	return codec.Deserialize(raw)
}

func toInt64(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case []byte:
		var n int64
		_, err := fmt.Sscanf(string(t), "%d", &n)
		return n, err
	default:
		return 0, fmt.Errorf("collection: cannot interpret %T as sort_order", v)
	}
}
