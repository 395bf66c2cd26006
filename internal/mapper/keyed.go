package mapper

import (
	"context"
	"errors"
	"reflect"

	"github.com/FxRayHughes/ptcmapper/internal/pool"
	"github.com/FxRayHughes/ptcmapper/internal/query"
	"github.com/FxRayHughes/ptcmapper/internal/rowops"
)

// locatorPredicate builds the AND-combined (primary_key, secondary_key...)
// predicate spec.md §4.7's Keyed group uses, reading values out of probe
// and ignoring every other field.
func (m *Mapper[T]) locatorPredicate(probe *T) (query.Predicate, error) {
	val := reflect.ValueOf(probe).Elem()
	locCols := m.desc.LocatorColumns()
	preds := make([]query.Predicate, len(locCols))
	for i, c := range locCols {
		v, err := rowops.SerializeColumn(m.reg, c, val)
		if err != nil {
			return nil, err
		}
		preds[i] = query.Eq(c.ColumnName, query.Val(v))
	}
	return query.And(preds...), nil
}

// FindByKey locates a row using probe's (primary_key, secondary_key...)
// values (spec.md §4.7 "findByKey").
func (m *Mapper[T]) FindByKey(ctx context.Context, probe *T) (*T, bool, error) {
	pred, err := m.locatorPredicate(probe)
	if err != nil {
		return nil, false, err
	}
	rows, err := m.FindAll(ctx, pred)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return rows[0], true, nil
}

// ExistsByKey reports whether a row matches probe's locator columns.
func (m *Mapper[T]) ExistsByKey(ctx context.Context, probe *T) (bool, error) {
	db, err := m.ensure(ctx)
	if err != nil {
		return false, err
	}
	conn := pool.Conn(ctx, db)

	val := reflect.ValueOf(probe).Elem()
	args, err := rowops.LocatorArgs(m.reg, m.desc, val)
	if err != nil {
		return false, err
	}
	where := rowops.LocatorWhereSQL(m.d, m.desc, 1)
	return rowops.Exists(ctx, conn, m.d, m.desc, where, args)
}

// DeleteByKey deletes the row matching probe's locator columns.
func (m *Mapper[T]) DeleteByKey(ctx context.Context, probe *T) error {
	db, err := m.ensure(ctx)
	if err != nil {
		return err
	}
	conn := pool.Conn(ctx, db)

	val := reflect.ValueOf(probe).Elem()
	args, err := rowops.LocatorArgs(m.reg, m.desc, val)
	if err != nil {
		return err
	}
	pk, err := m.pkOf(val)
	if err != nil {
		return err
	}

	if err := m.deleteCollections(ctx, conn, pk); err != nil {
		return err
	}
	where := rowops.LocatorWhereSQL(m.d, m.desc, 1)
	if _, err := rowops.DeleteWhere(ctx, conn, m.d, m.desc, where, args); err != nil {
		return err
	}

	m.invalidateSingle(pk)
	return nil
}

// ErrNoAutoIncrementColumn is returned by FindByRowID/DeleteByRowID when
// T's primary key is neither synthetic nor declared with an auto-increment
// storage behavior (spec.md §4.7's Rowid group assumes one exists).
var ErrNoAutoIncrementColumn = errors.New("mapper: entity has no auto-increment column")

// FindByRowID operates on the synthetic or explicit auto-increment column
// (spec.md §4.7 "findByRowId").
func (m *Mapper[T]) FindByRowID(ctx context.Context, id int64) (*T, bool, error) {
	if !m.desc.PrimaryKey.IsAutoKey {
		return nil, false, ErrNoAutoIncrementColumn
	}
	return m.FindByID(ctx, id)
}

// DeleteByRowID operates on the synthetic or explicit auto-increment column
// (spec.md §4.7 "deleteByRowId").
func (m *Mapper[T]) DeleteByRowID(ctx context.Context, id int64) error {
	if !m.desc.PrimaryKey.IsAutoKey {
		return ErrNoAutoIncrementColumn
	}
	return m.DeleteByID(ctx, id)
}
