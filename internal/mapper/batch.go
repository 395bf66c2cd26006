package mapper

import (
	"context"
	"reflect"

	"github.com/FxRayHughes/ptcmapper/internal/pool"
	"github.com/FxRayHughes/ptcmapper/internal/query"
	"github.com/FxRayHughes/ptcmapper/internal/rowops"
)

// InsertBatch inserts every record in es (spec.md §4.7 "insertBatch").
// Batch generated-key retrieval is subject to C3's per-dialect limit:
// SQLite only reports the last row's key.
func (m *Mapper[T]) InsertBatch(ctx context.Context, es []*T) error {
	db, err := m.ensure(ctx)
	if err != nil {
		return err
	}
	conn := pool.Conn(ctx, db)

	for _, e := range es {
		val := reflect.ValueOf(e).Elem()
		extra, err := m.linkEng.CascadeSave(ctx, conn, m.d, m.desc, val)
		if err != nil {
			return err
		}
		res, err := rowops.Insert(ctx, conn, m.d, m.reg, m.desc, val, extra)
		if err != nil {
			return err
		}
		if m.desc.PrimaryKey.IsAutoKey {
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if err := rowops.DeserializeColumn(m.reg, m.desc.PrimaryKey, val, id); err != nil {
				return err
			}
		}
		pk, err := m.pkOf(val)
		if err != nil {
			return err
		}
		if err := m.replaceCollections(ctx, conn, val, pk); err != nil {
			return err
		}
	}

	m.invalidateBulk()
	return nil
}

// UpdateBatch updates every record in es (spec.md §4.7 "updateBatch").
func (m *Mapper[T]) UpdateBatch(ctx context.Context, es []*T) error {
	db, err := m.ensure(ctx)
	if err != nil {
		return err
	}
	conn := pool.Conn(ctx, db)

	for _, e := range es {
		val := reflect.ValueOf(e).Elem()
		extra, err := m.linkEng.CascadeSave(ctx, conn, m.d, m.desc, val)
		if err != nil {
			return err
		}
		if _, err := rowops.Update(ctx, conn, m.d, m.reg, m.desc, val, extra); err != nil {
			return err
		}
		pk, err := m.pkOf(val)
		if err != nil {
			return err
		}
		if err := m.replaceCollections(ctx, conn, val, pk); err != nil {
			return err
		}
	}

	m.invalidateBulk()
	return nil
}

// FindByIDs returns every row whose primary key is in pks (spec.md §4.7
// "findByIds").
func (m *Mapper[T]) FindByIDs(ctx context.Context, pks []any) ([]*T, error) {
	return m.FindAll(ctx, query.In(m.desc.PrimaryKey.ColumnName, pks))
}

// DeleteByIDs deletes every row whose primary key is in pks, cascading
// each to its collection child tables (spec.md §4.7 "deleteByIds").
func (m *Mapper[T]) DeleteByIDs(ctx context.Context, pks []any) error {
	db, err := m.ensure(ctx)
	if err != nil {
		return err
	}
	conn := pool.Conn(ctx, db)

	for _, pk := range pks {
		if err := m.deleteCollections(ctx, conn, pk); err != nil {
			return err
		}
	}

	where := query.In(m.desc.PrimaryKey.ColumnName, pks)
	var args []any
	whereSQL := where.Build(m.d, &args)
	if _, err := rowops.DeleteWhere(ctx, conn, m.d, m.desc, whereSQL, args); err != nil {
		return err
	}

	m.invalidateBulk()
	return nil
}

// UpsertBatch inserts or updates every record in es in one round trip each,
// using C3's per-dialect upsert syntax keyed by the entity's locator
// columns (spec.md §4.7 "upsertBatch").
func (m *Mapper[T]) UpsertBatch(ctx context.Context, es []*T) error {
	db, err := m.ensure(ctx)
	if err != nil {
		return err
	}
	conn := pool.Conn(ctx, db)

	for _, e := range es {
		val := reflect.ValueOf(e).Elem()
		extra, err := m.linkEng.CascadeSave(ctx, conn, m.d, m.desc, val)
		if err != nil {
			return err
		}

		// A zero auto key means this row is being inserted, not updated:
		// upsertColumns omits it from the INSERT list so the backend
		// assigns one, and that generated value must be read back before
		// replaceCollections uses pk below — otherwise every child-table
		// row for a freshly-upserted record gets written with parent_id
		// 0 instead of the real key.
		freshKey := m.desc.PrimaryKey.IsAutoKey && len(m.desc.PrimaryKey.FieldIndex) > 0 &&
			val.FieldByIndex(m.desc.PrimaryKey.FieldIndex).IsZero()

		res, err := rowops.Upsert(ctx, conn, m.d, m.reg, m.desc, val, extra)
		if err != nil {
			return err
		}
		if freshKey {
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if err := rowops.DeserializeColumn(m.reg, m.desc.PrimaryKey, val, id); err != nil {
				return err
			}
		}

		pk, err := m.pkOf(val)
		if err != nil {
			return err
		}
		if err := m.replaceCollections(ctx, conn, val, pk); err != nil {
			return err
		}
	}

	m.invalidateBulk()
	return nil
}
