package mapper

import (
	"context"
	"fmt"

	"github.com/FxRayHughes/ptcmapper/internal/collection"
	"github.com/FxRayHughes/ptcmapper/internal/entity"
	"github.com/FxRayHughes/ptcmapper/internal/pool"
)

// findCollectionField looks up one of T's child-table-backed List/Set/Map
// fields by its Go field name, the name callers pass to ListOf/SetOf/MapOf.
func (m *Mapper[T]) findCollectionField(fieldName string, want entity.Kind) (*entity.CollectionField, error) {
	for _, cf := range m.desc.CollectionFields {
		if cf.FieldName != fieldName {
			continue
		}
		if cf.Flattened {
			return nil, fmt.Errorf("mapper: field %q is flattened by a registered collection codec, not child-table-backed", fieldName)
		}
		if cf.Kind != want {
			return nil, fmt.Errorf("mapper: field %q is a %s field, not %s", fieldName, cf.Kind, want)
		}
		return cf, nil
	}
	return nil, fmt.Errorf("mapper: %s has no collection field named %q", m.desc.TableName, fieldName)
}

// ListOf returns the live accessor view (spec.md §4.9) over a List-kinded
// child table belonging to the row identified by pk. Every read/write the
// accessor makes is visible to a subsequent FindByID in the same worker.
func (m *Mapper[T]) ListOf(ctx context.Context, pk any, fieldName string) (*collection.ListAccessor, error) {
	cf, err := m.findCollectionField(fieldName, entity.KindList)
	if err != nil {
		return nil, err
	}
	db, err := m.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return collection.NewListAccessor(m.reg, pool.Conn(ctx, db), m.d, m.desc, cf, pk), nil
}

// SetOf returns the live accessor view over a Set-kinded child table.
func (m *Mapper[T]) SetOf(ctx context.Context, pk any, fieldName string) (*collection.SetAccessor, error) {
	cf, err := m.findCollectionField(fieldName, entity.KindSet)
	if err != nil {
		return nil, err
	}
	db, err := m.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return collection.NewSetAccessor(m.reg, pool.Conn(ctx, db), m.d, m.desc, cf, pk), nil
}

// MapOf returns the live accessor view over a Map-kinded child table
// (spec.md S7: `propMapper.mapOf("p", "properties")`).
func (m *Mapper[T]) MapOf(ctx context.Context, pk any, fieldName string) (*collection.MapAccessor, error) {
	cf, err := m.findCollectionField(fieldName, entity.KindMap)
	if err != nil {
		return nil, err
	}
	db, err := m.ensure(ctx)
	if err != nil {
		return nil, err
	}
	return collection.NewMapAccessor(m.reg, pool.Conn(ctx, db), m.d, m.desc, cf, pk), nil
}
