package link

import (
	"context"
	"reflect"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
	"github.com/FxRayHughes/ptcmapper/internal/entity"
	"github.com/FxRayHughes/ptcmapper/internal/pool"
	"github.com/FxRayHughes/ptcmapper/internal/rowops"
	"github.com/FxRayHughes/ptcmapper/internal/typeregistry"
)

// Engine owns the write-side half of the Link Engine: cascade-saving link
// targets depth-first before the row that references them (spec.md §4.8
// "Write").
type Engine struct {
	reg *typeregistry.Registry
}

// NewEngine constructs an Engine bound to reg.
func NewEngine(reg *typeregistry.Registry) *Engine {
	return &Engine{reg: reg}
}

// CascadeSave saves every link field on val before val's own row is
// written, returning the resolved foreign-key column values (column name
// -> bound value, nil for an absent nullable link) for the caller to merge
// into its own INSERT/UPDATE.
func (e *Engine) CascadeSave(ctx context.Context, conn pool.Executor, d dialect.Dialect, desc *entity.Descriptor, val reflect.Value) (map[string]any, error) {
	extra := make(map[string]any, len(desc.LinkFields))
	for _, lf := range desc.LinkFields {
		fv := val.FieldByIndex(lf.FieldIndex)

		var target reflect.Value
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				extra[lf.FKColumn] = nil
				continue
			}
			target = fv.Elem()
		} else {
			target = fv
		}

		targetDesc, err := entity.Describe(lf.TargetType, e.reg)
		if err != nil {
			return nil, err
		}
		pk, err := e.saveEntity(ctx, conn, d, targetDesc, target)
		if err != nil {
			return nil, err
		}
		extra[lf.FKColumn] = pk
	}
	return extra, nil
}

// saveEntity depth-first saves target's own link fields, then inserts
// target if its primary key doesn't yet exist in its table, otherwise
// updates it (spec.md §4.8 step 1), returning the primary-key value to
// copy into the referencing row's foreign-key column (step 2).
func (e *Engine) saveEntity(ctx context.Context, conn pool.Executor, d dialect.Dialect, desc *entity.Descriptor, val reflect.Value) (any, error) {
	nestedExtra, err := e.CascadeSave(ctx, conn, d, desc, val)
	if err != nil {
		return nil, err
	}

	pk := desc.PrimaryKey
	pkVal, err := rowops.SerializeColumn(e.reg, pk, val)
	if err != nil {
		return nil, err
	}

	if pk.IsAutoKey && isZero(pkVal) {
		res, err := rowops.Insert(ctx, conn, d, e.reg, desc, val, nestedExtra)
		if err != nil {
			return nil, err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, err
		}
		if err := rowops.DeserializeColumn(e.reg, pk, val, id); err != nil {
			return nil, err
		}
		return id, nil
	}

	// A key that is already set (explicit, or an auto key assigned by an
	// earlier save) identifies the row, so a single
	// Upsert on the locator columns replaces target's row whether or not
	// it already exists, without the separate Exists round trip (and the
	// check-then-act race it invited under concurrent cascade saves).
	if _, err := rowops.Upsert(ctx, conn, d, e.reg, desc, val, nestedExtra); err != nil {
		return nil, err
	}
	return pkVal, nil
}

func isZero(v any) bool {
	switch t := v.(type) {
	case int64:
		return t == 0
	case int:
		return t == 0
	case nil:
		return true
	default:
		return false
	}
}
