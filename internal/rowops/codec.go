// Package rowops implements the non-generic, reflect-driven SQL primitives
// shared by internal/mapper, internal/link, and internal/collection: column
// serialize/deserialize, INSERT/UPDATE statement assembly, and row
// scanning. It exists so that Go generics (mapper.Mapper[T]) and recursive,
// dynamically-typed link cascades (internal/link) can share one reflection
// layer instead of each re-deriving it, mirroring how the teacher's
// internal/core keeps its Database/Table/Column model free of any one
// caller's concerns.
package rowops

import (
	"fmt"
	"reflect"

	"github.com/FxRayHughes/ptcmapper/internal/entity"
	"github.com/FxRayHughes/ptcmapper/internal/typeregistry"
)

// SerializeColumn reads col's field out of structVal and returns the scalar
// value to bind as a SQL parameter.
func SerializeColumn(reg *typeregistry.Registry, col *entity.Column, structVal reflect.Value) (any, error) {
	fv := structVal.FieldByIndex(col.FieldIndex)

	if col.Nullable {
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				return nil, nil
			}
			fv = fv.Elem()
		}
	}

	if col.IsEnum {
		enum, ok := fv.Interface().(typeregistry.IndexedEnum)
		if !ok {
			return nil, fmt.Errorf("rowops: field %s does not implement IndexedEnum", col.FieldName)
		}
		return enum.Index(), nil
	}

	if k := fv.Kind(); k == reflect.Slice || k == reflect.Map {
		if cc, ok := reg.LookupCollection(k, fv.Type().Elem()); ok {
			return cc.Serialize(fv)
		}
	}

	codec, ok := reg.LookupScalar(fv.Type())
	if !ok {
		return nil, fmt.Errorf("rowops: no codec registered for field %s (%s)", col.FieldName, fv.Type())
	}
	return codec.Serialize(fv)
}

// DeserializeColumn scans raw (the value database/sql produced for col's
// column) back into col's field on structVal.
func DeserializeColumn(reg *typeregistry.Registry, col *entity.Column, structVal reflect.Value, raw any) error {
	target := structVal.FieldByIndex(col.FieldIndex)

	if raw == nil {
		if col.Nullable && target.Kind() == reflect.Ptr {
			target.Set(reflect.Zero(target.Type()))
		}
		return nil
	}

	goType := target.Type()
	if col.Nullable && goType.Kind() == reflect.Ptr {
		goType = goType.Elem()
	}

	if k := goType.Kind(); k == reflect.Slice || k == reflect.Map {
		if cc, ok := reg.LookupCollection(k, goType.Elem()); ok {
			v, err := cc.Deserialize(raw, goType)
			if err != nil {
				return fmt.Errorf("rowops: field %s: %w", col.FieldName, err)
			}
			target.Set(v)
			return nil
		}
	}

	var value reflect.Value
	if col.IsEnum {
		idx, err := ToInt64Scalar(raw)
		if err != nil {
			return fmt.Errorf("rowops: enum field %s: %w", col.FieldName, err)
		}
		variant, err := reg.VariantByIndex(goType, idx)
		if err != nil {
			return err
		}
		value = reflect.ValueOf(variant).Convert(goType)
	} else {
		codec, ok := reg.LookupScalar(goType)
		if !ok {
			return fmt.Errorf("rowops: no codec registered for field %s (%s)", col.FieldName, goType)
		}
		v, err := codec.Deserialize(raw)
		if err != nil {
			return fmt.Errorf("rowops: field %s: %w", col.FieldName, err)
		}
		value = v
	}

	if col.Nullable && target.Kind() == reflect.Ptr {
		ptr := reflect.New(goType)
		ptr.Elem().Set(value)
		target.Set(ptr)
		return nil
	}
	target.Set(value)
	return nil
}

// ToInt64Scalar coerces a database/sql driver value into int64, the shape
// enum indices and synthetic auto-increment keys are always stored as.
func ToInt64Scalar(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case int32:
		return int64(t), nil
	case float64:
		return int64(t), nil
	case []byte:
		var n int64
		_, err := fmt.Sscanf(string(t), "%d", &n)
		return n, err
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("rowops: cannot interpret %T as an integer key", v)
	}
}

// ScanDest allocates n fresh **any scan destinations for rows.Scan.
func ScanDest(n int) []any {
	dest := make([]any, n)
	for i := range dest {
		var v any
		dest[i] = &v
	}
	return dest
}

// DerefDest unwraps the **any slots ScanDest produced after a Scan call.
func DerefDest(dest []any) []any {
	out := make([]any, len(dest))
	for i, d := range dest {
		out[i] = *(d.(*any))
	}
	return out
}
