package entity

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/FxRayHughes/ptcmapper/internal/typeregistry"
)

// cacheKey pairs a struct type with the registry it was described against:
// buildColumn consults reg.LookupEnum/LookupScalar while building a
// Descriptor, so the same type described against two different registries
// (e.g. one Mapper[T] using mapper.WithRegistry, another using the
// process-wide default) can legitimately produce two different shapes.
type cacheKey struct {
	t   reflect.Type
	reg *typeregistry.Registry
}

var (
	cacheMu sync.RWMutex
	cache   = map[cacheKey]*Descriptor{}
)

// Describe reflects t (which must be a struct type, not a pointer) into a
// frozen Descriptor, memoizing the result process-wide per (type, registry)
// pair (spec.md §3 "Lifecycle": descriptors are built lazily on first use
// and cached thereafter).
func Describe(t reflect.Type, reg *typeregistry.Registry) (*Descriptor, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity: %s is not a struct", t)
	}

	key := cacheKey{t: t, reg: reg}

	cacheMu.RLock()
	d, ok := cache[key]
	cacheMu.RUnlock()
	if ok {
		return d, nil
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if d, ok := cache[key]; ok {
		return d, nil
	}

	d, err := build(t, reg)
	if err != nil {
		return nil, err
	}
	cache[key] = d
	return d, nil
}

func build(t reflect.Type, reg *typeregistry.Registry) (*Descriptor, error) {
	d := &Descriptor{
		Type:      t,
		TableName: toSnakeCase(t.Name()),
	}

	if tn, ok := reflect.New(t).Interface().(TableNamer); ok {
		name, schema := tn.TableName()
		if name != "" {
			d.TableName = name
		}
		d.Schema = schema
	}
	if p, ok := reflect.New(t).Interface().(ManualDDLProvider); ok {
		d.ManualDDL = p.PTCManualDDL()
	}
	if p, ok := reflect.New(t).Interface().(MigrationsProvider); ok {
		d.Migrations = p.PTCMigrations()
	}

	if err := collectFields(d, t, nil, reg); err != nil {
		return nil, err
	}

	if d.PrimaryKey == nil {
		// No explicit @Id: a field named exactly "ID" is promoted to an
		// auto-increment primary key by convention, the same default GORM
		// and xorm apply. This keeps the key backed by a real Go field, so
		// FindByKey/Update/link cascades can read and write it like any
		// explicit key.
		if idCol := d.FindColumn("ID"); idCol != nil {
			idCol.IsPrimaryKey = true
			idCol.IsAutoKey = true
			idCol.IsMutable = false
			d.PrimaryKey = idCol
		}
	}

	if d.PrimaryKey == nil && len(d.Columns) > 0 {
		// Still nothing: no "ID" field exists either. Synthesize a column
		// with no backing Go field (spec.md §3 invariant: explicit,
		// synthetic-auto, or rowid-only). Such an entity can only be
		// addressed by the pk value FindByID/DeleteByID/Exists take as a
		// parameter — Update and the Keyed group have no field to read a
		// locator value from and are not meaningful for it.
		synthetic := &Column{
			FieldName:    "",
			ColumnName:   "id",
			GoType:       reflect.TypeOf(int64(0)),
			MySQLType:    "BIGINT",
			SQLiteType:   "INTEGER",
			PostgreType:  "BIGINT",
			IsPrimaryKey: true,
			IsAutoKey:    true,
		}
		d.Columns = append([]*Column{synthetic}, d.Columns...)
		d.PrimaryKey = synthetic
	}

	return d, nil
}

func collectFields(d *Descriptor, t reflect.Type, prefix []int, reg *typeregistry.Registry) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		index := append(append([]int{}, prefix...), i)
		tag := parseTag(f.Tag.Get("ptc"))

		if tag.Ignore {
			d.DefaultedFields = append(d.DefaultedFields, &DefaultedField{
				FieldName:  f.Name,
				FieldIndex: index,
				GoType:     f.Type,
			})
			continue
		}

		if tag.Link {
			lf, err := buildLinkField(f, index, tag)
			if err != nil {
				return err
			}
			d.LinkFields = append(d.LinkFields, lf)
			continue
		}

		if isCollectionType(f.Type) {
			cf, err := buildCollectionField(d, f, index, tag, reg)
			if err != nil {
				return err
			}
			if cf.Flattened {
				d.Columns = append(d.Columns, cf.FlattenedColumn)
			} else {
				d.CollectionFields = append(d.CollectionFields, cf)
			}
			continue
		}

		col, err := buildColumn(f, index, tag, reg)
		if err != nil {
			return err
		}
		d.Columns = append(d.Columns, col)
		if col.IsPrimaryKey {
			if d.PrimaryKey != nil {
				return fmt.Errorf("entity: %s declares more than one @Id column", t)
			}
			d.PrimaryKey = col
		}
		if col.IsSecondaryKey {
			d.SecondaryKeys = append(d.SecondaryKeys, col)
		}
	}
	return nil
}

func isCollectionType(t reflect.Type) bool {
	return t.Kind() == reflect.Slice || t.Kind() == reflect.Map
}

func buildLinkField(f reflect.StructField, index []int, tag fieldTag) (*LinkField, error) {
	target := f.Type
	nullable := false
	if target.Kind() == reflect.Ptr {
		nullable = true
		target = target.Elem()
	}
	if target.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity: link field %s must be a struct or *struct", f.Name)
	}
	fk := tag.FK
	if fk == "" {
		fk = toSnakeCase(f.Name) + "_id"
	}
	return &LinkField{
		FieldName:  f.Name,
		FieldIndex: index,
		FKColumn:   fk,
		TargetType: target,
		Nullable:   nullable,
	}, nil
}

func buildColumn(f reflect.StructField, index []int, tag fieldTag, reg *typeregistry.Registry) (*Column, error) {
	goType := f.Type
	nullable := false
	if goType.Kind() == reflect.Ptr {
		nullable = true
		goType = goType.Elem()
	}

	col := &Column{
		FieldName:      f.Name,
		FieldIndex:     index,
		ColumnName:     columnName(f.Name, tag),
		GoType:         goType,
		Nullable:       nullable,
		IsPrimaryKey:   tag.ID,
		IsSecondaryKey: tag.Key,
		IsMutable:      !tag.ID && !tag.Key,
	}

	if variants, ok := reg.LookupEnum(goType); ok && len(variants) > 0 {
		col.IsEnum = true
		col.MySQLType, col.SQLiteType, col.PostgreType = "BIGINT", "INTEGER", "BIGINT"
		return col, nil
	}

	codec, ok := reg.LookupScalar(goType)
	if !ok {
		return nil, fmt.Errorf("entity: no codec registered for field %s (%s)", f.Name, goType)
	}
	col.MySQLType, col.SQLiteType, col.PostgreType = codec.MySQLType, codec.SQLiteType, codec.PostgreType
	col.Length = codec.Length
	if tag.Length > 0 {
		col.Length = tag.Length
	}
	if tag.SQLType != "" {
		col.MySQLType = tag.SQLType
		col.PostgreType = tag.SQLType
	}
	if tag.SQLiteOverride != "" {
		col.SQLiteType = tag.SQLiteOverride
	}
	return col, nil
}

func columnName(fieldName string, tag fieldTag) string {
	if tag.Column != "" {
		return tag.Column
	}
	return toSnakeCase(fieldName)
}

func buildCollectionField(d *Descriptor, f reflect.StructField, index []int, tag fieldTag, reg *typeregistry.Registry) (*CollectionField, error) {
	kind := KindList
	if tag.Set {
		kind = KindSet
	}
	var elem, keyType reflect.Type
	if f.Type.Kind() == reflect.Map {
		kind = KindMap
		keyType = f.Type.Key()
		elem = f.Type.Elem()
	} else {
		elem = f.Type.Elem()
	}

	if codec, ok := reg.LookupCollection(f.Type.Kind(), elem); ok {
		flatCol := &Column{
			FieldName:    f.Name,
			FieldIndex:   index,
			ColumnName:   columnName(f.Name, tag),
			GoType:       f.Type,
			MySQLType:    codec.MySQLType,
			SQLiteType:   codec.SQLiteType,
			PostgreType:  codec.PostgreType,
			IsMutable:    true,
		}
		return &CollectionField{
			FieldName:       f.Name,
			FieldIndex:      index,
			Kind:            kind,
			ElemType:        elem,
			KeyType:         keyType,
			Flattened:       true,
			FlattenedColumn: flatCol,
		}, nil
	}

	return &CollectionField{
		FieldName:  f.Name,
		FieldIndex: index,
		ChildTable: d.TableName + "_" + toSnakeCase(f.Name),
		Kind:       kind,
		ElemType:   elem,
		KeyType:    keyType,
	}, nil
}
