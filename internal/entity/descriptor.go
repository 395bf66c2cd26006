// Package entity reflects a Go struct type once into a frozen Entity
// Descriptor (spec.md §3), the way the teacher's internal/core builds a
// Database/Table/Column tree — except here the source of truth is a Go
// struct's fields and `ptc:"..."` tags instead of a parsed SQL/TOML file.
package entity

import "reflect"

// Kind classifies a collection-valued field.
type Kind string

const (
	KindList Kind = "list"
	KindSet  Kind = "set"
	KindMap  Kind = "map"
)

// Column is one scalar, storage-backed field of an entity (spec.md §3).
type Column struct {
	FieldName   string
	FieldIndex  []int
	ColumnName  string
	GoType      reflect.Type
	MySQLType   string
	SQLiteType  string
	PostgreType string
	Length      int
	Nullable    bool

	IsPrimaryKey   bool
	IsSecondaryKey bool
	IsAutoKey      bool
	IsMutable      bool

	IsEnum bool
}

// LinkField is a one-to-one relation to another entity (spec.md §4.2's
// @LinkTable marker / spec.md §4.8's Link Engine).
type LinkField struct {
	FieldName  string
	FieldIndex []int
	FKColumn   string
	TargetType reflect.Type
	Nullable   bool // true when the Go field type is a pointer
}

// CollectionField is a List/Set/Map-valued field (spec.md §4.9), unless a
// collection custom type is registered for (Kind, ElemType) — in which
// case it is flattened into FlattenedColumn instead of getting a child
// table (spec.md §3 invariants).
type CollectionField struct {
	FieldName  string
	FieldIndex []int
	ChildTable string
	Kind       Kind
	ElemType   reflect.Type
	KeyType    reflect.Type // non-nil only for Kind == KindMap

	Flattened       bool
	FlattenedColumn *Column
}

// DefaultedField is an @Ignore field: never read from or written to
// storage, materialized with its Go zero value (spec.md §3 invariants;
// Go's zero value is this mapper's "declared default" — see DESIGN.md).
type DefaultedField struct {
	FieldName  string
	FieldIndex []int
	GoType     reflect.Type
}

// Migration is one versioned, ordered set of DDL statements applied by
// internal/schema (spec.md §3 "migrations").
type Migration struct {
	Version    int
	Statements []string
}

// Descriptor is the frozen, process-wide metadata for one record type
// (spec.md §3). It is built once by Describe and never mutated after.
type Descriptor struct {
	Type      reflect.Type
	TableName string
	Schema    string

	Columns          []*Column
	PrimaryKey       *Column // nil only when the type has no columns; a synthetic "id" column is set here when injected
	SecondaryKeys    []*Column
	LinkFields       []*LinkField
	CollectionFields []*CollectionField
	DefaultedFields  []*DefaultedField

	ManualDDL  string
	Migrations []Migration
}

// TableNamer lets a record type override its table name/schema
// (@TableName(value, schema?) in spec.md §4.2).
type TableNamer interface {
	TableName() (table string, schema string)
}

// ManualDDLProvider lets a record type supply hand-written DDL that C5
// executes verbatim instead of generating CREATE TABLE (spec.md §4.5 step 1).
type ManualDDLProvider interface {
	PTCManualDDL() string
}

// MigrationsProvider supplies the ordered migration steps for a record type
// (spec.md §4.5 step 3).
type MigrationsProvider interface {
	PTCMigrations() []Migration
}

// FindColumn looks up a column by its Go field name.
func (d *Descriptor) FindColumn(fieldName string) *Column {
	for _, c := range d.Columns {
		if c.FieldName == fieldName {
			return c
		}
	}
	return nil
}

// FindColumnByName looks up a column by its storage ColumnName.
func (d *Descriptor) FindColumnByName(columnName string) *Column {
	for _, c := range d.Columns {
		if c.ColumnName == columnName {
			return c
		}
	}
	return nil
}

// MutableColumns returns the columns that participate in UPDATE ... SET ...
// (spec.md §3 invariant: only mutable columns are ever SET).
func (d *Descriptor) MutableColumns() []*Column {
	out := make([]*Column, 0, len(d.Columns))
	for _, c := range d.Columns {
		if c.IsMutable {
			out = append(out, c)
		}
	}
	return out
}

// LocatorColumns returns the primary key plus any secondary keys, in that
// order — the set of columns a WHERE locator is built from.
func (d *Descriptor) LocatorColumns() []*Column {
	out := make([]*Column, 0, 1+len(d.SecondaryKeys))
	if d.PrimaryKey != nil {
		out = append(out, d.PrimaryKey)
	}
	out = append(out, d.SecondaryKeys...)
	return out
}
