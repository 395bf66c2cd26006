package schema

import (
	"fmt"
	"strings"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
	"github.com/FxRayHughes/ptcmapper/internal/entity"
)

// CreateTableSQL renders "CREATE TABLE IF NOT EXISTS" for desc, including
// its primary/secondary key constraints and link foreign-key columns.
// Flattened collection columns are included like any other scalar column;
// non-flattened ones get their own child table via CreateChildTableSQL.
func CreateTableSQL(d dialect.Dialect, desc *entity.Descriptor) string {
	name := d.Quote(desc.TableName)

	var lines []string
	for _, c := range desc.Columns {
		lines = append(lines, "  "+columnDefinition(d, c))
	}
	for _, cf := range desc.CollectionFields {
		if cf.Flattened {
			lines = append(lines, "  "+columnDefinition(d, cf.FlattenedColumn))
		}
	}
	for _, lf := range desc.LinkFields {
		lines = append(lines, "  "+fkColumnDefinition(d, lf))
	}

	if pk := desc.LocatorColumns(); len(pk) > 0 {
		cols := make([]string, len(pk))
		for i, c := range pk {
			cols[i] = d.Quote(c.ColumnName)
		}
		lines = append(lines, fmt.Sprintf("  PRIMARY KEY (%s)", strings.Join(cols, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", name, strings.Join(lines, ",\n"))
}

func columnDefinition(d dialect.Dialect, c *entity.Column) string {
	def := d.Quote(c.ColumnName) + " " + d.ColumnType(c)
	if c.IsAutoKey {
		// SQLite needs no keyword: a lone INTEGER primary key column is a
		// rowid alias and is assigned automatically.
		switch d.Name() {
		case dialect.MySQL:
			def += " AUTO_INCREMENT"
		case dialect.PostgreSQL:
			def += " GENERATED BY DEFAULT AS IDENTITY"
		}
	}
	if !c.Nullable {
		def += " NOT NULL"
	}
	return def
}

func fkColumnDefinition(d dialect.Dialect, lf *entity.LinkField) string {
	def := d.Quote(lf.FKColumn) + " " + "BIGINT"
	if !lf.Nullable {
		def += " NOT NULL"
	}
	return def
}

// CreateChildTableSQL renders the child table DDL spec.md §4.9 names for a
// non-flattened collection field: id + parent_<pk> + the shape-specific
// columns for List (value, sort_order), Set (value), or Map (map_key,
// map_value).
func CreateChildTableSQL(d dialect.Dialect, parent *entity.Descriptor, cf *entity.CollectionField) string {
	parentPK := "id"
	if parent.PrimaryKey != nil {
		parentPK = parent.PrimaryKey.ColumnName
	}
	fkCol := "parent_" + parentPK

	var cols []string
	cols = append(cols, d.Quote("id")+" BIGINT")
	cols = append(cols, d.Quote(fkCol)+" BIGINT NOT NULL")

	switch cf.Kind {
	case entity.KindList:
		cols = append(cols, d.Quote("value")+" TEXT")
		cols = append(cols, d.Quote("sort_order")+" INTEGER NOT NULL")
	case entity.KindSet:
		cols = append(cols, d.Quote("value")+" TEXT")
	case entity.KindMap:
		cols = append(cols, d.Quote("map_key")+" TEXT")
		cols = append(cols, d.Quote("map_value")+" TEXT")
	}

	cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", d.Quote("id")))

	childLines := make([]string, len(cols))
	for i, c := range cols {
		childLines[i] = "  " + c
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", d.Quote(cf.ChildTable), strings.Join(childLines, ",\n"))
}
