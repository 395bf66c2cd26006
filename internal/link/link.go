// Package link implements the Link Engine spec.md §4.8 describes: the
// recursive alias/namespace scheme for auto-LEFT-JOINing link fields on
// read, and the depth-first cascade order for link fields on write. It is
// grounded on the teacher's recursive Database/Table traversal style
// (internal/core/schema.go's FindTable/FindColumn walk Pieczasz-smf's own
// flat table list), generalized here from a flat list to a link tree.
package link

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
	"github.com/FxRayHughes/ptcmapper/internal/entity"
	"github.com/FxRayHughes/ptcmapper/internal/rowops"
	"github.com/FxRayHughes/ptcmapper/internal/typeregistry"
)

// node is one LEFT JOIN contributed by a link field, at any nesting depth.
type node struct {
	alias    string // "__t0", "__t1", ... in descriptor traversal order
	parent   *node  // nil when the link field belongs to the root entity
	fk       string // FK column name on the parent table/alias
	target   *entity.Descriptor
	prefix   string // "__link__<fk>__" namespace, concatenated across levels
	nullable bool
	index    []int // field index of the link field on its declaring struct
}

// Plan is a frozen join/alias plan for one root entity, built once and
// reused across every read of that entity.
type Plan struct {
	root  *entity.Descriptor
	nodes []*node
}

// NewPlan recursively walks desc's link fields (and their targets' link
// fields, and so on) assigning join aliases in descriptor traversal order.
func NewPlan(reg *typeregistry.Registry, desc *entity.Descriptor) (*Plan, error) {
	p := &Plan{root: desc}
	counter := 0
	if err := p.expand(reg, desc, nil, "", &counter); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Plan) expand(reg *typeregistry.Registry, desc *entity.Descriptor, parent *node, prefix string, counter *int) error {
	for _, lf := range desc.LinkFields {
		targetDesc, err := entity.Describe(lf.TargetType, reg)
		if err != nil {
			return fmt.Errorf("link: %s: %w", lf.FieldName, err)
		}
		n := &node{
			alias:    fmt.Sprintf("__t%d", *counter),
			parent:   parent,
			fk:       lf.FKColumn,
			target:   targetDesc,
			prefix:   prefix + "__link__" + lf.FKColumn + "__",
			nullable: lf.Nullable,
			index:    lf.FieldIndex,
		}
		*counter++
		p.nodes = append(p.nodes, n)
		if err := p.expand(reg, targetDesc, n, n.prefix, counter); err != nil {
			return err
		}
	}
	return nil
}

// HasLinks reports whether the plan contributes any joins at all.
func (p *Plan) HasLinks() bool { return len(p.nodes) > 0 }

// parentRef returns the SQL table reference (alias or bare table name) the
// FK comparison in n's ON clause should read from.
func (n *node) parentRef(rootTable string) string {
	if n.parent == nil {
		return rootTable
	}
	return n.parent.alias
}

// SelectSQL renders the projection list and FROM clause (root table plus
// every LEFT JOIN in the plan) for a read against rootTable.
func (p *Plan) SelectSQL(d dialect.Dialect, rootTable string) (columns string, from string) {
	var cols []string
	for _, c := range p.root.Columns {
		cols = append(cols, fmt.Sprintf("%s.%s AS %s", d.Quote(rootTable), d.Quote(c.ColumnName), d.Quote(c.ColumnName)))
	}

	fromParts := []string{d.Quote(rootTable)}
	for _, n := range p.nodes {
		for _, c := range n.target.Columns {
			cols = append(cols, fmt.Sprintf("%s.%s AS %s", d.Quote(n.alias), d.Quote(c.ColumnName), d.Quote(n.prefix+c.ColumnName)))
		}
		on := fmt.Sprintf("%s.%s = %s.%s", d.Quote(n.alias), d.Quote(n.target.PrimaryKey.ColumnName), d.Quote(n.parentRef(rootTable)), d.Quote(n.fk))
		fromParts = append(fromParts, fmt.Sprintf("LEFT JOIN %s AS %s ON %s", d.Quote(n.target.TableName), d.Quote(n.alias), on))
	}

	return strings.Join(cols, ", "), strings.Join(fromParts, " ")
}

// Hydrate assembles link fields on rootVal from one result row, given the
// row's column names and already-scanned raw values (same order).
// Nodes whose joined primary key came back NULL (LEFT JOIN miss) are left
// absent rather than materialized as an empty struct.
func (p *Plan) Hydrate(reg *typeregistry.Registry, rowCols []string, rawVals []any, rootVal reflect.Value) error {
	values := make(map[string]any, len(rowCols))
	for i, name := range rowCols {
		values[name] = rawVals[i]
	}

	if err := rowops.ScanRow(reg, p.root, rowCols, rawVals, rootVal); err != nil {
		return err
	}

	structVals := map[*node]reflect.Value{}
	var resolve func(n *node) reflect.Value
	resolve = func(n *node) reflect.Value {
		if v, ok := structVals[n]; ok {
			return v
		}
		var parent reflect.Value
		if n.parent == nil {
			parent = rootVal
		} else {
			parent = resolve(n.parent)
		}
		fv := parent.FieldByIndex(n.index)
		if fv.Kind() == reflect.Ptr {
			if fv.IsNil() {
				fv.Set(reflect.New(fv.Type().Elem()))
			}
			fv = fv.Elem()
		}
		structVals[n] = fv
		return fv
	}

	for _, n := range p.nodes {
		pkRaw, ok := values[n.prefix+n.target.PrimaryKey.ColumnName]
		if !ok || pkRaw == nil {
			continue // LEFT JOIN miss: leave the link field absent
		}
		target := resolve(n)
		for _, c := range n.target.Columns {
			raw, ok := values[n.prefix+c.ColumnName]
			if !ok {
				continue
			}
			if err := rowops.DeserializeColumn(reg, c, target, raw); err != nil {
				return err
			}
		}
	}
	return nil
}
