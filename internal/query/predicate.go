// Package query implements the composable predicate and query AST: a tree
// of tagged-variant nodes that is serialized into dialect-specific SQL and
// parameter lists only at submission time, grounded on the teacher's
// tagged-variant core.Operation{Kind, SQL, ...} model (Pieczasz-smf's
// internal/core/operation.go) generalized from one-shot migration
// statements to reusable predicate/query trees.
package query

import (
	"fmt"
	"strings"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
)

// Operand is either a bound literal value or a column reference. A literal
// becomes a placeholder + bound parameter; a column reference is emitted
// verbatim (quoted) and never bound.
type Operand struct {
	column string
	value  any
	isCol  bool
}

// Val wraps a literal value as a bound-parameter operand.
func Val(v any) Operand { return Operand{value: v} }

// Pre marks column as a column-reference operand (the "pre(column_name)"
// constructor from spec.md §4.4) so the comparison's right-hand side is
// emitted as an identifier instead of a bound parameter.
func Pre(column string) Operand { return Operand{column: column, isCol: true} }

func (o Operand) render(d dialect.Dialect, args *[]any) string {
	if o.isCol {
		return d.Quote(o.column)
	}
	*args = append(*args, o.value)
	return d.Placeholder(len(*args))
}

// Predicate is a node in the composable condition AST.
type Predicate interface {
	Build(d dialect.Dialect, args *[]any) string
}

type cmp struct {
	column string
	op     string
	rhs    Operand
}

func (c cmp) Build(d dialect.Dialect, args *[]any) string {
	return fmt.Sprintf("%s %s %s", d.Quote(c.column), c.op, c.rhs.render(d, args))
}

func Eq(column string, rhs Operand) Predicate { return cmp{column, "=", rhs} }
func Ne(column string, rhs Operand) Predicate { return cmp{column, "<>", rhs} }
func Gt(column string, rhs Operand) Predicate { return cmp{column, ">", rhs} }
func Ge(column string, rhs Operand) Predicate { return cmp{column, ">=", rhs} }
func Lt(column string, rhs Operand) Predicate { return cmp{column, "<", rhs} }
func Le(column string, rhs Operand) Predicate { return cmp{column, "<=", rhs} }

type like struct {
	column  string
	pattern string
}

func Like(column, pattern string) Predicate { return like{column, pattern} }

func (l like) Build(d dialect.Dialect, args *[]any) string {
	*args = append(*args, l.pattern)
	return fmt.Sprintf("%s LIKE %s", d.Quote(l.column), d.Placeholder(len(*args)))
}

type in struct {
	column string
	values []any
}

// In renders "column IN (?, ?, ...)". An empty values slice renders a
// predicate that never matches, avoiding a malformed "IN ()".
func In(column string, values []any) Predicate { return in{column, values} }

func (i in) Build(d dialect.Dialect, args *[]any) string {
	if len(i.values) == 0 {
		return "1 = 0"
	}
	phs := make([]string, len(i.values))
	for idx, v := range i.values {
		*args = append(*args, v)
		phs[idx] = d.Placeholder(len(*args))
	}
	return fmt.Sprintf("%s IN (%s)", d.Quote(i.column), strings.Join(phs, ", "))
}

type between struct {
	column   string
	low, high any
}

func Between(column string, low, high any) Predicate { return between{column, low, high} }

func (b between) Build(d dialect.Dialect, args *[]any) string {
	*args = append(*args, b.low)
	lowPh := d.Placeholder(len(*args))
	*args = append(*args, b.high)
	highPh := d.Placeholder(len(*args))
	return fmt.Sprintf("%s BETWEEN %s AND %s", d.Quote(b.column), lowPh, highPh)
}

type logical struct {
	op       string
	children []Predicate
}

func And(preds ...Predicate) Predicate { return logical{"AND", preds} }
func Or(preds ...Predicate) Predicate  { return logical{"OR", preds} }

func (l logical) Build(d dialect.Dialect, args *[]any) string {
	if len(l.children) == 0 {
		return "1 = 1"
	}
	parts := make([]string, len(l.children))
	for i, c := range l.children {
		parts[i] = "(" + c.Build(d, args) + ")"
	}
	return strings.Join(parts, " "+l.op+" ")
}

type not struct{ inner Predicate }

func Not(p Predicate) Predicate { return not{p} }

func (n not) Build(d dialect.Dialect, args *[]any) string {
	return "NOT (" + n.inner.Build(d, args) + ")"
}
