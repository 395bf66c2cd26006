package query

import (
	"fmt"
	"strings"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
)

// JoinKind distinguishes the three join node shapes spec.md §4.4 names.
type JoinKind int

const (
	// JoinTyped joins an entity's own table, contributing its table name.
	JoinTyped JoinKind = iota
	// JoinString is a raw "qualified AS alias" join target, used for
	// self-joins where two copies of the same table need distinct aliases.
	JoinString
	// JoinSubquery embeds a nested Query as a parenthesised derived table.
	JoinSubquery
)

// Join is one join clause of a Query.
type Join struct {
	Kind      JoinKind
	Table     string // JoinTyped/JoinString: "table" or "table AS alias"
	Subquery  *Query // JoinSubquery
	Alias     string // JoinSubquery: the derived table's alias
	on        []Predicate
	selectAs  []ColumnAlias
}

// ColumnAlias names a projected column, resolving same-name conflicts
// across join sides via selectAs((col, alias), ...).
type ColumnAlias struct {
	Column string
	Alias  string
}

// On adds an AND-combined join condition; it may be called multiple times.
func (j *Join) On(p Predicate) *Join {
	j.on = append(j.on, p)
	return j
}

// SelectAs declares the row shape for this join's contributed columns.
func (j *Join) SelectAs(pairs ...ColumnAlias) *Join {
	j.selectAs = append(j.selectAs, pairs...)
	return j
}

// InnerJoinTable builds a typed join against table.
func InnerJoinTable(table string) *Join { return &Join{Kind: JoinTyped, Table: table} }

// InnerJoinString builds a string-form join, e.g. for self-joins:
// InnerJoinString("players AS p2").
func InnerJoinString(qualified string) *Join { return &Join{Kind: JoinString, Table: qualified} }

// SubQuery embeds nested as a derived table "(nested) AS alias".
func SubQuery(nested *Query, alias string) *Join {
	return &Join{Kind: JoinSubquery, Subquery: nested, Alias: alias}
}

// OrderTerm is one ORDER BY clause entry.
type OrderTerm struct {
	Column string
	Desc   bool
}

// Query is the composable query AST: projection, filter, grouping,
// ordering, paging and joins, serialized to SQL only at Build time.
type Query struct {
	Table   string
	Columns []string
	Where   Predicate
	Joins   []*Join
	GroupBy []string
	OrderBy []OrderTerm
	Limit   int
	Offset  int
	hasLimit bool
}

// New starts a query against table.
func New(table string) *Query { return &Query{Table: table} }

// Rows declares the projected columns (spec.md §4.4's rows(cols...)).
func (q *Query) Rows(cols ...string) *Query {
	q.Columns = append(q.Columns, cols...)
	return q
}

func (q *Query) Filter(p Predicate) *Query {
	q.Where = p
	return q
}

func (q *Query) Join(j *Join) *Query {
	q.Joins = append(q.Joins, j)
	return q
}

func (q *Query) Group(cols ...string) *Query {
	q.GroupBy = append(q.GroupBy, cols...)
	return q
}

func (q *Query) OrderAsc(column string) *Query {
	q.OrderBy = append(q.OrderBy, OrderTerm{Column: column})
	return q
}

func (q *Query) OrderDesc(column string) *Query {
	q.OrderBy = append(q.OrderBy, OrderTerm{Column: column, Desc: true})
	return q
}

func (q *Query) Paginate(limit, offset int) *Query {
	q.Limit, q.Offset, q.hasLimit = limit, offset, true
	return q
}

// Build renders the full SELECT statement and its bound parameters.
//
// Parameter ordering follows spec.md §4.4: subquery parameters first (they
// appear in the FROM clause), then ON parameters, then outer WHERE
// parameters.
func (q *Query) Build(d dialect.Dialect) (string, []any) {
	var args []any
	var sb strings.Builder

	sb.WriteString("SELECT ")
	if len(q.Columns) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(quoteColumns(d, q.Columns), ", "))
	}

	sb.WriteString(" FROM ")
	sb.WriteString(d.Quote(q.Table))

	for _, j := range q.Joins {
		sb.WriteString(" INNER JOIN ")
		switch j.Kind {
		case JoinSubquery:
			sub, subArgs := j.Subquery.Build(d)
			args = append(args, subArgs...)
			sb.WriteString("(" + sub + ") AS " + d.Quote(j.Alias))
		case JoinString:
			sb.WriteString(j.Table)
		default:
			sb.WriteString(d.Quote(j.Table))
		}
		if len(j.on) > 0 {
			sb.WriteString(" ON ")
			onParts := make([]string, len(j.on))
			for i, p := range j.on {
				onParts[i] = "(" + p.Build(d, &args) + ")"
			}
			sb.WriteString(strings.Join(onParts, " AND "))
		}
	}

	if q.Where != nil {
		sb.WriteString(" WHERE ")
		sb.WriteString(q.Where.Build(d, &args))
	}

	if len(q.GroupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(quoteColumns(d, q.GroupBy), ", "))
	}

	if len(q.OrderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		terms := make([]string, len(q.OrderBy))
		for i, t := range q.OrderBy {
			dir := "ASC"
			if t.Desc {
				dir = "DESC"
			}
			terms[i] = fmt.Sprintf("%s %s", d.Quote(t.Column), dir)
		}
		sb.WriteString(strings.Join(terms, ", "))
	}

	if q.hasLimit {
		sb.WriteString(" ")
		sb.WriteString(d.LimitOffset(q.Limit, q.Offset))
	}

	return sb.String(), args
}

func quoteColumns(d dialect.Dialect, cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = d.Quote(c)
	}
	return out
}
