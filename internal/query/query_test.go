package query_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/FxRayHughes/ptcmapper/internal/dialect/sqlite"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
	"github.com/FxRayHughes/ptcmapper/internal/query"
)

func mustDialect(t *testing.T) dialect.Dialect {
	t.Helper()
	d, err := dialect.Get(dialect.SQLite)
	require.NoError(t, err)
	return d
}

func TestSimpleEqFilter(t *testing.T) {
	d := mustDialect(t)
	q := query.New("players").Filter(query.Eq("name", query.Val("Herobrine")))

	sql, args := q.Build(d)
	require.Contains(t, sql, "SELECT * FROM `players` WHERE")
	require.Contains(t, sql, "`name` = ?")
	require.Equal(t, []any{"Herobrine"}, args)
}

func TestAndOrCombination(t *testing.T) {
	d := mustDialect(t)
	q := query.New("players").Filter(
		query.And(
			query.Eq("world", query.Val("overworld")),
			query.Or(query.Gt("level", query.Val(10)), query.Lt("level", query.Val(2))),
		),
	)

	sql, args := q.Build(d)
	require.Contains(t, sql, "AND")
	require.Contains(t, sql, "OR")
	require.Equal(t, []any{"overworld", 10, 2}, args)
}

func TestColumnReferenceOperandIsNotBound(t *testing.T) {
	d := mustDialect(t)
	q := query.New("players").Filter(query.Eq("updated_at", query.Pre("created_at")))

	sql, args := q.Build(d)
	require.Contains(t, sql, "`updated_at` = `created_at`")
	require.Empty(t, args)
}

func TestInWithEmptyValuesNeverMatches(t *testing.T) {
	d := mustDialect(t)
	q := query.New("players").Filter(query.In("id", nil))

	sql, args := q.Build(d)
	require.Contains(t, sql, "1 = 0")
	require.Empty(t, args)
}

func TestParameterOrderSubqueryThenOnThenWhere(t *testing.T) {
	d := mustDialect(t)

	sub := query.New("guilds").Filter(query.Eq("tag", query.Val("SUB")))
	j := query.SubQuery(sub, "g").On(query.Eq("g.id", query.Val("ON-VAL")))

	q := query.New("players").Join(j).Filter(query.Eq("name", query.Val("WHERE-VAL")))

	_, args := q.Build(d)
	require.Equal(t, []any{"SUB", "ON-VAL", "WHERE-VAL"}, args)
}

func TestPaginateEmitsLimitOffset(t *testing.T) {
	d := mustDialect(t)
	q := query.New("players").Paginate(10, 20)

	sql, _ := q.Build(d)
	require.Contains(t, sql, "LIMIT 10 OFFSET 20")
}
