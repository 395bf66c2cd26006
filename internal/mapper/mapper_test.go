package mapper_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	_ "github.com/FxRayHughes/ptcmapper/internal/dialect/sqlite"

	"github.com/FxRayHughes/ptcmapper/internal/dialect"
	"github.com/FxRayHughes/ptcmapper/internal/mapper"
	"github.com/FxRayHughes/ptcmapper/internal/pool"
	"github.com/FxRayHughes/ptcmapper/internal/query"
)

// guild and player have no @id field: entity.Describe promotes the
// conventionally named "ID" field to an auto-increment primary key (see
// reflect.go's build()).
type guild struct {
	ID   int64
	Name string `ptc:"name"`
}

type player struct {
	ID     int64
	Name   string `ptc:"name"`
	Guild  *guild `ptc:"link"`
	Tags   []string
	Scores map[string]int64
}

func newTestMapper(t *testing.T) *mapper.Mapper[player] {
	t.Helper()
	d, err := dialect.Get(dialect.SQLite)
	require.NoError(t, err)

	p := pool.New()
	m, err := mapper.New[player](p, d, d.OpenDSN(dialect.ConnParams{}))
	require.NoError(t, err)
	return m
}

func TestInsertAndFindByID(t *testing.T) {
	m := newTestMapper(t)
	ctx := context.Background()

	e := &player{
		Name:   "Arthur",
		Guild:  &guild{Name: "Round Table"},
		Tags:   []string{"knight", "leader"},
		Scores: map[string]int64{"valor": 9, "wit": 7},
	}
	id, err := m.InsertAndGetKey(ctx, e)
	require.NoError(t, err)
	require.NotZero(t, id)
	require.Equal(t, id, e.ID)
	require.NotZero(t, e.Guild.ID)

	got, ok, err := m.FindByID(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Arthur", got.Name)
	require.NotNil(t, got.Guild)
	require.Equal(t, "Round Table", got.Guild.Name)
	require.ElementsMatch(t, []string{"knight", "leader"}, got.Tags)
	require.Equal(t, map[string]int64{"valor": 9, "wit": 7}, got.Scores)
}

func TestUpdateReplacesCollectionsAndCascadesLink(t *testing.T) {
	m := newTestMapper(t)
	ctx := context.Background()

	e := &player{Name: "Lancelot", Guild: &guild{Name: "Round Table"}, Tags: []string{"knight"}}
	id, err := m.InsertAndGetKey(ctx, e)
	require.NoError(t, err)

	e.Tags = []string{"knight", "champion"}
	e.Guild.Name = "Camelot"
	require.NoError(t, m.Update(ctx, e))

	got, ok, err := m.FindByID(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.ElementsMatch(t, []string{"knight", "champion"}, got.Tags)
	require.Equal(t, "Camelot", got.Guild.Name)
}

func TestDeleteByIDCascadesCollections(t *testing.T) {
	m := newTestMapper(t)
	ctx := context.Background()

	e := &player{Name: "Mordred", Tags: []string{"traitor"}}
	id, err := m.InsertAndGetKey(ctx, e)
	require.NoError(t, err)

	require.NoError(t, m.DeleteByID(ctx, id))

	_, ok, err := m.FindByID(ctx, id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFindAllAndDeleteWhere(t *testing.T) {
	m := newTestMapper(t)
	ctx := context.Background()

	for _, name := range []string{"Gawain", "Percival", "Bors"} {
		require.NoError(t, m.Insert(ctx, &player{Name: name}))
	}

	all, err := m.FindAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)

	require.NoError(t, m.DeleteWhere(ctx, query.Eq("name", query.Val("Bors"))))

	remaining, err := m.FindAll(ctx, nil)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
}

func TestExists(t *testing.T) {
	m := newTestMapper(t)
	ctx := context.Background()

	id, err := m.InsertAndGetKey(ctx, &player{Name: "Kay"})
	require.NoError(t, err)

	ok, err := m.Exists(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Exists(ctx, id+999)
	require.NoError(t, err)
	require.False(t, ok)
}
