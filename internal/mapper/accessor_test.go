package mapper_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapOfIsLiveAndVisibleToFindByID(t *testing.T) {
	m := newTestMapper(t)
	ctx := context.Background()

	id, err := m.InsertAndGetKey(ctx, &player{Name: "Percival"})
	require.NoError(t, err)

	scores, err := m.MapOf(ctx, id, "Scores")
	require.NoError(t, err)
	require.NoError(t, scores.Put(ctx, "lang", int64(1)))
	require.NoError(t, scores.Put(ctx, "volume", int64(80)))

	got, ok, err := m.FindByID(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, map[string]int64{"lang": 1, "volume": 80}, got.Scores)
}

func TestListOfAppendIsVisibleToFindByID(t *testing.T) {
	m := newTestMapper(t)
	ctx := context.Background()

	id, err := m.InsertAndGetKey(ctx, &player{Name: "Gareth"})
	require.NoError(t, err)

	tags, err := m.ListOf(ctx, id, "Tags")
	require.NoError(t, err)
	require.NoError(t, tags.Append(ctx, "knight"))
	require.NoError(t, tags.Append(ctx, "squire"))

	got, ok, err := m.FindByID(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"knight", "squire"}, got.Tags)
}

func TestSetOfRejectsWrongFieldKind(t *testing.T) {
	m := newTestMapper(t)
	ctx := context.Background()

	id, err := m.InsertAndGetKey(ctx, &player{Name: "Bedivere"})
	require.NoError(t, err)

	_, err = m.SetOf(ctx, id, "Tags")
	require.Error(t, err)
}
