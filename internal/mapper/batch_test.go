package mapper_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertBatchAndFindByIDs(t *testing.T) {
	m := newTestMapper(t)
	ctx := context.Background()

	es := []*player{
		{Name: "Gareth", Tags: []string{"knight"}},
		{Name: "Tristan", Tags: []string{"knight", "musician"}},
	}
	require.NoError(t, m.InsertBatch(ctx, es))
	require.NotZero(t, es[0].ID)
	require.NotZero(t, es[1].ID)

	found, err := m.FindByIDs(ctx, []any{es[0].ID, es[1].ID})
	require.NoError(t, err)
	require.Len(t, found, 2)
}

func TestUpdateBatch(t *testing.T) {
	m := newTestMapper(t)
	ctx := context.Background()

	es := []*player{{Name: "Bedivere"}, {Name: "Galahad"}}
	require.NoError(t, m.InsertBatch(ctx, es))

	es[0].Name = "Sir Bedivere"
	es[1].Name = "Sir Galahad"
	require.NoError(t, m.UpdateBatch(ctx, es))

	got, ok, err := m.FindByID(ctx, es[0].ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Sir Bedivere", got.Name)
}

func TestDeleteByIDs(t *testing.T) {
	m := newTestMapper(t)
	ctx := context.Background()

	es := []*player{{Name: "Agravain"}, {Name: "Gaheris"}}
	require.NoError(t, m.InsertBatch(ctx, es))

	require.NoError(t, m.DeleteByIDs(ctx, []any{es[0].ID, es[1].ID}))

	remaining, err := m.FindByIDs(ctx, []any{es[0].ID, es[1].ID})
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestUpsertBatch(t *testing.T) {
	m := newTestMapper(t)
	ctx := context.Background()

	es := []*player{{Name: "Elaine"}}
	require.NoError(t, m.InsertBatch(ctx, es))

	es[0].Name = "Elaine of Astolat"
	require.NoError(t, m.UpsertBatch(ctx, es))

	got, ok, err := m.FindByID(ctx, es[0].ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Elaine of Astolat", got.Name)
}

// TestUpsertBatchOnBrandNewRowAssignsKeyBeforeReplacingCollections guards
// against a regression where UpsertBatch, unlike InsertBatch, never read a
// freshly-assigned auto-increment key back off the Upsert result before
// writing the entity's child-table collection rows — every collection row
// for a newly-upserted record got parent_id 0 instead of the real id.
func TestUpsertBatchOnBrandNewRowAssignsKeyBeforeReplacingCollections(t *testing.T) {
	m := newTestMapper(t)
	ctx := context.Background()

	es := []*player{{Name: "Percival", Tags: []string{"knight", "grail-seeker"}}}
	require.NoError(t, m.UpsertBatch(ctx, es))
	require.NotZero(t, es[0].ID, "upsert on a brand-new row must assign and report back the generated key")

	got, ok, err := m.FindByID(ctx, es[0].ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.ElementsMatch(t, []string{"knight", "grail-seeker"}, got.Tags)
}
