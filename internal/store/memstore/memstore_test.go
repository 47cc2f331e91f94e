package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memerrors "github.com/memcore-dev/memcore/internal/errors"
	"github.com/memcore-dev/memcore/pkg/types"
)

func TestPutGetRoundTrip(t *testing.T) {
	s := New(types.Capabilities{})
	ctx := context.Background()

	r := &types.Record{ID: "mem_1_aaaaaaaa", Content: "hello", CreatedAt: time.Now()}
	require.NoError(t, s.Put(ctx, r))

	got, err := s.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.Content, got.Content)

	got.Content = "mutated"
	got2, _ := s.GetByID(ctx, r.ID)
	assert.Equal(t, "hello", got2.Content)
}

func TestGetByIDNotFound(t *testing.T) {
	s := New(types.Capabilities{})
	_, err := s.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, memerrors.NotFound, memerrors.GetKind(err))
}

func TestDeleteNotFound(t *testing.T) {
	s := New(types.Capabilities{})
	err := s.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, memerrors.NotFound, memerrors.GetKind(err))
}

func TestListByFilter(t *testing.T) {
	s := New(types.Capabilities{})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &types.Record{ID: "mem_1_aaaaaaaa", Type: types.KindEpisodic, Tier: types.TierWarm, Importance: 0.9, CreatedAt: time.Now()}))
	require.NoError(t, s.Put(ctx, &types.Record{ID: "mem_2_bbbbbbbb", Type: types.KindSemantic, Tier: types.TierWarm, Importance: 0.1, CreatedAt: time.Now()}))

	out, err := s.ListByFilter(ctx, types.Filter{Type: types.KindEpisodic})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "mem_1_aaaaaaaa", out[0].ID)

	out, err = s.ListByFilter(ctx, types.Filter{MinImportance: 0.5})
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestSearchByVectorRanksByScore(t *testing.T) {
	s := New(types.Capabilities{SupportsVectorSearch: true})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &types.Record{ID: "mem_1_aaaaaaaa", Embedding: []float64{1, 0}, Importance: 0.1, CreatedAt: time.Now()}))
	require.NoError(t, s.Put(ctx, &types.Record{ID: "mem_2_bbbbbbbb", Embedding: []float64{0.9, 0.1}, Importance: 0.9, CreatedAt: time.Now()}))

	results, err := s.SearchByVector(ctx, []float64{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
}

func TestSearchByTextMatchesSubstring(t *testing.T) {
	s := New(types.Capabilities{})
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &types.Record{ID: "mem_1_aaaaaaaa", Content: "the deploy succeeded", CreatedAt: time.Now()}))
	require.NoError(t, s.Put(ctx, &types.Record{ID: "mem_2_bbbbbbbb", Content: "unrelated note", CreatedAt: time.Now()}))

	results, err := s.SearchByText(ctx, "deploy", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "mem_1_aaaaaaaa", results[0].Record.ID)
}

func TestCount(t *testing.T) {
	s := New(types.Capabilities{})
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, &types.Record{ID: "mem_1_aaaaaaaa", CreatedAt: time.Now()}))

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
