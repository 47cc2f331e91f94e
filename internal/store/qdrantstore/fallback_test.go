package qdrantstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	memerrors "github.com/memcore-dev/memcore/internal/errors"
	"github.com/memcore-dev/memcore/pkg/types"
)

func newTestFallback(t *testing.T) *FallbackStore {
	t.Helper()
	f, err := NewFallback(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestFallbackPutGetRoundTrip(t *testing.T) {
	f := newTestFallback(t)
	ctx := context.Background()

	r := &types.Record{ID: "mem_1_aaaaaaaa", Content: "hello", CreatedAt: time.Now()}
	require.NoError(t, f.Put(ctx, r))

	got, err := f.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
}

func TestFallbackGetByIDNotFound(t *testing.T) {
	f := newTestFallback(t)
	_, err := f.GetByID(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, memerrors.NotFound, memerrors.GetKind(err))
}

func TestFallbackPutUpserts(t *testing.T) {
	f := newTestFallback(t)
	ctx := context.Background()

	r := &types.Record{ID: "mem_1_aaaaaaaa", Content: "v1", CreatedAt: time.Now()}
	require.NoError(t, f.Put(ctx, r))
	r.Content = "v2"
	require.NoError(t, f.Put(ctx, r))

	got, err := f.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
}

func TestFallbackDeleteNotFound(t *testing.T) {
	f := newTestFallback(t)
	err := f.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, memerrors.NotFound, memerrors.GetKind(err))
}

func TestFallbackCountReflectsPuts(t *testing.T) {
	f := newTestFallback(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		r := &types.Record{ID: "mem_" + string(rune('a'+i)) + "_aaaaaaaa", CreatedAt: time.Now()}
		require.NoError(t, f.Put(ctx, r))
	}
	n, err := f.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestFallbackSearchByVectorRanksByCosineAndImportance(t *testing.T) {
	f := newTestFallback(t)
	ctx := context.Background()

	close := &types.Record{ID: "mem_a_aaaaaaaa", Embedding: []float64{1, 0}, Importance: 0.1, CreatedAt: time.Now()}
	far := &types.Record{ID: "mem_b_aaaaaaaa", Embedding: []float64{0, 1}, Importance: 0.9, CreatedAt: time.Now()}
	require.NoError(t, f.Put(ctx, close))
	require.NoError(t, f.Put(ctx, far))

	results, err := f.SearchByVector(ctx, []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, close.ID, results[0].Record.ID)
}

func TestFallbackCapabilitiesReportNoVectorSearch(t *testing.T) {
	f := newTestFallback(t)
	assert.False(t, f.Capabilities().SupportsVectorSearch)
}
