package decay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memcore-dev/memcore/internal/config"
	"github.com/memcore-dev/memcore/internal/store/memstore"
	"github.com/memcore-dev/memcore/pkg/types"
)

func testWorker() *Worker {
	cfg := config.DefaultConfig()
	return New(cfg.Decay, cfg.Scoring)
}

func TestTickSkipsRecordsBelowMinInterval(t *testing.T) {
	w := testWorker()
	s := memstore.New(types.Capabilities{})
	ctx := context.Background()
	now := time.Now()

	r := &types.Record{
		ID:          "mem_1_aaaaaaaa",
		Tier:        types.TierWarm,
		Strength:    0.9,
		LastDecayed: now.Add(-1 * time.Hour),
	}
	require.NoError(t, s.Put(ctx, r))

	res, err := w.Tick(ctx, s, types.TierWarm, now, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Processed)

	got, err := s.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.9, got.Strength)
}

func TestTickDecaysOverdueRecords(t *testing.T) {
	w := testWorker()
	s := memstore.New(types.Capabilities{})
	ctx := context.Background()
	now := time.Now()

	r := &types.Record{
		ID:          "mem_1_aaaaaaaa",
		Tier:        types.TierWarm,
		Strength:    0.9,
		Importance:  0.5,
		CreatedAt:   now.Add(-10 * 24 * time.Hour),
		LastDecayed: now.Add(-2 * 24 * time.Hour),
	}
	require.NoError(t, s.Put(ctx, r))

	res, err := w.Tick(ctx, s, types.TierWarm, now, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	got, err := s.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Less(t, got.Strength, 0.9)
	assert.WithinDuration(t, now, got.LastDecayed, time.Second)
}

func TestTickEnqueuesReviewOnArchiveActiveCrossing(t *testing.T) {
	w := testWorker()
	s := memstore.New(types.Capabilities{})
	ctx := context.Background()
	now := time.Now()

	r := &types.Record{
		ID:          "mem_1_aaaaaaaa",
		Tier:        types.TierCold,
		Strength:    0.32,
		Importance:  0.0,
		State:       types.StateActive,
		LastDecayed: now.Add(-36 * time.Hour),
	}
	require.NoError(t, s.Put(ctx, r))

	var flagged []string
	res, err := w.Tick(ctx, s, types.TierCold, now, func(id string) {
		flagged = append(flagged, id)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)

	got, err := s.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StateArchived, got.State)
	require.Len(t, flagged, 1)
	assert.Equal(t, r.ID, flagged[0])
}

func TestTickYieldsAtCountBudget(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Decay.YieldEvery = 1
	cfg.Decay.BatchSize = 10
	w := New(cfg.Decay, cfg.Scoring)

	s := memstore.New(types.Capabilities{})
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		id, _ := types.NewID(now)
		r := &types.Record{
			ID:          id,
			Tier:        types.TierWarm,
			Strength:    0.9,
			LastDecayed: now.Add(-2 * 24 * time.Hour),
		}
		require.NoError(t, s.Put(ctx, r))
	}

	res, err := w.Tick(ctx, s, types.TierWarm, now, nil)
	require.NoError(t, err)
	assert.True(t, res.Yielded)
	assert.Equal(t, 1, res.Processed)
}

func TestTickRespectsBatchSize(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Decay.BatchSize = 2
	w := New(cfg.Decay, cfg.Scoring)

	s := memstore.New(types.Capabilities{})
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		id, _ := types.NewID(now)
		r := &types.Record{
			ID:          id,
			Tier:        types.TierWarm,
			Strength:    0.9,
			LastDecayed: now.Add(-2 * 24 * time.Hour),
		}
		require.NoError(t, s.Put(ctx, r))
	}

	res, err := w.Tick(ctx, s, types.TierWarm, now, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Processed, 2)
}
