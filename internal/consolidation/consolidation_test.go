package consolidation

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

func testEngine() (*Engine, *memstore.Store) {
	s := memstore.New(types.Capabilities{SupportsVectorSearch: true})
	cfg := config.DefaultConfig().Consolidation
	return New(s, cfg, NewDefaultSummarizer()), s
}

func mkRecord(id string, importance float64, embedding []float64, now time.Time) *types.Record {
	return &types.Record{
		ID:           id,
		Content:      "memory content " + id,
		Type:         types.KindEpisodic,
		Importance:   importance,
		Strength:     0.9,
		Embedding:    embedding,
		CreatedAt:    now,
		LastAccessed: now,
		LastDecayed:  now,
		Tier:         types.TierWarm,
		State:        types.StateActive,
	}
}

func TestSingletonClusterSkips(t *testing.T) {
	e, _ := testEngine()
	now := time.Now()
	r := mkRecord("mem_1_aaaaaaaa", 0.5, []float64{1, 0, 0}, now)
	clusters := e.cluster([]*types.Record{r}, now)
	require.Len(t, clusters, 1)
	d := e.decideStrategy(clusters[0])
	assert.Equal(t, StrategySkip, d.Strategy)
}

func TestSimilarRecordsClusterTogether(t *testing.T) {
	e, _ := testEngine()
	now := time.Now()
	a := mkRecord("mem_1_aaaaaaaa", 0.2, []float64{1, 0, 0}, now)
	b := mkRecord("mem_2_bbbbbbbb", 0.2, []float64{0.99, 0.01, 0}, now)
	c := mkRecord("mem_3_cccccccc", 0.2, []float64{-1, 0, 0}, now)

	clusters := e.cluster([]*types.Record{a, b, c}, now)
	var sizes []int
	for _, cl := range clusters {
		sizes = append(sizes, len(cl.Members))
	}
	assert.Contains(t, sizes, 2)
	assert.Contains(t, sizes, 1)
}

func TestSmallClusterLinks(t *testing.T) {
	e, _ := testEngine()
	c := Cluster{Members: []*types.Record{
		mkRecord("mem_1_aaaaaaaa", 0.9, nil, time.Now()),
		mkRecord("mem_2_bbbbbbbb", 0.9, nil, time.Now()),
	}}
	d := e.decideStrategy(c)
	assert.Equal(t, StrategyLink, d.Strategy)
}

func TestLowImportanceClusterSummarizes(t *testing.T) {
	e, _ := testEngine()
	now := time.Now()
	members := []*types.Record{
		mkRecord("mem_1_aaaaaaaa", 0.1, nil, now),
		mkRecord("mem_2_bbbbbbbb", 0.2, nil, now),
		mkRecord("mem_3_cccccccc", 0.1, nil, now),
		mkRecord("mem_4_dddddddd", 0.1, nil, now),
	}
	d := e.decideStrategy(Cluster{Members: members})
	assert.Equal(t, StrategySummarize, d.Strategy)
}

func TestMixedImportanceClusterKeepsAndSummarizes(t *testing.T) {
	e, _ := testEngine()
	now := time.Now()
	members := []*types.Record{
		mkRecord("mem_1_aaaaaaaa", 0.9, nil, now),
		mkRecord("mem_2_bbbbbbbb", 0.2, nil, now),
		mkRecord("mem_3_cccccccc", 0.2, nil, now),
		mkRecord("mem_4_dddddddd", 0.9, nil, now),
	}
	d := e.decideStrategy(Cluster{Members: members})
	assert.Equal(t, StrategyKeepAndSummarize, d.Strategy)
	assert.Len(t, d.Keep, 2)
	assert.Len(t, d.Summarize, 2)
}

func TestRunSummarizesAndDeletesOriginals(t *testing.T) {
	e, s := testEngine()
	ctx := context.Background()
	now := time.Now()

	members := []*types.Record{
		mkRecord("mem_1_aaaaaaaa", 0.1, []float64{1, 0, 0}, now),
		mkRecord("mem_2_bbbbbbbb", 0.1, []float64{0.98, 0.02, 0}, now),
		mkRecord("mem_3_cccccccc", 0.1, []float64{0.97, 0.03, 0}, now),
		mkRecord("mem_4_dddddddd", 0.1, []float64{0.99, 0.01, 0}, now),
	}
	for _, m := range members {
		require.NoError(t, s.Put(ctx, m))
	}

	res, err := e.Run(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summarized)

	for _, m := range members {
		_, err := s.GetByID(ctx, m.ID)
		assert.Error(t, err)
	}

	remaining, err := s.ListByFilter(ctx, types.Filter{Tier: types.TierWarm})
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, 0.1, remaining[0].Importance)
}

func TestDefaultSummarizerIsDeterministic(t *testing.T) {
	s := NewDefaultSummarizer()
	contents := []string{"fixed the login bug", "deployed the login fix to production"}

	out1, err := s.Summarize(context.Background(), contents)
	require.NoError(t, err)
	out2, err := s.Summarize(context.Background(), contents)
	require.NoError(t, err)
	assert.Equal(t, out1, out2)
}

func TestShouldTriggerByRecordCount(t *testing.T) {
	cfg := config.DefaultConfig().Consolidation
	now := time.Now()
	assert.True(t, ShouldTrigger(cfg, cfg.TriggerRecordCount+1, 0, 0, now, now))
	assert.False(t, ShouldTrigger(cfg, 1, 0, 0, now, now))
}
