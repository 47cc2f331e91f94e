package retrieval

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memcore-dev/memcore/internal/config"
	"github.com/memcore-dev/memcore/internal/consolidation"
	"github.com/memcore-dev/memcore/internal/decay"
	"github.com/memcore-dev/memcore/internal/embedcache"
	memerrors "github.com/memcore-dev/memcore/internal/errors"
	"github.com/memcore-dev/memcore/internal/forgetting"
	"github.com/memcore-dev/memcore/internal/idlock"
	"github.com/memcore-dev/memcore/internal/maintenance"
	"github.com/memcore-dev/memcore/internal/overflow"
	"github.com/memcore-dev/memcore/internal/placement"
	"github.com/memcore-dev/memcore/internal/review"
	"github.com/memcore-dev/memcore/internal/router"
	"github.com/memcore-dev/memcore/internal/store/memstore"
	"github.com/memcore-dev/memcore/pkg/types"
)

type fakeEmbedder struct {
	calls int
	vec   []float64
}

func (e *fakeEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	e.calls++
	return e.vec, nil
}

func testFacade(t *testing.T) *Facade {
	t.Helper()
	cfg := config.DefaultConfig()

	hot := memstore.New(types.Capabilities{})
	warm := memstore.New(types.Capabilities{SupportsVectorSearch: true})
	cold := memstore.New(types.Capabilities{})

	r := router.New(hot, warm, cold, cfg.Control.SearchDeadline, cfg.Router)
	locks := idlock.New()
	reviewScheduler := review.New(cfg.Review)
	forgettingEngine := forgetting.New(cfg.Forgetting, cfg.Scoring)

	overflowPath := filepath.Join(t.TempDir(), "overflow.ndjson")
	overflowLog, err := overflow.New(overflowPath, nil)
	require.NoError(t, err)

	orch := maintenance.New(
		cfg.Maintenance,
		hot, warm, cold,
		decay.New(cfg.Decay, cfg.Scoring),
		reviewScheduler,
		consolidation.New(warm, cfg.Consolidation, consolidation.NewDefaultSummarizer()),
		forgettingEngine,
		placement.New(hot, warm, cold, cfg.Placement, locks),
	)

	return New(r, hot, warm, cold, cfg.Scoring, reviewScheduler, forgettingEngine, overflowLog, orch, locks, nil, nil)
}

func TestCreatePersistsAndInitializesReview(t *testing.T) {
	f := testFacade(t)
	ctx := context.Background()

	r, overflowed, err := f.Create(ctx, CreateInput{
		Content: "remember to water the plants",
		Type:    types.KindEpisodic,
	})
	require.NoError(t, err)
	assert.False(t, overflowed)
	require.NotNil(t, r.ReviewState)
	assert.Equal(t, 1.0, r.ReviewState.IntervalDays)

	got, err := f.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, 1, got.AccessCount)
}

func TestCreateHighImportanceRoutesToHot(t *testing.T) {
	f := testFacade(t)
	ctx := context.Background()

	salience := 0.95
	r, _, err := f.Create(ctx, CreateInput{
		Content:  "critical system directive",
		Type:     types.KindSystem,
		Salience: &salience,
	})
	require.NoError(t, err)
	assert.Equal(t, types.TierHot, r.Tier)
}

func TestUpdateContentRescoresImportance(t *testing.T) {
	f := testFacade(t)
	ctx := context.Background()

	r, _, err := f.Create(ctx, CreateInput{Content: "draft note", Type: types.KindSemantic})
	require.NoError(t, err)
	assert.Equal(t, 0.0, r.PrivacyMarkers.PIIScore)

	newContent := "my email is person@example.com and SSN 123-45-6789"
	updated, err := f.Update(ctx, r.ID, UpdateInput{Content: &newContent})
	require.NoError(t, err)
	assert.Greater(t, updated.PrivacyMarkers.PIIScore, 0.0)
}

func TestDeleteSoftTombstonesByDefault(t *testing.T) {
	f := testFacade(t)
	ctx := context.Background()

	r, _, err := f.Create(ctx, CreateInput{Content: "ephemeral", Type: types.KindEpisodic})
	require.NoError(t, err)

	require.NoError(t, f.Delete(ctx, r.ID, false))

	_, err = f.Get(ctx, r.ID)
	require.Error(t, err)
	assert.Equal(t, memerrors.PrivacyExpired, memerrors.GetKind(err))
}

func TestDeleteForceHardDeletes(t *testing.T) {
	f := testFacade(t)
	ctx := context.Background()

	r, _, err := f.Create(ctx, CreateInput{Content: "ephemeral", Type: types.KindEpisodic})
	require.NoError(t, err)

	require.NoError(t, f.Delete(ctx, r.ID, true))

	_, err = f.Get(ctx, r.ID)
	assert.Error(t, err)
}

func TestTriggerMaintenanceUpdatesStats(t *testing.T) {
	f := testFacade(t)
	ctx := context.Background()

	_, err := f.TriggerMaintenance(ctx)
	require.NoError(t, err)

	stats, err := f.GetStats(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.LastCycleDuration.Nanoseconds(), int64(0))
}

func TestCreateWithoutEmbeddingUsesEmbedderAndCaches(t *testing.T) {
	f := testFacade(t)
	embedder := &fakeEmbedder{vec: []float64{0.1, 0.2, 0.3}}
	f.embedder = embedder
	f.embedCache = embedcache.New(0, 0)
	ctx := context.Background()

	r1, _, err := f.Create(ctx, CreateInput{Content: "shared content", Type: types.KindSemantic})
	require.NoError(t, err)
	assert.Equal(t, embedder.vec, r1.Embedding)
	assert.Equal(t, 1, embedder.calls)

	r2, _, err := f.Create(ctx, CreateInput{Content: "shared content", Type: types.KindSemantic})
	require.NoError(t, err)
	assert.Equal(t, embedder.vec, r2.Embedding)
	assert.Equal(t, 1, embedder.calls, "second create should hit the embedding cache, not call the embedder again")
}

func TestRelatedGraphWalksLinkedRecords(t *testing.T) {
	f := testFacade(t)
	ctx := context.Background()

	a, _, err := f.Create(ctx, CreateInput{Content: "a", Type: types.KindEpisodic})
	require.NoError(t, err)
	b, _, err := f.Create(ctx, CreateInput{Content: "b", Type: types.KindEpisodic})
	require.NoError(t, err)

	a.AddLink(b.ID)
	require.NoError(t, f.router.Put(ctx, a))

	related, err := f.RelatedGraph(ctx, a.ID, 1)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, b.ID, related[0].ID)
}

func TestGetStatsReportsPerTierCounts(t *testing.T) {
	f := testFacade(t)
	ctx := context.Background()

	_, _, err := f.Create(ctx, CreateInput{Content: "a", Type: types.KindEpisodic})
	require.NoError(t, err)

	stats, err := f.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.HotCount+stats.WarmCount+stats.ColdCount)
}
