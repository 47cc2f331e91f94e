// Package retrieval implements the public retrieval API (C10, §4.10): the
// facade every caller (the control surface, a future MCP tool front end)
// goes through for create/get/search/update/delete/stats, wired over the
// tier router, the scoring engine, the review scheduler, the overflow log,
// and the maintenance orchestrator's on-demand trigger.
package retrieval

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/memcore-dev/memcore/internal/config"
	"github.com/memcore-dev/memcore/internal/consolidation"
	"github.com/memcore-dev/memcore/internal/embedcache"
	memerrors "github.com/memcore-dev/memcore/internal/errors"
	"github.com/memcore-dev/memcore/internal/forgetting"
	"github.com/memcore-dev/memcore/internal/idlock"
	"github.com/memcore-dev/memcore/internal/logging"
	"github.com/memcore-dev/memcore/internal/maintenance"
	"github.com/memcore-dev/memcore/internal/overflow"
	"github.com/memcore-dev/memcore/internal/review"
	"github.com/memcore-dev/memcore/internal/router"
	"github.com/memcore-dev/memcore/internal/scoring"
	"github.com/memcore-dev/memcore/internal/store"
	"github.com/memcore-dev/memcore/pkg/types"
)

const op = "retrieval"

// Embedder is the external text->vector function (§6's "Embedding
// provider"). Create calls it only when a caller submits content without a
// precomputed embedding; the result is cached read-mostly by text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// CreateInput carries the fields a caller supplies for a new record;
// everything else (id, timestamps, derived scores) is computed by Create.
type CreateInput struct {
	Content       string
	Type          types.Kind
	Embedding     []float64
	Tags          []string
	Salience      *float64
	ContextCosine *float64
	SessionActive bool
}

// UpdateInput carries the fields a caller may change; nil/zero-value
// pointers leave the corresponding field untouched. Changing Content or
// Embedding triggers re-scoring (§4.10).
type UpdateInput struct {
	Content       *string
	Embedding     []float64
	Tags          []string
	Salience      *float64
	ContextCosine *float64
}

// Stats reports the per-tier and overflow counters the control surface
// exposes (§6).
type Stats struct {
	HotCount, WarmCount, ColdCount int
	HotBytes, WarmBytes, ColdBytes int64
	AvgLatency                     time.Duration
	LastCycleDuration              time.Duration
	OverflowDepth                  int
}

// Facade is the retrieval API: the single entry point wiring storage,
// scoring, review, the overflow log, and on-demand maintenance together.
type Facade struct {
	router          *router.Router
	hot, warm, cold store.Store
	scoringCfg      config.ScoringConfig
	reviewScheduler *review.Scheduler
	forgettingEngine *forgetting.Engine
	overflowLog     *overflow.Log
	orchestrator    *maintenance.Orchestrator
	locks           *idlock.Table

	embedder   Embedder
	embedCache *embedcache.Cache

	latencyEWMA int64 // nanoseconds, stored as int64 for atomic access
	lastCycle   int64 // nanoseconds
}

// New creates a retrieval facade over the already-wired components.
// embedder and embedCache are both optional (nil is fine): without an
// embedder, Create stores whatever embedding the caller supplied, which may
// be none.
func New(
	r *router.Router,
	hot, warm, cold store.Store,
	scoringCfg config.ScoringConfig,
	reviewScheduler *review.Scheduler,
	forgettingEngine *forgetting.Engine,
	overflowLog *overflow.Log,
	orchestrator *maintenance.Orchestrator,
	locks *idlock.Table,
	embedder Embedder,
	embedCache *embedcache.Cache,
) *Facade {
	return &Facade{
		router:           r,
		hot:              hot,
		warm:             warm,
		cold:             cold,
		scoringCfg:       scoringCfg,
		reviewScheduler:  reviewScheduler,
		forgettingEngine: forgettingEngine,
		overflowLog:      overflowLog,
		orchestrator:     orchestrator,
		locks:            locks,
		embedder:         embedder,
		embedCache:       embedCache,
	}
}

// resolveEmbedding returns in's embedding if present, otherwise calls the
// configured embedder (through the shared cache) when content needs one
// for C6 clustering and semantic search eligibility (§3.1).
func (f *Facade) resolveEmbedding(ctx context.Context, in CreateInput) ([]float64, error) {
	if len(in.Embedding) > 0 || f.embedder == nil {
		return in.Embedding, nil
	}

	if f.embedCache != nil {
		if cached, _, ok := f.embedCache.Get(in.Content); ok {
			return cached, nil
		}
	}

	vec, err := f.embedder.Embed(ctx, in.Content)
	if err != nil {
		return nil, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	if f.embedCache != nil {
		f.embedCache.Set(in.Content, vec)
	}
	return vec, nil
}

func (f *Facade) observeLatency(start time.Time) {
	d := time.Since(start).Nanoseconds()
	for {
		old := atomic.LoadInt64(&f.latencyEWMA)
		var next int64
		if old == 0 {
			next = d
		} else {
			next = old + (d-old)/5 // alpha = 0.2
		}
		if atomic.CompareAndSwapInt64(&f.latencyEWMA, old, next) {
			return
		}
	}
}

// Create scores and persists a new record (§4.10). If every tier write
// fails, the record is appended to the overflow log instead of failing
// the call outright, and Create returns successfully with the overflow
// flag set via the returned bool.
func (f *Facade) Create(ctx context.Context, in CreateInput) (*types.Record, bool, error) {
	defer f.observeLatency(time.Now())

	if !in.Type.Valid() {
		return nil, false, memerrors.InvalidInputf(op, "invalid record type %q", in.Type)
	}
	now := time.Now()

	id, err := types.NewID(now)
	if err != nil {
		return nil, false, memerrors.Wrap(memerrors.Internal, op, err)
	}

	embedding, err := f.resolveEmbedding(ctx, in)
	if err != nil {
		return nil, false, err
	}

	r := &types.Record{
		ID:           id,
		Content:      in.Content,
		Type:         in.Type,
		Embedding:    embedding,
		CreatedAt:    now,
		LastAccessed: now,
		LastDecayed:  now,
		Strength:     1.0,
		State:        types.StateActive,
	}
	for _, tag := range in.Tags {
		r.AddTag(tag)
	}

	hasPersonalTag := r.HasTag("personal")
	r.PrivacyMarkers.PIIScore = scoring.DetectPII(r.Content, hasPersonalTag)
	r.PrivacyMarkers.FinancialScore = scoring.DetectFinancial(r.Content)

	importance, err := scoring.Importance(f.scoringCfg, scoring.ImportanceInput{
		AgeDays:       0,
		AccessCount:   0,
		Salience:      in.Salience,
		ContextCosine: in.ContextCosine,
	})
	if err != nil {
		return nil, false, err
	}
	r.Importance = importance

	r.Tier = router.WriteTier(importance, in.Type, in.SessionActive)
	if in.SessionActive {
		r.AddTag(types.TagSessionActive)
	}

	f.reviewScheduler.Initialize(r, now)

	if err := f.router.Put(ctx, r); err != nil {
		logging.RetrievalLogger.WithError(err)
		if f.overflowLog != nil {
			if oerr := f.overflowLog.Append(overflow.Entry{Record: r, QueuedAt: now.Format(time.RFC3339)}); oerr != nil {
				return nil, false, memerrors.Wrap(memerrors.BackendUnavailable, op, oerr)
			}
			return r, true, nil
		}
		return nil, false, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	return r, false, nil
}

// Get fetches a record by id, reinforces it and advances its review state
// on access (§4.1, §4.7, §4.10). A tombstoned record is queryable by id
// only during its grace window, yielding PrivacyExpired rather than its
// content; once grace elapses it behaves as not found (§4.8).
func (f *Facade) Get(ctx context.Context, id string) (*types.Record, error) {
	defer f.observeLatency(time.Now())

	f.locks.Lock(id)
	defer f.locks.Unlock(id)

	now := time.Now()

	r, err := f.router.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.IsTombstoned() {
		if f.forgettingEngine.InGracePeriod(r, now) {
			return nil, memerrors.PrivacyExpiredf(op, "record %s is tombstoned", id)
		}
		return nil, memerrors.NotFoundf(op, "record %s not found", id)
	}

	scoring.Reinforce(r, now)
	f.reviewScheduler.RecordReview(r, now)
	if err := f.router.Put(ctx, r); err != nil {
		logging.RetrievalLogger.WithError(err)
	}
	return r, nil
}

// Search ranks records by embedding/query relevance fanned out across
// tiers, re-ranked through the review scheduler's query-rank blend when a
// record has an active review schedule (§4.7, §4.10).
func (f *Facade) Search(ctx context.Context, embedding []float64, query string, k int, sessionScope bool) (types.SearchResponse, error) {
	defer f.observeLatency(time.Now())

	resp, err := f.router.Search(ctx, embedding, query, k, sessionScope)
	if err != nil {
		return types.SearchResponse{}, err
	}

	now := time.Now()
	for i := range resp.Results {
		rec := resp.Results[i].Record
		if rec.ReviewState != nil {
			resp.Results[i].Score = f.reviewScheduler.QueryRank(rec, resp.Results[i].Relevance, now)
		}
	}
	sort.SliceStable(resp.Results, func(i, j int) bool { return resp.Results[i].Score > resp.Results[j].Score })
	return resp, nil
}

// Update applies in to the record at id. Changing Content or Embedding
// re-runs privacy detection and re-scores importance (§4.10).
func (f *Facade) Update(ctx context.Context, id string, in UpdateInput) (*types.Record, error) {
	defer f.observeLatency(time.Now())

	f.locks.Lock(id)
	defer f.locks.Unlock(id)

	r, err := f.router.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	rescore := false

	if in.Content != nil {
		r.Content = *in.Content
		rescore = true
	}
	if in.Embedding != nil {
		r.Embedding = in.Embedding
		rescore = true
	}
	if in.Tags != nil {
		r.Tags = make(map[string]struct{}, len(in.Tags))
		for _, tag := range in.Tags {
			r.AddTag(tag)
		}
	}

	if rescore {
		hasPersonalTag := r.HasTag("personal")
		r.PrivacyMarkers.PIIScore = scoring.DetectPII(r.Content, hasPersonalTag)
		r.PrivacyMarkers.FinancialScore = scoring.DetectFinancial(r.Content)

		ageDays := now.Sub(r.CreatedAt).Hours() / 24
		importance, err := scoring.Importance(f.scoringCfg, scoring.ImportanceInput{
			AgeDays:       ageDays,
			AccessCount:   r.AccessCount,
			Salience:      in.Salience,
			ContextCosine: in.ContextCosine,
		})
		if err != nil {
			return nil, err
		}
		r.Importance = importance
	}

	if err := f.router.Put(ctx, r); err != nil {
		return nil, memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	return r, nil
}

// Delete removes a record. By default it soft-deletes (tombstones,
// honoring the never-forget archive cap); force hard-deletes immediately
// regardless of protection status, per an explicit caller request.
func (f *Facade) Delete(ctx context.Context, id string, force bool) error {
	defer f.observeLatency(time.Now())

	f.locks.Lock(id)
	defer f.locks.Unlock(id)

	s, err := f.locateTier(ctx, id)
	if err != nil {
		return err
	}

	if force {
		return s.Delete(ctx, id)
	}

	r, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	f.forgettingEngine.Tombstone(r, time.Now())
	return s.Put(ctx, r)
}

// routerFetcher adapts the tier router to consolidation.RecordFetcher so
// RelatedGraph can walk links without caring which tier holds each node.
type routerFetcher struct {
	router *router.Router
}

func (f routerFetcher) FetchByID(ctx context.Context, id string) (*types.Record, error) {
	return f.router.GetByID(ctx, id)
}

// RelatedGraph returns the records reachable from id's links within
// maxDepth, walking across tiers (§9: link lookups go through C2).
func (f *Facade) RelatedGraph(ctx context.Context, id string, maxDepth int) ([]*types.Record, error) {
	if _, err := f.router.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return consolidation.RelatedGraph(ctx, routerFetcher{router: f.router}, id, maxDepth)
}

func (f *Facade) locateTier(ctx context.Context, id string) (store.Store, error) {
	for _, s := range []store.Store{f.hot, f.warm, f.cold} {
		if _, err := s.GetByID(ctx, id); err == nil {
			return s, nil
		}
	}
	return nil, memerrors.NotFoundf(op, "record %s not found in any tier", id)
}

// TriggerMaintenance runs one maintenance cycle on demand (§4.10).
func (f *Facade) TriggerMaintenance(ctx context.Context) (maintenance.CycleResult, error) {
	res, err := f.orchestrator.Trigger(ctx)
	if err == nil {
		atomic.StoreInt64(&f.lastCycle, res.Duration.Nanoseconds())
	}
	return res, err
}

// GetStats reports per-tier counts, the retrieval latency EWMA, the last
// maintenance cycle's duration, and the overflow log's current depth (§6).
func (f *Facade) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	count := func(tier types.Tier, s store.Store, dst *int) {
		defer wg.Done()
		n, err := s.Count(ctx)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		*dst = n
	}

	wg.Add(3)
	go count(types.TierHot, f.hot, &stats.HotCount)
	go count(types.TierWarm, f.warm, &stats.WarmCount)
	go count(types.TierCold, f.cold, &stats.ColdCount)
	wg.Wait()
	if firstErr != nil {
		return Stats{}, firstErr
	}

	stats.AvgLatency = time.Duration(atomic.LoadInt64(&f.latencyEWMA))
	stats.LastCycleDuration = time.Duration(atomic.LoadInt64(&f.lastCycle))

	if f.overflowLog != nil {
		depth, err := f.overflowLog.Depth()
		if err != nil {
			logging.RetrievalLogger.WithError(err)
		}
		stats.OverflowDepth = depth
	}
	return stats, nil
}
