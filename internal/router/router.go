// Package router implements the tier router (C3, §4.3): write-tier
// selection, get-by-id fan-out with promotion scheduling, and search
// fan-out across tiers with deadline-bound partial results.
package router

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/memcore-dev/memcore/internal/circuitbreaker"
	"github.com/memcore-dev/memcore/internal/config"
	memerrors "github.com/memcore-dev/memcore/internal/errors"
	"github.com/memcore-dev/memcore/internal/logging"
	"github.com/memcore-dev/memcore/internal/store"
	"github.com/memcore-dev/memcore/pkg/types"
)

const op = "router"

// PromotionHint is emitted when a get_by_id hit in cold crosses the
// access-count threshold that schedules a promotion review (§4.3), so the
// caller (the retrieval facade) can notify the placement engine without
// the router blocking the read on it.
type PromotionHint struct {
	ID       string
	FromTier types.Tier
}

// Router selects tiers for writes and fans reads out across tiers.
type Router struct {
	hot, warm, cold store.Store
	breakers        map[types.Tier]*circuitbreaker.CircuitBreaker
	searchDeadline  time.Duration
	promotions      chan PromotionHint
}

// New creates a Router over the three tier backends, each guarded by its
// own circuit breaker (§2) so a tier stuck failing doesn't eat the search
// deadline on every call while it's down.
func New(hot, warm, cold store.Store, searchDeadline time.Duration, cbCfg config.RouterConfig) *Router {
	newBreaker := func() *circuitbreaker.CircuitBreaker {
		return circuitbreaker.New(&circuitbreaker.Config{
			FailureThreshold:      cbCfg.FailureThreshold,
			SuccessThreshold:      cbCfg.SuccessThreshold,
			Timeout:               cbCfg.OpenTimeout,
			MaxConcurrentRequests: cbCfg.MaxConcurrentRequests,
			ShouldTrip:            memerrors.Retryable,
		})
	}
	return &Router{
		hot:  hot,
		warm: warm,
		cold: cold,
		breakers: map[types.Tier]*circuitbreaker.CircuitBreaker{
			types.TierHot:  newBreaker(),
			types.TierWarm: newBreaker(),
			types.TierCold: newBreaker(),
		},
		searchDeadline: searchDeadline,
		promotions:     make(chan PromotionHint, 256),
	}
}

// Promotions returns the channel promotion hints are delivered on. The
// maintenance orchestrator (or a dedicated drain goroutine) should consume
// it; hints are dropped if the channel is full rather than blocking reads.
func (r *Router) Promotions() <-chan PromotionHint {
	return r.promotions
}

// WriteTier chooses the initial tier for a new record (§4.3): importance
// bands, overridden to hot for working-type or session-active records.
func WriteTier(importance float64, recordType types.Kind, sessionActive bool) types.Tier {
	if recordType == types.KindWorking || sessionActive {
		return types.TierHot
	}
	switch {
	case importance >= 0.7:
		return types.TierHot
	case importance >= 0.3:
		return types.TierWarm
	default:
		return types.TierCold
	}
}

func (r *Router) storeFor(tier types.Tier) store.Store {
	switch tier {
	case types.TierHot:
		return r.hot
	case types.TierWarm:
		return r.warm
	case types.TierCold:
		return r.cold
	default:
		return nil
	}
}

// Put persists r to exactly one tier — the one chosen by WriteTier (or
// whatever tier the caller already set on r.Tier for a tier-move write).
func (r *Router) Put(ctx context.Context, rec *types.Record) error {
	s := r.storeFor(rec.Tier)
	if s == nil {
		return memerrors.InvalidInputf(op, "unknown tier %q", rec.Tier)
	}
	err := r.breakers[rec.Tier].Execute(ctx, func(ctx context.Context) error {
		return s.Put(ctx, rec)
	})
	return tripErr(rec.Tier, err)
}

// GetByID queries hot first, then warm, then cold (§4.3). A cold hit with
// access_count >= 10 schedules a promotion hint without blocking the
// response. A tier whose circuit is open is skipped without being called.
func (r *Router) GetByID(ctx context.Context, id string) (*types.Record, error) {
	for _, tier := range []types.Tier{types.TierHot, types.TierWarm, types.TierCold} {
		s := r.storeFor(tier)
		var rec *types.Record
		err := r.breakers[tier].Execute(ctx, func(ctx context.Context) error {
			var innerErr error
			rec, innerErr = s.GetByID(ctx, id)
			return innerErr
		})
		if err == nil {
			if tier == types.TierCold && rec.AccessCount >= 10 {
				r.schedulePromotion(id, tier)
			}
			return rec, nil
		}
		if isCircuitOpen(err) {
			logging.RetrievalLogger.Warn("tier circuit open, skipping", "tier", tier)
			continue
		}
		if !memerrors.Is(err, memerrors.NotFound) {
			logging.RetrievalLogger.WithError(err)
		}
	}
	return nil, memerrors.NotFoundf(op, "record %s not found in any tier", id)
}

// isCircuitOpen reports whether err came from a breaker rejection rather
// than the wrapped call itself.
func isCircuitOpen(err error) bool {
	return errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyConcurrentRequests)
}

// tripErr turns a breaker rejection into a BackendUnavailable error so
// callers see the same kind they'd get from the backend timing out.
func tripErr(tier types.Tier, err error) error {
	if isCircuitOpen(err) {
		return memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}
	return err
}

func (r *Router) schedulePromotion(id string, from types.Tier) {
	select {
	case r.promotions <- PromotionHint{ID: id, FromTier: from}:
	default:
		logging.RetrievalLogger.Warn("promotion hint queue full, dropping", "id", id)
	}
}

// Search fans out to warm (vector) and cold (text), and to hot when
// sessionScope is true (§4.3). Results merge by 0.6*relevance + 0.4*importance,
// stable-sorted descending, truncated to k. A per-tier timeout produces a
// partial response instead of failing the whole call.
func (r *Router) Search(ctx context.Context, embedding []float64, query string, k int, sessionScope bool) (types.SearchResponse, error) {
	deadline := r.searchDeadline
	if deadline <= 0 {
		deadline = 800 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type tierResult struct {
		results []types.SearchResult
		timedOut bool
	}

	var wg sync.WaitGroup
	resultsCh := make(chan tierResult, 3)

	fanOut := func(tier types.Tier, fn func(context.Context) ([]types.SearchResult, error)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var res []types.SearchResult
			err := r.breakers[tier].Execute(ctx, func(ctx context.Context) error {
				var innerErr error
				res, innerErr = fn(ctx)
				return innerErr
			})
			if err != nil {
				if isCircuitOpen(err) {
					logging.RetrievalLogger.Warn("tier circuit open, skipping search", "tier", tier)
					resultsCh <- tierResult{}
					return
				}
				if memerrors.Is(err, memerrors.DeadlineExceeded) || ctx.Err() != nil {
					resultsCh <- tierResult{timedOut: true}
					return
				}
				logging.RetrievalLogger.WithError(err)
				resultsCh <- tierResult{}
				return
			}
			resultsCh <- tierResult{results: res}
		}()
	}

	tierCount := 0
	if searcher, ok := r.warm.(store.VectorSearcher); ok && len(embedding) > 0 {
		tierCount++
		fanOut(types.TierWarm, func(ctx context.Context) ([]types.SearchResult, error) {
			return searcher.SearchByVector(ctx, embedding, k)
		})
	}
	if searcher, ok := r.cold.(store.TextSearcher); ok {
		tierCount++
		fanOut(types.TierCold, func(ctx context.Context) ([]types.SearchResult, error) {
			return searcher.SearchByText(ctx, query, k)
		})
	}
	if sessionScope {
		if searcher, ok := r.hot.(store.VectorSearcher); ok && len(embedding) > 0 {
			tierCount++
			fanOut(types.TierHot, func(ctx context.Context) ([]types.SearchResult, error) {
				return searcher.SearchByVector(ctx, embedding, k)
			})
		}
	}

	go func() {
		wg.Wait()
		close(resultsCh)
	}()

	var merged []types.SearchResult
	partial := false
	for i := 0; i < tierCount; i++ {
		res, ok := <-resultsCh
		if !ok {
			break
		}
		if res.timedOut {
			partial = true
			continue
		}
		merged = append(merged, res.results...)
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	if k > 0 && len(merged) > k {
		merged = merged[:k]
	}

	return types.SearchResponse{Results: merged, Partial: partial}, nil
}
