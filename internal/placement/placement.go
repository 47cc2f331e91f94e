// Package placement implements the promotion/demotion engine (C4, §4.4):
// the rules that decide a record's tier, and the put/verify/delete move
// that carries it out.
package placement

import (
	"context"
	"time"

	"github.com/memcore-dev/memcore/internal/config"
	memerrors "github.com/memcore-dev/memcore/internal/errors"
	"github.com/memcore-dev/memcore/internal/idlock"
	"github.com/memcore-dev/memcore/internal/logging"
	"github.com/memcore-dev/memcore/internal/retry"
	"github.com/memcore-dev/memcore/internal/store"
	"github.com/memcore-dev/memcore/pkg/types"
)

const op = "placement"

const thirtyDays = 30 * 24 * time.Hour
const sevenDays = 7 * 24 * time.Hour
const twentyFourHours = 24 * time.Hour

// Engine evaluates tier rules and executes moves.
type Engine struct {
	hot, warm, cold store.Store
	cfg             config.PlacementConfig
	locks           *idlock.Table
}

// New creates a placement engine over the three tier backends.
func New(hot, warm, cold store.Store, cfg config.PlacementConfig, locks *idlock.Table) *Engine {
	return &Engine{hot: hot, warm: warm, cold: cold, cfg: cfg, locks: locks}
}

func (e *Engine) storeFor(tier types.Tier) store.Store {
	switch tier {
	case types.TierHot:
		return e.hot
	case types.TierWarm:
		return e.warm
	case types.TierCold:
		return e.cold
	default:
		return nil
	}
}

// Decision is the outcome of evaluating a record against the promotion and
// demotion rules (§4.4). Target equals the record's current tier when no
// move applies.
type Decision struct {
	Target types.Tier
	Reason string
}

// Evaluate decides r's target tier as of now, given its current tier and
// access-window history (§4.4). relevanceHint, when non-nil, is the
// highest recent query relevance observed for r (cold→warm's "context
// relevance >= 0.8" rule); pass nil if unknown.
func (e *Engine) Evaluate(r *types.Record, now time.Time, relevanceHint *float64, ttlRemaining *time.Duration) Decision {
	switch r.Tier {
	case types.TierCold:
		access7d := r.AccessesSince(now, sevenDays)
		highRelevance := relevanceHint != nil && *relevanceHint >= e.cfg.ColdToWarmRelevance
		if access7d >= e.cfg.ColdToWarmAccess7d || highRelevance {
			return Decision{Target: types.TierWarm, Reason: "cold_to_warm"}
		}

	case types.TierWarm:
		access24h := r.AccessesSince(now, twentyFourHours)
		if access24h >= e.cfg.WarmToHotAccess24h && r.Strength >= e.cfg.WarmToHotStrength {
			return Decision{Target: types.TierHot, Reason: "warm_to_hot"}
		}
		ageDays := now.Sub(r.CreatedAt).Hours() / 24
		access30d := r.AccessesSince(now, thirtyDays)
		if r.Strength < e.cfg.WarmToColdStrength ||
			(ageDays > e.cfg.WarmToColdAgeDays && access30d == e.cfg.WarmToColdAccess30d) {
			return Decision{Target: types.TierCold, Reason: "warm_to_cold"}
		}

	case types.TierHot:
		expired := ttlRemaining != nil && *ttlRemaining <= 0
		accessInTTL := r.AccessesSince(now, e.ttlWindow())
		if expired || accessInTTL < e.cfg.HotToWarmAccessInTTL {
			return Decision{Target: types.TierWarm, Reason: "hot_to_warm"}
		}
	}

	return Decision{Target: r.Tier, Reason: "no_change"}
}

func (e *Engine) ttlWindow() time.Duration {
	return twentyFourHours
}

// Move carries out a put(dest) -> verify -> delete(src) tier transition
// (§4.4). Serialized per-id via the lock table so a concurrent read always
// sees either the pre-move or post-move state (§5). If put succeeds but
// delete fails after retries, the duplicate is tolerated: Move returns nil
// and leaves r.Tier unchanged. Reconcile removes the extra copy when it is
// called; the maintenance cycle does not call it.
func (e *Engine) Move(ctx context.Context, r *types.Record, target types.Tier) error {
	src := e.storeFor(r.Tier)
	dest := e.storeFor(target)
	if src == nil || dest == nil {
		return memerrors.InvalidInputf(op, "unknown tier in move %s -> %s", r.Tier, target)
	}

	id := r.ID
	e.locks.Lock(id)
	defer e.locks.Unlock(id)

	moved := r.Clone()
	moved.Tier = target

	if err := retry.RetryWithConfig(ctx, retry.TierMoveConfig(), func(ctx context.Context) error {
		return dest.Put(ctx, moved)
	}); err != nil {
		return memerrors.Wrap(memerrors.BackendUnavailable, op, err)
	}

	if err := retry.RetryWithConfig(ctx, retry.TierMoveConfig(), func(ctx context.Context) error {
		_, err := dest.GetByID(ctx, id)
		return err
	}); err != nil {
		return memerrors.Wrap(memerrors.Conflict, op, err)
	}

	if err := retry.RetryWithConfig(ctx, retry.TierMoveConfig(), func(ctx context.Context) error {
		return src.Delete(ctx, id)
	}); err != nil {
		logging.PlacementLogger.Warn("tier move delete failed after retries, tolerating duplicate for reconciliation",
			"id", id, "from", r.Tier, "to", target, "error", err.Error())
		return nil
	}

	r.Tier = target
	return nil
}

// Reconcile resolves records observed in more than one tier after a
// partially-completed move: trusts the destination (assumed to be
// whichever tier currently reports the record with the newer state) and
// retries deleting it from every other tier that still has a copy (§4.4).
func (e *Engine) Reconcile(ctx context.Context, id string, authoritative types.Tier) {
	for _, tier := range []types.Tier{types.TierHot, types.TierWarm, types.TierCold} {
		if tier == authoritative {
			continue
		}
		s := e.storeFor(tier)
		if _, err := s.GetByID(ctx, id); err != nil {
			continue
		}
		if err := s.Delete(ctx, id); err != nil && !memerrors.Is(err, memerrors.NotFound) {
			logging.PlacementLogger.Warn("reconciliation delete failed, will retry next cycle",
				"id", id, "tier", tier, "error", err.Error())
		}
	}
}
