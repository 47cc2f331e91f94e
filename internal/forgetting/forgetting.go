// Package forgetting implements the forgetting engine (C8, §4.8):
// expiration-rule evaluation, never-forget overrides, and the
// tombstone-then-purge lifecycle.
package forgetting

import (
	"context"
	"time"

	"github.com/memcore-dev/memcore/internal/config"
	"github.com/memcore-dev/memcore/internal/scoring"
	"github.com/memcore-dev/memcore/pkg/types"
)

// Store is the subset of store.Store the forgetting engine needs.
type Store interface {
	ListByFilter(ctx context.Context, filter types.Filter) ([]*types.Record, error)
	Put(ctx context.Context, r *types.Record) error
	Delete(ctx context.Context, id string) error
}

// Engine evaluates expiration rules and carries out tombstoning/purging.
type Engine struct {
	cfg        config.ForgettingConfig
	scoringCfg config.ScoringConfig
}

// New creates a forgetting engine.
func New(cfg config.ForgettingConfig, scoringCfg config.ScoringConfig) *Engine {
	return &Engine{cfg: cfg, scoringCfg: scoringCfg}
}

// ShouldExpire evaluates r's expiration rules as of now (§4.8), returning
// false unconditionally if r is never-forget protected.
func (e *Engine) ShouldExpire(r *types.Record, now time.Time) bool {
	if r.NeverForget(e.cfg.NeverForgetImportance, e.cfg.NeverForgetAccessCount) {
		return false
	}

	ageDays := now.Sub(r.CreatedAt).Hours() / 24

	if r.PrivacyMarkers.PIIScore > e.cfg.PIIThreshold && ageDays > e.cfg.PIIAgeDays {
		return true
	}
	if r.PrivacyMarkers.FinancialScore > e.cfg.FinancialThreshold && ageDays > e.cfg.FinancialAgeDays {
		return true
	}
	if r.Type == types.KindEpisodic && r.Importance < e.cfg.EpisodicImportanceCap && ageDays > e.cfg.EpisodicAgeDays {
		return true
	}

	risk := scoring.PrivacyRisk(e.scoringCfg, r, now)
	if risk > e.cfg.PrivacyRiskImmediate {
		return true
	}
	return false
}

// Tombstone soft-deletes r: marks it tombstoned and transitions its state,
// unless never-forget protection applies (§3.2(7)), in which case r is only
// capped at archived and TombstonedAt is left unset so it can never reach
// the purge clock in Sweep.
func (e *Engine) Tombstone(r *types.Record, now time.Time) {
	if r.NeverForget(e.cfg.NeverForgetImportance, e.cfg.NeverForgetAccessCount) {
		r.State = types.StateArchived
		return
	}
	r.TombstonedAt = &now
	r.State = types.StateDeleted
}

// InGracePeriod reports whether r is tombstoned and still within its
// tombstone grace window as of now (§4.8: "tombstones are queryable by id
// only" during grace, then behave as not found).
func (e *Engine) InGracePeriod(r *types.Record, now time.Time) bool {
	return r.IsTombstoned() && !r.TombstoneExpired(now, e.cfg.TombstoneGrace)
}

// Result summarizes one Sweep's outcome.
type Result struct {
	Tombstoned int
	Purged     int
}

// Sweep evaluates every record in s for expiration, tombstoning newly
// expired records and hard-deleting those whose tombstone grace window has
// elapsed (§4.8).
func (e *Engine) Sweep(ctx context.Context, s Store, now time.Time) (Result, error) {
	var res Result

	records, err := s.ListByFilter(ctx, types.Filter{IncludeTombstoned: true})
	if err != nil {
		return res, err
	}

	for _, r := range records {
		if r.IsTombstoned() {
			if r.NeverForget(e.cfg.NeverForgetImportance, e.cfg.NeverForgetAccessCount) {
				continue // never purge a never-forget record (§3.2(7)), however it got tombstoned
			}
			if r.TombstoneExpired(now, e.cfg.TombstoneGrace) {
				if err := s.Delete(ctx, r.ID); err != nil {
					return res, err
				}
				res.Purged++
			}
			continue
		}

		if e.ShouldExpire(r, now) {
			e.Tombstone(r, now)
			if err := s.Put(ctx, r); err != nil {
				return res, err
			}
			res.Tombstoned++
		}
	}
	return res, nil
}
