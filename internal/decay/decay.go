// Package decay implements the decay worker (C5, §4.5): the periodic
// strength update and state-threshold transition that governs how a
// memory's presence fades without attention.
package decay

import (
	"context"
	"time"

	"github.com/memcore-dev/memcore/internal/config"
	"github.com/memcore-dev/memcore/internal/logging"
	"github.com/memcore-dev/memcore/internal/scoring"
	"github.com/memcore-dev/memcore/internal/store"
	"github.com/memcore-dev/memcore/pkg/types"
)

const minDecayInterval = 24 * time.Hour

// Result summarizes one Tick's work.
type Result struct {
	Processed int
	Yielded   bool // true if the tick stopped early on its time/count budget
}

// Worker applies §4.1's decay formula to records overdue for it.
type Worker struct {
	cfg        config.DecayConfig
	scoringCfg config.ScoringConfig
}

// New creates a decay worker.
func New(cfg config.DecayConfig, scoringCfg config.ScoringConfig) *Worker {
	return &Worker{cfg: cfg, scoringCfg: scoringCfg}
}

// Tick processes up to a batch of records in tier s that are overdue for
// decay (now - last_decayed >= 1 day), updating strength/state and writing
// them back. onStateCrossedArchive is invoked when a record's state
// transitions across the archived<->active boundary, scheduling a
// placement review (§4.5). Tick yields — stopping before exhausting the
// batch — every YieldEvery records or after YieldAfter wall time, per §5.
func (w *Worker) Tick(ctx context.Context, s store.Store, tier types.Tier, now time.Time, onStateCrossedArchive func(id string)) (Result, error) {
	batchSize := w.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	candidates, err := s.ListByFilter(ctx, types.Filter{Tier: tier, Limit: batchSize})
	if err != nil {
		return Result{}, err
	}

	yieldEvery := w.cfg.YieldEvery
	if yieldEvery <= 0 {
		yieldEvery = 1000
	}
	yieldAfter := w.cfg.YieldAfter
	if yieldAfter <= 0 {
		yieldAfter = 250 * time.Millisecond
	}

	start := time.Now()
	processed := 0

	for _, r := range candidates {
		if ctx.Err() != nil {
			return Result{Processed: processed, Yielded: true}, nil
		}
		if now.Sub(r.LastDecayed) < minDecayInterval {
			continue
		}

		oldState := r.State
		scoring.ApplyDecay(w.scoringCfg, r, now)
		newState := r.State

		crossedArchiveActive := (oldState == types.StateArchived && newState == types.StateActive) ||
			(oldState == types.StateActive && newState == types.StateArchived)
		if crossedArchiveActive && onStateCrossedArchive != nil {
			onStateCrossedArchive(r.ID)
		}

		if err := s.Put(ctx, r); err != nil {
			logging.DecayLogger.WithError(err)
			continue
		}
		processed++

		if processed%yieldEvery == 0 || time.Since(start) >= yieldAfter {
			return Result{Processed: processed, Yielded: true}, nil
		}
	}

	return Result{Processed: processed, Yielded: false}, nil
}
