// Package maintenance implements the maintenance orchestrator (C9, §4.9):
// a long-lived cycle that runs decay, review refresh, consolidation,
// forgetting, and placement in a load-bearing order, plus an on-demand
// manual trigger.
package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/memcore-dev/memcore/internal/config"
	"github.com/memcore-dev/memcore/internal/consolidation"
	"github.com/memcore-dev/memcore/internal/decay"
	"github.com/memcore-dev/memcore/internal/forgetting"
	"github.com/memcore-dev/memcore/internal/logging"
	"github.com/memcore-dev/memcore/internal/placement"
	"github.com/memcore-dev/memcore/internal/review"
	"github.com/memcore-dev/memcore/internal/store"
	"github.com/memcore-dev/memcore/pkg/types"
)

// CycleResult summarizes one maintenance cycle across all five phases.
type CycleResult struct {
	DecayProcessed      int
	ReviewDueCount       int
	Consolidation        consolidation.Result
	Forgetting           forgetting.Result
	PlacementMoved       int
	Duration             time.Duration
}

// Orchestrator drives the C5->C7->C6->C8->C4 cycle over the three tiers.
type Orchestrator struct {
	cfg config.MaintenanceConfig

	hot, warm, cold store.Store

	decayWorker         *decay.Worker
	reviewScheduler      *review.Scheduler
	consolidationEngine *consolidation.Engine
	forgettingEngine    *forgetting.Engine
	placementEngine     *placement.Engine

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
}

// New creates a maintenance orchestrator wired to every phase engine and
// the three tier backends it sweeps.
func New(
	cfg config.MaintenanceConfig,
	hot, warm, cold store.Store,
	decayWorker *decay.Worker,
	reviewScheduler *review.Scheduler,
	consolidationEngine *consolidation.Engine,
	forgettingEngine *forgetting.Engine,
	placementEngine *placement.Engine,
) *Orchestrator {
	return &Orchestrator{
		cfg:                 cfg,
		hot:                 hot,
		warm:                warm,
		cold:                cold,
		decayWorker:         decayWorker,
		reviewScheduler:     reviewScheduler,
		consolidationEngine: consolidationEngine,
		forgettingEngine:    forgettingEngine,
		placementEngine:     placementEngine,
	}
}

// Start begins the periodic maintenance loop, running RunCycle every
// cfg.CycleInterval until Stop or ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return fmt.Errorf("maintenance orchestrator already running")
	}
	o.running = true
	o.stopCh = make(chan struct{})
	o.mu.Unlock()

	go o.runLoop(ctx)
	return nil
}

// Stop halts the periodic loop. A cycle already in progress finishes.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		close(o.stopCh)
		o.running = false
	}
}

func (o *Orchestrator) runLoop(ctx context.Context) {
	interval := o.cfg.CycleInterval
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := o.RunCycle(ctx, time.Now()); err != nil {
				logging.MaintenanceLogger.WithError(err)
			}
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Trigger runs one cycle on demand, outside the periodic schedule (§4.10's
// trigger_maintenance operation).
func (o *Orchestrator) Trigger(ctx context.Context) (CycleResult, error) {
	return o.RunCycle(ctx, time.Now())
}

// RunCycle executes C5 -> C7.refresh -> C6 -> C8 -> C4 in that order. The
// order is load-bearing (§4.9): decay must precede consolidation so
// low-strength records are candidates; consolidation must precede
// forgetting so summaries aren't expired alongside members; forgetting
// must precede placement so expired records aren't promoted.
func (o *Orchestrator) RunCycle(ctx context.Context, now time.Time) (CycleResult, error) {
	start := time.Now()
	var res CycleResult

	if err := o.runDecayPhase(ctx, now, &res); err != nil {
		return res, err
	}
	if err := o.runReviewPhase(ctx, now, &res); err != nil {
		return res, err
	}
	if err := o.runConsolidationPhase(ctx, now, &res); err != nil {
		return res, err
	}
	if err := o.runForgettingPhase(ctx, now, &res); err != nil {
		return res, err
	}
	if err := o.runPlacementPhase(ctx, now, &res); err != nil {
		return res, err
	}

	res.Duration = time.Since(start)
	return res, nil
}

func (o *Orchestrator) runDecayPhase(ctx context.Context, now time.Time, res *CycleResult) error {
	deadline := time.Now().Add(o.phaseBudget())
	for _, tier := range []struct {
		s store.Store
		t types.Tier
	}{{o.hot, types.TierHot}, {o.warm, types.TierWarm}, {o.cold, types.TierCold}} {
		for time.Now().Before(deadline) {
			tickRes, err := o.decayWorker.Tick(ctx, tier.s, tier.t, now, nil)
			if err != nil {
				return err
			}
			res.DecayProcessed += tickRes.Processed
			if !tickRes.Yielded || tickRes.Processed == 0 {
				break
			}
		}
	}
	return nil
}

func (o *Orchestrator) runReviewPhase(ctx context.Context, now time.Time, res *CycleResult) error {
	for _, s := range []store.Store{o.hot, o.warm, o.cold} {
		due, err := o.reviewScheduler.DueNow(ctx, s, now, 0)
		if err != nil {
			return err
		}
		res.ReviewDueCount += len(due)
	}
	return nil
}

func (o *Orchestrator) runConsolidationPhase(ctx context.Context, now time.Time, res *CycleResult) error {
	cres, err := o.consolidationEngine.Run(ctx, now)
	if err != nil {
		return err
	}
	res.Consolidation = cres
	return nil
}

func (o *Orchestrator) runForgettingPhase(ctx context.Context, now time.Time, res *CycleResult) error {
	var total forgetting.Result
	for _, s := range []store.Store{o.hot, o.warm, o.cold} {
		fres, err := o.forgettingEngine.Sweep(ctx, s, now)
		if err != nil {
			return err
		}
		total.Tombstoned += fres.Tombstoned
		total.Purged += fres.Purged
	}
	res.Forgetting = total
	return nil
}

func (o *Orchestrator) runPlacementPhase(ctx context.Context, now time.Time, res *CycleResult) error {
	for _, s := range []store.Store{o.hot, o.warm, o.cold} {
		records, err := s.ListByFilter(ctx, types.Filter{})
		if err != nil {
			return err
		}
		for _, r := range records {
			decision := o.placementEngine.Evaluate(r, now, nil, nil)
			if decision.Target == r.Tier {
				continue
			}
			if err := o.placementEngine.Move(ctx, r, decision.Target); err != nil {
				logging.MaintenanceLogger.WithError(err)
				continue
			}
			res.PlacementMoved++
		}
	}
	return nil
}

func (o *Orchestrator) phaseBudget() time.Duration {
	if o.cfg.PhaseBudget <= 0 {
		return 250 * time.Millisecond
	}
	return o.cfg.PhaseBudget
}
