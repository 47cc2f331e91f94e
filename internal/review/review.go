// Package review implements the spaced-repetition review scheduler (C7,
// §4.7): initializing and advancing each record's review interval, and
// ranking due records by priority.
package review

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/memcore-dev/memcore/internal/config"
	"github.com/memcore-dev/memcore/internal/vectormath"
	"github.com/memcore-dev/memcore/pkg/types"
)

// Scheduler owns the interval/easiness algebra and priority ranking.
type Scheduler struct {
	cfg config.ReviewConfig
}

// New creates a review scheduler.
func New(cfg config.ReviewConfig) *Scheduler {
	return &Scheduler{cfg: cfg}
}

// Initialize sets r's review state on creation (§4.7): interval_days=1,
// EF=1.3+1.7*importance clamped to [1.3,3.0], next_review_at=now+1day.
func (s *Scheduler) Initialize(r *types.Record, now time.Time) {
	ef := vectormath.Clamp(s.cfg.EasinessBase+s.cfg.EasinessImportanceCoef*r.Importance, s.cfg.EasinessMin, s.cfg.EasinessMax)
	r.ReviewState = &types.ReviewState{
		IntervalDays:   s.cfg.InitialIntervalDays,
		EasinessFactor: ef,
		NextReviewAt:   now.Add(24 * time.Hour),
		ReviewCount:    0,
	}
}

// RecordReview advances r's review state after a successful review (an
// access or explicit acknowledgement), per §4.7: interval grows to at
// least SecondReviewFloorDays on the first advancement after Initialize,
// then multiplies by EF thereafter.
func (s *Scheduler) RecordReview(r *types.Record, now time.Time) {
	if r.ReviewState == nil {
		s.Initialize(r, now)
		return
	}
	rs := r.ReviewState
	if rs.ReviewCount == 0 {
		rs.IntervalDays = math.Max(s.cfg.SecondReviewFloorDays, rs.IntervalDays*rs.EasinessFactor)
	} else {
		rs.IntervalDays *= rs.EasinessFactor
	}
	rs.ReviewCount++
	rs.NextReviewAt = now.Add(time.Duration(rs.IntervalDays * 24 * float64(time.Hour)))
}

// Priority computes §4.7's review priority: 0.4*overdue + 0.3*importance +
// 0.3*(1-strength), where overdue = min(1, log(1+days_overdue)/log(30)).
func (s *Scheduler) Priority(r *types.Record, now time.Time) float64 {
	overdue := 0.0
	if r.ReviewState != nil {
		daysOverdue := now.Sub(r.ReviewState.NextReviewAt).Hours() / 24
		if daysOverdue > 0 {
			overdue = math.Min(1, math.Log(1+daysOverdue)/math.Log(s.cfg.OverdueLogBase))
		}
	}
	return s.cfg.PriorityOverdueWeight*overdue +
		s.cfg.PriorityImportanceWeight*r.Importance +
		s.cfg.PriorityWeaknessWeight*(1-r.Strength)
}

// IsDue reports whether r's next_review_at has passed.
func (s *Scheduler) IsDue(r *types.Record, now time.Time) bool {
	return r.ReviewState != nil && !r.ReviewState.NextReviewAt.After(now)
}

// FinalPriority applies §4.7's context-triggered boost: 1.5x priority when
// due, else priority unchanged.
func (s *Scheduler) FinalPriority(r *types.Record, now time.Time) float64 {
	p := s.Priority(r, now)
	if s.IsDue(r, now) {
		return s.cfg.DueBoostFactor * p
	}
	return p
}

// QueryRank combines a search hit's relevance with a record's final
// priority, per §4.7: 0.6*relevance + 0.4*final.
func (s *Scheduler) QueryRank(r *types.Record, relevance float64, now time.Time) float64 {
	return 0.6*relevance + 0.4*s.FinalPriority(r, now)
}

// RecordSource supplies the candidate pool due_now ranks over.
type RecordSource interface {
	ListByFilter(ctx context.Context, filter types.Filter) ([]*types.Record, error)
}

// DueNow returns up to limit records that are due for review, ordered by
// descending priority (§4.7).
func (s *Scheduler) DueNow(ctx context.Context, src RecordSource, now time.Time, limit int) ([]*types.Record, error) {
	candidates, err := src.ListByFilter(ctx, types.Filter{})
	if err != nil {
		return nil, err
	}

	due := make([]*types.Record, 0)
	for _, r := range candidates {
		if s.IsDue(r, now) {
			due = append(due, r)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return s.Priority(due[i], now) > s.Priority(due[j], now)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}
