// Package consolidation implements the consolidation engine (C6, §4.6):
// clustering similar warm-tier records and rewriting each cluster into a
// link, a summary, or a mix of the two.
package consolidation

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/memcore-dev/memcore/internal/config"
	"github.com/memcore-dev/memcore/internal/vectormath"
	"github.com/memcore-dev/memcore/pkg/types"
)

// Summarizer turns a set of record contents into a single summary, per the
// external interface in §6. It must be deterministic enough that rerunning
// on the same input yields an equivalent result.
type Summarizer interface {
	Summarize(ctx context.Context, contents []string) (string, error)
}

// Strategy is the per-cluster action chosen in step 3 of §4.6.
type Strategy string

const (
	StrategySkip             Strategy = "skip"
	StrategyLink             Strategy = "link"
	StrategySummarize        Strategy = "summarize"
	StrategyKeepAndSummarize Strategy = "keep_and_summarize"
)

// Cluster is a group of records deemed similar enough to consolidate.
type Cluster struct {
	Members []*types.Record
}

// Decision is the strategy chosen for a cluster plus the records it keeps,
// links, or folds into a summary.
type Decision struct {
	Strategy  Strategy
	Keep      []*types.Record
	Summarize []*types.Record
}

// Engine clusters warm-tier records and executes the chosen strategy.
type Engine struct {
	warm       WarmStore
	cfg        config.ConsolidationConfig
	summarizer Summarizer
}

// WarmStore is the subset of store.Store the consolidation engine needs: it
// samples candidates, deletes consolidated originals, and writes summaries.
type WarmStore interface {
	ListByFilter(ctx context.Context, filter types.Filter) ([]*types.Record, error)
	Put(ctx context.Context, r *types.Record) error
	Delete(ctx context.Context, id string) error
}

// New creates a consolidation engine over the warm tier.
func New(warm WarmStore, cfg config.ConsolidationConfig, summarizer Summarizer) *Engine {
	return &Engine{warm: warm, cfg: cfg, summarizer: summarizer}
}

// ShouldTrigger reports whether consolidation is due, per §4.6's trigger
// conditions: total record count over threshold, hot+warm byte budget
// exceeded, or the scheduled interval elapsed.
func ShouldTrigger(cfg config.ConsolidationConfig, totalRecords int, hotWarmBytes, byteBudget int64, lastRun, now time.Time) bool {
	if totalRecords > cfg.TriggerRecordCount {
		return true
	}
	if byteBudget > 0 && float64(hotWarmBytes)/float64(byteBudget) > cfg.TriggerByteFraction {
		return true
	}
	return now.Sub(lastRun) >= cfg.TriggerInterval
}

// Result summarizes one Run's outcome.
type Result struct {
	ClustersFound   int
	Skipped         int
	Linked          int
	Summarized      int
	KeptAndSummarized int
}

// Run samples candidates from the warm tier, clusters them, and executes a
// strategy per cluster (§4.6). Consolidation is idempotent: records already
// folded into a summary or deleted are absent from the next sample, so
// re-running naturally converges to SKIP-only clusters.
func (e *Engine) Run(ctx context.Context, now time.Time) (Result, error) {
	candidates, err := e.warm.ListByFilter(ctx, types.Filter{Tier: types.TierWarm, Limit: e.cfg.SampleSize})
	if err != nil {
		return Result{}, err
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastAccessed.Before(candidates[j].LastAccessed)
	})

	clusters := e.cluster(candidates, now)

	var res Result
	res.ClustersFound = len(clusters)
	for _, c := range clusters {
		decision := e.decideStrategy(c)
		if err := e.execute(ctx, decision, now); err != nil {
			return res, err
		}
		switch decision.Strategy {
		case StrategySkip:
			res.Skipped++
		case StrategyLink:
			res.Linked++
		case StrategySummarize:
			res.Summarized++
		case StrategyKeepAndSummarize:
			res.KeptAndSummarized++
		}
	}
	return res, nil
}

// cluster performs single-linkage agglomerative clustering at the
// configured distance threshold (§4.6 step 2).
func (e *Engine) cluster(records []*types.Record, now time.Time) []Cluster {
	n := len(records)
	if n == 0 {
		return nil
	}

	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < n; i++ {
		if len(records[i].Embedding) == 0 {
			continue
		}
		for j := i + 1; j < n; j++ {
			if len(records[j].Embedding) == 0 {
				continue
			}
			if e.distance(records[i], records[j], now) <= e.cfg.DistanceThreshold {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]*types.Record)
	for i, r := range records {
		root := find(i)
		groups[root] = append(groups[root], r)
	}

	clusters := make([]Cluster, 0, len(groups))
	for _, members := range groups {
		clusters = append(clusters, Cluster{Members: members})
	}
	return clusters
}

// distance is 1 - cosine(a,b) - temporal_bonus - conversation_bonus, per
// §4.6 step 2.
func (e *Engine) distance(a, b *types.Record, now time.Time) float64 {
	sim := vectormath.Cosine(a.Embedding, b.Embedding)
	d := 1 - sim

	dt := a.CreatedAt.Sub(b.CreatedAt)
	if dt < 0 {
		dt = -dt
	}
	temporalBonus := math.Max(0, 1-float64(dt)/float64(e.cfg.TemporalBonusWindow)) * e.cfg.TemporalBonusWeight
	d -= temporalBonus

	if sharesConversation(a, b) {
		d -= e.cfg.ConversationBonus
	}
	return d
}

func sharesConversation(a, b *types.Record) bool {
	ca, okA := conversationTag(a)
	cb, okB := conversationTag(b)
	return okA && okB && ca == cb
}

func conversationTag(r *types.Record) (string, bool) {
	for t := range r.Tags {
		if len(t) > len(types.TagConversationID)+1 && t[:len(types.TagConversationID)+1] == types.TagConversationID+":" {
			return t, true
		}
	}
	return "", false
}

// decideStrategy picks the strategy for a cluster per §4.6 step 3.
func (e *Engine) decideStrategy(c Cluster) Decision {
	if len(c.Members) == 1 {
		return Decision{Strategy: StrategySkip, Keep: c.Members}
	}
	if len(c.Members) <= e.cfg.LinkClusterMaxSize {
		return Decision{Strategy: StrategyLink, Keep: c.Members}
	}

	avgImportance := meanImportance(c.Members)
	hasHigh, hasLow := false, false
	for _, m := range c.Members {
		if m.Importance >= e.cfg.HighImportanceThresh {
			hasHigh = true
		} else {
			hasLow = true
		}
	}

	switch {
	case avgImportance < e.cfg.LowImportanceThresh:
		return Decision{Strategy: StrategySummarize, Summarize: c.Members}
	case hasHigh && hasLow:
		var keep, summarize []*types.Record
		for _, m := range c.Members {
			if m.Importance >= e.cfg.HighImportanceThresh {
				keep = append(keep, m)
			} else {
				summarize = append(summarize, m)
			}
		}
		return Decision{Strategy: StrategyKeepAndSummarize, Keep: keep, Summarize: summarize}
	default:
		return Decision{Strategy: StrategySummarize, Summarize: c.Members}
	}
}

func meanImportance(records []*types.Record) float64 {
	if len(records) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range records {
		sum += r.Importance
	}
	return sum / float64(len(records))
}

// execute carries out a cluster's decision: LINK sets mutual links on the
// members; SUMMARIZE/KEEP_AND_SUMMARIZE produce one new record from the
// summarized members, inheriting their union of tags and renormalized mean
// embedding, then delete the originals (§4.6 step 4).
func (e *Engine) execute(ctx context.Context, d Decision, now time.Time) error {
	switch d.Strategy {
	case StrategySkip:
		return nil

	case StrategyLink:
		for _, a := range d.Keep {
			for _, b := range d.Keep {
				if a.ID != b.ID {
					a.AddLink(b.ID)
				}
			}
		}
		for _, r := range d.Keep {
			if err := e.warm.Put(ctx, r); err != nil {
				return err
			}
		}
		return nil

	case StrategySummarize, StrategyKeepAndSummarize:
		if len(d.Summarize) == 0 {
			return nil
		}
		summary, err := e.buildSummary(ctx, d.Summarize, now)
		if err != nil {
			return err
		}
		if err := e.warm.Put(ctx, summary); err != nil {
			return err
		}
		for _, r := range d.Summarize {
			if err := e.warm.Delete(ctx, r.ID); err != nil {
				return err
			}
		}
		for _, r := range d.Keep {
			r.AddLink(summary.ID)
			if err := e.warm.Put(ctx, r); err != nil {
				return err
			}
		}
		return nil
	}
	return nil
}

func (e *Engine) buildSummary(ctx context.Context, members []*types.Record, now time.Time) (*types.Record, error) {
	contents := make([]string, len(members))
	embeddings := make([][]float64, 0, len(members))
	maxImportance := 0.0
	tags := make(map[string]struct{})

	for i, m := range members {
		contents[i] = m.Content
		if len(m.Embedding) > 0 {
			embeddings = append(embeddings, m.Embedding)
		}
		if m.Importance > maxImportance {
			maxImportance = m.Importance
		}
		for t := range m.Tags {
			tags[t] = struct{}{}
		}
	}

	content, err := e.summarizer.Summarize(ctx, contents)
	if err != nil {
		return nil, err
	}

	id, err := types.NewID(now)
	if err != nil {
		return nil, err
	}

	summary := &types.Record{
		ID:           id,
		Content:      content,
		Type:         types.KindSemantic,
		Importance:   maxImportance,
		Strength:     1.0,
		CreatedAt:    now,
		LastAccessed: now,
		LastDecayed:  now,
		Tags:         tags,
		Tier:         types.TierWarm,
		State:        types.StateForStrength(1.0),
	}
	if len(embeddings) > 0 {
		summary.Embedding = vectormath.Mean(embeddings)
	}
	for _, m := range members {
		summary.AddLink(m.ID)
	}
	return summary, nil
}
