// Package scoring implements the importance/decay/reinforcement/privacy
// algebra (§4.1) that every other component reads from or writes through.
package scoring

import (
	"math"
	"time"

	"github.com/memcore-dev/memcore/internal/config"
	memerrors "github.com/memcore-dev/memcore/internal/errors"
	"github.com/memcore-dev/memcore/internal/vectormath"
	"github.com/memcore-dev/memcore/pkg/types"
)

const op = "scoring"

// ImportanceInput carries the per-call factors needed to derive an
// importance score; fields left nil fall back to the defaults §4.1
// describes.
type ImportanceInput struct {
	// AgeDays is the recency factor's t_days.
	AgeDays float64

	AccessCount int

	// Salience is the combined (emotional+novelty+actionable+personal)/40
	// score in [0,1], supplied by the caller. If nil, PriorSalience is used,
	// falling back to 0.5.
	Salience      *float64
	PriorSalience *float64

	// ContextCosine is cosine(embedding, context_embedding) in [-1,1]. If
	// nil, the relevance factor is omitted and its weight is redistributed.
	ContextCosine *float64
}

// Importance computes the weighted importance sum in [0,1], failing with
// InvalidInput if any input factor falls outside [0,1] or weights can't be
// normalized to sum to 1.
func Importance(cfg config.ScoringConfig, in ImportanceInput) (float64, error) {
	recency := math.Exp(-cfg.RecencyLambda * in.AgeDays)

	frequency := vectormath.Clamp(
		math.Log(1+float64(in.AccessCount))/math.Log(1+cfg.FrequencyLogBase), 0, 1)

	salience := 0.5
	switch {
	case in.Salience != nil:
		salience = *in.Salience
	case in.PriorSalience != nil:
		salience = *in.PriorSalience
	}
	if salience < 0 || salience > 1 {
		return 0, memerrors.InvalidInputf(op, "salience %f out of [0,1]", salience)
	}

	weights := cfg.ImportanceWeights
	var relevance float64
	haveRelevance := in.ContextCosine != nil
	if haveRelevance {
		cos := *in.ContextCosine
		if cos < -1 || cos > 1 {
			return 0, memerrors.InvalidInputf(op, "context cosine %f out of [-1,1]", cos)
		}
		relevance = (cos + 1) / 2
	}

	if !haveRelevance {
		others := weights.Recency + weights.Frequency + weights.Salience
		if others <= 0 {
			return 0, memerrors.InvalidInputf(op, "cannot renormalize importance weights: non-relevance weights sum to %f", others)
		}
		weights.Recency /= others
		weights.Frequency /= others
		weights.Salience /= others
		weights.Relevance = 0
	}

	sum := weights.Recency + weights.Frequency + weights.Salience + weights.Relevance
	if math.Abs(sum-1) > 1e-6 {
		return 0, memerrors.InvalidInputf(op, "importance weights sum to %f, want 1.0", sum)
	}

	importance := weights.Recency*recency + weights.Frequency*frequency + weights.Salience*salience
	if haveRelevance {
		importance += weights.Relevance * relevance
	}
	return vectormath.Clamp(importance, 0, 1), nil
}

// DecayRate computes the per-day decay rate for r as of now (§4.1).
func DecayRate(cfg config.ScoringConfig, r *types.Record, now time.Time) float64 {
	importanceMod := 1 - 0.9*r.Importance

	var accessMod float64
	switch {
	case r.AccessCount == 0:
		accessMod = cfg.AccessModNever
	case now.Sub(r.LastAccessed) <= 24*time.Hour:
		accessMod = cfg.AccessModRecent
	case now.Sub(r.LastAccessed) <= 7*24*time.Hour:
		accessMod = cfg.AccessModWeek
	default:
		accessMod = cfg.AccessModDefault
	}

	typeMod, ok := cfg.TypeDecayModifiers[string(r.Type)]
	if !ok {
		typeMod = 1.0
	}

	return cfg.DecayBaseRate * importanceMod * accessMod * typeMod
}

// ApplyDecay updates r's strength and last_decayed per §4.1/§4.5, returning
// the resulting state. Callers (the decay worker) are responsible for the
// "now - last_decayed >= 1 day" gating in §4.5; ApplyDecay itself always
// computes against the elapsed interval it's given.
func ApplyDecay(cfg config.ScoringConfig, r *types.Record, now time.Time) types.State {
	daysSinceDecay := now.Sub(r.LastDecayed).Hours() / 24
	if daysSinceDecay < 0 {
		daysSinceDecay = 0
	}

	rate := DecayRate(cfg, r, now)
	r.Strength = vectormath.Clamp(r.Strength-rate*daysSinceDecay, 0, 1)
	r.LastDecayed = now
	r.State = types.StateForStrength(r.Strength)
	return r.State
}

// Reinforce applies the access-time reinforcement update (§4.1).
func Reinforce(r *types.Record, now time.Time) {
	r.Strength = vectormath.Clamp(r.Strength+0.15*(1-r.Strength), 0, 1)
	r.AccessCount++
	r.LastAccessed = now
	r.State = types.StateForStrength(r.Strength)
}

// PrivacyRisk computes r's current privacy risk (§4.1).
func PrivacyRisk(cfg config.ScoringConfig, r *types.Record, now time.Time) float64 {
	ageDays := now.Sub(r.CreatedAt).Hours() / 24
	ageScore := math.Max(0, 1-ageDays/cfg.PrivacyAgeHorizon)

	return cfg.PrivacyPIIWeight*r.PrivacyMarkers.PIIScore +
		cfg.PrivacyFinWeight*r.PrivacyMarkers.FinancialScore +
		cfg.PrivacyAgeWeight*ageScore
}
