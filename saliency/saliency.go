// Package saliency is the saliency calculator (C11): a weighted blend of
// frequency, recency, relevance, and surprise into a single [0,1] score
// used to rank memories for attention and consolidation.
package saliency

import (
	"math"
	"time"

	"github.com/cogmem/cogmem/types"
)

// Weights, fixed per spec.md §4.8.
const (
	weightFrequency = 0.30
	weightRecency   = 0.30
	weightRelevance = 0.25
	weightSurprise  = 0.15

	recencyHalfLifeDays = 7.0

	// unknownScore is returned whenever a subfactor can't be computed;
	// spec.md §4.8 treats this as an explicit "unknown", never an error.
	unknownScore = 0.5
)

// Components is the saliency score broken down by subfactor, kept for
// diagnostics and for consolidation's feature vector (C14).
type Components struct {
	Frequency float64
	Recency   float64
	Relevance float64
	Surprise  float64
	Total     float64
}

// Band classifies a total saliency score into spec.md §4.8's three
// attention bands.
type Band string

const (
	BandPrimary    Band = "primary"
	BandSecondary  Band = "secondary"
	BandBackground Band = "background"
)

// ClassifyBand maps a saliency score to its band. Boundaries are
// inclusive on both ends: [0.7,1] is primary, [0.4,0.7) secondary,
// [0,0.4) background — a score of exactly 0.7 is primary, exactly 0.4
// is secondary.
func ClassifyBand(score float64) Band {
	switch {
	case score >= 0.7:
		return BandPrimary
	case score >= 0.4:
		return BandSecondary
	default:
		return BandBackground
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Weights overrides the fixed §4.8 blend. A zero Weights (all four
// fields 0) means "use the spec defaults" — Inputs.Weights is optional.
type Weights struct {
	Frequency, Recency, Relevance, Surprise float64
}

func (w Weights) orDefault() Weights {
	if w.Frequency == 0 && w.Recency == 0 && w.Relevance == 0 && w.Surprise == 0 {
		return Weights{Frequency: weightFrequency, Recency: weightRecency, Relevance: weightRelevance, Surprise: weightSurprise}
	}
	return w
}

// Inputs carries everything needed to score one memory. Callers (the
// integrated pipeline, the consolidation router) gather these from
// whichever store owns the memory's layer; this package stays ignorant
// of table schemas.
type Inputs struct {
	AccessCount      int64
	MaxAccessInLayer int64
	CreatedAt        time.Time
	Now              time.Time
	MemoryEmbedding  types.Vector
	GoalEmbedding     types.Vector // nil if no current goal
	UsefulnessScore   *float64     // nil if the layer has none
	RecentContextVecs []types.Vector // up to last 5 context events
	Weights           Weights        // zero value means spec.md §4.8 defaults
}

// Compute scores one memory. Per spec.md §4.8, any computation error in
// a subfactor returns unknownScore for that subfactor rather than
// propagating, so the overall call never fails.
func Compute(in Inputs) Components {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	w := in.Weights.orDefault()

	freq := frequency(in.AccessCount, in.MaxAccessInLayer)
	rec := recency(in.CreatedAt, now)
	rel := relevance(in.MemoryEmbedding, in.GoalEmbedding, in.UsefulnessScore)
	sur := surprise(in.MemoryEmbedding, in.RecentContextVecs)

	total := w.Frequency*freq + w.Recency*rec + w.Relevance*rel + w.Surprise*sur
	return Components{
		Frequency: freq,
		Recency:   rec,
		Relevance: rel,
		Surprise:  sur,
		Total:     clamp01(total),
	}
}

func frequency(accessCount, maxAccessInLayer int64) float64 {
	if maxAccessInLayer <= 0 {
		return unknownScore
	}
	return clamp01(float64(accessCount) / float64(maxAccessInLayer))
}

func recency(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return unknownScore
	}
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return clamp01(math.Exp(-ageDays / recencyHalfLifeDays))
}

func relevance(memoryEmbedding, goalEmbedding types.Vector, usefulnessScore *float64) float64 {
	if len(memoryEmbedding) > 0 && len(goalEmbedding) > 0 {
		cos := types.CosineSimilarity(memoryEmbedding, goalEmbedding)
		return clamp01(types.NormalizeSimilarity(cos))
	}
	if usefulnessScore != nil {
		return clamp01(*usefulnessScore)
	}
	return unknownScore
}

func surprise(memoryEmbedding types.Vector, contextVecs []types.Vector) float64 {
	if len(memoryEmbedding) == 0 || len(contextVecs) == 0 {
		return 0.0
	}
	recent := contextVecs
	if len(recent) > 5 {
		recent = recent[len(recent)-5:]
	}
	sum := 0.0
	for _, v := range recent {
		sum += types.CosineSimilarity(memoryEmbedding, v)
	}
	avg := sum / float64(len(recent))
	return clamp01(1 - ((avg + 1) / 2))
}
