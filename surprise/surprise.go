// Package surprise is the surprise segmenter (C12): a Bayesian-style
// approximation of boundary detection over a stream of event embeddings,
// using 1 minus normalized cosine similarity between consecutive events.
package surprise

import "github.com/cogmem/cogmem/types"

// DefaultThreshold is θ, the per-step surprise above which a boundary is
// emitted (spec.md §4.9).
const DefaultThreshold = 0.5

// Step is one event's computed surprise, paired with its id.
type Step struct {
	EventID    string
	Surprise   float64
	IsBoundary bool
}

// PerStep computes s_i = 1 - ((cos_sim(e_{i-1}, e_i) + 1)/2) for each
// consecutive pair in an ordered stream of (event id, embedding) pairs,
// emitting a boundary wherever s_i > threshold. A nil embedding on
// either side of a pair produces no boundary for that step and no
// error (spec.md §4.9's missing-embedding edge case); the first event
// in the stream has no predecessor and is never itself a boundary.
func PerStep(eventIDs []string, embeddings []types.Vector, threshold float64) []Step {
	if len(eventIDs) != len(embeddings) {
		return nil
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	steps := make([]Step, 0, len(eventIDs))
	for i := 1; i < len(eventIDs); i++ {
		prev, cur := embeddings[i-1], embeddings[i]
		if len(prev) == 0 || len(cur) == 0 {
			steps = append(steps, Step{EventID: eventIDs[i], Surprise: 0, IsBoundary: false})
			continue
		}
		cos := types.CosineSimilarity(prev, cur)
		s := 1 - types.NormalizeSimilarity(cos)
		steps = append(steps, Step{EventID: eventIDs[i], Surprise: s, IsBoundary: s > threshold})
	}
	return steps
}

// Boundaries filters PerStep's output down to just the event ids where a
// boundary was emitted.
func Boundaries(steps []Step) []string {
	var ids []string
	for _, s := range steps {
		if s.IsBoundary {
			ids = append(ids, s.EventID)
		}
	}
	return ids
}
