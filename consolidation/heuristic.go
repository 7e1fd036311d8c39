package consolidation

import "github.com/cogmem/cogmem/types"

// HeuristicConfidence is the fixed confidence assigned to every
// heuristic-fallback routing decision (spec.md §4.11).
const HeuristicConfidence = 0.6

// HeuristicRoute applies the fixed fallback order: temporal markers win
// first (episodic), then action verbs (procedural), then future markers
// (prospective), else semantic. This order is spec.md's resolution of
// the source's order-dependent last-match-wins ambiguity — e.g. "I will
// deploy the release" matches both action verbs and future markers, and
// action verbs (checked second) wins over future markers (checked
// third). Text that also carries a temporal marker ("tomorrow", "at",
// "on", ...) routes episodic regardless.
func HeuristicRoute(f FeatureVector) (types.MemoryLayer, float64) {
	switch {
	case f[featHasTemporalMarkers] > 0:
		return types.LayerEpisodic, HeuristicConfidence
	case f[featHasActionVerbs] > 0:
		return types.LayerProcedural, HeuristicConfidence
	case f[featHasFutureMarkers] > 0:
		return types.LayerProspective, HeuristicConfidence
	default:
		return types.LayerSemantic, HeuristicConfidence
	}
}
