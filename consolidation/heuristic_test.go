package consolidation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cogmem/cogmem/types"
)

func TestHeuristicRoute_TemporalWinsFirst(t *testing.T) {
	t.Parallel()
	var f FeatureVector
	f[featHasTemporalMarkers] = 1
	f[featHasActionVerbs] = 1
	f[featHasFutureMarkers] = 1
	layer, confidence := HeuristicRoute(f)
	assert.Equal(t, types.LayerEpisodic, layer)
	assert.Equal(t, HeuristicConfidence, confidence)
}

func TestHeuristicRoute_ActionVerbBeatsFutureMarker(t *testing.T) {
	t.Parallel()
	// e.g. "I will deploy the release" (no temporal marker):
	// action verbs (checked second) must win over future markers.
	var f FeatureVector
	f[featHasActionVerbs] = 1
	f[featHasFutureMarkers] = 1
	layer, _ := HeuristicRoute(f)
	assert.Equal(t, types.LayerProcedural, layer)
}

func TestHeuristicRoute_FutureMarkerAlone(t *testing.T) {
	t.Parallel()
	var f FeatureVector
	f[featHasFutureMarkers] = 1
	layer, _ := HeuristicRoute(f)
	assert.Equal(t, types.LayerProspective, layer)
}

func TestHeuristicRoute_DefaultsToSemantic(t *testing.T) {
	t.Parallel()
	var f FeatureVector
	layer, _ := HeuristicRoute(f)
	assert.Equal(t, types.LayerSemantic, layer)
}
