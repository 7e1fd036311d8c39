package consolidation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cogmem/cogmem/store"
)

func TestComputeFeatures_TemporalMarker(t *testing.T) {
	t.Parallel()
	item := store.WorkingMemoryItem{Content: "this happened yesterday during the incident", CreatedAt: time.Now()}
	f := ComputeFeatures(item, time.Now())
	assert.Equal(t, 1.0, f[featHasTemporalMarkers])
}

func TestComputeFeatures_ActionVerb(t *testing.T) {
	t.Parallel()
	item := store.WorkingMemoryItem{Content: "deploy the service to staging", CreatedAt: time.Now()}
	f := ComputeFeatures(item, time.Now())
	assert.Equal(t, 1.0, f[featHasActionVerbs])
}

func TestComputeFeatures_FutureMarker(t *testing.T) {
	t.Parallel()
	item := store.WorkingMemoryItem{Content: "todo: follow up next week", CreatedAt: time.Now()}
	f := ComputeFeatures(item, time.Now())
	assert.Equal(t, 1.0, f[featHasFutureMarkers])
}

func TestComputeFeatures_FileReference(t *testing.T) {
	t.Parallel()
	item := store.WorkingMemoryItem{Content: "see store/kernel.go for the fix", CreatedAt: time.Now()}
	f := ComputeFeatures(item, time.Now())
	assert.Equal(t, 1.0, f[featHasFileReferences])
}

func TestComputeFeatures_SecondsInWM(t *testing.T) {
	t.Parallel()
	now := time.Now()
	item := store.WorkingMemoryItem{Content: "plain note", CreatedAt: now.Add(-10 * time.Second)}
	f := ComputeFeatures(item, now)
	assert.InDelta(t, 10.0, f[featSecondsInWM], 0.5)
}
