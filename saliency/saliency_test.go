package saliency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cogmem/cogmem/types"
)

func TestClassifyBand_Boundaries(t *testing.T) {
	t.Parallel()
	assert.Equal(t, BandPrimary, ClassifyBand(0.7))
	assert.Equal(t, BandPrimary, ClassifyBand(1.0))
	assert.Equal(t, BandSecondary, ClassifyBand(0.4))
	assert.Equal(t, BandSecondary, ClassifyBand(0.69))
	assert.Equal(t, BandBackground, ClassifyBand(0.39))
	assert.Equal(t, BandBackground, ClassifyBand(0))
}

func TestCompute_NoContextNoGoal_FallsBackToUsefulness(t *testing.T) {
	t.Parallel()
	usefulness := 0.8
	in := Inputs{
		AccessCount:      5,
		MaxAccessInLayer: 10,
		CreatedAt:        time.Now(),
		MemoryEmbedding:  types.Vector{1, 0, 0},
		UsefulnessScore:  &usefulness,
	}
	c := Compute(in)
	assert.Equal(t, 0.8, c.Relevance)
	assert.Equal(t, 0.0, c.Surprise)
}

func TestCompute_NoDataAtAll_ReturnsUnknown(t *testing.T) {
	t.Parallel()
	c := Compute(Inputs{})
	assert.Equal(t, unknownScore, c.Frequency)
	assert.Equal(t, unknownScore, c.Relevance)
}

func TestCompute_FrequencyClampedAtMax(t *testing.T) {
	t.Parallel()
	c := Compute(Inputs{AccessCount: 50, MaxAccessInLayer: 10, CreatedAt: time.Now()})
	assert.Equal(t, 1.0, c.Frequency)
}

func TestCompute_RecencyDecaysWithAge(t *testing.T) {
	t.Parallel()
	fresh := Compute(Inputs{CreatedAt: time.Now()})
	old := Compute(Inputs{CreatedAt: time.Now().Add(-30 * 24 * time.Hour)})
	assert.Greater(t, fresh.Recency, old.Recency)
}

func TestCompute_SurpriseHighForDissimilarContext(t *testing.T) {
	t.Parallel()
	in := Inputs{
		MemoryEmbedding:   types.Vector{1, 0, 0},
		RecentContextVecs: []types.Vector{{-1, 0, 0}, {-1, 0, 0}},
	}
	c := Compute(in)
	assert.InDelta(t, 1.0, c.Surprise, 1e-9)
}

func TestCompute_TotalIsWeightedSum(t *testing.T) {
	t.Parallel()
	usefulness := 1.0
	in := Inputs{
		AccessCount:      10,
		MaxAccessInLayer: 10,
		CreatedAt:        time.Now(),
		UsefulnessScore:  &usefulness,
	}
	c := Compute(in)
	expected := 0.30*c.Frequency + 0.30*c.Recency + 0.25*c.Relevance + 0.15*c.Surprise
	assert.InDelta(t, expected, c.Total, 1e-9)
}
