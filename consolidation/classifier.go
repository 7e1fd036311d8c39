package consolidation

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/cogmem/cogmem/types"
)

// allLayers enumerates the four consolidation targets in a fixed order,
// used both for one-vs-rest training and for Predict's argmax.
var allLayers = []types.MemoryLayer{
	types.LayerSemantic, types.LayerEpisodic, types.LayerProcedural, types.LayerProspective,
}

// TrainingExample pairs a feature vector with its ground-truth layer,
// sourced from the router's own history filtered by was_correct=true
// (spec.md §4.11).
type TrainingExample struct {
	Features FeatureVector
	Layer    types.MemoryLayer
}

// MinTrainingExamples is the positively-labeled route count required
// before the classifier trains at all (spec.md §4.11).
const MinTrainingExamples = 10

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

// classifier is a one-vs-rest logistic regression over the 11-float
// feature vector, one weight vector per layer (bias + featureCount
// weights). It supports partial predict (Predict is a no-op returning
// ok=false before the first Train) and full retrain-on-demand,
// per spec.md §4.11's "implementer may choose [classifier], must
// support partial predict + retrain-on-demand."
type classifier struct {
	weights map[types.MemoryLayer]*mat.VecDense
	trained bool
}

func newClassifier() *classifier {
	return &classifier{weights: make(map[types.MemoryLayer]*mat.VecDense, len(allLayers))}
}

func score(w *mat.VecDense, f FeatureVector) float64 {
	z := w.AtVec(0)
	for i := 0; i < featureCount; i++ {
		z += w.AtVec(i+1) * f[i]
	}
	return sigmoid(z)
}

// Predict returns the highest-scoring layer and its score, or ok=false
// if the classifier has never been trained.
func (c *classifier) Predict(f FeatureVector) (layer types.MemoryLayer, confidence float64, ok bool) {
	if !c.trained {
		return "", 0, false
	}
	best := types.MemoryLayer("")
	bestScore := -1.0
	for _, l := range allLayers {
		w, present := c.weights[l]
		if !present {
			continue
		}
		s := score(w, f)
		if s > bestScore {
			bestScore, best = s, l
		}
	}
	return best, bestScore, true
}

// Train fits one binary logistic-regression weight vector per layer via
// per-example (stochastic) gradient descent, replacing any previous weights.
func (c *classifier) Train(examples []TrainingExample) {
	const epochs = 200
	const learningRate = 0.1

	for _, layer := range allLayers {
		w := mat.NewVecDense(featureCount+1, nil)
		for epoch := 0; epoch < epochs; epoch++ {
			for _, ex := range examples {
				y := 0.0
				if ex.Layer == layer {
					y = 1.0
				}
				pred := score(w, ex.Features)
				grad := y - pred
				w.SetVec(0, w.AtVec(0)+learningRate*grad)
				for i := 0; i < featureCount; i++ {
					w.SetVec(i+1, w.AtVec(i+1)+learningRate*grad*ex.Features[i])
				}
			}
		}
		c.weights[layer] = w
	}
	c.trained = true
}
