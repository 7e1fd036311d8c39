// Package consolidation is the consolidation router (C14): decides
// which long-term layer a working-memory item belongs in, atomically
// moves it there, and learns from feedback on its own past decisions.
package consolidation

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cogmem/cogmem/store"
	"github.com/cogmem/cogmem/types"
)

// RetrainFeedbackThreshold is the pending-feedback count above which a
// retrain is triggered lazily (spec.md §4.11).
const RetrainFeedbackThreshold = 10

// ContradictionDetector is the subset of semantic.Store ConsolidateItem
// needs to check a semantic target against existing active records before
// inserting it blindly. Declared here rather than importing *semantic.Store
// directly to keep the dependency narrow and one-directional.
type ContradictionDetector interface {
	DetectContradiction(ctx context.Context, projectID string, candidateContent string, candidateEmbedding types.Vector) (*string, error)
}

// Router decides a target layer for working-memory items and performs
// the atomic move.
type Router struct {
	kernel   *store.Kernel
	semantic ContradictionDetector
	logger   *zap.Logger

	mu              sync.Mutex
	classifier      *classifier
	pendingFeedback int
}

// New constructs a Router. The classifier starts untrained; Retrain
// (also triggered by ProvideFeedback) populates it from history. semanticStore is consulted for
// contradiction detection whenever an item routes to the semantic layer.
func New(kernel *store.Kernel, semanticStore ContradictionDetector, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		kernel:     kernel,
		semantic:   semanticStore,
		logger:     logger.With(zap.String("component", "consolidation")),
		classifier: newClassifier(),
	}
}

// Decision is the router's output for one working-memory item.
type Decision struct {
	Layer      types.MemoryLayer
	Confidence float64
	UsedML     bool
	Features   FeatureVector
}

// Decide computes the 11-float feature vector and routes it: the ML
// classifier if trained, the fixed heuristic fallback otherwise.
func (r *Router) Decide(item store.WorkingMemoryItem, now time.Time) Decision {
	f := ComputeFeatures(item, now)

	r.mu.Lock()
	layer, confidence, ok := r.classifier.Predict(f)
	r.mu.Unlock()
	if ok {
		return Decision{Layer: layer, Confidence: confidence, UsedML: true, Features: f}
	}

	layer, confidence = HeuristicRoute(f)
	return Decision{Layer: layer, Confidence: confidence, UsedML: false, Features: f}
}

// ConsolidateItem decides a target layer, atomically inserts the target
// row (with a WMSourceID lineage pointer) and deletes the WM row in one
// transaction, and appends a ConsolidationRoute history entry. Failure
// rolls back both the insert and the delete (spec.md §4.11).
//
// Before the transaction, the item's embedding (if any) is checked against
// the kernel's configured dimension (spec.md §4.1's SchemaMismatch
// invariant), and a semantic-layer target is checked for contradiction
// against existing active records (spec.md §3): a hit routes through a
// supersede-and-insert instead of a blind create.
func (r *Router) ConsolidateItem(ctx context.Context, projectID string, item store.WorkingMemoryItem) (*store.ConsolidationRoute, error) {
	decision := r.Decide(item, time.Now())

	if err := r.kernel.ValidateEmbedding(item.Embedding); err != nil {
		return nil, err
	}

	var contradicts *string
	if decision.Layer == types.LayerSemantic && len(item.Embedding) > 0 {
		v, err := types.DecodeVector(item.Embedding)
		if err != nil {
			return nil, types.NewError(types.ErrInternalError, "decode item embedding").WithCause(err)
		}
		contradicts, err = r.semantic.DetectContradiction(ctx, projectID, item.Content, v)
		if err != nil {
			return nil, types.NewError(types.ErrConsolidationFailed, "detect semantic contradiction").WithCause(err)
		}
	}

	featuresJSON, err := json.Marshal(decision.Features)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "marshal consolidation features").WithCause(err)
	}

	route := &store.ConsolidationRoute{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		WMID:        item.ID,
		TargetLayer: string(decision.Layer),
		Confidence:  decision.Confidence,
		Features:    string(featuresJSON),
		CreatedAt:   time.Now(),
	}

	err = r.kernel.WithProjectTx(ctx, projectID, func(tx *gorm.DB) error {
		target := buildTargetRow(decision.Layer, item)
		if err := tx.Create(target).Error; err != nil {
			return err
		}
		if contradicts != nil {
			rec := target.(*store.SemanticRecord)
			if err := tx.Model(&store.SemanticRecord{}).
				Where("project_id = ? AND id = ?", projectID, *contradicts).
				Updates(map[string]any{"active": false, "superseded_by": rec.ID}).Error; err != nil {
				return err
			}
		}
		if err := tx.Delete(&store.WorkingMemoryItem{}, "project_id = ? AND id = ?", projectID, item.ID).Error; err != nil {
			return err
		}
		return tx.Create(route).Error
	})
	if err != nil {
		return nil, types.NewError(types.ErrConsolidationFailed, "consolidate working memory item").WithCause(err)
	}
	return route, nil
}

// buildTargetRow constructs the long-term row for a decided layer,
// stamping WMSourceID for lineage back to the working-memory item it
// came from. ConsolidateItem validates the item's embedding dimension and
// resolves semantic contradiction before calling this; it is a pure
// constructor and does not touch the database itself.
func buildTargetRow(layer types.MemoryLayer, item store.WorkingMemoryItem) any {
	now := time.Now()
	embedding := item.Embedding
	if embedding == nil {
		embedding = []byte{}
	}
	switch layer {
	case types.LayerEpisodic:
		return &store.Event{
			ID:         uuid.NewString(),
			ProjectID:  item.ProjectID,
			Timestamp:  now,
			EventType:  "consolidated",
			Content:    item.Content,
			Embedding:  embedding,
			WMSourceID: item.ID,
			CreatedAt:  now,
		}
	case types.LayerProcedural:
		return &store.ProceduralTemplate{
			ID:           uuid.NewString(),
			ProjectID:    item.ProjectID,
			Name:         item.Content,
			TemplateBody: item.Content,
			Frequency:    0,
			WMSourceID:   item.ID,
			CreatedAt:    now,
		}
	case types.LayerProspective:
		return &store.ProspectiveTask{
			ID:         uuid.NewString(),
			ProjectID:  item.ProjectID,
			Content:    item.Content,
			Priority:   "med",
			Status:     "pending",
			WMSourceID: item.ID,
			CreatedAt:  now,
		}
	default: // types.LayerSemantic
		return &store.SemanticRecord{
			ID:              uuid.NewString(),
			ProjectID:       item.ProjectID,
			Content:         item.Content,
			Embedding:       embedding,
			MemoryType:      "consolidated",
			UsefulnessScore: 0.5,
			Active:          true,
			WMSourceID:      item.ID,
			CreatedAt:       now,
		}
	}
}

// ProvideFeedback logs a corrected example against a past routing
// decision and lazily retrains when pending feedback exceeds
// RetrainFeedbackThreshold (spec.md §4.11).
func (r *Router) ProvideFeedback(ctx context.Context, projectID, routeID string, wasCorrect bool, correctLayer types.MemoryLayer) error {
	updates := map[string]any{"was_correct": wasCorrect}
	if correctLayer != "" {
		updates["correct_layer"] = string(correctLayer)
	}
	err := r.kernel.DB().WithContext(ctx).Model(&store.ConsolidationRoute{}).
		Where("project_id = ? AND id = ?", projectID, routeID).
		Updates(updates).Error
	if err != nil {
		return types.NewError(types.ErrStoreError, "record consolidation feedback").WithCause(err)
	}

	r.mu.Lock()
	r.pendingFeedback++
	due := r.pendingFeedback > RetrainFeedbackThreshold
	if due {
		r.pendingFeedback = 0
	}
	r.mu.Unlock()

	if due {
		return r.Retrain(ctx, projectID)
	}
	return nil
}

// Retrain loads the router's own history filtered by was_correct=true
// and, if at least MinTrainingExamples exist, fits a fresh classifier.
// Below that threshold the router keeps falling back to the heuristic.
func (r *Router) Retrain(ctx context.Context, projectID string) error {
	var routes []store.ConsolidationRoute
	err := r.kernel.DB().WithContext(ctx).
		Where("project_id = ? AND was_correct = ?", projectID, true).
		Find(&routes).Error
	if err != nil {
		return types.NewError(types.ErrStoreError, "query consolidation route history").WithCause(err)
	}
	if len(routes) < MinTrainingExamples {
		return nil
	}

	examples := make([]TrainingExample, 0, len(routes))
	for _, rt := range routes {
		var f FeatureVector
		if err := json.Unmarshal([]byte(rt.Features), &f); err != nil {
			continue
		}
		layer := types.MemoryLayer(rt.TargetLayer)
		if rt.CorrectLayer != "" {
			layer = types.MemoryLayer(rt.CorrectLayer)
		}
		examples = append(examples, TrainingExample{Features: f, Layer: layer})
	}
	if len(examples) < MinTrainingExamples {
		return nil
	}

	r.mu.Lock()
	r.classifier.Train(examples)
	r.mu.Unlock()
	return nil
}
