// Package semantic is the semantic store (C6): deduplicated fact/concept
// records with embeddings. This package detects candidate contradictions
// and performs the merge, either when MergeOnContradiction is called
// directly or when Create finds a contradicting active record.
package semantic

import (
	"context"
	"encoding/json"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cogmem/cogmem/store"
	"github.com/cogmem/cogmem/types"
)

const (
	// contradictionSimilarityThreshold is the cosine-similarity floor
	// above which two records are considered to be about the same fact
	// and thus candidates for contradiction.
	contradictionSimilarityThreshold = 0.85
	// linearScanCeiling is the per-project record count spec.md §4.4
	// allows a naive linear scan up to before an IVF-style structure
	// would be needed; left as a documented ceiling since the in-memory
	// scan here is correct at any size, just not optimal past it.
	linearScanCeiling = 10_000
)

var negationPattern = regexp.MustCompile(`(?i)\b(not|isn't|aren't|never|no longer|cannot|can't|doesn't|didn't)\b`)

// Store is the semantic fact/concept store.
type Store struct {
	kernel *store.Kernel
	logger *zap.Logger
}

// New constructs a semantic Store.
func New(kernel *store.Kernel, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kernel: kernel, logger: logger.With(zap.String("component", "semantic"))}
}

// Create inserts a new semantic record, created by consolidation. If an
// active record contradicts it (DetectContradiction), the candidate is
// routed through MergeOnContradiction instead of being inserted blindly.
func (s *Store) Create(ctx context.Context, projectID, content string, embedding types.Vector, memoryType string, tags []string, wmSourceID string) (*store.SemanticRecord, error) {
	encoded := types.EncodeVector(embedding)
	if err := s.kernel.ValidateEmbedding(encoded); err != nil {
		return nil, err
	}

	contradicting, err := s.DetectContradiction(ctx, projectID, content, embedding)
	if err != nil {
		return nil, err
	}
	if contradicting != nil {
		return s.MergeOnContradiction(ctx, projectID, *contradicting, content, embedding, memoryType, tags)
	}

	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "marshal tags").WithCause(err)
	}
	rec := &store.SemanticRecord{
		ID:              uuid.NewString(),
		ProjectID:       projectID,
		Content:         content,
		Embedding:       encoded,
		MemoryType:      memoryType,
		Tags:            string(tagsJSON),
		UsefulnessScore: 0.5,
		Active:          true,
		WMSourceID:      wmSourceID,
		CreatedAt:       time.Now(),
	}
	if err := s.kernel.Insert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// BumpAccess increments access_count for a record.
func (s *Store) BumpAccess(ctx context.Context, projectID, id string) error {
	err := s.kernel.DB().WithContext(ctx).Model(&store.SemanticRecord{}).
		Where("project_id = ? AND id = ?", projectID, id).
		UpdateColumn("access_count", gorm.Expr("access_count + 1")).Error
	if err != nil {
		return types.NewError(types.ErrStoreError, "bump access count").WithCause(err)
	}
	return nil
}

// UpdateUsefulness sets usefulness_score, clamped to [0,1].
func (s *Store) UpdateUsefulness(ctx context.Context, projectID, id string, score float64) error {
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	err := s.kernel.DB().WithContext(ctx).Model(&store.SemanticRecord{}).
		Where("project_id = ? AND id = ?", projectID, id).
		Update("usefulness_score", score).Error
	if err != nil {
		return types.NewError(types.ErrStoreError, "update usefulness score").WithCause(err)
	}
	return nil
}

// ActiveRecords returns up to limit active records for a project, used by
// nearest-neighbor search and saliency scoring.
func (s *Store) ActiveRecords(ctx context.Context, projectID string, limit int) ([]store.SemanticRecord, error) {
	var recs []store.SemanticRecord
	q := s.kernel.DB().WithContext(ctx).Where("project_id = ? AND active = ?", projectID, true)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, types.NewError(types.ErrStoreError, "query active semantic records").WithCause(err)
	}
	return recs, nil
}

// NearestNeighbors returns the top k active records by cosine similarity
// to query, a naive linear scan (correct for any size; spec.md §4.4 notes
// an IVF-style structure is only needed above ~10^4 records per project).
func (s *Store) NearestNeighbors(ctx context.Context, projectID string, query types.Vector, k int) ([]ScoredRecord, error) {
	recs, err := s.ActiveRecords(ctx, projectID, 0)
	if err != nil {
		return nil, err
	}
	scored := make([]ScoredRecord, 0, len(recs))
	for _, r := range recs {
		v, err := types.DecodeVector(r.Embedding)
		if err != nil {
			continue
		}
		scored = append(scored, ScoredRecord{Record: r, Similarity: types.CosineSimilarity(query, v)})
	}
	sortScoredDescending(scored)
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// ScoredRecord pairs a semantic record with its similarity to a query.
type ScoredRecord struct {
	Record     store.SemanticRecord
	Similarity float64
}

func sortScoredDescending(s []ScoredRecord) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Similarity > s[j-1].Similarity; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// DetectContradiction checks whether candidate contradicts an existing
// active record: cosine similarity above contradictionSimilarityThreshold
// plus an opposite-polarity keyword check (one side negated, the other
// not). Returns the id of the contradicting record, or nil if none found.
// This recovers a feature the distilled spec dropped (see DESIGN.md).
func (s *Store) DetectContradiction(ctx context.Context, projectID string, candidateContent string, candidateEmbedding types.Vector) (*string, error) {
	recs, err := s.ActiveRecords(ctx, projectID, 0)
	if err != nil {
		return nil, err
	}
	candidateNegated := negationPattern.MatchString(candidateContent)

	for _, r := range recs {
		existingVec, err := types.DecodeVector(r.Embedding)
		if err != nil {
			continue
		}
		sim := types.CosineSimilarity(candidateEmbedding, existingVec)
		if sim < contradictionSimilarityThreshold {
			continue
		}
		existingNegated := negationPattern.MatchString(r.Content)
		if candidateNegated != existingNegated {
			id := r.ID
			return &id, nil
		}
	}
	return nil, nil
}

// MergeOnContradiction creates a new record superseding the contradicting
// one: the old record is marked inactive and points at the new record's
// id, never rewritten in place.
func (s *Store) MergeOnContradiction(ctx context.Context, projectID, oldID, content string, embedding types.Vector, memoryType string, tags []string) (*store.SemanticRecord, error) {
	if err := s.kernel.ValidateEmbedding(types.EncodeVector(embedding)); err != nil {
		return nil, err
	}

	var newRec *store.SemanticRecord
	err := s.kernel.WithProjectTx(ctx, projectID, func(tx *gorm.DB) error {
		tagsJSON, err := json.Marshal(tags)
		if err != nil {
			return err
		}
		newRec = &store.SemanticRecord{
			ID:              uuid.NewString(),
			ProjectID:       projectID,
			Content:         content,
			Embedding:       types.EncodeVector(embedding),
			MemoryType:      memoryType,
			Tags:            string(tagsJSON),
			UsefulnessScore: 0.5,
			Active:          true,
			CreatedAt:       time.Now(),
		}
		if err := tx.Create(newRec).Error; err != nil {
			return err
		}
		return tx.Model(&store.SemanticRecord{}).
			Where("project_id = ? AND id = ?", projectID, oldID).
			Updates(map[string]any{"active": false, "superseded_by": newRec.ID}).Error
	})
	if err != nil {
		return nil, types.NewError(types.ErrStoreError, "merge on contradiction").WithCause(err)
	}
	return newRec, nil
}
