// Package procedural is the procedural template store (C7): reusable
// workflow templates whose frequency is monotonically non-decreasing.
package procedural

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cogmem/cogmem/store"
	"github.com/cogmem/cogmem/types"
)

// Store is the procedural template store.
type Store struct {
	kernel *store.Kernel
	logger *zap.Logger
}

// New constructs a procedural Store.
func New(kernel *store.Kernel, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kernel: kernel, logger: logger.With(zap.String("component", "procedural"))}
}

// Create inserts a new procedural template at frequency 0.
func (s *Store) Create(ctx context.Context, projectID, name, category, templateBody string, metadata map[string]any, wmSourceID string) (*store.ProceduralTemplate, error) {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "marshal template metadata").WithCause(err)
	}
	tpl := &store.ProceduralTemplate{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		Name:         name,
		Category:     category,
		TemplateBody: templateBody,
		Frequency:    0,
		Metadata:     string(metaJSON),
		WMSourceID:   wmSourceID,
		CreatedAt:    time.Now(),
	}
	if err := s.kernel.Insert(ctx, tpl); err != nil {
		return nil, err
	}
	return tpl, nil
}

// BumpFrequency increments frequency for a template. Frequency never
// decreases: this is the only mutation path spec.md allows.
func (s *Store) BumpFrequency(ctx context.Context, projectID, id string) error {
	err := s.kernel.DB().WithContext(ctx).Model(&store.ProceduralTemplate{}).
		Where("project_id = ? AND id = ?", projectID, id).
		UpdateColumn("frequency", gorm.Expr("frequency + 1")).Error
	if err != nil {
		return types.NewError(types.ErrStoreError, "bump template frequency").WithCause(err)
	}
	return nil
}

// ByCategory returns templates for a project, most-used first, optionally
// filtered by category (empty string means all categories).
func (s *Store) ByCategory(ctx context.Context, projectID, category string, limit int) ([]store.ProceduralTemplate, error) {
	q := s.kernel.DB().WithContext(ctx).Where("project_id = ?", projectID)
	if category != "" {
		q = q.Where("category = ?", category)
	}
	q = q.Order("frequency DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var tpls []store.ProceduralTemplate
	if err := q.Find(&tpls).Error; err != nil {
		return nil, types.NewError(types.ErrStoreError, "query templates by category").WithCause(err)
	}
	return tpls, nil
}

// ByName finds a template by its exact name within a project, used to
// detect whether a workflow has already been captured as a template.
func (s *Store) ByName(ctx context.Context, projectID, name string) (*store.ProceduralTemplate, error) {
	var tpl store.ProceduralTemplate
	err := s.kernel.DB().WithContext(ctx).
		Where("project_id = ? AND name = ?", projectID, name).
		First(&tpl).Error
	if err != nil {
		return nil, types.NewError(types.ErrNotFound, "template not found").WithCause(err)
	}
	return &tpl, nil
}
