// Package prospective is the prospective task store (C8): future-intent
// reminders with an activation condition the retrieval engine evaluates
// to decide when a task should surface.
package prospective

import (
	"encoding/json"
	"time"

	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cogmem/cogmem/store"
	"github.com/cogmem/cogmem/types"
)

// Priority levels for a prospective task.
const (
	PriorityLow    = "low"
	PriorityMed    = "med"
	PriorityHigh   = "high"
	StatusPending  = "pending"
	StatusActive   = "active"
	StatusDone     = "done"
	StatusDropped  = "dropped"
)

// ActivationCondition determines when a prospective task should surface:
// either after a time threshold, a tag match against current context, or
// both. A zero-value condition always activates.
type ActivationCondition struct {
	After    *time.Time `json:"after,omitempty"`
	TagMatch []string   `json:"tag_match,omitempty"`
}

// Satisfied reports whether the condition holds given the current time
// and the tags present in the surrounding context.
func (c ActivationCondition) Satisfied(now time.Time, contextTags []string) bool {
	if c.After != nil && now.Before(*c.After) {
		return false
	}
	if len(c.TagMatch) == 0 {
		return true
	}
	present := make(map[string]bool, len(contextTags))
	for _, t := range contextTags {
		present[t] = true
	}
	for _, want := range c.TagMatch {
		if present[want] {
			return true
		}
	}
	return false
}

// Store is the prospective task store.
type Store struct {
	kernel *store.Kernel
	logger *zap.Logger
}

// New constructs a prospective Store.
func New(kernel *store.Kernel, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kernel: kernel, logger: logger.With(zap.String("component", "prospective"))}
}

// Create inserts a new prospective task in pending status.
func (s *Store) Create(ctx context.Context, projectID, content, activeForm, priority string, due *time.Time, cond ActivationCondition, wmSourceID string) (*store.ProspectiveTask, error) {
	if priority == "" {
		priority = PriorityMed
	}
	tagJSON, err := json.Marshal(cond.TagMatch)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "marshal activation condition").WithCause(err)
	}
	task := &store.ProspectiveTask{
		ID:         uuid.NewString(),
		ProjectID:  projectID,
		Content:    content,
		ActiveForm: activeForm,
		Priority:   priority,
		Due:        due,
		Status:     StatusPending,
		TagMatch:   string(tagJSON),
		WMSourceID: wmSourceID,
		CreatedAt:  time.Now(),
	}
	if err := s.kernel.Insert(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// Pending returns pending/active tasks for a project, soonest due first
// (tasks without a due date sort last).
func (s *Store) Pending(ctx context.Context, projectID string) ([]store.ProspectiveTask, error) {
	var tasks []store.ProspectiveTask
	err := s.kernel.DB().WithContext(ctx).
		Where("project_id = ? AND status IN ?", projectID, []string{StatusPending, StatusActive}).
		Order("due IS NULL, due ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, types.NewError(types.ErrStoreError, "query pending prospective tasks").WithCause(err)
	}
	return tasks, nil
}

// UpdateStatus transitions a task's status.
func (s *Store) UpdateStatus(ctx context.Context, projectID, id, status string) error {
	err := s.kernel.DB().WithContext(ctx).Model(&store.ProspectiveTask{}).
		Where("project_id = ? AND id = ?", projectID, id).
		Update("status", status).Error
	if err != nil {
		return types.NewError(types.ErrStoreError, "update prospective task status").WithCause(err)
	}
	return nil
}

// DecodeCondition parses the stored tag_match JSON back into an
// ActivationCondition paired with the task's due date.
func DecodeCondition(task store.ProspectiveTask) (ActivationCondition, error) {
	var tags []string
	if task.TagMatch != "" {
		if err := json.Unmarshal([]byte(task.TagMatch), &tags); err != nil {
			return ActivationCondition{}, types.NewError(types.ErrSchemaMismatch, "unmarshal activation condition").WithCause(err)
		}
	}
	return ActivationCondition{After: task.Due, TagMatch: tags}, nil
}
