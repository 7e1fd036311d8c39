// Package executive is the central executive (C10): the goal hierarchy,
// attention focus, and working-memory capacity enforcement that ties the
// other components together.
package executive

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cogmem/cogmem/store"
	"github.com/cogmem/cogmem/types"
	"github.com/cogmem/cogmem/workingmemory"
)

// Goal statuses.
const (
	GoalStatusActive    = "active"
	GoalStatusSuspended = "suspended"
	GoalStatusCompleted = "completed"
)

// Attention focus types.
const (
	FocusPrimary   = "primary"
	FocusSecondary = "secondary"
)

// CapacityLimit is the total working-memory item count, across all
// buffers, at or above which a project is at_capacity (spec.md §4.7).
const CapacityLimit = 7

// Executive is the central executive.
type Executive struct {
	kernel *store.Kernel
	wm     *workingmemory.Manager
	logger *zap.Logger
}

// New constructs an Executive.
func New(kernel *store.Kernel, wm *workingmemory.Manager, logger *zap.Logger) *Executive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executive{kernel: kernel, wm: wm, logger: logger.With(zap.String("component", "executive"))}
}

// SetGoal creates a new goal, optionally as a subgoal of parentGoalID.
func (e *Executive) SetGoal(ctx context.Context, projectID, goalText, goalType, parentGoalID string, priority int, deadline *time.Time) (*store.Goal, error) {
	goal := &store.Goal{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		GoalText:     goalText,
		GoalType:     goalType,
		ParentGoalID: parentGoalID,
		Priority:     priority,
		Status:       GoalStatusActive,
		Progress:     0,
		Deadline:     deadline,
		CreatedAt:    time.Now(),
	}
	if err := e.kernel.Insert(ctx, goal); err != nil {
		return nil, err
	}
	return goal, nil
}

// GetActiveGoals returns active goals for a project, optionally
// including subgoals and filtered by status.
func (e *Executive) GetActiveGoals(ctx context.Context, projectID string, includeSubgoals bool, statusFilter string) ([]store.Goal, error) {
	q := e.kernel.DB().WithContext(ctx).Where("project_id = ?", projectID)
	if statusFilter != "" {
		q = q.Where("status = ?", statusFilter)
	} else {
		q = q.Where("status = ?", GoalStatusActive)
	}
	if !includeSubgoals {
		q = q.Where("parent_goal_id = ?", "")
	}
	var goals []store.Goal
	if err := q.Order("priority DESC").Find(&goals).Error; err != nil {
		return nil, types.NewError(types.ErrStoreError, "query active goals").WithCause(err)
	}
	return goals, nil
}

// UpdateGoalProgress sets a goal's progress, auto-completing at 1.0.
func (e *Executive) UpdateGoalProgress(ctx context.Context, projectID, goalID string, progress float64, status string) error {
	if progress < 0 {
		progress = 0
	}
	if progress > 1 {
		progress = 1
	}
	if progress >= 1.0 {
		status = GoalStatusCompleted
	}
	updates := map[string]any{"progress": progress}
	if status != "" {
		updates["status"] = status
	}
	err := e.kernel.DB().WithContext(ctx).Model(&store.Goal{}).
		Where("project_id = ? AND id = ?", projectID, goalID).
		Updates(updates).Error
	if err != nil {
		return types.NewError(types.ErrStoreError, "update goal progress").WithCause(err)
	}
	return nil
}

// CompleteGoal marks a goal completed, optionally cascading completion
// to its direct children; deeper descendants are not updated.
func (e *Executive) CompleteGoal(ctx context.Context, projectID, goalID string, cascadeToChildren bool) error {
	return e.kernel.WithProjectTx(ctx, projectID, func(tx *gorm.DB) error {
		if err := tx.Model(&store.Goal{}).
			Where("project_id = ? AND id = ?", projectID, goalID).
			Updates(map[string]any{"status": GoalStatusCompleted, "progress": 1.0}).Error; err != nil {
			return err
		}
		if !cascadeToChildren {
			return nil
		}
		var children []store.Goal
		if err := tx.Where("project_id = ? AND parent_goal_id = ?", projectID, goalID).Find(&children).Error; err != nil {
			return err
		}
		for _, c := range children {
			if err := tx.Model(&store.Goal{}).
				Where("project_id = ? AND id = ?", projectID, c.ID).
				Updates(map[string]any{"status": GoalStatusCompleted, "progress": 1.0}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SuspendGoal and ResumeGoal toggle a goal between active and suspended.
func (e *Executive) SuspendGoal(ctx context.Context, projectID, goalID string) error {
	return e.setGoalStatus(ctx, projectID, goalID, GoalStatusSuspended)
}

func (e *Executive) ResumeGoal(ctx context.Context, projectID, goalID string) error {
	return e.setGoalStatus(ctx, projectID, goalID, GoalStatusActive)
}

func (e *Executive) setGoalStatus(ctx context.Context, projectID, goalID, status string) error {
	err := e.kernel.DB().WithContext(ctx).Model(&store.Goal{}).
		Where("project_id = ? AND id = ?", projectID, goalID).
		Update("status", status).Error
	if err != nil {
		return types.NewError(types.ErrStoreError, "update goal status").WithCause(err)
	}
	return nil
}

// GetGoalHierarchy performs a breadth-first traversal from a root goal
// via parent_goal_id (spec.md §4.7).
func (e *Executive) GetGoalHierarchy(ctx context.Context, projectID, rootGoalID string) ([]store.Goal, error) {
	var all []store.Goal
	if err := e.kernel.DB().WithContext(ctx).Where("project_id = ?", projectID).Find(&all).Error; err != nil {
		return nil, types.NewError(types.ErrStoreError, "query goal hierarchy").WithCause(err)
	}
	children := make(map[string][]store.Goal, len(all))
	byID := make(map[string]store.Goal, len(all))
	for _, g := range all {
		byID[g.ID] = g
		children[g.ParentGoalID] = append(children[g.ParentGoalID], g)
	}
	root, ok := byID[rootGoalID]
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "root goal not found")
	}

	ordered := []store.Goal{root}
	queue := []string{rootGoalID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, c := range children[id] {
			ordered = append(ordered, c)
			queue = append(queue, c.ID)
		}
	}
	return ordered, nil
}

// SetAttentionFocus clears any existing focus of the same type and sets
// a new one.
func (e *Executive) SetAttentionFocus(ctx context.Context, projectID, target, focusType string, weight float64) (*store.AttentionFocus, error) {
	var focus *store.AttentionFocus
	err := e.kernel.WithProjectTx(ctx, projectID, func(tx *gorm.DB) error {
		now := time.Now()
		var previous store.AttentionFocus
		err := tx.Where("project_id = ? AND focus_type = ? AND ended_at IS NULL", projectID, focusType).
			First(&previous).Error
		previousID := ""
		if err == nil {
			previousID = previous.ID
			if err := tx.Model(&store.AttentionFocus{}).
				Where("id = ?", previous.ID).
				Update("ended_at", now).Error; err != nil {
				return err
			}
		} else if err != gorm.ErrRecordNotFound {
			return err
		}

		focus = &store.AttentionFocus{
			ID:              uuid.NewString(),
			ProjectID:       projectID,
			FocusTarget:     target,
			FocusType:       focusType,
			Weight:          weight,
			StartedAt:       now,
			TransitionType:  "manual",
			PreviousFocusID: previousID,
		}
		return tx.Create(focus).Error
	})
	if err != nil {
		return nil, types.NewError(types.ErrStoreError, "set attention focus").WithCause(err)
	}
	return focus, nil
}

// ScoredMemory is a candidate memory ranked for auto-focus.
type ScoredMemory struct {
	MemoryID string
	Score    float64
}

// AutoFocusTopMemories scores up to 100 candidate memory ids in a layer,
// sorts descending, and sets focus for the top-k with decaying weight
// max(0.3, 1 - 0.1*rank) (spec.md §4.7).
func (e *Executive) AutoFocusTopMemories(ctx context.Context, projectID string, layer types.MemoryLayer, candidateIDs []string, k int, scorer func(memoryID string) (float64, error)) ([]store.AttentionFocus, error) {
	if len(candidateIDs) > 100 {
		candidateIDs = candidateIDs[:100]
	}
	scored := make([]ScoredMemory, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		score, err := scorer(id)
		if err != nil {
			score = 0.5
		}
		scored = append(scored, ScoredMemory{MemoryID: id, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}

	focuses := make([]store.AttentionFocus, 0, len(scored))
	for rank, sm := range scored {
		weight := 1 - 0.1*float64(rank)
		if weight < 0.3 {
			weight = 0.3
		}
		focusType := FocusSecondary
		if rank == 0 {
			focusType = FocusPrimary
		}
		focus, err := e.SetAttentionFocus(ctx, projectID, sm.MemoryID, focusType, weight)
		if err != nil {
			return nil, err
		}
		focuses = append(focuses, *focus)
	}
	return focuses, nil
}

// CapacityStatus reports working-memory occupancy for a project.
type CapacityStatus struct {
	TotalItems  int64
	AtCapacity  bool
}

// CheckCapacity sums WM items across all buffers; at_capacity iff total
// >= CapacityLimit (spec.md §4.7).
func (e *Executive) CheckCapacity(ctx context.Context, projectID string) (CapacityStatus, error) {
	total, err := e.wm.Count(ctx, projectID)
	if err != nil {
		return CapacityStatus{}, err
	}
	return CapacityStatus{TotalItems: total, AtCapacity: total >= CapacityLimit}, nil
}

// TriggerConsolidation returns the count least-active working-memory
// items across all buffers, without removing them, for the consolidation
// router (C14) to route. Capacity enforcement and routing are deliberately
// separate calls: this package decides *what* to evict, C14 decides
// *where* it goes.
func (e *Executive) TriggerConsolidation(ctx context.Context, projectID string, count int) ([]store.WorkingMemoryItem, error) {
	return e.wm.LeastActive(ctx, projectID, count)
}
