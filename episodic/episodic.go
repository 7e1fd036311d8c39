// Package episodic is the episodic store (C5): an append-only event log
// with typed context and optional embedding. Events are never updated or
// re-timestamped once written.
package episodic

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

// EventContext is the typed context attached to an event: working
// directory, touched files, invoked tools.
type EventContext struct {
	CWD   string   `json:"cwd,omitempty"`
	Files []string `json:"files,omitempty"`
	Tools []string `json:"tools,omitempty"`
}

// Store is the episodic event log.
type Store struct {
	kernel *store.Kernel
	logger *zap.Logger
}

// New constructs an episodic Store over the given kernel.
func New(kernel *store.Kernel, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{kernel: kernel, logger: logger.With(zap.String("component", "episodic"))}
}

// RecordEvent persists a new, immutable event. embedding may be nil if not
// yet computed; the store records it as absent and retrieval falls back
// to keyword matching.
func (s *Store) RecordEvent(ctx context.Context, projectID, sessionID, eventType, content string, ectx EventContext, embedding types.Vector) (*store.Event, error) {
	filesJSON, err := json.Marshal(ectx.Files)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "marshal event files").WithCause(err)
	}
	toolsJSON, err := json.Marshal(ectx.Tools)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "marshal event tools").WithCause(err)
	}

	now := time.Now()
	ev := &store.Event{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		SessionID: sessionID,
		Timestamp: now,
		EventType: eventType,
		Content:   content,
		CWD:       ectx.CWD,
		Files:     string(filesJSON),
		Tools:     string(toolsJSON),
		CreatedAt: now,
	}
	if embedding != nil {
		ev.Embedding = types.EncodeVector(embedding)
	}
	if err := s.kernel.ValidateEmbedding(ev.Embedding); err != nil {
		return nil, err
	}

	if err := s.kernel.WithProjectTx(ctx, projectID, func(tx *gorm.DB) error {
		return tx.Create(ev).Error
	}); err != nil {
		return nil, err
	}
	return ev, nil
}

// GetRecentEvents returns up to limit events within the last `hours`
// hours, most recent first.
func (s *Store) GetRecentEvents(ctx context.Context, projectID string, hours int, limit int) ([]store.Event, error) {
	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	var events []store.Event
	err := s.kernel.DB().WithContext(ctx).
		Where("project_id = ? AND timestamp >= ?", projectID, since).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, types.NewError(types.ErrStoreError, "query recent events").WithCause(err)
	}
	return events, nil
}

// CountUnembedded counts events recorded without an embedding yet: the
// backlog the embedder worker still needs to process.
func (s *Store) CountUnembedded(ctx context.Context, projectID string) (int64, error) {
	var count int64
	err := s.kernel.DB().WithContext(ctx).Model(&store.Event{}).
		Where("project_id = ? AND (embedding IS NULL OR embedding = ?)", projectID, []byte{}).
		Count(&count).Error
	if err != nil {
		return 0, types.NewError(types.ErrStoreError, "count unembedded events").WithCause(err)
	}
	return count, nil
}

// GetUnembedded returns up to limit events recorded without an embedding,
// oldest first, for the backfill worker to process.
func (s *Store) GetUnembedded(ctx context.Context, projectID string, limit int) ([]store.Event, error) {
	var events []store.Event
	err := s.kernel.DB().WithContext(ctx).
		Where("project_id = ? AND (embedding IS NULL OR embedding = ?)", projectID, []byte{}).
		Order("timestamp ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, types.NewError(types.ErrStoreError, "query unembedded events").WithCause(err)
	}
	return events, nil
}

// SetEmbedding populates an event's embedding after the fact. Events are
// otherwise immutable; this is the one field the backfill worker is
// allowed to fill in once the embedder has caught up.
func (s *Store) SetEmbedding(ctx context.Context, projectID, eventID string, embedding types.Vector) error {
	err := s.kernel.DB().WithContext(ctx).Model(&store.Event{}).
		Where("project_id = ? AND id = ?", projectID, eventID).
		Update("embedding", types.EncodeVector(embedding)).Error
	if err != nil {
		return types.NewError(types.ErrStoreError, "set event embedding").WithCause(err)
	}
	return nil
}

// GetEventsByDate returns events within a TimeRange, most recent first.
func (s *Store) GetEventsByDate(ctx context.Context, projectID string, tr types.TimeRange) ([]store.Event, error) {
	q := s.kernel.DB().WithContext(ctx).Where("project_id = ?", projectID)
	if !tr.Start.IsZero() {
		q = q.Where("timestamp >= ?", tr.Start)
	}
	if !tr.End.IsZero() {
		q = q.Where("timestamp < ?", tr.End)
	}
	var events []store.Event
	if err := q.Order("timestamp DESC").Find(&events).Error; err != nil {
		return nil, types.NewError(types.ErrStoreError, "query events by date").WithCause(err)
	}
	return events, nil
}

// GetEventEmbedding returns the decoded embedding for an event, or nil if
// not yet populated.
func (s *Store) GetEventEmbedding(ctx context.Context, projectID, eventID string) (types.Vector, error) {
	var ev store.Event
	err := s.kernel.DB().WithContext(ctx).
		Where("project_id = ? AND id = ?", projectID, eventID).
		First(&ev).Error
	if err != nil {
		return nil, types.NewError(types.ErrNotFound, "event not found").WithCause(err)
	}
	if len(ev.Embedding) == 0 {
		return nil, nil
	}
	return types.DecodeVector(ev.Embedding)
}

// CreateEventRelation links two events in a temporal chain: precedes,
// causes, same_session.
func (s *Store) CreateEventRelation(ctx context.Context, projectID, fromID, toID, relationType string, strength float64) error {
	rel := &store.EventRelation{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		FromID:    fromID,
		ToID:      toID,
		Relation:  relationType,
		Strength:  strength,
		CreatedAt: time.Now(),
	}
	return s.kernel.Insert(ctx, rel)
}
