package embedder

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/cogmem/cogmem/internal/pool"
	"github.com/cogmem/cogmem/store"
	"github.com/cogmem/cogmem/types"
)

// EventStore is the subset of episodic.Store a Backfiller needs. Declared
// here rather than imported directly to avoid a dependency cycle (episodic
// does not need to know about the embedder's worker machinery).
type EventStore interface {
	GetUnembedded(ctx context.Context, projectID string, limit int) ([]store.Event, error)
	SetEmbedding(ctx context.Context, projectID, eventID string, embedding types.Vector) error
}

// Backfiller embeds events recorded before an embedding was available
// (spec.md §4.12 stage 1's "unprocessed episodic events"), bounding
// concurrent Embed calls with a worker pool so a large backlog doesn't
// open one goroutine per event against the embedder service.
type Backfiller struct {
	events   EventStore
	embedder Embedder
	pool     *pool.GoroutinePool
	logger   *zap.Logger
}

// NewBackfiller constructs a Backfiller. maxConcurrency bounds simultaneous
// Embed calls; 0 uses pool.DefaultGoroutinePoolConfig's worker count.
func NewBackfiller(events EventStore, emb Embedder, maxConcurrency int, logger *zap.Logger) *Backfiller {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := pool.DefaultGoroutinePoolConfig()
	if maxConcurrency > 0 {
		cfg.MaxWorkers = maxConcurrency
		cfg.QueueSize = maxConcurrency * 4
	}
	return &Backfiller{
		events:   events,
		embedder: emb,
		pool:     pool.NewGoroutinePool(cfg),
		logger:   logger.With(zap.String("component", "embedder_backfill")),
	}
}

// Run embeds up to limit unembedded events for projectID, returning the
// count successfully embedded. A single event's embed failure (including
// EmbeddingUnavailable) does not stop the others: it is logged and left
// for the next run, same as every other isolated stage in this codebase.
func (b *Backfiller) Run(ctx context.Context, projectID string, limit int) (int, error) {
	events, err := b.events.GetUnembedded(ctx, projectID, limit)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	var succeeded atomic.Int32
	for _, ev := range events {
		ev := ev
		if err := b.pool.SubmitWait(ctx, func(ctx context.Context) error {
			vec, err := b.embedder.Embed(ctx, ev.Content)
			if err != nil {
				b.logger.Warn("backfill embed failed, leaving event for next run",
					zap.String("project_id", projectID), zap.String("event_id", ev.ID), zap.Error(err))
				return nil
			}
			if err := b.events.SetEmbedding(ctx, projectID, ev.ID, vec); err != nil {
				b.logger.Warn("backfill embedding write failed",
					zap.String("project_id", projectID), zap.String("event_id", ev.ID), zap.Error(err))
				return nil
			}
			succeeded.Add(1)
			return nil
		}); err != nil {
			b.logger.Warn("backfill task submission failed", zap.Error(err))
		}
	}
	return int(succeeded.Load()), nil
}

// Close shuts down the worker pool, waiting for in-flight tasks to finish.
func (b *Backfiller) Close() {
	b.pool.Close()
}
