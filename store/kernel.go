package store

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cogmem/cogmem/internal/database"
	"github.com/cogmem/cogmem/types"
)

// Kernel is the store kernel (C3). It serializes writes within a project
// via a per-project mutex while leaving cross-project reads lock-free, and
// exposes typed helpers over the pool's transaction support.
type Kernel struct {
	pool   *database.PoolManager
	logger *zap.Logger

	mu       sync.Mutex
	projects map[string]*sync.Mutex

	embeddingDim int
}

// NewKernel wraps an already-migrated database pool.
func NewKernel(pool *database.PoolManager, logger *zap.Logger) *Kernel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kernel{
		pool:     pool,
		logger:   logger.With(zap.String("component", "store_kernel")),
		projects: make(map[string]*sync.Mutex),
	}
}

// SetEmbeddingDim records the embedder configuration's dimension that every
// embedding-bearing insert through this kernel is checked against. Called
// once at startup; a zero value (the default, left unset in tests that
// don't care) disables the check rather than rejecting every insert.
func (k *Kernel) SetEmbeddingDim(dim int) {
	k.embeddingDim = dim
}

// EmbeddingDim returns the configured dimension, or 0 if none was set.
func (k *Kernel) EmbeddingDim() int {
	return k.embeddingDim
}

// ValidateEmbedding checks embedding against the kernel's configured
// dimension, per spec's MUST invariant that a mismatch fails the write with
// SchemaMismatch. A no-op if SetEmbeddingDim was never called.
func (k *Kernel) ValidateEmbedding(embedding []byte) error {
	return k.CheckEmbeddingDimension(embedding, k.embeddingDim)
}

func (k *Kernel) projectLock(projectID string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.projects[projectID]
	if !ok {
		l = &sync.Mutex{}
		k.projects[projectID] = l
	}
	return l
}

// DB returns the raw GORM handle for read paths that don't need the
// per-project write lock.
func (k *Kernel) DB() *gorm.DB { return k.pool.DB() }

// WithProjectTx runs fn inside a single transaction, holding the project's
// write mutex for the duration. Nested calls from within fn reuse the same
// scope by passing tx through, never re-entering WithProjectTx.
func (k *Kernel) WithProjectTx(ctx context.Context, projectID string, fn database.TransactionFunc) error {
	lock := k.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	if err := k.pool.WithTransaction(ctx, fn); err != nil {
		return types.NewError(types.ErrStoreError, "project transaction failed").
			WithCause(err).
			WithProvider(projectID)
	}
	return nil
}

// Insert writes a single row.
func (k *Kernel) Insert(ctx context.Context, row any) error {
	if err := k.DB().WithContext(ctx).Create(row).Error; err != nil {
		return types.NewError(types.ErrStoreError, "insert failed").WithCause(err)
	}
	return nil
}

// BatchUpsert inserts rows idempotently: conflicts on the given columns are
// ignored, matching spec's "INSERT OR IGNORE" semantics for append-only,
// natural-keyed tables (spatial nodes, relations).
func (k *Kernel) BatchUpsert(ctx context.Context, rows any, conflictColumns []string) error {
	if conflictColumns == nil {
		conflictColumns = []string{}
	}
	cols := make([]clause.Column, len(conflictColumns))
	for i, c := range conflictColumns {
		cols[i] = clause.Column{Name: c}
	}
	err := k.DB().WithContext(ctx).
		Clauses(clause.OnConflict{Columns: cols, DoNothing: true}).
		Create(rows).Error
	if err != nil {
		return types.NewError(types.ErrStoreError, "batch upsert failed").WithCause(err)
	}
	return nil
}

// CheckEmbeddingDimension validates a stored embedding blob against the
// project's configured dimension before an insert is allowed to proceed,
// per spec: a mismatch fails the write with SchemaMismatch rather than
// being silently truncated or padded.
func (k *Kernel) CheckEmbeddingDimension(embedding []byte, expectedDim int) error {
	if expectedDim <= 0 {
		return nil // no dimension configured; caller hasn't opted into the check
	}
	if len(embedding) == 0 {
		return nil // embedding not yet populated is allowed; lazy population
	}
	v, err := types.DecodeVector(embedding)
	if err != nil {
		return err
	}
	if types.DimensionMismatch(v, expectedDim) {
		return types.NewError(types.ErrSchemaMismatch,
			fmt.Sprintf("embedding dimension %d does not match configured dimension %d", len(v), expectedDim))
	}
	return nil
}

// Ping proxies the pool's health check.
func (k *Kernel) Ping(ctx context.Context) error {
	return k.pool.Ping(ctx)
}
