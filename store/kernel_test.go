package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cogmem/cogmem/internal/database"
	"github.com/cogmem/cogmem/types"
)

func setupKernel(t *testing.T) (*Kernel, sqlmock.Sqlmock) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{})
	require.NoError(t, err)

	pool, err := database.NewPoolManager(gormDB, database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	return NewKernel(pool, zap.NewNop()), mock
}

func TestKernel_Insert(t *testing.T) {
	t.Parallel()

	k, mock := setupKernel(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "events"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	ev := &Event{
		ID:        "ev-1",
		ProjectID: "proj-1",
		Timestamp: time.Now(),
		EventType: "observation",
		Content:   "hello",
		CreatedAt: time.Now(),
	}

	err := k.Insert(context.Background(), ev)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestKernel_Insert_WrapsStoreError(t *testing.T) {
	t.Parallel()

	k, mock := setupKernel(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "events"`)).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := k.Insert(context.Background(), &Event{ID: "ev-2", ProjectID: "proj-1"})
	require.Error(t, err)
	assert.Equal(t, types.ErrStoreError, types.GetErrorCode(err))
}

func TestKernel_WithProjectTx_SerializesPerProject(t *testing.T) {
	t.Parallel()

	k, mock := setupKernel(t)
	mock.ExpectBegin()
	mock.ExpectCommit()

	var ran bool
	err := k.WithProjectTx(context.Background(), "proj-1", func(tx *gorm.DB) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	// Re-acquiring the same project lock must not deadlock: the mutex is
	// released once WithProjectTx returns.
	mock.ExpectBegin()
	mock.ExpectCommit()
	err = k.WithProjectTx(context.Background(), "proj-1", func(tx *gorm.DB) error { return nil })
	require.NoError(t, err)
}

func TestKernel_CheckEmbeddingDimension(t *testing.T) {
	t.Parallel()

	k, _ := setupKernel(t)

	vec := types.EncodeVector(types.Vector{0.1, 0.2, 0.3})
	require.NoError(t, k.CheckEmbeddingDimension(vec, 3))

	err := k.CheckEmbeddingDimension(vec, 4)
	require.Error(t, err)
	assert.Equal(t, types.ErrSchemaMismatch, types.GetErrorCode(err))

	// Not-yet-populated embeddings are allowed through.
	require.NoError(t, k.CheckEmbeddingDimension(nil, 4))

	// No dimension configured (expectedDim <= 0) disables the check.
	require.NoError(t, k.CheckEmbeddingDimension(types.EncodeVector(types.Vector{0.1, 0.2, 0.3, 0.4}), 0))
}

func TestKernel_ValidateEmbedding_UsesConfiguredDimension(t *testing.T) {
	t.Parallel()

	k, _ := setupKernel(t)
	assert.Equal(t, 0, k.EmbeddingDim())

	vec := types.EncodeVector(types.Vector{0.1, 0.2, 0.3})

	// Unconfigured: any embedding passes.
	require.NoError(t, k.ValidateEmbedding(vec))

	k.SetEmbeddingDim(3)
	assert.Equal(t, 3, k.EmbeddingDim())
	require.NoError(t, k.ValidateEmbedding(vec))

	mismatched := types.EncodeVector(types.Vector{0.1, 0.2, 0.3, 0.4})
	err := k.ValidateEmbedding(mismatched)
	require.Error(t, err)
	assert.Equal(t, types.ErrSchemaMismatch, types.GetErrorCode(err))
}
