package inhibition

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cogmem/cogmem/internal/database"
	"github.com/cogmem/cogmem/store"
	"github.com/cogmem/cogmem/types"
)

func setupRegistry(t *testing.T) (*Registry, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{})
	require.NoError(t, err)

	pool, err := database.NewPoolManager(gormDB, database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	return New(store.NewKernel(pool, zap.NewNop()), zap.NewNop()), mock
}

// TestEffectiveStrength_S3DecayWorkedExample reproduces spec.md's S3
// worked example: strength 0.8 at t=0, half-life 1800s.
func TestEffectiveStrength_S3DecayWorkedExample(t *testing.T) {
	t.Parallel()
	now := time.Now()
	at1800 := []store.InhibitionRecord{{InhibitionStrength: 0.8, InhibitedAt: now.Add(-1800 * time.Second)}}
	s := effectiveStrength(at1800, now, DefaultHalfLife)
	assert.InDelta(t, 0.4, s, 0.01)

	at5400 := []store.InhibitionRecord{{InhibitionStrength: 0.8, InhibitedAt: now.Add(-5400 * time.Second)}}
	s2 := effectiveStrength(at5400, now, DefaultHalfLife)
	assert.InDelta(t, 0.1, s2, 0.01)
}

func TestEffectiveStrength_SumsMultipleCopiesCappedAtOne(t *testing.T) {
	t.Parallel()
	now := time.Now()
	recs := []store.InhibitionRecord{
		{InhibitionStrength: 0.9, InhibitedAt: now},
		{InhibitionStrength: 0.9, InhibitedAt: now},
	}
	s := effectiveStrength(recs, now, DefaultHalfLife)
	assert.Equal(t, 1.0, s)
}

func TestIsInhibited_ThresholdCrossing(t *testing.T) {
	t.Parallel()
	r, mock := setupRegistry(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "project_id", "memory_id", "memory_layer", "inhibition_strength", "inhibited_at"}).
		AddRow("i1", "proj-1", "mem-1", "semantic", 0.8, now.Add(-1800*time.Second))
	mock.ExpectQuery(`SELECT \* FROM "inhibition_records"`).WillReturnRows(rows)

	inhibited, err := r.IsInhibited(context.Background(), "proj-1", "mem-1", types.LayerSemantic, 0.3)
	require.NoError(t, err)
	assert.True(t, inhibited)
}

func TestInhibit_InsertsNewRecordEachTime(t *testing.T) {
	t.Parallel()
	r, mock := setupRegistry(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "inhibition_records"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	rec, err := r.Inhibit(context.Background(), "proj-1", "mem-1", types.LayerSemantic, 0.5, TypeSelective, "test", nil)
	require.NoError(t, err)
	assert.Equal(t, "mem-1", rec.MemoryID)
}

func TestDecayInhibitions_PurgesBelowFloor(t *testing.T) {
	t.Parallel()
	r, mock := setupRegistry(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "project_id", "inhibition_strength", "inhibited_at"}).
		AddRow("stale", "proj-1", 0.1, now.Add(-20000*time.Second)).
		AddRow("fresh", "proj-1", 0.9, now)
	mock.ExpectQuery(`SELECT \* FROM "inhibition_records"`).WillReturnRows(rows)
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "inhibition_records"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	purged, err := r.DecayInhibitions(context.Background(), "proj-1", DefaultMinStrength)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
