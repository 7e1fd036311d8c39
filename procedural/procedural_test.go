package procedural

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/cogmem/cogmem/internal/database"
	"github.com/cogmem/cogmem/store"
)

func setupStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
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

func TestStore_Create(t *testing.T) {
	t.Parallel()
	s, mock := setupStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "procedural_templates"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	tpl, err := s.Create(context.Background(), "proj-1", "run-tests", "testing", "go test ./...", nil, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), tpl.Frequency)
	assert.NotEmpty(t, tpl.ID)
}

func TestStore_BumpFrequency(t *testing.T) {
	t.Parallel()
	s, mock := setupStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "procedural_templates" SET "frequency"=frequency \+ 1`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.BumpFrequency(context.Background(), "proj-1", "tpl-1")
	require.NoError(t, err)
}

func TestStore_ByCategory(t *testing.T) {
	t.Parallel()
	s, mock := setupStore(t)

	rows := sqlmock.NewRows([]string{"id", "project_id", "name", "category", "frequency"}).
		AddRow("tpl-1", "proj-1", "run-tests", "testing", 5)
	mock.ExpectQuery(`SELECT \* FROM "procedural_templates"`).WillReturnRows(rows)

	tpls, err := s.ByCategory(context.Background(), "proj-1", "testing", 10)
	require.NoError(t, err)
	require.Len(t, tpls, 1)
	assert.Equal(t, "run-tests", tpls[0].Name)
}

func TestStore_ByName_NotFound(t *testing.T) {
	t.Parallel()
	s, mock := setupStore(t)

	mock.ExpectQuery(`SELECT \* FROM "procedural_templates"`).WillReturnError(gorm.ErrRecordNotFound)

	_, err := s.ByName(context.Background(), "proj-1", "missing")
	require.Error(t, err)
}
