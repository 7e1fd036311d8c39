package executive

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
	"github.com/cogmem/cogmem/workingmemory"
)

func setupExecutive(t *testing.T) (*Executive, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{})
	require.NoError(t, err)

	pool, err := database.NewPoolManager(gormDB, database.DefaultPoolConfig(), zap.NewNop())
	require.NoError(t, err)

	kernel := store.NewKernel(pool, zap.NewNop())
	wm := workingmemory.New(kernel, zap.NewNop())
	return New(kernel, wm, zap.NewNop()), mock
}

func TestExecutive_SetGoal(t *testing.T) {
	t.Parallel()
	e, mock := setupExecutive(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "goals"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	goal, err := e.SetGoal(context.Background(), "proj-1", "ship the feature", "primary", "", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, GoalStatusActive, goal.Status)
}

func TestExecutive_UpdateGoalProgress_AutoCompletes(t *testing.T) {
	t.Parallel()
	e, mock := setupExecutive(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "goals"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := e.UpdateGoalProgress(context.Background(), "proj-1", "goal-1", 1.0, "")
	require.NoError(t, err)
}

func TestExecutive_GetGoalHierarchy_BreadthFirst(t *testing.T) {
	t.Parallel()
	e, mock := setupExecutive(t)

	rows := sqlmock.NewRows([]string{"id", "project_id", "parent_goal_id"}).
		AddRow("root", "proj-1", "").
		AddRow("child-1", "proj-1", "root").
		AddRow("child-2", "proj-1", "root").
		AddRow("grandchild", "proj-1", "child-1")
	mock.ExpectQuery(`SELECT \* FROM "goals"`).WillReturnRows(rows)

	ordered, err := e.GetGoalHierarchy(context.Background(), "proj-1", "root")
	require.NoError(t, err)
	require.Len(t, ordered, 4)
	assert.Equal(t, "root", ordered[0].ID)
	assert.Equal(t, "grandchild", ordered[3].ID)
}

func TestExecutive_AutoFocusTopMemories_DecayingWeight(t *testing.T) {
	t.Parallel()
	e, mock := setupExecutive(t)

	for i := 0; i < 3; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT \* FROM "attention_focus"`).WillReturnError(gorm.ErrRecordNotFound)
		mock.ExpectQuery(`INSERT INTO "attention_focus"`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectCommit()
	}

	scores := map[string]float64{"mem-c": 0.9, "mem-a": 0.5, "mem-b": 0.7}
	focuses, err := e.AutoFocusTopMemories(context.Background(), "proj-1", "", []string{"mem-a", "mem-b", "mem-c"}, 3,
		func(id string) (float64, error) { return scores[id], nil })
	require.NoError(t, err)
	require.Len(t, focuses, 3)
	assert.Equal(t, "mem-c", focuses[0].FocusTarget)
	assert.Equal(t, FocusPrimary, focuses[0].FocusType)
	assert.InDelta(t, 1.0, focuses[0].Weight, 1e-9)
	assert.InDelta(t, 0.9, focuses[1].Weight, 1e-9)
	assert.Equal(t, FocusSecondary, focuses[1].FocusType)
}

func TestExecutive_CheckCapacity(t *testing.T) {
	t.Parallel()
	e, mock := setupExecutive(t)

	mock.ExpectQuery(`SELECT count`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	status, err := e.CheckCapacity(context.Background(), "proj-1")
	require.NoError(t, err)
	assert.True(t, status.AtCapacity)
	assert.Equal(t, int64(7), status.TotalItems)
}
