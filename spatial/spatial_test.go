package spatial

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
)

func TestBuildHierarchy(t *testing.T) {
	t.Parallel()

	nodes := BuildHierarchy("proj-1", "/a/b/c/file.ext")
	require.Len(t, nodes, 4)

	assert.Equal(t, "a", nodes[0].FullPath)
	assert.Equal(t, "directory", nodes[0].NodeType)
	assert.Equal(t, "", nodes[0].ParentPath)

	assert.Equal(t, "a/b", nodes[1].FullPath)
	assert.Equal(t, "a", nodes[1].ParentPath)

	assert.Equal(t, "a/b/c", nodes[2].FullPath)

	terminal := nodes[3]
	assert.Equal(t, "a/b/c/file.ext", terminal.FullPath)
	assert.Equal(t, "file", terminal.NodeType)
	assert.Equal(t, "a/b/c", terminal.ParentPath)
	assert.Equal(t, 3, terminal.Depth)
}

func TestBuildHierarchy_DirectoryTerminal(t *testing.T) {
	t.Parallel()

	nodes := BuildHierarchy("proj-1", "/a/b")
	require.Len(t, nodes, 2)
	assert.Equal(t, "directory", nodes[1].NodeType)
}

func TestBuildHierarchy_Idempotent(t *testing.T) {
	t.Parallel()

	a := BuildHierarchy("proj-1", "/a/b/c.py")
	b := BuildHierarchy("proj-1", "/a/b/c.py")
	assert.Equal(t, a, b)
}

func TestExtractRelations(t *testing.T) {
	t.Parallel()

	nodes := BuildHierarchy("proj-1", "/src/auth/a.py")
	nodes = append(nodes, BuildHierarchy("proj-1", "/src/auth/b.py")...)

	relations := ExtractRelations("proj-1", nodes)

	var containsCount, siblingCount int
	for _, r := range relations {
		switch r.RelationType {
		case "contains":
			containsCount++
			assert.Equal(t, 1.0, r.Strength)
		case "sibling":
			siblingCount++
			assert.Equal(t, 0.8, r.Strength)
		}
	}
	assert.Greater(t, containsCount, 0)
	assert.Greater(t, siblingCount, 0)
}

func TestDistance(t *testing.T) {
	t.Parallel()

	// siblings under /proj/src/auth: distance = (4-3)+(4-3) = 2
	assert.Equal(t, 2, Distance("proj/src/auth/a.py", "proj/src/auth/b.py"))
	// unrelated branch: /proj/src/auth/a.py vs /proj/src/db/c.py, common=2
	assert.Equal(t, 4, Distance("proj/src/auth/a.py", "proj/src/db/c.py"))
	assert.Equal(t, 0, Distance("proj/src/auth/a.py", "proj/src/auth/a.py"))
}

func setupIndex(t *testing.T) (*Index, sqlmock.Sqlmock) {
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

func TestIndex_Neighbors_BFS(t *testing.T) {
	t.Parallel()

	idx, mock := setupIndex(t)

	rows := sqlmock.NewRows([]string{
		"project_id", "from_path", "to_path", "relation_type", "strength", "created_at",
	}).
		AddRow("proj-1", "auth", "auth/a.py", "contains", 1.0, time.Now()).
		AddRow("proj-1", "auth", "auth/b.py", "contains", 1.0, time.Now()).
		AddRow("proj-1", "auth/a.py", "auth/b.py", "sibling", 0.8, time.Now()).
		AddRow("proj-1", "auth", "db", "sibling", 0.8, time.Now()).
		AddRow("proj-1", "db", "db/c.py", "contains", 1.0, time.Now())

	mock.ExpectQuery(`SELECT \* FROM "spatial_relations"`).WillReturnRows(rows)

	neighbors, err := idx.Neighbors(context.Background(), "proj-1", "auth/a.py", 1)
	require.NoError(t, err)
	assert.Contains(t, neighbors, "auth")
	assert.Contains(t, neighbors, "auth/b.py")
	assert.NotContains(t, neighbors, "db/c.py")
}

func TestIndex_Neighbors_ZeroDepth(t *testing.T) {
	t.Parallel()

	idx, _ := setupIndex(t)
	neighbors, err := idx.Neighbors(context.Background(), "proj-1", "auth/a.py", 0)
	require.NoError(t, err)
	assert.Empty(t, neighbors)
}
