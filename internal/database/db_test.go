package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fund_api/internal/config"
	"fund_api/internal/models"
)

func TestInitDB_SQLiteAndAccessLog(t *testing.T) {
	cfg := &config.DatabaseConfig{Type: "sqlite", DBName: "file::memory:?cache=shared"}
	require.NoError(t, InitDB(cfg))
	t.Cleanup(func() { _ = Close() })

	require.NotNil(t, GetDB())
	assert.True(t, GetDB().Migrator().HasTable(&models.AccessLog{}))

	repo := NewAccessLogRepo(GetDB())
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &models.AccessLog{Method: "GET", Path: "/fund/single", FundCode: "005827", Status: 200}))
	require.NoError(t, repo.Create(ctx, &models.AccessLog{Method: "GET", Path: "/market/flow", Market: "sh", Status: 503}))

	logs, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "/market/flow", logs[0].Path)
	assert.Equal(t, 503, logs[0].Status)
	assert.Equal(t, "005827", logs[1].FundCode)
}

func TestInitDB_UnsupportedType(t *testing.T) {
	err := InitDB(&config.DatabaseConfig{Type: "oracle"})
	assert.Error(t, err)
}

func TestClose_WithoutInit(t *testing.T) {
	DB = nil
	assert.NoError(t, Close())
}

func TestSQLiteDir(t *testing.T) {
	tests := []struct {
		dsn  string
		want string
	}{
		{":memory:", ""},
		{"file::memory:?cache=shared", ""},
		{"file:api_audit?mode=memory&cache=shared", ""},
		{"access.db", ""},
		{"./data/access.db", "data"},
		{"file:./data/access.db?cache=shared", "data"},
		{"file:/var/lib/fund/access.db", "/var/lib/fund"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sqliteDir(tt.dsn), tt.dsn)
	}
}

// TestInitDB_FileURICreatesDir file: 形式的磁盘库同样会创建所在目录
func TestInitDB_FileURICreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "audit")
	require.NoError(t, InitDB(&config.DatabaseConfig{Type: "sqlite", DBName: "file:" + filepath.Join(dir, "access.db")}))
	t.Cleanup(func() { _ = Close() })

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
