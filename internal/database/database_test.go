package database_test

import (
	"path/filepath"
	"testing"

	"github.com/mautops/analytics-gin/internal/config"
	"github.com/mautops/analytics-gin/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connectSQLite 连接临时 SQLite 数据库
func connectSQLite(t *testing.T) *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}
}

// TestConnectAndMigrateSQLite 测试 SQLite 连接、建表和索引创建
func TestConnectAndMigrateSQLite(t *testing.T) {
	cfg := connectSQLite(t)

	db, err := database.Connect(*cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	require.NoError(t, database.Migrate(db))
	assert.True(t, db.Migrator().HasTable("events"))
	assert.True(t, db.Migrator().HasTable("async_jobs"))

	// Migrate 幂等
	require.NoError(t, database.Migrate(db))
}

// TestConnectWithRetry 测试首次成功时不重试
func TestConnectWithRetry(t *testing.T) {
	cfg := connectSQLite(t)

	db, err := database.ConnectWithRetry(*cfg, 3, 10)
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	assert.True(t, database.CheckHealth(db))
}

// TestCheckHealthNil 测试空连接的健康检查
func TestCheckHealthNil(t *testing.T) {
	assert.False(t, database.CheckHealth(nil))
}

// TestBuildDSN 测试 PostgreSQL DSN 拼装
func TestBuildDSN(t *testing.T) {
	dsn := database.BuildDSN(config.DatabaseConfig{
		Host: "db-host", Port: 5433, User: "svc", Password: "secret",
		DBName: "analytics", SSLMode: "require",
	})
	assert.Equal(t, "host=db-host port=5433 user=svc password=secret dbname=analytics sslmode=require", dsn)
}
