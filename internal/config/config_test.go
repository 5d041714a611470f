package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mautops/analytics-gin/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultConfig 测试默认配置值
func TestDefaultConfig(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)

	// 缓存:分页查询短 TTL,聚合查询长 TTL
	assert.Equal(t, 5*time.Minute, cfg.Cache.EventCacheTTL())
	assert.Equal(t, time.Hour, cfg.Cache.AggregateCacheTTL())
	assert.Equal(t, 5, cfg.Cache.BreakerThreshold)
	assert.Equal(t, 30*time.Second, cfg.Cache.BreakerCooldownDuration())

	assert.Equal(t, 10*time.Second, cfg.Query.StoreTimeout())

	assert.Equal(t, time.Second, cfg.Jobs.Interval())
	assert.Equal(t, 10, cfg.Jobs.BatchSize)
	assert.Equal(t, 4, cfg.Jobs.Workers)
	assert.Equal(t, 100, cfg.Jobs.QueueSize)
}

// TestLoadFromFile 测试从配置文件加载并覆盖默认值
func TestLoadFromFile(t *testing.T) {
	content := `
env: production
server:
  port: 9090
redis:
  addr: "redis-prod:6379"
cache:
  event_ttl: 60
jobs:
  workers: 8
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.True(t, config.IsProduction(cfg))
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "redis-prod:6379", cfg.Redis.Addr)
	assert.Equal(t, time.Minute, cfg.Cache.EventCacheTTL())
	assert.Equal(t, 8, cfg.Jobs.Workers)

	// 未覆盖的配置保留默认值
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 10, cfg.Jobs.BatchSize)
}

// TestLoadMissingFile 测试配置文件不存在时报错
func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

// TestEnvOverride 测试环境变量覆盖
func TestEnvOverride(t *testing.T) {
	t.Setenv("APP_SERVER_PORT", "7070")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
}

// TestIsProduction 测试环境判断
func TestIsProduction(t *testing.T) {
	assert.False(t, config.IsProduction(nil))
	assert.False(t, config.IsProduction(&config.Config{Env: "development"}))
	assert.True(t, config.IsProduction(&config.Config{Env: "production"}))
}
