package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupMetricsDB 创建内存数据库
func setupMetricsDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(5)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

// TestUpdateDatabaseConnections 测试连接池指标采样
func TestUpdateDatabaseConnections(t *testing.T) {
	db := setupMetricsDB(t)

	require.NoError(t, UpdateDatabaseConnections(db))
	assert.Equal(t, float64(5), testutil.ToFloat64(databaseConnectionsMax))

	// 空连接报错
	assert.Error(t, UpdateDatabaseConnections(nil))
}

// TestCollectorUpdatesGauges 测试采集循环定期刷新指标
func TestCollectorUpdatesGauges(t *testing.T) {
	db := setupMetricsDB(t)
	databaseConnectionsMax.Set(0)

	collector := NewCollector(db, 10*time.Millisecond)
	collector.Start()
	defer collector.Stop()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(databaseConnectionsMax) == 5
	}, 2*time.Second, 10*time.Millisecond)
}

// TestCollectorStop 测试 Stop 等待采集循环退出且不阻塞
func TestCollectorStop(t *testing.T) {
	db := setupMetricsDB(t)

	collector := NewCollector(db, 10*time.Millisecond)
	collector.Start()

	stopped := make(chan struct{})
	go func() {
		collector.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("collector did not stop in time")
	}
}
