package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/analytics-gin/internal/config"
	"github.com/mautops/analytics-gin/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// PoolConfig 连接池配置
type PoolConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

// BuildDSN 构建 PostgreSQL DSN
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// GetPoolConfig 获取连接池配置
func GetPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxIdleConns:    10,
		MaxOpenConns:    100,
		ConnMaxLifetime: 3600, // 1 小时
		ConnMaxIdleTime: 600,  // 10 分钟
	}
}

// Connect 连接数据库
// driver 为 sqlite 时使用本地文件库(开发/测试),否则连接 PostgreSQL
func Connect(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	if cfg.Driver == "sqlite" {
		path := cfg.Path
		if path == "" {
			path = "./analytics.db"
		}
		db, err = gorm.Open(sqlite.Open(path), &gorm.Config{})
	} else {
		db, err = gorm.Open(postgres.Open(BuildDSN(cfg)), &gorm.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// 从配置中读取连接池参数,如果没有配置则使用默认值
	poolConfig := GetPoolConfig()
	if cfg.MaxIdleConns > 0 {
		poolConfig.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		poolConfig.ConnMaxIdleTime = cfg.ConnMaxIdleTime
	}

	sqlDB.SetMaxIdleConns(poolConfig.MaxIdleConns)
	sqlDB.SetMaxOpenConns(poolConfig.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(poolConfig.ConnMaxLifetime) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(poolConfig.ConnMaxIdleTime) * time.Second)

	return db, nil
}

// Migrate 执行数据库迁移
func Migrate(db *gorm.DB) error {
	// 检测数据库类型
	dialector := db.Dialector.Name()

	// SQLite 的类型系统较弱,手动建表保证与 PostgreSQL 一致的列定义
	// GORM SQLite dialector 的名称可能是 "sqlite" 或 "sqlite3"
	if dialector == "sqlite" || dialector == "sqlite3" {
		if err := createSQLiteTables(db); err != nil {
			return fmt.Errorf("failed to create SQLite tables: %w", err)
		}
	} else {
		// PostgreSQL 等其他数据库使用 AutoMigrate
		if err := db.AutoMigrate(
			&model.EventModel{},
			&model.AsyncJobModel{},
		); err != nil {
			return fmt.Errorf("failed to auto migrate: %w", err)
		}
	}

	// 创建索引
	if err := CreateIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// createSQLiteTables 为 SQLite 手动创建表
func createSQLiteTables(db *gorm.DB) error {
	// 创建 events 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id VARCHAR(64) PRIMARY KEY,
			owner_id VARCHAR(64) NOT NULL,
			type VARCHAR(50) NOT NULL,
			source VARCHAR(100) NOT NULL,
			payload TEXT,
			occurred_at DATETIME NOT NULL,
			recorded_at DATETIME NOT NULL
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create events table: %w", err)
	}

	// 创建 async_jobs 表
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS async_jobs (
			job_id VARCHAR(64) PRIMARY KEY,
			query_kind VARCHAR(50) NOT NULL,
			query_params TEXT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			result TEXT,
			error_message VARCHAR(500),
			created_at DATETIME NOT NULL,
			started_at DATETIME,
			completed_at DATETIME
		)
	`).Error; err != nil {
		return fmt.Errorf("failed to create async_jobs table: %w", err)
	}

	return nil
}

// CreateIndexes 创建数据库索引
// events 表按 id 主键做游标范围扫描,复合索引支撑带过滤的时间范围查询
func CreateIndexes(db *gorm.DB) error {
	// events 表索引
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_events_owner_occurred ON events(owner_id, occurred_at)").Error; err != nil {
		return fmt.Errorf("failed to create idx_events_owner_occurred: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_events_occurred_at ON events(occurred_at)").Error; err != nil {
		return fmt.Errorf("failed to create idx_events_occurred_at: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_events_type ON events(type)").Error; err != nil {
		return fmt.Errorf("failed to create idx_events_type: %w", err)
	}

	// async_jobs 表索引
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_jobs_status ON async_jobs(status)").Error; err != nil {
		return fmt.Errorf("failed to create idx_jobs_status: %w", err)
	}
	if err := db.Exec("CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON async_jobs(created_at)").Error; err != nil {
		return fmt.Errorf("failed to create idx_jobs_created_at: %w", err)
	}

	return nil
}

// ConnectWithRetry 带重试的数据库连接
func ConnectWithRetry(cfg config.DatabaseConfig, maxRetries int, retryInterval time.Duration) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = Connect(cfg)
		if err == nil {
			return db, nil
		}

		// 如果不是最后一次重试,等待后重试
		if i < maxRetries-1 {
			time.Sleep(retryInterval)
			retryInterval *= 2 // 指数退避
		}
	}

	return nil, fmt.Errorf("failed to connect database after %d retries: %w", maxRetries, err)
}

// CheckHealth 检查数据库连接健康状态
func CheckHealth(db *gorm.DB) bool {
	if db == nil {
		return false
	}

	sqlDB, err := db.DB()
	if err != nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(ctx); err != nil {
		return false
	}

	return true
}
