package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	Env      string         `mapstructure:"env"` // 环境: development, production
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Query    QueryConfig    `mapstructure:"query"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres 或 sqlite
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	Path            string `mapstructure:"path"` // sqlite 数据库文件路径
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 秒
}

// RedisConfig Redis 缓存后端配置
// Addr 为空时禁用缓存,查询直接落库
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// CacheConfig 旁路缓存配置
type CacheConfig struct {
	EventTTL         int `mapstructure:"event_ttl"`          // 事件分页查询 TTL,秒
	AggregateTTL     int `mapstructure:"aggregate_ttl"`      // 聚合查询 TTL,秒
	BreakerThreshold int `mapstructure:"breaker_threshold"`  // 熔断连续失败阈值
	BreakerCooldown  int `mapstructure:"breaker_cooldown"`   // 熔断冷却时间,秒
}

// QueryConfig 查询配置
type QueryConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"` // 单次存储查询超时
}

// JobsConfig 异步任务配置
type JobsConfig struct {
	SchedulerInterval int `mapstructure:"scheduler_interval"` // 调度间隔,毫秒
	BatchSize         int `mapstructure:"batch_size"`         // 每次调度取多少 PENDING 任务
	Workers           int `mapstructure:"workers"`            // worker 数量
	QueueSize         int `mapstructure:"queue_size"`         // 任务队列缓冲大小
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`  // 日志级别: debug, info, warn, error
	Format string `mapstructure:"format"` // 日志格式: json, text
	Output string `mapstructure:"output"` // 输出位置: stdout, file, both
}

// EventCacheTTL 事件查询缓存时长
func (c *CacheConfig) EventCacheTTL() time.Duration {
	return time.Duration(c.EventTTL) * time.Second
}

// AggregateCacheTTL 聚合查询缓存时长
func (c *CacheConfig) AggregateCacheTTL() time.Duration {
	return time.Duration(c.AggregateTTL) * time.Second
}

// BreakerCooldownDuration 熔断冷却时长
func (c *CacheConfig) BreakerCooldownDuration() time.Duration {
	return time.Duration(c.BreakerCooldown) * time.Second
}

// StoreTimeout 存储查询超时时长
func (c *QueryConfig) StoreTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Interval 调度间隔时长
func (c *JobsConfig) Interval() time.Duration {
	return time.Duration(c.SchedulerInterval) * time.Millisecond
}

// Load 加载配置,支持配置文件和环境变量
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 如果提供了配置文件路径,从文件加载
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		// 尝试从默认位置加载
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.analytics-gin")
		// 忽略配置文件不存在的错误,使用默认值
		_ = v.ReadInConfig()
	}

	// 支持环境变量
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// IsProduction 判断是否为生产环境
func IsProduction(cfg *Config) bool {
	if cfg == nil {
		return false
	}
	return cfg.Env == "production"
}

// Default 返回默认配置
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	// 环境变量
	env := v.GetString("env")
	if env == "" {
		env = os.Getenv("APP_ENV")
		if env == "" {
			env = "development"
		}
	}
	v.SetDefault("env", env)

	// 服务器默认配置
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	// 数据库默认配置
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "analytics")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "./analytics.db")

	// 数据库连接池配置(根据环境设置默认值)
	if env == "production" {
		v.SetDefault("database.max_idle_conns", 20)
		v.SetDefault("database.max_open_conns", 200)
		v.SetDefault("database.conn_max_lifetime", 3600) // 1 小时
		v.SetDefault("database.conn_max_idle_time", 300) // 5 分钟
	} else {
		v.SetDefault("database.max_idle_conns", 10)
		v.SetDefault("database.max_open_conns", 100)
		v.SetDefault("database.conn_max_lifetime", 3600) // 1 小时
		v.SetDefault("database.conn_max_idle_time", 600) // 10 分钟
	}

	// Redis 默认配置
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// 缓存默认配置
	// 分页查询底层数据变更频繁,用短 TTL;聚合查询重算代价高,用长 TTL
	v.SetDefault("cache.event_ttl", 300)       // 5 分钟
	v.SetDefault("cache.aggregate_ttl", 3600)  // 1 小时
	v.SetDefault("cache.breaker_threshold", 5)
	v.SetDefault("cache.breaker_cooldown", 30)

	// 查询默认配置
	v.SetDefault("query.timeout_seconds", 10)

	// 异步任务默认配置
	// worker 数量必须远低于数据库安全并发查询预算,给同步路径留余量
	v.SetDefault("jobs.scheduler_interval", 1000) // 1 秒
	v.SetDefault("jobs.batch_size", 10)
	v.SetDefault("jobs.workers", 4)
	v.SetDefault("jobs.queue_size", 100)

	// 日志配置(根据环境设置默认值)
	if env == "production" {
		v.SetDefault("log.level", "warn")
		v.SetDefault("log.format", "json")
	} else {
		v.SetDefault("log.level", "debug")
		v.SetDefault("log.format", "text")
	}
	v.SetDefault("log.output", "stdout")
}
