package container

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/analytics-gin/internal/api"
	"github.com/mautops/analytics-gin/internal/cache"
	"github.com/mautops/analytics-gin/internal/config"
	"github.com/mautops/analytics-gin/internal/database"
	"github.com/mautops/analytics-gin/internal/repository"
	"github.com/mautops/analytics-gin/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、Redis、仓储和服务
type Container struct {
	db           *gorm.DB
	redisClient  *redis.Client
	logger       *logrus.Logger
	coordinator  *cache.Coordinator
	queryService service.QueryService
	jobService   service.JobService
	jobProcessor *service.JobProcessor
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config) (*Container, error) {
	// 1. 初始化日志
	logger, err := api.NewLoggerFromConfig(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	api.SetLogger(logger)

	// 2. 初始化数据库(带重试机制)
	// 默认重试 3 次,初始间隔 1 秒,指数退避
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 执行数据库迁移
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// 3. 初始化 Redis 客户端
	// 缓存只是加速器:Redis 不可达时降级运行,所有查询直接落库
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable, running without cache acceleration")
		}
		cancel()
	} else {
		logger.Info("redis not configured, cache disabled")
	}

	// 4. 初始化旁路缓存协调器
	breaker := cache.NewBreaker(cfg.Cache.BreakerThreshold, cfg.Cache.BreakerCooldownDuration())
	coordinator := cache.NewCoordinator(redisClient, breaker, logger)

	// 5. 初始化仓储和服务
	eventRepo := repository.NewEventRepository(db)
	jobRepo := repository.NewJobRepository(db)

	queryService := service.NewQueryService(eventRepo, coordinator, logger, service.QueryServiceOptions{
		StoreTimeout: cfg.Query.StoreTimeout(),
		EventTTL:     cfg.Cache.EventCacheTTL(),
		AggregateTTL: cfg.Cache.AggregateCacheTTL(),
	})
	jobService := service.NewJobService(jobRepo, logger)

	// 6. 初始化异步任务处理器
	jobProcessor := service.NewJobProcessor(jobRepo, queryService, logger, service.JobProcessorConfig{
		Interval:  cfg.Jobs.Interval(),
		BatchSize: cfg.Jobs.BatchSize,
		Workers:   cfg.Jobs.Workers,
		QueueSize: cfg.Jobs.QueueSize,
	})

	return &Container{
		db:           db,
		redisClient:  redisClient,
		logger:       logger,
		coordinator:  coordinator,
		queryService: queryService,
		jobService:   jobService,
		jobProcessor: jobProcessor,
	}, nil
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// RedisClient 获取 Redis 客户端(可能为 nil)
func (c *Container) RedisClient() *redis.Client {
	return c.redisClient
}

// Logger 获取日志记录器
func (c *Container) Logger() *logrus.Logger {
	return c.logger
}

// CacheCoordinator 获取旁路缓存协调器
func (c *Container) CacheCoordinator() *cache.Coordinator {
	return c.coordinator
}

// QueryService 获取查询服务
func (c *Container) QueryService() service.QueryService {
	return c.queryService
}

// JobService 获取异步任务服务
func (c *Container) JobService() service.JobService {
	return c.jobService
}

// JobProcessor 获取异步任务处理器
func (c *Container) JobProcessor() *service.JobProcessor {
	return c.jobProcessor
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	if c.redisClient != nil {
		_ = c.redisClient.Close()
	}

	if c.db != nil {
		sqlDB, err := c.db.DB()
		if err == nil {
			sqlDB.Close()
		}
	}

	return nil
}
