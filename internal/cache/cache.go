package cache

import (
	"context"
	"time"

	"github.com/mautops/analytics-gin/internal/metrics"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Coordinator 旁路缓存协调器
// 缓存只是加速器,不是数据源:Get 出错按未命中处理,
// Set/Invalidate 出错静默吞掉,缓存故障永远不会让查询失败。
// 熔断器跟踪连续失败,打开后直接跳过后端调用,避免缓存故障
// 拖慢每个请求
type Coordinator struct {
	client  *redis.Client
	breaker *Breaker
	logger  *logrus.Logger
}

// NewCoordinator 创建旁路缓存协调器
// client 为 nil 时所有操作退化为未命中/空操作(缓存禁用)
func NewCoordinator(client *redis.Client, breaker *Breaker, logger *logrus.Logger) *Coordinator {
	if breaker == nil {
		breaker = NewBreaker(5, 30*time.Second)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Coordinator{
		client:  client,
		breaker: breaker,
		logger:  logger,
	}
}

// Get 读取缓存
// 未命中或任何后端错误都返回 (nil, false),错误不向上传播
func (c *Coordinator) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.client == nil || !c.allow() {
		return nil, false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			c.success()
			return nil, false
		}
		c.failure(err, "get", key)
		return nil, false
	}

	c.success()
	return data, true
}

// Set 写入缓存
// 每次写入必须携带显式 TTL;写入失败不影响发起查询
func (c *Coordinator) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if c.client == nil || !c.allow() {
		return
	}
	if ttl <= 0 {
		c.logger.WithField("key", key).Warn("cache set skipped: TTL must be positive")
		return
	}

	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.failure(err, "set", key)
		return
	}
	c.success()
}

// Invalidate 删除缓存条目,失败静默
func (c *Coordinator) Invalidate(ctx context.Context, key string) {
	if c.client == nil || !c.allow() {
		return
	}

	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.failure(err, "invalidate", key)
		return
	}
	c.success()
}

// allow 询问熔断器是否放行
func (c *Coordinator) allow() bool {
	allowed := c.breaker.Allow()
	if !allowed {
		metrics.SetCacheBreakerOpen(true)
	}
	return allowed
}

// success 上报成功,关闭熔断器
func (c *Coordinator) success() {
	c.breaker.Success()
	metrics.SetCacheBreakerOpen(false)
}

// failure 上报失败并记录日志
func (c *Coordinator) failure(err error, op, key string) {
	c.breaker.Failure()
	metrics.SetCacheBreakerOpen(c.breaker.IsOpen())
	c.logger.WithFields(logrus.Fields{
		"op":  op,
		"key": key,
	}).WithError(err).Debug("cache backend error, degrading")
}
