package cache

import (
	"sync"
	"time"
)

// Breaker 缓存后端熔断器
// 连续失败达到阈值后打开,冷却期内跳过所有后端调用,
// 冷却结束后放行一次试探调用,成功则关闭
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	openedAt  time.Time
	now       func() time.Time // 便于测试注入时钟
}

// NewBreaker 创建熔断器
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Allow 判断是否允许调用后端
// 打开状态下冷却期未结束返回 false,调用方应立即按未命中处理
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.threshold {
		return true
	}
	// 冷却结束,放行试探调用
	return b.now().Sub(b.openedAt) >= b.cooldown
}

// Success 记录一次成功调用,关闭熔断器
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
}

// Failure 记录一次失败调用
// 达到阈值时打开;试探调用失败会重置冷却计时
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.failures >= b.threshold {
		b.openedAt = b.now()
	}
}

// IsOpen 判断熔断器是否处于打开状态(用于指标上报)
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures >= b.threshold && b.now().Sub(b.openedAt) < b.cooldown
}
