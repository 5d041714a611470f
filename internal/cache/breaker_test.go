package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestBreakerOpensAtThreshold 测试连续失败达到阈值后打开
func TestBreakerOpensAtThreshold(t *testing.T) {
	b := NewBreaker(3, 30*time.Second)

	assert.True(t, b.Allow())
	b.Failure()
	b.Failure()
	assert.True(t, b.Allow()) // 未达阈值仍放行
	b.Failure()
	assert.False(t, b.Allow())
	assert.True(t, b.IsOpen())
}

// TestBreakerSuccessResets 测试成功调用重置失败计数
func TestBreakerSuccessResets(t *testing.T) {
	b := NewBreaker(3, 30*time.Second)

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()
	// 计数被重置过,还没有连续 3 次失败
	assert.True(t, b.Allow())
	assert.False(t, b.IsOpen())
}

// TestBreakerCooldownTrial 测试冷却结束后放行试探调用
func TestBreakerCooldownTrial(t *testing.T) {
	current := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	b := NewBreaker(2, 30*time.Second)
	b.now = func() time.Time { return current }

	b.Failure()
	b.Failure()
	assert.False(t, b.Allow())

	// 冷却期内继续拒绝
	current = current.Add(10 * time.Second)
	assert.False(t, b.Allow())

	// 冷却结束,放行试探
	current = current.Add(25 * time.Second)
	assert.True(t, b.Allow())

	// 试探失败重置冷却计时,再次进入拒绝状态
	b.Failure()
	assert.False(t, b.Allow())

	// 下一轮试探成功,熔断器关闭
	current = current.Add(31 * time.Second)
	assert.True(t, b.Allow())
	b.Success()
	assert.True(t, b.Allow())
	assert.False(t, b.IsOpen())
}

// TestBreakerDefaults 测试非法参数回落到默认值
func TestBreakerDefaults(t *testing.T) {
	b := NewBreaker(0, 0)
	assert.Equal(t, 5, b.threshold)
	assert.Equal(t, 30*time.Second, b.cooldown)
}
