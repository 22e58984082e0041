// Package ratelimit 限制单个用户并发运行的自动化会话数
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config 限流配置
type Config struct {
	MaxPerUser   int           // 单用户最大并发许可数
	PollInterval time.Duration // AcquireWait 轮询间隔
}

func DefaultConfig(maxPerUser int) Config {
	return Config{
		MaxPerUser:   maxPerUser,
		PollInterval: 500 * time.Millisecond,
	}
}

// Metrics 限流统计
type Metrics struct {
	TotalAcquired  int64
	TotalThrottled int64
	mu             sync.Mutex
}

// Limiter 按用户计数的并发许可限制器
type Limiter struct {
	config  Config
	counts  map[string]int
	mu      sync.Mutex
	metrics *Metrics
}

// Token 一次获取到的许可，Release 可安全地重复调用，只会释放一次
type Token struct {
	userID  string
	limiter *Limiter
	once    sync.Once
}

func NewLimiter(config Config) *Limiter {
	if config.MaxPerUser <= 0 {
		config.MaxPerUser = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 500 * time.Millisecond
	}
	return &Limiter{
		config:  config,
		counts:  make(map[string]int),
		metrics: &Metrics{},
	}
}

// Acquire 尝试获取许可，达到上限时立即返回错误
func (l *Limiter) Acquire(userID string) (*Token, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.counts[userID] >= l.config.MaxPerUser {
		l.recordThrottle()
		return nil, fmt.Errorf("用户 %s 并发会话数已达上限 %d", userID, l.config.MaxPerUser)
	}

	l.counts[userID]++
	l.recordAcquire()
	return &Token{userID: userID, limiter: l}, nil
}

// AcquireWait 轮询获取许可，直到成功或ctx结束
func (l *Limiter) AcquireWait(ctx context.Context, userID string) (*Token, error) {
	ticker := time.NewTicker(l.config.PollInterval)
	defer ticker.Stop()

	for {
		token, err := l.Acquire(userID)
		if err == nil {
			return token, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("等待并发许可超时: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Release 释放许可，重复调用只生效一次
func (t *Token) Release() {
	t.once.Do(func() {
		t.limiter.mu.Lock()
		defer t.limiter.mu.Unlock()

		if t.limiter.counts[t.userID] > 0 {
			t.limiter.counts[t.userID]--
		}
		if t.limiter.counts[t.userID] == 0 {
			delete(t.limiter.counts, t.userID)
		}
	})
}

// InUse 返回某用户当前占用的许可数
func (l *Limiter) InUse(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[userID]
}

// GetMetrics 返回限流统计快照
func (l *Limiter) GetMetrics() (acquired, throttled int64) {
	l.metrics.mu.Lock()
	defer l.metrics.mu.Unlock()
	return l.metrics.TotalAcquired, l.metrics.TotalThrottled
}

func (l *Limiter) recordAcquire() {
	l.metrics.mu.Lock()
	defer l.metrics.mu.Unlock()
	l.metrics.TotalAcquired++
}

func (l *Limiter) recordThrottle() {
	l.metrics.mu.Lock()
	defer l.metrics.mu.Unlock()
	l.metrics.TotalThrottled++
}
