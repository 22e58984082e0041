// Package retry 提供通用的重试机制实现
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Strategy 重试策略类型
type Strategy string

const (
	// ExponentialBackoff 指数退避策略
	ExponentialBackoff Strategy = "exponential_backoff"
	// FixedInterval 固定间隔策略
	FixedInterval Strategy = "fixed_interval"
	// LinearBackoff 线性退避策略
	LinearBackoff Strategy = "linear_backoff"
)

// Condition 重试条件函数，返回false时立即停止重试
type Condition func(error) bool

// Callback 重试回调函数
type Callback func(attempt int, delay time.Duration, err error)

// Config 重试配置
type Config struct {
	MaxRetries   int           // 最大重试次数（不含首次尝试）
	InitialDelay time.Duration // 初始延迟
	MaxDelay     time.Duration // 最大延迟
	TotalTimeout time.Duration // 总超时时间，0表示不限制

	Strategy      Strategy // 重试策略
	BackoffFactor float64  // 退避因子（用于指数退避）
	Jitter        bool     // 是否启用抖动
	JitterFactor  float64  // 抖动因子 (0.0 - 1.0)

	Condition Condition // 自定义重试条件
	OnRetry   Callback  // 重试时回调
}

// DefaultConfig 默认重试配置
func DefaultConfig() *Config {
	return &Config{
		MaxRetries:    3,
		InitialDelay:  2 * time.Second,
		MaxDelay:      30 * time.Second,
		TotalTimeout:  5 * time.Minute,
		Strategy:      ExponentialBackoff,
		BackoffFactor: 2.0,
		Jitter:        true,
		JitterFactor:  0.1,
	}
}

// Do 执行带重试的操作
func Do(ctx context.Context, config *Config, operation func() error) error {
	if config == nil {
		config = DefaultConfig()
	}
	if config.TotalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.TotalTimeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := calculateDelay(config, attempt)
			if config.OnRetry != nil {
				config.OnRetry(attempt, delay, lastErr)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.Condition != nil && !config.Condition(err) {
			break
		}
	}

	return lastErr
}

// DoWithResult 执行带重试的操作并返回结果
func DoWithResult[T any](ctx context.Context, config *Config, operation func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, config, func() error {
		var err error
		result, err = operation()
		return err
	})
	return result, err
}

// calculateDelay 计算重试延迟
func calculateDelay(config *Config, attempt int) time.Duration {
	var delay time.Duration

	switch config.Strategy {
	case ExponentialBackoff:
		delay = time.Duration(float64(config.InitialDelay) * math.Pow(config.BackoffFactor, float64(attempt-1)))
	case LinearBackoff:
		delay = time.Duration(int64(config.InitialDelay) * int64(attempt))
	case FixedInterval:
		delay = config.InitialDelay
	default:
		delay = config.InitialDelay
	}

	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if config.Jitter {
		jitter := time.Duration(float64(delay) * config.JitterFactor * (rand.Float64()*2 - 1))
		delay += jitter
	}
	if delay < 0 {
		delay = 0
	}

	return delay
}

// WithBackoff 使用指数退避进行重试的便捷函数
func WithBackoff(ctx context.Context, maxRetries int, initialDelay time.Duration, operation func() error) error {
	config := DefaultConfig()
	config.MaxRetries = maxRetries
	config.InitialDelay = initialDelay
	return Do(ctx, config, operation)
}
