package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLimiter_Acquire(t *testing.T) {
	t.Run("acquire_up_to_limit", func(t *testing.T) {
		limiter := NewLimiter(Config{MaxPerUser: 2})

		t1, err := limiter.Acquire("user1")
		if err != nil {
			t.Fatalf("第1次获取应该成功: %v", err)
		}
		t2, err := limiter.Acquire("user1")
		if err != nil {
			t.Fatalf("第2次获取应该成功: %v", err)
		}

		if _, err := limiter.Acquire("user1"); err == nil {
			t.Error("超过上限的获取应该返回错误")
		}
		if limiter.InUse("user1") != 2 {
			t.Errorf("期望占用2个许可，实际%d", limiter.InUse("user1"))
		}

		t1.Release()
		t2.Release()
	})

	t.Run("users_isolated", func(t *testing.T) {
		limiter := NewLimiter(Config{MaxPerUser: 1})

		if _, err := limiter.Acquire("user1"); err != nil {
			t.Fatalf("user1获取失败: %v", err)
		}
		if _, err := limiter.Acquire("user2"); err != nil {
			t.Errorf("user2不应受user1限流影响: %v", err)
		}
	})

	t.Run("throttled_recorded", func(t *testing.T) {
		limiter := NewLimiter(Config{MaxPerUser: 1})
		limiter.Acquire("user1")
		limiter.Acquire("user1")
		limiter.Acquire("user1")

		acquired, throttled := limiter.GetMetrics()
		if acquired != 1 {
			t.Errorf("期望成功获取1次，实际%d", acquired)
		}
		if throttled != 2 {
			t.Errorf("期望被限流2次，实际%d", throttled)
		}
	})
}

func TestToken_Release(t *testing.T) {
	t.Run("release_idempotent", func(t *testing.T) {
		limiter := NewLimiter(Config{MaxPerUser: 2})

		token, err := limiter.Acquire("user1")
		if err != nil {
			t.Fatalf("获取失败: %v", err)
		}

		token.Release()
		token.Release()
		token.Release()

		if limiter.InUse("user1") != 0 {
			t.Errorf("重复Release后计数应为0，实际%d", limiter.InUse("user1"))
		}

		// 计数归零后应能重新获取到上限
		if _, err := limiter.Acquire("user1"); err != nil {
			t.Errorf("释放后重新获取失败: %v", err)
		}
		if _, err := limiter.Acquire("user1"); err != nil {
			t.Errorf("释放后第2次获取失败: %v", err)
		}
	})

	t.Run("count_never_negative", func(t *testing.T) {
		limiter := NewLimiter(Config{MaxPerUser: 3})

		var tokens []*Token
		for i := 0; i < 3; i++ {
			token, err := limiter.Acquire("user1")
			if err != nil {
				t.Fatalf("第%d次获取失败: %v", i+1, err)
			}
			tokens = append(tokens, token)
		}

		var wg sync.WaitGroup
		for _, token := range tokens {
			for i := 0; i < 5; i++ {
				wg.Add(1)
				go func(tok *Token) {
					defer wg.Done()
					tok.Release()
				}(token)
			}
		}
		wg.Wait()

		if limiter.InUse("user1") != 0 {
			t.Errorf("并发重复释放后计数应为0，实际%d", limiter.InUse("user1"))
		}
	})
}

func TestLimiter_AcquireWait(t *testing.T) {
	t.Run("wait_until_released", func(t *testing.T) {
		limiter := NewLimiter(Config{MaxPerUser: 1, PollInterval: 10 * time.Millisecond})

		token, err := limiter.Acquire("user1")
		if err != nil {
			t.Fatalf("获取失败: %v", err)
		}

		go func() {
			time.Sleep(50 * time.Millisecond)
			token.Release()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		waited, err := limiter.AcquireWait(ctx, "user1")
		if err != nil {
			t.Fatalf("等待获取应该在释放后成功: %v", err)
		}
		waited.Release()
	})

	t.Run("ctx_timeout", func(t *testing.T) {
		limiter := NewLimiter(Config{MaxPerUser: 1, PollInterval: 10 * time.Millisecond})
		limiter.Acquire("user1")

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		if _, err := limiter.AcquireWait(ctx, "user1"); err == nil {
			t.Error("ctx超时后应该返回错误")
		}
	})
}
