package browser

import (
	"testing"
	"time"
)

// 直接构造未启动浏览器的会话，只验证注册表与关闭语义
func newFakeSession(id string, r *SessionRegistry) *Session {
	s := &Session{
		ID:        id,
		Platform:  "zhihu",
		CreatedAt: time.Now(),
		state:     StateInit,
		registry:  r,
	}
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return s
}

func TestSession_CloseIdempotent(t *testing.T) {
	registry := NewSessionRegistry(time.Hour)
	session := newFakeSession("s-1", registry)

	if err := session.Close(); err != nil {
		t.Fatalf("首次关闭失败: %v", err)
	}
	if session.State() != StateClosed {
		t.Errorf("关闭后状态应为CLOSED，实际%s", session.State())
	}
	if !session.IsClosed() {
		t.Error("IsClosed应返回true")
	}

	for i := 0; i < 3; i++ {
		if err := session.Close(); err != nil {
			t.Errorf("第%d次重复关闭不应报错: %v", i+2, err)
		}
	}
}

func TestSessionRegistry_RemoveOnClose(t *testing.T) {
	registry := NewSessionRegistry(time.Hour)
	s1 := newFakeSession("s-1", registry)
	s2 := newFakeSession("s-2", registry)

	if registry.Count() != 2 {
		t.Fatalf("期望2个存活会话，实际%d", registry.Count())
	}

	if err := s1.Close(); err != nil {
		t.Fatalf("关闭失败: %v", err)
	}
	if registry.Count() != 1 {
		t.Errorf("关闭后应从注册表摘除，剩余%d", registry.Count())
	}
	if _, ok := registry.Get("s-1"); ok {
		t.Error("已关闭的会话不应能被查到")
	}
	if _, ok := registry.Get("s-2"); !ok {
		t.Error("未关闭的会话应仍在注册表中")
	}

	s2.Close()
	if registry.Count() != 0 {
		t.Errorf("全部关闭后注册表应为空，实际%d", registry.Count())
	}
}

func TestSessionRegistry_DrainAll(t *testing.T) {
	registry := NewSessionRegistry(time.Hour)
	sessions := []*Session{
		newFakeSession("s-1", registry),
		newFakeSession("s-2", registry),
		newFakeSession("s-3", registry),
	}

	registry.DrainAll()

	if registry.Count() != 0 {
		t.Errorf("DrainAll后注册表应为空，实际%d", registry.Count())
	}
	for _, s := range sessions {
		if !s.IsClosed() {
			t.Errorf("会话%s应已被关闭", s.ID)
		}
	}

	// 再次调用应无副作用
	registry.DrainAll()
}

func TestSession_CleanupTimerCancelledOnClose(t *testing.T) {
	registry := NewSessionRegistry(50 * time.Millisecond)
	session := newFakeSession("s-1", registry)

	session.mu.Lock()
	session.cleanupTimer = time.AfterFunc(50*time.Millisecond, func() {
		t.Error("关闭后清理定时器不应再触发")
	})
	session.mu.Unlock()

	if err := session.Close(); err != nil {
		t.Fatalf("关闭失败: %v", err)
	}
	time.Sleep(100 * time.Millisecond)
}

func TestSession_FailClosesSession(t *testing.T) {
	registry := NewSessionRegistry(time.Hour)
	session := newFakeSession("s-1", registry)

	session.Fail("二维码抓取链耗尽")

	if !session.IsClosed() {
		t.Error("Fail后会话应被立即回收")
	}
	if registry.Count() != 0 {
		t.Errorf("Fail后注册表应为空，实际%d", registry.Count())
	}
}
