package browser

import (
	"fmt"
	"sync"
	"time"

	"Apublisher/internal/utils"

	"github.com/google/uuid"
)

// SessionRegistry 所有存活会话的注册表
// 进程启动时构造一次并显式注入，同时服务于清理定时器与任务线程，内部用互斥锁保护
type SessionRegistry struct {
	sessions     map[string]*Session
	mu           sync.Mutex
	cleanupDelay time.Duration
}

// NewSessionRegistry 创建注册表，cleanupDelay 为会话自动回收延迟
func NewSessionRegistry(cleanupDelay time.Duration) *SessionRegistry {
	return &SessionRegistry{
		sessions:     make(map[string]*Session),
		cleanupDelay: cleanupDelay,
	}
}

// NewSession 启动一个新的浏览器会话并登记
// 启动成功后预约自动清理定时器；Close 会取消该定时器
func (r *SessionRegistry) NewSession(platform string, options SessionOptions) (*Session, error) {
	session := &Session{
		ID:        uuid.NewString(),
		Platform:  platform,
		CreatedAt: time.Now(),
		options:   options,
		state:     StateInit,
		registry:  r,
	}

	if err := session.launch(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[session.ID] = session
	r.mu.Unlock()

	if r.cleanupDelay > 0 {
		session.mu.Lock()
		session.cleanupTimer = time.AfterFunc(r.cleanupDelay, func() {
			utils.WarnWithPlatform(platform, fmt.Sprintf("会话 %s 超过 %v 未回收，自动关闭", session.ID, r.cleanupDelay))
			_ = session.Close()
		})
		session.mu.Unlock()
	}

	utils.InfoWithPlatform(platform, fmt.Sprintf("会话 %s 已创建", session.ID))
	return session, nil
}

// Get 按ID查找存活会话
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	return session, ok
}

// Count 返回存活会话数
func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// remove 从注册表摘除，仅由 Session.Close 调用
func (r *SessionRegistry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// DrainAll 关闭所有存活会话，进程退出钩子调用，避免浏览器进程残留
func (r *SessionRegistry) DrainAll() {
	r.mu.Lock()
	remaining := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		remaining = append(remaining, s)
	}
	r.mu.Unlock()

	if len(remaining) == 0 {
		return
	}

	utils.Warn(fmt.Sprintf("进程退出，强制回收 %d 个存活会话", len(remaining)))
	for _, s := range remaining {
		_ = s.Close()
	}
}
