package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"Apublisher/internal/database"
	"Apublisher/internal/ratelimit"
	"Apublisher/internal/types"
)

type fakeStore struct {
	task    *database.PublishTask
	account *database.Account

	markRunningCalled bool
	progressUpdates   []int
	successURL        string
	successCalled     bool
	failedMsg         string
	failedCalled      bool
}

func (f *fakeStore) GetTask(ctx context.Context, taskID string) (*database.PublishTask, error) {
	if f.task == nil {
		return nil, fmt.Errorf("失败: 读取任务 - record not found")
	}
	return f.task, nil
}

func (f *fakeStore) MarkRunning(ctx context.Context, taskID string) error {
	f.markRunningCalled = true
	return nil
}

func (f *fakeStore) UpdateProgress(ctx context.Context, taskID string, progress int) error {
	f.progressUpdates = append(f.progressUpdates, progress)
	return nil
}

func (f *fakeStore) MarkSuccess(ctx context.Context, taskID, resultURL string) error {
	f.successCalled = true
	f.successURL = resultURL
	return nil
}

func (f *fakeStore) MarkFailed(ctx context.Context, taskID, errMsg string) error {
	f.failedCalled = true
	f.failedMsg = errMsg
	return nil
}

func (f *fakeStore) GetUsableAccount(ctx context.Context, userID, platform string) (*database.Account, error) {
	return f.account, nil
}

type fakeChecker struct{ has bool }

func (f *fakeChecker) Has(platform, username string) bool { return f.has }

type fakePublisher struct {
	result   *types.PublishResult
	err      error
	panicMsg string
	called   bool
}

func (f *fakePublisher) Platform() string { return "zhihu" }
func (f *fakePublisher) ValidateCookie(ctx context.Context) (bool, error) {
	return true, nil
}
func (f *fakePublisher) Login(ctx context.Context) error { return nil }
func (f *fakePublisher) Publish(ctx context.Context, task *types.ArticleTask) (*types.PublishResult, error) {
	f.called = true
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.result, f.err
}

func queuedTask() *database.PublishTask {
	return &database.PublishTask{
		TaskID:    "task-1",
		UserID:    "user1",
		Platform:  "zhihu",
		ArticleID: "a-1",
		Title:     "测试文章",
		Content:   "正文内容",
		Status:    database.TaskStatusQueued,
	}
}

func validAccount() *database.Account {
	return &database.Account{ID: 1, UserID: "user1", Platform: "zhihu", Username: "alice", Status: 1}
}

func newTestEngine(store *fakeStore, checker *fakeChecker, publisher *fakePublisher, limiter *ratelimit.Limiter) *Engine {
	factory := func(platform, username string) (types.Publisher, error) {
		return publisher, nil
	}
	return New(store, limiter, checker, factory)
}

func TestExecutePublishTask_Success(t *testing.T) {
	store := &fakeStore{task: queuedTask(), account: validAccount()}
	publisher := &fakePublisher{
		result: &types.PublishResult{Success: true, URL: "https://zhuanlan.zhihu.com/p/123", ArticleID: "123"},
	}
	limiter := ratelimit.NewLimiter(ratelimit.Config{MaxPerUser: 2})
	eng := newTestEngine(store, &fakeChecker{has: true}, publisher, limiter)

	if err := eng.ExecutePublishTask(context.Background(), "task-1"); err != nil {
		t.Fatalf("成功路径不应返回错误: %v", err)
	}

	if !store.markRunningCalled {
		t.Error("任务应被迁移到running")
	}
	if !publisher.called {
		t.Error("发布器应被调用")
	}
	if !store.successCalled || store.successURL != "https://zhuanlan.zhihu.com/p/123" {
		t.Errorf("成功状态写入不匹配: called=%v url=%s", store.successCalled, store.successURL)
	}
	if store.failedCalled {
		t.Error("成功路径不应写入失败状态")
	}
	if len(store.progressUpdates) != 2 || store.progressUpdates[0] != 30 || store.progressUpdates[1] != 60 {
		t.Errorf("进度更新不匹配: %v", store.progressUpdates)
	}
	if limiter.InUse("user1") != 0 {
		t.Errorf("任务结束后许可应归还，实际占用%d", limiter.InUse("user1"))
	}
}

func TestExecutePublishTask_NoCredential(t *testing.T) {
	t.Run("no_account", func(t *testing.T) {
		store := &fakeStore{task: queuedTask(), account: nil}
		publisher := &fakePublisher{}
		limiter := ratelimit.NewLimiter(ratelimit.Config{MaxPerUser: 2})
		eng := newTestEngine(store, &fakeChecker{has: true}, publisher, limiter)

		err := eng.ExecutePublishTask(context.Background(), "task-1")
		if err == nil {
			t.Fatal("无可用账号应返回错误")
		}
		if !types.IsKind(err, types.ErrKindLoginRequired) {
			t.Errorf("应返回需要登录的错误: %v", err)
		}
		if publisher.called {
			t.Error("无凭据时不应触碰浏览器")
		}
		if !store.failedCalled {
			t.Error("应写入失败状态")
		}
		if limiter.InUse("user1") != 0 {
			t.Error("许可应归还")
		}
	})

	t.Run("no_cookie_file", func(t *testing.T) {
		store := &fakeStore{task: queuedTask(), account: validAccount()}
		publisher := &fakePublisher{}
		limiter := ratelimit.NewLimiter(ratelimit.Config{MaxPerUser: 2})
		eng := newTestEngine(store, &fakeChecker{has: false}, publisher, limiter)

		err := eng.ExecutePublishTask(context.Background(), "task-1")
		if !types.IsKind(err, types.ErrKindLoginRequired) {
			t.Errorf("凭据文件缺失应返回需要登录的错误: %v", err)
		}
		if publisher.called {
			t.Error("无凭据时不应触碰浏览器")
		}
	})
}

func TestExecutePublishTask_PublishError(t *testing.T) {
	store := &fakeStore{task: queuedTask(), account: validAccount()}
	publisher := &fakePublisher{err: types.NewContentInjectionError("注入正文", errors.New("字符数校验未通过"))}
	limiter := ratelimit.NewLimiter(ratelimit.Config{MaxPerUser: 2})
	eng := newTestEngine(store, &fakeChecker{has: true}, publisher, limiter)

	err := eng.ExecutePublishTask(context.Background(), "task-1")
	if err == nil {
		t.Fatal("发布失败应返回错误")
	}
	if !store.failedCalled {
		t.Error("应写入失败状态")
	}
	if !strings.Contains(store.failedMsg, "注入正文") {
		t.Errorf("失败信息应携带错误详情: %s", store.failedMsg)
	}
	if store.successCalled {
		t.Error("失败路径不应写入成功状态")
	}
	if limiter.InUse("user1") != 0 {
		t.Errorf("失败后许可应归还，实际占用%d", limiter.InUse("user1"))
	}
}

func TestExecutePublishTask_AmbiguousResult(t *testing.T) {
	store := &fakeStore{task: queuedTask(), account: validAccount()}
	publisher := &fakePublisher{
		result: &types.PublishResult{Success: false, Message: "超时未确认发布成功"},
	}
	limiter := ratelimit.NewLimiter(ratelimit.Config{MaxPerUser: 2})
	eng := newTestEngine(store, &fakeChecker{has: true}, publisher, limiter)

	err := eng.ExecutePublishTask(context.Background(), "task-1")
	if err == nil {
		t.Fatal("状态不明确应按失败处理")
	}
	if store.successCalled {
		t.Error("状态不明确绝不能写成功")
	}
	if !store.failedCalled {
		t.Error("应写入失败状态")
	}
}

func TestExecutePublishTask_PanicRecovered(t *testing.T) {
	store := &fakeStore{task: queuedTask(), account: validAccount()}
	publisher := &fakePublisher{panicMsg: "nil pointer in automation"}
	limiter := ratelimit.NewLimiter(ratelimit.Config{MaxPerUser: 2})
	eng := newTestEngine(store, &fakeChecker{has: true}, publisher, limiter)

	err := eng.ExecutePublishTask(context.Background(), "task-1")
	if err == nil {
		t.Fatal("panic应转为错误返回")
	}
	if !store.failedCalled || !strings.Contains(store.failedMsg, "panic") {
		t.Errorf("panic应写入失败状态: called=%v msg=%s", store.failedCalled, store.failedMsg)
	}
	if limiter.InUse("user1") != 0 {
		t.Errorf("panic后许可应归还，实际占用%d", limiter.InUse("user1"))
	}
}

func TestExecutePublishTask_Throttled(t *testing.T) {
	store := &fakeStore{task: queuedTask(), account: validAccount()}
	publisher := &fakePublisher{}
	limiter := ratelimit.NewLimiter(ratelimit.Config{MaxPerUser: 1})
	eng := newTestEngine(store, &fakeChecker{has: true}, publisher, limiter)

	// 占满该用户的许可
	token, err := limiter.Acquire("user1")
	if err != nil {
		t.Fatalf("预占许可失败: %v", err)
	}
	defer token.Release()

	if err := eng.ExecutePublishTask(context.Background(), "task-1"); err == nil {
		t.Fatal("限流时应返回错误")
	}
	if store.markRunningCalled {
		t.Error("被限流的任务不应迁移到running，应留在队列里")
	}
	if store.failedCalled {
		t.Error("被限流的任务不应写失败状态")
	}
}

// 注入各阶段失败，许可都应该只归还一次且最终归零
func TestExecutePublishTask_TokenReleasedExactlyOnce(t *testing.T) {
	scenarios := []struct {
		name      string
		publisher *fakePublisher
		checker   *fakeChecker
	}{
		{"success", &fakePublisher{result: &types.PublishResult{Success: true, URL: "u"}}, &fakeChecker{has: true}},
		{"publish_error", &fakePublisher{err: errors.New("boom")}, &fakeChecker{has: true}},
		{"panic", &fakePublisher{panicMsg: "boom"}, &fakeChecker{has: true}},
		{"login_required", &fakePublisher{}, &fakeChecker{has: false}},
	}

	for _, sc := range scenarios {
		t.Run(sc.name, func(t *testing.T) {
			store := &fakeStore{task: queuedTask(), account: validAccount()}
			limiter := ratelimit.NewLimiter(ratelimit.Config{MaxPerUser: 1})
			eng := newTestEngine(store, sc.checker, sc.publisher, limiter)

			_ = eng.ExecutePublishTask(context.Background(), "task-1")

			if limiter.InUse("user1") != 0 {
				t.Errorf("许可未归零，占用%d", limiter.InUse("user1"))
			}
			acquired, _ := limiter.GetMetrics()
			if acquired != 1 {
				t.Errorf("期望获取1次许可，实际%d", acquired)
			}
			// 归还后应能立即再次获取，证明没有多放
			token, err := limiter.Acquire("user1")
			if err != nil {
				t.Errorf("归还后再次获取失败: %v", err)
			} else {
				token.Release()
			}
		})
	}
}
