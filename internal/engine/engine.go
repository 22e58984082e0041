// Package engine 驱动单个发布任务走完全部执行阶段
package engine

import (
	"context"
	"fmt"

	"Apublisher/internal/captcha"
	"Apublisher/internal/credential"
	"Apublisher/internal/database"
	"Apublisher/internal/platform/browser"
	"Apublisher/internal/platform/csdn"
	"Apublisher/internal/platform/zhihu"
	"Apublisher/internal/ratelimit"
	"Apublisher/internal/types"
	"Apublisher/internal/utils"
)

// TaskStore 引擎需要的任务读写能力
type TaskStore interface {
	GetTask(ctx context.Context, taskID string) (*database.PublishTask, error)
	MarkRunning(ctx context.Context, taskID string) error
	UpdateProgress(ctx context.Context, taskID string, progress int) error
	MarkSuccess(ctx context.Context, taskID, resultURL string) error
	MarkFailed(ctx context.Context, taskID, errMsg string) error
	GetUsableAccount(ctx context.Context, userID, platform string) (*database.Account, error)
}

// CredentialChecker 第二阶段的凭据快速检查
type CredentialChecker interface {
	Has(platform, username string) bool
}

// PublisherFactory 按平台和账号构造发布器
type PublisherFactory func(platform, username string) (types.Publisher, error)

// EventSink 执行过程事件的可选订阅者
type EventSink func(types.Event)

// Engine 任务执行引擎
// 不持有任何跨任务状态，所有写库都走带重试的TaskStore
type Engine struct {
	store       TaskStore
	limiter     *ratelimit.Limiter
	credentials CredentialChecker
	factory     PublisherFactory
	events      EventSink
}

func New(store TaskStore, limiter *ratelimit.Limiter, credentials CredentialChecker, factory PublisherFactory) *Engine {
	return &Engine{
		store:       store,
		limiter:     limiter,
		credentials: credentials,
		factory:     factory,
	}
}

// NewWithPlatforms 按默认平台集合构造引擎
func NewWithPlatforms(store *database.TaskStore, limiter *ratelimit.Limiter, credStore *credential.Store, registry *browser.SessionRegistry, resolver *captcha.Resolver) *Engine {
	factory := func(platform, username string) (types.Publisher, error) {
		switch platform {
		case "zhihu":
			return zhihu.NewPublisher(username, registry, credStore, resolver), nil
		case "csdn":
			return csdn.NewPublisher(username, registry, credStore, resolver), nil
		default:
			return nil, fmt.Errorf("失败: 创建发布器 - 不支持的平台: %s", platform)
		}
	}
	return New(store, limiter, credStore, factory)
}

// SetEventSink 设置事件订阅者，未设置时事件静默丢弃
func (e *Engine) SetEventSink(sink EventSink) {
	e.events = sink
}

func (e *Engine) emit(event types.Event) {
	if e.events != nil {
		e.events(event)
	}
}

// ExecutePublishTask 执行一个发布任务的完整生命周期
// 许可在延迟块中释放且只释放一次；panic被捕获并转为任务失败，绝不带垮进程
func (e *Engine) ExecutePublishTask(ctx context.Context, taskID string) (err error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	// 并发许可在任务装载后获取，拿不到就把任务留在队列里
	token, acquireErr := e.limiter.Acquire(task.UserID)
	if acquireErr != nil {
		utils.Warn(fmt.Sprintf("任务 %s 被限流: %v", taskID, acquireErr))
		return acquireErr
	}
	defer token.Release()

	defer func() {
		if r := recover(); r != nil {
			utils.Error(fmt.Sprintf("任务 %s 执行panic: %v", taskID, r))
			if markErr := e.store.MarkFailed(ctx, taskID, fmt.Sprintf("internal panic: %v", r)); markErr != nil {
				utils.Error(fmt.Sprintf("任务 %s panic后写入失败状态失败: %v", taskID, markErr))
			}
			err = fmt.Errorf("失败: 执行任务 - panic: %v", r)
		}
	}()

	if err := e.store.MarkRunning(ctx, taskID); err != nil {
		return err
	}
	e.emit(types.TaskStatusChangedEvent{TaskID: taskID, OldStatus: string(database.TaskStatusQueued), NewStatus: string(database.TaskStatusRunning)})
	utils.InfoWithPlatform(task.Platform, fmt.Sprintf("任务 %s 开始执行: %s", taskID, task.Title))

	// 凭据缺失走快速失败，不碰浏览器
	account, err := e.store.GetUsableAccount(ctx, task.UserID, task.Platform)
	if err != nil {
		return e.fail(ctx, taskID, err)
	}
	if account == nil || !e.credentials.Has(task.Platform, account.Username) {
		loginErr := types.NewLoginRequiredError("执行任务")
		utils.WarnWithPlatform(task.Platform, fmt.Sprintf("任务 %s 无可用凭据，需要重新登录", taskID))
		return e.fail(ctx, taskID, loginErr)
	}

	publisher, err := e.factory(task.Platform, account.Username)
	if err != nil {
		return e.fail(ctx, taskID, err)
	}

	if err := e.store.UpdateProgress(ctx, taskID, 30); err != nil {
		utils.Warn(fmt.Sprintf("任务 %s 更新进度失败: %v", taskID, err))
	}
	e.emit(types.PublishProgressEvent{TaskID: taskID, Platform: task.Platform, Progress: 30, Message: "启动浏览器自动化"})

	// 浏览器自动化期间不持有任何数据库资源
	result, pubErr := publisher.Publish(ctx, &types.ArticleTask{
		Platform:  task.Platform,
		ArticleID: task.ArticleID,
		Title:     task.Title,
		Content:   task.Content,
	})
	if pubErr != nil {
		return e.fail(ctx, taskID, pubErr)
	}

	if err := e.store.UpdateProgress(ctx, taskID, 60); err != nil {
		utils.Warn(fmt.Sprintf("任务 %s 更新进度失败: %v", taskID, err))
	}
	e.emit(types.PublishProgressEvent{TaskID: taskID, Platform: task.Platform, Progress: 60, Message: "发布流程已完成，校验结果"})

	if !result.Success {
		return e.fail(ctx, taskID, fmt.Errorf("失败: 发布文章 - %s", result.Message))
	}

	if err := e.store.MarkSuccess(ctx, taskID, result.URL); err != nil {
		return err
	}
	e.emit(types.TaskStatusChangedEvent{TaskID: taskID, OldStatus: string(database.TaskStatusRunning), NewStatus: string(database.TaskStatusSuccess)})
	e.emit(types.PublishCompleteEvent{TaskID: taskID, Platform: task.Platform, PublishURL: result.URL})
	utils.SuccessWithPlatform(task.Platform, fmt.Sprintf("任务 %s 完成: %s", taskID, result.URL))
	return nil
}

// fail 写入最终失败状态并返回原始错误
func (e *Engine) fail(ctx context.Context, taskID string, cause error) error {
	if markErr := e.store.MarkFailed(ctx, taskID, cause.Error()); markErr != nil {
		utils.Error(fmt.Sprintf("任务 %s 写入失败状态失败: %v", taskID, markErr))
	}
	e.emit(types.TaskStatusChangedEvent{TaskID: taskID, OldStatus: string(database.TaskStatusRunning), NewStatus: string(database.TaskStatusFailed)})
	return cause
}
