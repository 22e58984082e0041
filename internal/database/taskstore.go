package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"Apublisher/internal/types"
	"Apublisher/internal/utils"
	"Apublisher/internal/utils/retry"

	"gorm.io/gorm"
)

// maxErrorMessageLen 任务错误信息入库前的截断长度
const maxErrorMessageLen = 500

// dbRetryConfig 数据库写入重试：连接类错误最多重试3次，短退避
func dbRetryConfig() *retry.Config {
	return &retry.Config{
		MaxRetries:   3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Strategy:     retry.FixedInterval,
		Condition:    IsConnectionLost,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			utils.Warn(fmt.Sprintf("数据库连接异常，第%d次重试: %v", attempt, err))
		},
	}
}

// IsConnectionLost 判断是否为连接丢失类错误
// 只有这一类错误才重试，其余错误直接上抛，避免掩盖真实故障
func IsConnectionLost(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	msg := strings.ToLower(err.Error())
	patterns := []string{
		"connection lost",
		"connection reset",
		"connection refused",
		"broken pipe",
		"bad connection",
		"database is locked",
		"database is closed",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// TaskStore 任务读写层
// 每次调用打开独立的短会话，绝不跨浏览器自动化步骤持有数据库连接
type TaskStore struct {
	db *gorm.DB
}

func NewTaskStore(db *gorm.DB) *TaskStore {
	return &TaskStore{db: db}
}

// GetTask 读取任务行
func (s *TaskStore) GetTask(ctx context.Context, taskID string) (*PublishTask, error) {
	return retry.DoWithResult(ctx, dbRetryConfig(), func() (*PublishTask, error) {
		var task PublishTask
		if err := s.db.WithContext(ctx).First(&task, "task_id = ?", taskID).Error; err != nil {
			return nil, s.wrap("读取任务", err)
		}
		return &task, nil
	})
}

// MarkRunning 将任务从queued迁移到running
// 带状态条件更新，任务已被其它进程接走时返回错误
func (s *TaskStore) MarkRunning(ctx context.Context, taskID string) error {
	return retry.Do(ctx, dbRetryConfig(), func() error {
		now := time.Now()
		result := s.db.WithContext(ctx).Model(&PublishTask{}).
			Where("task_id = ? AND status = ?", taskID, TaskStatusQueued).
			Updates(map[string]interface{}{
				"status":     TaskStatusRunning,
				"progress":   10,
				"started_at": &now,
				"updated_at": now,
			})
		if result.Error != nil {
			return s.wrap("更新任务状态", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("失败: 更新任务状态 - 任务不在排队状态: %s", taskID)
		}
		return nil
	})
}

// UpdateProgress 更新任务进度
func (s *TaskStore) UpdateProgress(ctx context.Context, taskID string, progress int) error {
	return retry.Do(ctx, dbRetryConfig(), func() error {
		err := s.db.WithContext(ctx).Model(&PublishTask{}).
			Where("task_id = ?", taskID).
			Updates(map[string]interface{}{
				"progress":   progress,
				"updated_at": time.Now(),
			}).Error
		return s.wrap("更新任务进度", err)
	})
}

// MarkSuccess 写入最终成功状态
func (s *TaskStore) MarkSuccess(ctx context.Context, taskID, resultURL string) error {
	return retry.Do(ctx, dbRetryConfig(), func() error {
		now := time.Now()
		err := s.db.WithContext(ctx).Model(&PublishTask{}).
			Where("task_id = ?", taskID).
			Updates(map[string]interface{}{
				"status":       TaskStatusSuccess,
				"progress":     100,
				"result_url":   resultURL,
				"completed_at": &now,
				"updated_at":   now,
			}).Error
		return s.wrap("写入任务结果", err)
	})
}

// MarkFailed 写入最终失败状态，错误信息截断后入库
func (s *TaskStore) MarkFailed(ctx context.Context, taskID, errMsg string) error {
	return retry.Do(ctx, dbRetryConfig(), func() error {
		now := time.Now()
		err := s.db.WithContext(ctx).Model(&PublishTask{}).
			Where("task_id = ?", taskID).
			Updates(map[string]interface{}{
				"status":        TaskStatusFailed,
				"progress":      100,
				"error_message": TruncateError(errMsg),
				"completed_at":  &now,
				"updated_at":    now,
			}).Error
		return s.wrap("写入任务结果", err)
	})
}

// ListQueued 查询排队中的任务，按创建时间排序
func (s *TaskStore) ListQueued(ctx context.Context, limit int) ([]PublishTask, error) {
	var tasks []PublishTask
	err := s.db.WithContext(ctx).
		Where("status = ?", TaskStatusQueued).
		Order("created_at ASC").
		Limit(limit).
		Find(&tasks).Error
	if err != nil {
		return nil, s.wrap("查询排队任务", err)
	}
	return tasks, nil
}

// GetUsableAccount 查询某用户在某平台下状态有效的账号
func (s *TaskStore) GetUsableAccount(ctx context.Context, userID, platform string) (*Account, error) {
	return retry.DoWithResult(ctx, dbRetryConfig(), func() (*Account, error) {
		var account Account
		err := s.db.WithContext(ctx).
			Where("user_id = ? AND platform = ? AND status = ?", userID, platform, 1).
			First(&account).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, s.wrap("查询账号", err)
		}
		return &account, nil
	})
}

// UpdateAccountStatus 更新账号状态
func (s *TaskStore) UpdateAccountStatus(ctx context.Context, accountID uint, status int) error {
	return retry.Do(ctx, dbRetryConfig(), func() error {
		err := s.db.WithContext(ctx).Model(&Account{}).
			Where("id = ?", accountID).
			Updates(map[string]interface{}{
				"status":     status,
				"updated_at": time.Now(),
			}).Error
		return s.wrap("更新账号状态", err)
	})
}

func (s *TaskStore) wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsConnectionLost(err) {
		return types.NewDBTransientError(op, err)
	}
	return fmt.Errorf("失败: %s - %w", op, err)
}

// TruncateError 按符文截断错误信息，避免超长堆栈污染任务行
func TruncateError(msg string) string {
	runes := []rune(msg)
	if len(runes) <= maxErrorMessageLen {
		return msg
	}
	return string(runes[:maxErrorMessageLen]) + "..."
}
