package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"Apublisher/internal/types"
	"Apublisher/internal/utils/retry"
)

func openTestStore(t *testing.T) *TaskStore {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	return NewTaskStore(db)
}

func seedTask(t *testing.T, store *TaskStore, taskID string, status TaskStatus) {
	t.Helper()
	task := &PublishTask{
		TaskID:    taskID,
		UserID:    "user1",
		Platform:  "zhihu",
		ArticleID: "a-1",
		Title:     "测试文章",
		Content:   "正文",
		Status:    status,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := store.db.Create(task).Error; err != nil {
		t.Fatalf("写入测试任务失败: %v", err)
	}
}

func TestTaskStore_MarkRunning(t *testing.T) {
	ctx := context.Background()

	t.Run("queued_to_running", func(t *testing.T) {
		store := openTestStore(t)
		seedTask(t, store, "task-1", TaskStatusQueued)

		if err := store.MarkRunning(ctx, "task-1"); err != nil {
			t.Fatalf("迁移到running失败: %v", err)
		}

		task, err := store.GetTask(ctx, "task-1")
		if err != nil {
			t.Fatalf("读取任务失败: %v", err)
		}
		if task.Status != TaskStatusRunning {
			t.Errorf("期望状态running，实际%s", task.Status)
		}
		if task.Progress != 10 {
			t.Errorf("期望进度10，实际%d", task.Progress)
		}
		if task.StartedAt == nil {
			t.Error("StartedAt应该被写入")
		}
	})

	t.Run("already_running_rejected", func(t *testing.T) {
		store := openTestStore(t)
		seedTask(t, store, "task-2", TaskStatusRunning)

		if err := store.MarkRunning(ctx, "task-2"); err == nil {
			t.Error("非queued状态的任务不应被再次接走")
		}
	})
}

func TestTaskStore_FinalStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("mark_success", func(t *testing.T) {
		store := openTestStore(t)
		seedTask(t, store, "task-1", TaskStatusRunning)

		if err := store.MarkSuccess(ctx, "task-1", "https://zhuanlan.zhihu.com/p/123"); err != nil {
			t.Fatalf("写入成功状态失败: %v", err)
		}

		task, _ := store.GetTask(ctx, "task-1")
		if task.Status != TaskStatusSuccess || task.Progress != 100 {
			t.Errorf("成功状态不匹配: status=%s progress=%d", task.Status, task.Progress)
		}
		if task.ResultURL != "https://zhuanlan.zhihu.com/p/123" {
			t.Errorf("结果URL不匹配: %s", task.ResultURL)
		}
		if task.CompletedAt == nil {
			t.Error("CompletedAt应该被写入")
		}
	})

	t.Run("mark_failed_truncates", func(t *testing.T) {
		store := openTestStore(t)
		seedTask(t, store, "task-2", TaskStatusRunning)

		longMsg := strings.Repeat("错", 600)
		if err := store.MarkFailed(ctx, "task-2", longMsg); err != nil {
			t.Fatalf("写入失败状态失败: %v", err)
		}

		task, _ := store.GetTask(ctx, "task-2")
		if task.Status != TaskStatusFailed {
			t.Errorf("期望状态failed，实际%s", task.Status)
		}
		runes := []rune(task.ErrorMessage)
		if len(runes) != maxErrorMessageLen+3 {
			t.Errorf("错误信息应截断到%d+省略号，实际长度%d", maxErrorMessageLen, len(runes))
		}
		if !strings.HasSuffix(task.ErrorMessage, "...") {
			t.Error("截断后的错误信息应以省略号结尾")
		}
	})
}

func TestTaskStore_ListQueued(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	for i := 0; i < 3; i++ {
		task := &PublishTask{
			TaskID:    fmt.Sprintf("task-%d", i),
			UserID:    "user1",
			Platform:  "zhihu",
			Status:    TaskStatusQueued,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		store.db.Create(task)
	}
	seedTask(t, store, "task-running", TaskStatusRunning)

	tasks, err := store.ListQueued(ctx, 10)
	if err != nil {
		t.Fatalf("查询排队任务失败: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("期望3个排队任务，实际%d", len(tasks))
	}
	if tasks[0].TaskID != "task-0" {
		t.Errorf("排队任务应按创建时间排序，第一个是task-0，实际%s", tasks[0].TaskID)
	}
}

func TestTaskStore_GetUsableAccount(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	store.db.Create(&Account{UserID: "user1", Platform: "zhihu", Username: "alice", Status: 1})
	store.db.Create(&Account{UserID: "user1", Platform: "csdn", Username: "alice_c", Status: 0})

	t.Run("found", func(t *testing.T) {
		account, err := store.GetUsableAccount(ctx, "user1", "zhihu")
		if err != nil {
			t.Fatalf("查询账号失败: %v", err)
		}
		if account == nil || account.Username != "alice" {
			t.Errorf("账号不匹配: %+v", account)
		}
	})

	t.Run("invalid_status_skipped", func(t *testing.T) {
		account, err := store.GetUsableAccount(ctx, "user1", "csdn")
		if err != nil {
			t.Fatalf("查询账号失败: %v", err)
		}
		if account != nil {
			t.Errorf("失效账号不应被返回: %+v", account)
		}
	})

	t.Run("not_found_is_nil_nil", func(t *testing.T) {
		account, err := store.GetUsableAccount(ctx, "nobody", "zhihu")
		if err != nil {
			t.Errorf("账号不存在不应报错: %v", err)
		}
		if account != nil {
			t.Errorf("期望nil账号，实际%+v", account)
		}
	})
}

func TestIsConnectionLost(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"bad_conn", driver.ErrBadConn, true},
		{"wrapped_bad_conn", fmt.Errorf("exec: %w", driver.ErrBadConn), true},
		{"connection_lost", errors.New("mysql: connection lost during query"), true},
		{"database_locked", errors.New("database is locked"), true},
		{"broken_pipe", errors.New("write: broken pipe"), true},
		{"constraint_violation", errors.New("UNIQUE constraint failed"), false},
		{"record_not_found", errors.New("record not found"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsConnectionLost(c.err); got != c.want {
				t.Errorf("IsConnectionLost(%v) = %v，期望%v", c.err, got, c.want)
			}
		})
	}
}

// 连接丢失两次后第三次成功，重试策略应该吸收前两次错误
func TestDBRetry_ConnectionLostTwiceThenSuccess(t *testing.T) {
	attempts := 0
	config := dbRetryConfig()
	config.InitialDelay = time.Millisecond

	err := retry.Do(context.Background(), config, func() error {
		attempts++
		if attempts <= 2 {
			return errors.New("connection lost")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("第三次尝试成功后不应返回错误: %v", err)
	}
	if attempts != 3 {
		t.Errorf("期望尝试3次，实际%d次", attempts)
	}
}

// 非连接类错误不应触发重试
func TestDBRetry_NonTransientNotRetried(t *testing.T) {
	attempts := 0
	config := dbRetryConfig()
	config.InitialDelay = time.Millisecond

	err := retry.Do(context.Background(), config, func() error {
		attempts++
		return errors.New("UNIQUE constraint failed")
	})
	if err == nil {
		t.Fatal("非连接类错误应该上抛")
	}
	if attempts != 1 {
		t.Errorf("非连接类错误期望只尝试1次，实际%d次", attempts)
	}
}

func TestTaskStore_WrapTransient(t *testing.T) {
	store := openTestStore(t)

	wrapped := store.wrap("写入任务结果", errors.New("database is closed"))
	if !types.IsKind(wrapped, types.ErrKindDBTransient) {
		t.Errorf("连接类错误应包装为数据库瞬时错误: %v", wrapped)
	}

	plain := store.wrap("写入任务结果", errors.New("constraint failed"))
	if types.IsKind(plain, types.ErrKindDBTransient) {
		t.Errorf("普通错误不应包装为瞬时错误: %v", plain)
	}
}
