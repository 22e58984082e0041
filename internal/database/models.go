package database

import "time"

// TaskStatus 发布任务状态
type TaskStatus string

const (
	TaskStatusQueued  TaskStatus = "queued"
	TaskStatusRunning TaskStatus = "running"
	TaskStatusSuccess TaskStatus = "success"
	TaskStatusFailed  TaskStatus = "failed"
)

// PublishTask 发布任务，由API层创建，仅由执行引擎更新，永不删除
type PublishTask struct {
	TaskID       string     `gorm:"primaryKey;column:task_id" json:"taskId"`
	UserID       string     `gorm:"index;column:user_id" json:"userId"`
	Platform     string     `json:"platform"`
	ArticleID    string     `gorm:"column:article_id" json:"articleId"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Status       TaskStatus `gorm:"index" json:"status"`
	Progress     int        `json:"progress"`
	ResultURL    string     `gorm:"column:result_url" json:"resultUrl"`
	ErrorMessage string     `gorm:"column:error_message" json:"errorMessage"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	StartedAt    *time.Time `json:"startedAt"`
	CompletedAt  *time.Time `json:"completedAt"`
}

func (PublishTask) TableName() string {
	return "publish_tasks"
}

// Account 平台账号
type Account struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"index;column:user_id" json:"userId"`
	Platform  string    `json:"platform"`
	Username  string    `json:"username"`
	Status    int       `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Account) TableName() string {
	return "accounts"
}
