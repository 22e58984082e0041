package types

// Event 事件接口
// 所有事件类型都实现此接口，用于类型安全的事件分发
type Event interface {
	EventType() string
}

// TaskStatusChangedEvent 任务状态变更事件
type TaskStatusChangedEvent struct {
	TaskID    string `json:"taskId"`
	OldStatus string `json:"oldStatus"`
	NewStatus string `json:"newStatus"`
}

func (e TaskStatusChangedEvent) EventType() string { return "task_status_changed" }

// PublishProgressEvent 发布进度事件
type PublishProgressEvent struct {
	TaskID   string `json:"taskId"`
	Platform string `json:"platform"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
}

func (e PublishProgressEvent) EventType() string { return "publish_progress" }

// PublishCompleteEvent 发布完成事件
type PublishCompleteEvent struct {
	TaskID     string `json:"taskId"`
	Platform   string `json:"platform"`
	PublishURL string `json:"publishUrl"`
}

func (e PublishCompleteEvent) EventType() string { return "publish_complete" }
