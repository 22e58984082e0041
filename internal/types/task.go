package types

import "context"

// ArticleTask 文章发布任务载荷
type ArticleTask struct {
	Platform  string   // 平台名称
	ArticleID string   // 源文章ID
	Title     string
	Content   string
	Tags      []string
}

// PublishResult 发布结果
// 发布后状态不明确时 Success 必须为 false，Message 中携带诊断信息
type PublishResult struct {
	Success   bool   `json:"success"`
	URL       string `json:"url"`
	ArticleID string `json:"articleId"`
	Message   string `json:"message"`
}

// Publisher 平台发布器接口
type Publisher interface {
	Platform() string
	ValidateCookie(ctx context.Context) (bool, error)
	Publish(ctx context.Context, task *ArticleTask) (*PublishResult, error)
	Login(ctx context.Context) error
}
