package types

import (
	"errors"
	"fmt"
)

// ErrorKind 自动化流程错误分类
type ErrorKind string

const (
	ErrKindBrowserInit      ErrorKind = "browser_init"      // 浏览器启动失败，任务中止
	ErrKindQRCapture        ErrorKind = "qr_capture"        // 二维码抓取链全部失败
	ErrKindLoginTimeout     ErrorKind = "login_timeout"     // 用户未扫码确认，可由用户重试
	ErrKindCaptchaService   ErrorKind = "captcha_service"   // 验证码服务异常，重试一次后视为致命
	ErrKindContentInjection ErrorKind = "content_injection" // 编辑器状态无法确认，禁止点击发布
	ErrKindPublishAmbiguous ErrorKind = "publish_ambiguous" // 发布后状态不明确，按失败处理
	ErrKindDBTransient      ErrorKind = "db_transient"      // 数据库连接类错误，最多重试3次
	ErrKindLoginRequired    ErrorKind = "login_required"    // 无可用Cookie，需要先登录
)

// AutomationError 带分类的自动化错误
type AutomationError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *AutomationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("失败: %s - %v", e.Op, e.Err)
	}
	return fmt.Sprintf("失败: %s", e.Op)
}

func (e *AutomationError) Unwrap() error {
	return e.Err
}

func NewBrowserInitError(op string, err error) *AutomationError {
	return &AutomationError{Kind: ErrKindBrowserInit, Op: op, Err: err}
}

func NewQRCaptureError(op string, err error) *AutomationError {
	return &AutomationError{Kind: ErrKindQRCapture, Op: op, Err: err}
}

func NewLoginTimeoutError(op string, err error) *AutomationError {
	return &AutomationError{Kind: ErrKindLoginTimeout, Op: op, Err: err}
}

func NewCaptchaServiceError(op string, err error) *AutomationError {
	return &AutomationError{Kind: ErrKindCaptchaService, Op: op, Err: err}
}

func NewContentInjectionError(op string, err error) *AutomationError {
	return &AutomationError{Kind: ErrKindContentInjection, Op: op, Err: err}
}

func NewPublishAmbiguousError(op string, err error) *AutomationError {
	return &AutomationError{Kind: ErrKindPublishAmbiguous, Op: op, Err: err}
}

func NewDBTransientError(op string, err error) *AutomationError {
	return &AutomationError{Kind: ErrKindDBTransient, Op: op, Err: err}
}

func NewLoginRequiredError(op string) *AutomationError {
	return &AutomationError{Kind: ErrKindLoginRequired, Op: op}
}

// IsKind 判断错误链中是否存在指定分类的自动化错误
func IsKind(err error, kind ErrorKind) bool {
	var ae *AutomationError
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}
