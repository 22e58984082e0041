package config

const (
	PlatformZhihu = "zhihu"
	PlatformCSDN  = "csdn"
)

const (
	AccountStatusInvalid = 0
	AccountStatusValid   = 1
)

const (
	DefaultDbPath         = "storage/apublisher.db"
	DefaultCookiePath     = "storage/cookies"
	DefaultLogPath        = "storage/logs"
	DefaultScreenshotPath = "storage/screenshots"
)

const (
	// DefaultSessionCleanupDelay 浏览器会话自动回收延迟（秒）
	DefaultSessionCleanupDelay = 3600
	// DefaultLoginPollInterval 登录轮询间隔（秒）
	DefaultLoginPollInterval = 2
	// DefaultLoginTimeout 登录等待超时（秒）
	DefaultLoginTimeout = 180
	// DefaultMaxQRRetries 二维码抓取最大重试次数
	DefaultMaxQRRetries = 3
	// DefaultRateLimitPerUser 单用户最大并发自动化会话数
	DefaultRateLimitPerUser = 2
	// DefaultWorkers 调度器工作线程数
	DefaultWorkers = 2
)
