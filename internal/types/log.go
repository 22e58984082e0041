package types

type LogLevel string

const (
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarn    LogLevel = "WARN"
	LogLevelError   LogLevel = "ERROR"
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelSuccess LogLevel = "SUCCESS"
)

// SimpleLog 单条日志记录
type SimpleLog struct {
	Date     string   `json:"date"`
	Time     string   `json:"time"`
	Message  string   `json:"message"`
	Platform string   `json:"platform"`
	Level    LogLevel `json:"level"`
}
