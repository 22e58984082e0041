package zhihu

import "time"

type Config struct {
	PageLoadTimeout    time.Duration
	ElementWaitTimeout time.Duration
	SubmitCheckTimeout time.Duration
	TitleMaxLength     int
	PasteSettleDelay   time.Duration
	ConfirmWaitTimeout time.Duration
}

// ContentSimilarityThreshold 注入后编辑器字符数与原文字符数的最低比值
// 富文本编辑器会吞掉部分空白与格式字符，这只是个经验启发值，不是精确校验
const ContentSimilarityThreshold = 0.85

var defaultConfig = Config{
	PageLoadTimeout:    30 * time.Second,
	ElementWaitTimeout: 5 * time.Second,
	SubmitCheckTimeout: 30 * time.Second,
	TitleMaxLength:     100,
	PasteSettleDelay:   2 * time.Second,
	ConfirmWaitTimeout: 3 * time.Second,
}

func DefaultConfig() Config {
	return defaultConfig
}
