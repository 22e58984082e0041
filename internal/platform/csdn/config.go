package csdn

import "time"

type Config struct {
	PageLoadTimeout    time.Duration
	ElementWaitTimeout time.Duration
	SubmitCheckTimeout time.Duration
	TitleMaxLength     int
	PasteSettleDelay   time.Duration
	DrawerWaitTimeout  time.Duration
	APITimeout         time.Duration
}

// ContentSimilarityThreshold Markdown编辑器对粘贴内容基本无损，阈值可以比富文本高
const ContentSimilarityThreshold = 0.90

var defaultConfig = Config{
	PageLoadTimeout:    30 * time.Second,
	ElementWaitTimeout: 5 * time.Second,
	SubmitCheckTimeout: 30 * time.Second,
	TitleMaxLength:     100,
	PasteSettleDelay:   2 * time.Second,
	DrawerWaitTimeout:  5 * time.Second,
	APITimeout:         10 * time.Second,
}

func DefaultConfig() Config {
	return defaultConfig
}
