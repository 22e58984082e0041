package captcha

import "time"

// Kind 验证码类型
type Kind int

const (
	KindText       Kind = 10110 // 普通字符型
	KindArithmetic Kind = 10201 // 算术题
	KindSlide      Kind = 20111 // 单图滑块
	KindDualSlide  Kind = 20223 // 双图滑块（背景图+滑块图）
	KindClick      Kind = 30400 // 点选
)

// Config 识别服务配置
type Config struct {
	APIURL      string        // 识别接口地址
	ReportURL   string        // 报错退款接口地址
	Token       string        // 服务令牌
	Timeout     time.Duration // 单次请求超时
	SuccessCode int           // 识别成功的响应码
}

func DefaultConfig(apiURL, token string) Config {
	return Config{
		APIURL:      apiURL,
		ReportURL:   apiURL + "/report",
		Token:       token,
		Timeout:     30 * time.Second,
		SuccessCode: 10000,
	}
}
