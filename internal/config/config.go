package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type AppConfig struct {
	DbPath         string
	CookiePath     string
	LogPath        string
	ScreenshotPath string

	Headless  bool // 浏览器无头模式开关（true=隐藏浏览器窗口）
	DebugMode bool // 调试模式开关

	SessionCleanupDelay time.Duration // 会话自动回收延迟
	LoginPollInterval   time.Duration // 登录轮询间隔
	LoginTimeout        time.Duration // 登录等待超时
	MaxQRRetries        int           // 二维码抓取最大重试次数

	CaptchaAPIURL string // 验证码识别服务地址
	CaptchaToken  string // 验证码识别服务令牌

	RateLimitPerUser int // 单用户最大并发会话数
	Workers          int // 调度器工作线程数
}

// fileConfig config/config.yaml 中可配置的字段，环境变量优先
type fileConfig struct {
	Headless            *bool  `yaml:"headless"`
	SessionCleanupDelay int    `yaml:"session_cleanup_delay"`
	LoginPollInterval   int    `yaml:"login_poll_interval"`
	LoginTimeout        int    `yaml:"login_timeout"`
	MaxQRRetries        int    `yaml:"max_qr_retries"`
	CaptchaAPIURL       string `yaml:"captcha_api_url"`
	CaptchaToken        string `yaml:"captcha_token"`
	RateLimitPerUser    int    `yaml:"rate_limit_per_user"`
	Workers             int    `yaml:"workers"`
}

var Config *AppConfig

func Init() error {
	exePath, err := os.Executable()
	if err != nil {
		return err
	}
	baseDir := filepath.Dir(exePath)

	Config = &AppConfig{
		DbPath:              filepath.Join(baseDir, DefaultDbPath),
		CookiePath:          filepath.Join(baseDir, DefaultCookiePath),
		LogPath:             filepath.Join(baseDir, DefaultLogPath),
		ScreenshotPath:      filepath.Join(baseDir, DefaultScreenshotPath),
		Headless:            true,
		DebugMode:           os.Getenv("APUBLISHER_DEBUG") == "true",
		SessionCleanupDelay: DefaultSessionCleanupDelay * time.Second,
		LoginPollInterval:   DefaultLoginPollInterval * time.Second,
		LoginTimeout:        DefaultLoginTimeout * time.Second,
		MaxQRRetries:        DefaultMaxQRRetries,
		RateLimitPerUser:    DefaultRateLimitPerUser,
		Workers:             DefaultWorkers,
	}

	if err := loadFile(filepath.Join(baseDir, "config", "config.yaml")); err != nil {
		return err
	}
	loadEnv()

	dirs := []string{
		filepath.Dir(Config.DbPath),
		Config.CookiePath,
		Config.LogPath,
		Config.ScreenshotPath,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s failed: %w", dir, err)
		}
	}

	return nil
}

// loadFile 读取可选的YAML配置文件，文件不存在不算错误
func loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}

	if fc.Headless != nil {
		Config.Headless = *fc.Headless
	}
	if fc.SessionCleanupDelay > 0 {
		Config.SessionCleanupDelay = time.Duration(fc.SessionCleanupDelay) * time.Second
	}
	if fc.LoginPollInterval > 0 {
		Config.LoginPollInterval = time.Duration(fc.LoginPollInterval) * time.Second
	}
	if fc.LoginTimeout > 0 {
		Config.LoginTimeout = time.Duration(fc.LoginTimeout) * time.Second
	}
	if fc.MaxQRRetries > 0 {
		Config.MaxQRRetries = fc.MaxQRRetries
	}
	if fc.CaptchaAPIURL != "" {
		Config.CaptchaAPIURL = fc.CaptchaAPIURL
	}
	if fc.CaptchaToken != "" {
		Config.CaptchaToken = fc.CaptchaToken
	}
	if fc.RateLimitPerUser > 0 {
		Config.RateLimitPerUser = fc.RateLimitPerUser
	}
	if fc.Workers > 0 {
		Config.Workers = fc.Workers
	}
	return nil
}

func loadEnv() {
	if v := os.Getenv("APUBLISHER_HEADLESS"); v != "" {
		Config.Headless = v == "true"
	}
	if v := os.Getenv("APUBLISHER_CAPTCHA_API_URL"); v != "" {
		Config.CaptchaAPIURL = v
	}
	if v := os.Getenv("APUBLISHER_CAPTCHA_TOKEN"); v != "" {
		Config.CaptchaToken = v
	}
	if v := os.Getenv("APUBLISHER_SESSION_CLEANUP_DELAY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			Config.SessionCleanupDelay = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("APUBLISHER_LOGIN_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			Config.LoginTimeout = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("APUBLISHER_RATE_LIMIT_PER_USER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			Config.RateLimitPerUser = n
		}
	}
}

func GetDbPath() string {
	return Config.DbPath
}

// GetCookiePath 返回某平台某账号的Cookie文件路径
func GetCookiePath(platform, username string) string {
	return filepath.Join(Config.CookiePath, fmt.Sprintf("%s_%s.json", platform, username))
}
