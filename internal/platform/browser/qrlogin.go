package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"Apublisher/internal/types"
	"Apublisher/internal/utils"

	"github.com/playwright-community/playwright-go"
)

// QRLoginConfig 某个平台二维码登录的页面约定
type QRLoginConfig struct {
	SignInURL            string   // 登录页地址，也是"仍未登录"的URL判据
	QRTabSelectors       []string // 切换到扫码登录页签需要点击的元素
	QRImageSelectors     []string // 可能直接带图片数据的二维码元素
	QRContainerSelectors []string // 二维码容器，按优先级截图
	LoginAreaSelector    string   // 更大的登录区域容器，兜底截图
	ExpiredSelector      string   // 二维码过期提示
	RefreshSelector      string   // 二维码刷新按钮
	LoggedInSelectors    []string // 登录后才出现的DOM标记
	PostLoginCookies     []string // 登录后出现的Cookie键
}

// QRLoginAttempt 一次二维码登录尝试，每个会话同时最多一个
type QRLoginAttempt struct {
	StrategiesTried []string
	LastImage       *QRImage
	PollStart       time.Time
	PollDeadline    time.Time
}

// QRImage 抓取到的二维码图像
type QRImage struct {
	Data     []byte
	MIME     string
	Strategy string
}

// 元素截图的合理二维码字节范围：太小是空白截图，太大是整页截图
const (
	minQRImageBytes = 512
	maxQRImageBytes = 256 * 1024
)

// 单个抓取策略的时间预算（毫秒），保证整条回退链快速走完
const strategyTimeoutMs = 2000

// plausibleQRSize 判断截图字节数是否落在合理的二维码图像范围内
func plausibleQRSize(n int) bool {
	return n >= minQRImageBytes && n <= maxQRImageBytes
}

// captureStrategy 一个有名字的二维码抓取策略，按顺序求值，命中即停
type captureStrategy struct {
	name    string
	capture func() (*QRImage, bool)
}

// captureFirst 顺序执行策略表，返回第一个命中的结果与尝试过的策略名
func captureFirst(strategies []captureStrategy) (*QRImage, []string) {
	tried := make([]string, 0, len(strategies))
	for _, s := range strategies {
		tried = append(tried, s.name)
		if image, ok := s.capture(); ok {
			image.Strategy = s.name
			return image, tried
		}
	}
	return nil, tried
}

// buildCaptureStrategies 组装某个页面的抓取回退链
// 顺序：元素src直读 → 精确容器截图 → 登录区域截图 → 合成占位图
func buildCaptureStrategies(page playwright.Page, config QRLoginConfig) []captureStrategy {
	strategies := make([]captureStrategy, 0, 4)

	strategies = append(strategies, captureStrategy{
		name: "direct_src",
		capture: func() (*QRImage, bool) {
			for _, sel := range config.QRImageSelectors {
				if image, ok := decodeImageSrc(page, sel); ok {
					return image, true
				}
			}
			return nil, false
		},
	})

	strategies = append(strategies, captureStrategy{
		name: "element_screenshot",
		capture: func() (*QRImage, bool) {
			for _, sel := range config.QRContainerSelectors {
				if data, ok := elementShot(page, sel); ok {
					return &QRImage{Data: data, MIME: "image/png"}, true
				}
			}
			return nil, false
		},
	})

	if config.LoginAreaSelector != "" {
		strategies = append(strategies, captureStrategy{
			name: "login_area_screenshot",
			capture: func() (*QRImage, bool) {
				if data, ok := elementShot(page, config.LoginAreaSelector); ok {
					return &QRImage{Data: data, MIME: "image/png"}, true
				}
				return nil, false
			},
		})
	}

	strategies = append(strategies, captureStrategy{
		name: "placeholder",
		capture: func() (*QRImage, bool) {
			return placeholderImage(config.SignInURL), true
		},
	})

	return strategies
}

// decodeImageSrc 从元素的src属性直读图片数据
func decodeImageSrc(page playwright.Page, selector string) (*QRImage, bool) {
	loc := page.Locator(selector).First()
	if count, err := loc.Count(); err != nil || count == 0 {
		return nil, false
	}

	src, err := loc.GetAttribute("src", playwright.LocatorGetAttributeOptions{
		Timeout: playwright.Float(strategyTimeoutMs),
	})
	if err != nil || src == "" {
		return nil, false
	}

	// 只接受内联的图片数据，外链地址交给截图策略
	if !strings.HasPrefix(src, "data:image/") {
		return nil, false
	}
	parts := strings.SplitN(src, ",", 2)
	if len(parts) != 2 {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(data) < 100 {
		return nil, false
	}

	mime := "image/png"
	if meta := strings.TrimPrefix(parts[0], "data:"); strings.Contains(meta, ";") {
		mime = strings.SplitN(meta, ";", 2)[0]
	}
	return &QRImage{Data: data, MIME: mime}, true
}

// elementShot 对元素截图并校验字节数落在合理二维码范围内
func elementShot(page playwright.Page, selector string) ([]byte, bool) {
	loc := page.Locator(selector).First()
	if count, err := loc.Count(); err != nil || count == 0 {
		return nil, false
	}

	data, err := loc.Screenshot(playwright.LocatorScreenshotOptions{
		Timeout: playwright.Float(strategyTimeoutMs),
	})
	if err != nil {
		return nil, false
	}
	if !plausibleQRSize(len(data)) {
		utils.Debug(fmt.Sprintf("截图字节数 %d 不在合理范围，跳过 %s", len(data), selector))
		return nil, false
	}
	return data, true
}

// placeholderImage 最后的兜底：一张带指引文字的合成图，保证调用方总能拿到可渲染内容
func placeholderImage(signInURL string) *QRImage {
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="300" height="300">
<rect width="300" height="300" fill="#f5f5f5" stroke="#cccccc"/>
<text x="150" y="130" text-anchor="middle" font-size="14" fill="#333333">二维码抓取失败</text>
<text x="150" y="160" text-anchor="middle" font-size="12" fill="#666666">请手动打开登录页扫码：</text>
<text x="150" y="185" text-anchor="middle" font-size="10" fill="#1772f6">%s</text>
</svg>`, signInURL)
	return &QRImage{Data: []byte(svg), MIME: "image/svg+xml"}
}

// GetQRCode 驱动页面到登录表单并抓取二维码
// 整个调用最多重试 maxRetries 次，重试之间整页刷新；全部失败返回二维码抓取错误
func (s *Session) GetQRCode(config QRLoginConfig, maxRetries int) (*QRImage, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	s.mu.Lock()
	if s.attempt != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("失败: 抓取二维码 - 会话已有进行中的登录尝试")
	}
	s.attempt = &QRLoginAttempt{}
	s.mu.Unlock()

	var lastTried []string
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			utils.InfoWithPlatform(s.Platform, fmt.Sprintf("二维码抓取重试 %d/%d，刷新页面", attempt, maxRetries-1))
			if _, err := s.page.Reload(); err != nil {
				utils.WarnWithPlatform(s.Platform, fmt.Sprintf("刷新页面失败: %v", err))
			}
		}

		if err := s.Goto(config.SignInURL); err != nil {
			utils.WarnWithPlatform(s.Platform, fmt.Sprintf("打开登录页失败: %v", err))
			continue
		}
		s.setState(StatePageLoaded)

		s.selectQRTab(config)
		s.setState(StateQRTabSelected)

		image, tried := captureFirst(buildCaptureStrategies(s.page, config))
		lastTried = tried
		if image != nil {
			s.mu.Lock()
			s.attempt.StrategiesTried = tried
			s.attempt.LastImage = image
			s.mu.Unlock()
			s.setState(StateQRCaptured)
			utils.InfoWithPlatform(s.Platform, fmt.Sprintf("二维码抓取成功: 策略=%s, %d字节", image.Strategy, len(image.Data)))
			return image, nil
		}
	}

	err := types.NewQRCaptureError("抓取二维码",
		fmt.Errorf("重试%d次后仍失败，已尝试策略: %v", maxRetries, lastTried))
	s.Fail("二维码抓取链耗尽")
	return nil, err
}

// selectQRTab 切换到扫码登录页签，找不到页签不算错误（部分平台默认就是扫码）
func (s *Session) selectQRTab(config QRLoginConfig) {
	for _, sel := range config.QRTabSelectors {
		loc := s.page.Locator(sel).First()
		if count, err := loc.Count(); err == nil && count > 0 {
			if err := loc.Click(playwright.LocatorClickOptions{
				Timeout: playwright.Float(strategyTimeoutMs),
			}); err == nil {
				time.Sleep(1 * time.Second)
				return
			}
		}
	}
}

// loginSignal 一个独立的登录成功信号
type loginSignal struct {
	name  string
	check func() (bool, error)
}

// anySignalFires 任一信号命中即认定成功，单个信号出错不影响其它信号
func anySignalFires(signals []loginSignal) (bool, string) {
	for _, sig := range signals {
		ok, err := sig.check()
		if err != nil {
			continue
		}
		if ok {
			return true, sig.name
		}
	}
	return false, ""
}

// buildLoginSignals 组装三路独立的登录成功信号：URL变化、DOM标记、登录Cookie
func (s *Session) buildLoginSignals(config QRLoginConfig) []loginSignal {
	return []loginSignal{
		{
			name: "url_changed",
			check: func() (bool, error) {
				current := s.page.URL()
				return current != "" && !strings.HasPrefix(current, config.SignInURL), nil
			},
		},
		{
			name: "dom_marker",
			check: func() (bool, error) {
				for _, sel := range config.LoggedInSelectors {
					loc := s.page.Locator(sel).First()
					if count, err := loc.Count(); err == nil && count > 0 {
						if visible, _ := loc.IsVisible(); visible {
							return true, nil
						}
					}
				}
				return false, nil
			},
		},
		{
			name: "post_login_cookie",
			check: func() (bool, error) {
				return HasAnyCookie(s.browserCtx, "", config.PostLoginCookies)
			},
		},
	}
}

// WaitForLogin 轮询等待用户扫码确认
// 三路信号任一命中立即返回成功；超时返回登录超时错误，由用户决定是否重试
func (s *Session) WaitForLogin(ctx context.Context, config QRLoginConfig, pollInterval, timeout time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	s.setState(StateAwaitingScan)
	s.mu.Lock()
	if s.attempt != nil {
		s.attempt.PollStart = time.Now()
		s.attempt.PollDeadline = time.Now().Add(timeout)
	}
	s.mu.Unlock()

	signals := s.buildLoginSignals(config)
	deadline := time.After(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.setState(StateTimeout)
			return types.NewLoginTimeoutError("等待扫码", ctx.Err())
		case <-deadline:
			s.setState(StateTimeout)
			return types.NewLoginTimeoutError("等待扫码", fmt.Errorf("超过 %v 未确认登录", timeout))
		case <-ticker.C:
			if ok, name := anySignalFires(signals); ok {
				s.setState(StateConfirmed)
				utils.SuccessWithPlatform(s.Platform, fmt.Sprintf("登录成功（信号: %s）", name))
				return nil
			}
			s.refreshExpiredQR(config)
		}
	}
}

// refreshExpiredQR 二维码过期时点击刷新，失败只记日志，下轮继续
func (s *Session) refreshExpiredQR(config QRLoginConfig) {
	if config.ExpiredSelector == "" {
		return
	}
	loc := s.page.Locator(config.ExpiredSelector).First()
	if count, err := loc.Count(); err != nil || count == 0 {
		return
	}
	if visible, _ := loc.IsVisible(); !visible {
		return
	}

	s.setState(StateExpired)
	utils.WarnWithPlatform(s.Platform, "二维码已过期，尝试刷新")
	if config.RefreshSelector != "" {
		refresh := s.page.Locator(config.RefreshSelector).First()
		if count, _ := refresh.Count(); count > 0 {
			if err := refresh.Click(); err != nil {
				utils.WarnWithPlatform(s.Platform, fmt.Sprintf("刷新二维码失败: %v", err))
				return
			}
		}
	}
	s.setState(StateAwaitingScan)
}

// SaveCookies 把会话Cookie序列化到凭据存储
// 保存失败只上报，不推翻已经成功的登录
func (s *Session) SaveCookies(username string) error {
	if s.options.Store == nil {
		return fmt.Errorf("失败: 保存Cookie - 未配置凭据存储")
	}

	cookies, err := s.Cookies()
	if err != nil {
		utils.WarnWithPlatform(s.Platform, fmt.Sprintf("保存Cookie失败: %v", err))
		return err
	}

	if err := s.options.Store.Save(s.Platform, username, cookies); err != nil {
		utils.WarnWithPlatform(s.Platform, fmt.Sprintf("保存Cookie失败: %v", err))
		return err
	}

	s.setState(StateCookieSaved)
	utils.SuccessWithPlatform(s.Platform, fmt.Sprintf("Cookie已保存: %s", username))
	return nil
}
