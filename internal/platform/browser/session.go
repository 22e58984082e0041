package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"Apublisher/internal/captcha"
	"Apublisher/internal/credential"
	"Apublisher/internal/types"
	"Apublisher/internal/utils"

	"github.com/playwright-community/playwright-go"
)

// LoginState 会话的二维码登录状态机状态
type LoginState string

const (
	StateInit          LoginState = "INIT"
	StateBrowserReady  LoginState = "BROWSER_READY"
	StatePageLoaded    LoginState = "PAGE_LOADED"
	StateQRTabSelected LoginState = "QR_TAB_SELECTED"
	StateQRCaptured    LoginState = "QR_CAPTURED"
	StateAwaitingScan  LoginState = "AWAITING_SCAN"
	StateConfirmed     LoginState = "CONFIRMED"
	StateExpired       LoginState = "EXPIRED"
	StateTimeout       LoginState = "TIMEOUT"
	StateFailed        LoginState = "FAILED"
	StateCookieSaved   LoginState = "COOKIE_SAVED"
	StateClosed        LoginState = "CLOSED"
)

// SessionOptions 创建会话的选项
type SessionOptions struct {
	Headless bool
	UserAgent string
	Resolver *captcha.Resolver // 可选，遇到验证码时使用
	Store    *credential.Store // Cookie持久化目标
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Session 一个独占的浏览器会话：一个headless浏览器实例加上它的登录态
// 同一时刻只被一个任务使用，绝不跨任务共享
type Session struct {
	ID        string
	Platform  string
	CreatedAt time.Time

	pw      *playwright.Playwright
	browser playwright.Browser
	browserCtx playwright.BrowserContext
	page    playwright.Page

	options  SessionOptions
	state    LoginState
	attempt  *QRLoginAttempt
	registry *SessionRegistry

	cleanupTimer *time.Timer
	closed       bool
	mu           sync.Mutex
}

// launch 启动浏览器与上下文，失败时返回浏览器启动错误，调用方不得继续
func (s *Session) launch() error {
	pw, err := playwright.Run()
	if err != nil {
		return types.NewBrowserInitError("启动浏览器", fmt.Errorf("start playwright failed: %w", err))
	}
	s.pw = pw

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(s.options.Headless),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--no-sandbox",
			"--disable-setuid-sandbox",
			"--disable-dev-shm-usage",
			"--window-size=1920,1080",
			"--disable-infobars",
			"--disable-extensions",
			"--disable-default-apps",
			"--disable-background-networking",
			"--disable-sync",
			"--disable-translate",
			"--disable-popup-blocking",
			"--disable-site-isolation-trials",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return types.NewBrowserInitError("启动浏览器", fmt.Errorf("launch browser failed: %w", err))
	}
	s.browser = browser

	ua := s.options.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:   playwright.String(ua),
		Locale:      playwright.String("zh-CN"),
		TimezoneId:  playwright.String("Asia/Shanghai"),
		Viewport:    &playwright.Size{Width: 1920, Height: 1080},
		ColorScheme: playwright.ColorSchemeLight,
		ExtraHttpHeaders: map[string]string{
			"Accept-Language": "zh-CN,zh;q=0.9,en;q=0.8",
		},
	})
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return types.NewBrowserInitError("启动浏览器", fmt.Errorf("create context failed: %w", err))
	}
	s.browserCtx = browserCtx

	if err := InjectStealthScript(browserCtx); err != nil {
		_ = browserCtx.Close()
		_ = browser.Close()
		_ = pw.Stop()
		return types.NewBrowserInitError("启动浏览器", fmt.Errorf("inject stealth script failed: %w", err))
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		_ = browserCtx.Close()
		_ = browser.Close()
		_ = pw.Stop()
		return types.NewBrowserInitError("启动浏览器", fmt.Errorf("create page failed: %w", err))
	}
	page.SetDefaultTimeout(30000)
	page.SetDefaultNavigationTimeout(30000)
	s.page = page

	s.setState(StateBrowserReady)
	return nil
}

// Page 返回会话页面
func (s *Session) Page() playwright.Page {
	return s.page
}

// Context 返回浏览器上下文
func (s *Session) Context() playwright.BrowserContext {
	return s.browserCtx
}

// State 返回当前登录状态
func (s *Session) State() LoginState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state LoginState) {
	s.mu.Lock()
	old := s.state
	s.state = state
	s.mu.Unlock()
	utils.DebugWithPlatform(s.Platform, fmt.Sprintf("会话 %s 状态: %s -> %s", s.ID, old, state))
}

// LoadCookies 把已保存的凭据装入浏览器上下文
func (s *Session) LoadCookies(cookies []credential.Cookie) error {
	pwCookies := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := playwright.OptionalCookie{
			Name:   c.Name,
			Value:  c.Value,
			Domain: playwright.String(c.Domain),
			Path:   playwright.String(c.Path),
		}
		if c.Expires > 0 {
			cookie.Expires = playwright.Float(c.Expires)
		}
		if c.HttpOnly {
			cookie.HttpOnly = playwright.Bool(true)
		}
		if c.Secure {
			cookie.Secure = playwright.Bool(true)
		}
		pwCookies = append(pwCookies, cookie)
	}

	if err := s.browserCtx.AddCookies(pwCookies); err != nil {
		return fmt.Errorf("失败: 装载Cookie - %w", err)
	}
	utils.InfoWithPlatform(s.Platform, fmt.Sprintf("已装载 %d 个Cookie", len(pwCookies)))
	return nil
}

// Cookies 导出上下文中的全部Cookie
func (s *Session) Cookies() ([]credential.Cookie, error) {
	pwCookies, err := s.browserCtx.Cookies()
	if err != nil {
		return nil, fmt.Errorf("失败: 导出Cookie - %w", err)
	}

	cookies := make([]credential.Cookie, 0, len(pwCookies))
	for _, c := range pwCookies {
		cookie := credential.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HttpOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != nil {
			cookie.SameSite = string(*c.SameSite)
		}
		cookies = append(cookies, cookie)
	}
	return cookies, nil
}

// Goto 导航到目标地址并等待DOM就绪
func (s *Session) Goto(url string) error {
	if _, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}); err != nil {
		return fmt.Errorf("失败: 打开页面 - %w", err)
	}
	return nil
}

// Fail 标记会话为不可恢复失败并立即回收，错误路径上的会话绝不半开悬挂
func (s *Session) Fail(op string) {
	utils.ErrorWithPlatform(s.Platform, fmt.Sprintf("会话 %s 不可恢复: %s，立即回收", s.ID, op))
	s.setState(StateFailed)
	_ = s.Close()
}

// Close 回收会话：取消清理定时器、从注册表移除、关闭浏览器
// 幂等，重复调用与清理定时器触发后再调用都安全
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state = StateClosed
	timer := s.cleanupTimer
	s.cleanupTimer = nil
	s.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if s.registry != nil {
		s.registry.remove(s.ID)
	}

	if s.page != nil {
		if err := s.page.Close(); err != nil && !isBrowserClosedError(err) {
			utils.WarnWithPlatform(s.Platform, fmt.Sprintf("关闭页面失败: %v", err))
		}
	}
	if s.browserCtx != nil {
		if err := s.browserCtx.Close(); err != nil && !isBrowserClosedError(err) {
			utils.WarnWithPlatform(s.Platform, fmt.Sprintf("关闭上下文失败: %v", err))
		}
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil && !isBrowserClosedError(err) {
			utils.WarnWithPlatform(s.Platform, fmt.Sprintf("关闭浏览器失败: %v", err))
		}
	}
	if s.pw != nil {
		_ = s.pw.Stop()
	}

	utils.InfoWithPlatform(s.Platform, fmt.Sprintf("会话 %s 已关闭", s.ID))
	return nil
}

// IsClosed 返回会话是否已关闭
func (s *Session) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// captchaSelectors 常见验证码容器
var captchaSelectors = []struct {
	selector string
	kind     captcha.Kind
	label    string
}{
	{"[class*='geetest_slider']", captcha.KindSlide, "滑块验证"},
	{"[class*='slider'] img", captcha.KindSlide, "滑块验证"},
	{"iframe[src*='captcha']", captcha.KindClick, "验证码iframe"},
	{"img[class*='captcha']", captcha.KindText, "图片验证码"},
	{"[class*='captcha'] img", captcha.KindText, "图片验证码"},
}

// DetectCaptcha 检测页面是否出现验证码，返回类型与容器选择器
func (s *Session) DetectCaptcha() (bool, captcha.Kind, string) {
	for _, item := range captchaSelectors {
		loc := s.page.Locator(item.selector).First()
		if count, err := loc.Count(); err == nil && count > 0 {
			if visible, _ := loc.IsVisible(); visible {
				utils.WarnWithPlatform(s.Platform, fmt.Sprintf("检测到%s", item.label))
				return true, item.kind, item.selector
			}
		}
	}
	return false, 0, ""
}

// HandleCaptcha 识别并处理页面上的验证码
// 服务异常重试一次，仍失败视为不可恢复，调用方应回收会话
func (s *Session) HandleCaptcha(ctx context.Context, kind captcha.Kind, selector string) error {
	if s.options.Resolver == nil {
		return types.NewCaptchaServiceError("处理验证码", fmt.Errorf("未配置识别服务"))
	}

	image, err := s.page.Locator(selector).First().Screenshot(playwright.LocatorScreenshotOptions{
		Timeout: playwright.Float(3000),
	})
	if err != nil {
		return fmt.Errorf("失败: 处理验证码 - 截取验证码图片失败: %w", err)
	}

	request := &captcha.Request{Kind: kind, Image: image}
	result, err := s.options.Resolver.Solve(ctx, request)
	if err != nil && types.IsKind(err, types.ErrKindCaptchaService) {
		utils.WarnWithPlatform(s.Platform, fmt.Sprintf("验证码服务异常，重试一次: %v", err))
		result, err = s.options.Resolver.Solve(ctx, request)
	}
	if err != nil {
		return err
	}

	if err := s.applyCaptchaAnswer(kind, selector, result.Answer); err != nil {
		// 答案应用失败说明识别结果大概率错误，上报退款
		if result.UniqueCode != "" {
			_ = s.options.Resolver.ReportWrong(ctx, result.UniqueCode)
		}
		return err
	}
	return nil
}

// applyCaptchaAnswer 按类型把识别答案作用到页面上
func (s *Session) applyCaptchaAnswer(kind captcha.Kind, selector, answer string) error {
	switch kind {
	case captcha.KindText, captcha.KindArithmetic:
		input := s.page.Locator("input[name*='captcha'], input[placeholder*='验证码']").First()
		if count, _ := input.Count(); count == 0 {
			return fmt.Errorf("失败: 处理验证码 - 未找到验证码输入框")
		}
		if err := input.Fill(answer); err != nil {
			return fmt.Errorf("失败: 处理验证码 - 填写答案失败: %w", err)
		}
		return nil
	case captcha.KindSlide, captcha.KindDualSlide:
		return s.dragSlider(selector, answer)
	default:
		return fmt.Errorf("失败: 处理验证码 - 不支持的类型: %d", kind)
	}
}

// dragSlider 按识别出的横向距离拖动滑块
func (s *Session) dragSlider(selector, answer string) error {
	var distance float64
	if _, err := fmt.Sscanf(strings.TrimSpace(answer), "%f", &distance); err != nil {
		return fmt.Errorf("失败: 处理验证码 - 滑块距离无法解析: %q", answer)
	}

	handle := s.page.Locator(selector).First()
	box, err := handle.BoundingBox()
	if err != nil || box == nil {
		return fmt.Errorf("失败: 处理验证码 - 获取滑块位置失败: %v", err)
	}

	startX := box.X + box.Width/2
	startY := box.Y + box.Height/2
	mouse := s.page.Mouse()
	if err := mouse.Move(startX, startY); err != nil {
		return err
	}
	if err := mouse.Down(); err != nil {
		return err
	}
	// 分段拖动，轨迹更接近人手
	steps := 4
	for i := 1; i <= steps; i++ {
		if err := mouse.Move(startX+distance*float64(i)/float64(steps), startY, playwright.MouseMoveOptions{
			Steps: playwright.Int(5),
		}); err != nil {
			return err
		}
		time.Sleep(time.Duration(80+20*i) * time.Millisecond)
	}
	return mouse.Up()
}

// isBrowserClosedError 判断错误是否由浏览器已关闭引起
func isBrowserClosedError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "browser has been closed") ||
		strings.Contains(msg, "context or browser has been closed") ||
		strings.Contains(msg, "page has been closed") ||
		strings.Contains(msg, "connection closed")
}
