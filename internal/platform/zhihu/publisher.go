package zhihu

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"Apublisher/internal/captcha"
	"Apublisher/internal/config"
	"Apublisher/internal/credential"
	"Apublisher/internal/platform/browser"
	"Apublisher/internal/types"
	"Apublisher/internal/utils"

	"github.com/playwright-community/playwright-go"
)

const editorURL = "https://zhuanlan.zhihu.com/write"

type Publisher struct {
	username string
	platform string
	registry *browser.SessionRegistry
	store    *credential.Store
	resolver *captcha.Resolver
	config   Config
	locators *PageLocators
}

func NewPublisher(username string, registry *browser.SessionRegistry, store *credential.Store, resolver *captcha.Resolver) *Publisher {
	return &Publisher{
		username: username,
		platform: "zhihu",
		registry: registry,
		store:    store,
		resolver: resolver,
		config:   DefaultConfig(),
		locators: GetLocators(),
	}
}

func (p *Publisher) Platform() string {
	return p.platform
}

func (p *Publisher) sessionOptions() browser.SessionOptions {
	return browser.SessionOptions{
		Headless: config.Config.Headless,
		Resolver: p.resolver,
		Store:    p.store,
	}
}

// Publish 发布一篇文章到知乎专栏
// 凭据缺失立即返回需要登录的错误，不启动浏览器
func (p *Publisher) Publish(ctx context.Context, task *types.ArticleTask) (*types.PublishResult, error) {
	utils.InfoWithPlatform(p.platform, fmt.Sprintf("开始发布: %s", task.Title))

	cookies, err := p.store.Load(p.platform, p.username)
	if err != nil {
		return nil, types.NewLoginRequiredError("发布文章")
	}

	session, err := p.registry.NewSession(p.platform, p.sessionOptions())
	if err != nil {
		return nil, fmt.Errorf("失败: 发布文章 - %w", err)
	}
	defer session.Close()

	if err := session.LoadCookies(cookies); err != nil {
		return nil, fmt.Errorf("失败: 发布文章 - %w", err)
	}

	page := session.Page()
	utils.InfoWithPlatform(p.platform, "正在打开编辑页面...")
	if err := session.Goto(editorURL); err != nil {
		return nil, fmt.Errorf("失败: 发布文章 - 打开编辑页失败: %w", err)
	}
	time.Sleep(2 * time.Second)

	// 凭据失效会被重定向回登录页
	if strings.Contains(page.URL(), "/signin") {
		return nil, types.NewLoginRequiredError("发布文章")
	}

	if found, kind, selector := session.DetectCaptcha(); found {
		if err := session.HandleCaptcha(ctx, kind, selector); err != nil {
			session.Fail("验证码处理失败")
			return nil, err
		}
	}

	if err := p.fillTitle(page, task.Title); err != nil {
		return nil, err
	}

	if err := p.injectContent(page, task.Content); err != nil {
		return nil, err
	}

	if err := p.clickPublish(page); err != nil {
		return nil, err
	}

	return p.verifyPublished(page, task)
}

func (p *Publisher) fillTitle(page playwright.Page, title string) error {
	utils.InfoWithPlatform(p.platform, "填写标题...")

	runes := []rune(title)
	if len(runes) > p.config.TitleMaxLength {
		title = string(runes[:p.config.TitleMaxLength])
	}

	for _, sel := range p.locators.TitleInput {
		input := page.Locator(sel).First()
		if count, _ := input.Count(); count == 0 {
			continue
		}
		if err := input.Fill(title); err != nil {
			continue
		}
		time.Sleep(500 * time.Millisecond)
		return nil
	}
	return types.NewContentInjectionError("填写标题", fmt.Errorf("未找到标题输入框"))
}

// injectContent 经剪贴板把正文注入编辑器
// 粘贴是首选路径，直接DOM赋值只作为记录在案的兜底，两条路径都要通过字符数校验
func (p *Publisher) injectContent(page playwright.Page, content string) error {
	utils.InfoWithPlatform(p.platform, "注入正文...")

	editor, err := p.findEditor(page)
	if err != nil {
		return err
	}

	if err := editor.Click(); err != nil {
		return types.NewContentInjectionError("注入正文", fmt.Errorf("点击编辑器失败: %w", err))
	}
	time.Sleep(300 * time.Millisecond)

	if _, err := page.Evaluate(`text => navigator.clipboard.writeText(text)`, content); err != nil {
		return types.NewContentInjectionError("注入正文", fmt.Errorf("写入剪贴板失败: %w", err))
	}
	page.Keyboard().Press("Control+KeyA")
	page.Keyboard().Press("Delete")
	if err := page.Keyboard().Press("Control+KeyV"); err != nil {
		return types.NewContentInjectionError("注入正文", fmt.Errorf("粘贴失败: %w", err))
	}
	time.Sleep(p.config.PasteSettleDelay)

	injected, err := p.editorTextLength(editor)
	if err != nil {
		return types.NewContentInjectionError("注入正文", fmt.Errorf("读取编辑器内容失败: %w", err))
	}
	if injectionAccepted(len([]rune(content)), injected) {
		utils.InfoWithPlatform(p.platform, fmt.Sprintf("正文已注入: %d字符", injected))
		return nil
	}

	utils.WarnWithPlatform(p.platform, fmt.Sprintf("粘贴注入字符数不足（%d/%d），回退到DOM赋值", injected, len([]rune(content))))
	if _, err := editor.Evaluate(`(el, text) => {
		el.innerText = text;
		el.dispatchEvent(new InputEvent('input', { bubbles: true }));
	}`, content); err != nil {
		return types.NewContentInjectionError("注入正文", fmt.Errorf("DOM赋值失败: %w", err))
	}
	time.Sleep(1 * time.Second)

	injected, err = p.editorTextLength(editor)
	if err != nil || !injectionAccepted(len([]rune(content)), injected) {
		return types.NewContentInjectionError("注入正文",
			fmt.Errorf("注入后字符数校验未通过: %d/%d", injected, len([]rune(content))))
	}
	utils.InfoWithPlatform(p.platform, fmt.Sprintf("正文已注入（DOM兜底）: %d字符", injected))
	return nil
}

func (p *Publisher) findEditor(page playwright.Page) (playwright.Locator, error) {
	for _, sel := range p.locators.Editor {
		editor := page.Locator(sel).First()
		if count, _ := editor.Count(); count > 0 {
			return editor, nil
		}
	}
	return nil, types.NewContentInjectionError("注入正文", fmt.Errorf("未找到正文编辑器"))
}

func (p *Publisher) editorTextLength(editor playwright.Locator) (int, error) {
	text, err := editor.InnerText()
	if err != nil {
		return 0, err
	}
	return len([]rune(text)), nil
}

// injectionAccepted 字符数比值校验，编辑器会吞掉部分空白所以只要求下限
func injectionAccepted(expected, actual int) bool {
	if expected <= 0 {
		return actual == 0
	}
	return float64(actual)/float64(expected) >= ContentSimilarityThreshold
}

// isClickable 发布按钮必须同时满足：未禁用、指针事件可达、光标不是禁用态
// 知乎在正文未就绪时按钮仍在DOM里，只靠存在性判断会点到死按钮
const isClickableJS = `el => {
	if (el.disabled) return false;
	const style = window.getComputedStyle(el);
	if (style.pointerEvents === 'none') return false;
	if (style.cursor === 'not-allowed') return false;
	return true;
}`

// clickPublish 点击发布并处理可能出现的二次确认弹窗
// 按钮不可点说明内容没有被编辑器接受，此时绝不尝试点击
func (p *Publisher) clickPublish(page playwright.Page) error {
	utils.InfoWithPlatform(p.platform, "准备发布...")

	var button playwright.Locator
	for _, sel := range p.locators.PublishButton {
		loc := page.Locator(sel).First()
		if count, _ := loc.Count(); count > 0 {
			button = loc
			break
		}
	}
	if button == nil {
		return types.NewContentInjectionError("点击发布", fmt.Errorf("未找到发布按钮"))
	}

	clickable, err := button.Evaluate(isClickableJS, nil)
	if err != nil {
		return types.NewContentInjectionError("点击发布", fmt.Errorf("检查按钮状态失败: %w", err))
	}
	if ok, _ := clickable.(bool); !ok {
		return types.NewContentInjectionError("点击发布", fmt.Errorf("发布按钮不可点击，内容未被编辑器接受"))
	}

	if err := button.Click(); err != nil {
		return fmt.Errorf("失败: 点击发布 - %w", err)
	}

	// 部分账号会弹出二次确认
	for _, sel := range p.locators.ConfirmButton {
		confirm := page.Locator(sel).First()
		if err := confirm.WaitFor(playwright.LocatorWaitForOptions{
			Timeout: playwright.Float(float64(p.config.ConfirmWaitTimeout.Milliseconds())),
			State:   playwright.WaitForSelectorStateVisible,
		}); err == nil {
			if err := confirm.Click(); err != nil {
				utils.WarnWithPlatform(p.platform, fmt.Sprintf("点击确认弹窗失败: %v", err))
			}
			break
		}
	}
	return nil
}

var articleURLPattern = regexp.MustCompile(`zhuanlan\.zhihu\.com/p/(\d+)`)

// extractArticleID 从文章页URL中取出文章ID
func extractArticleID(url string) (string, bool) {
	m := articleURLPattern.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// verifyPublished 三重校验发布结果：离开编辑路由、URL带文章ID、成功DOM标记
// 任何一项对不上都按失败处理并留下诊断截图，绝不猜测成功
func (p *Publisher) verifyPublished(page playwright.Page, task *types.ArticleTask) (*types.PublishResult, error) {
	deadline := time.Now().Add(p.config.SubmitCheckTimeout)
	for time.Now().Before(deadline) {
		current := page.URL()
		if articleID, ok := extractArticleID(current); ok {
			for _, sel := range p.locators.SuccessMarker {
				marker := page.Locator(sel).First()
				if count, _ := marker.Count(); count > 0 {
					utils.SuccessWithPlatform(p.platform, fmt.Sprintf("发布成功: %s", current))
					return &types.PublishResult{
						Success:   true,
						URL:       current,
						ArticleID: articleID,
						Message:   "发布成功",
					}, nil
				}
			}
		}
		time.Sleep(1 * time.Second)
	}

	shot, shotErr := utils.Screenshot(page, fmt.Sprintf("zhihu_publish_ambiguous_%s", task.ArticleID))
	if shotErr != nil {
		utils.WarnWithPlatform(p.platform, fmt.Sprintf("保存诊断截图失败: %v", shotErr))
	}
	return nil, types.NewPublishAmbiguousError("校验发布结果",
		fmt.Errorf("超时未确认发布成功，当前URL: %s，诊断截图: %s", page.URL(), shot))
}
