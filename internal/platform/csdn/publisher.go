package csdn

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

const editorURL = "https://editor.csdn.net/md/"

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
		platform: "csdn",
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

// Publish 发布一篇Markdown文章到CSDN
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

	if strings.Contains(page.URL(), "passport.csdn.net") {
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

	if err := p.clickPublish(page, task.Tags); err != nil {
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

// injectContent 剪贴板粘贴注入Markdown正文，粘贴失败回退DOM赋值并记录
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

func injectionAccepted(expected, actual int) bool {
	if expected <= 0 {
		return actual == 0
	}
	return float64(actual)/float64(expected) >= ContentSimilarityThreshold
}

const isClickableJS = `el => {
	if (el.disabled) return false;
	const style = window.getComputedStyle(el);
	if (style.pointerEvents === 'none') return false;
	if (style.cursor === 'not-allowed') return false;
	return true;
}`

// clickPublish 点击发布并在发布设置抽屉中填标签、点确认
// 发布按钮不可点说明正文没有被编辑器接受，绝不强行点击
func (p *Publisher) clickPublish(page playwright.Page, tags []string) error {
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

	if len(tags) > 0 {
		p.fillTags(page, tags)
	}

	for _, sel := range p.locators.ConfirmButton {
		confirm := page.Locator(sel).First()
		if err := confirm.WaitFor(playwright.LocatorWaitForOptions{
			Timeout: playwright.Float(float64(p.config.DrawerWaitTimeout.Milliseconds())),
			State:   playwright.WaitForSelectorStateVisible,
		}); err == nil {
			if err := confirm.Click(); err != nil {
				return fmt.Errorf("失败: 点击发布 - 确认发布失败: %w", err)
			}
			return nil
		}
	}
	// 部分账号没有发布设置抽屉，首次点击即提交
	return nil
}

// fillTags 标签是可选项，填不上只记日志不中断发布
func (p *Publisher) fillTags(page playwright.Page, tags []string) {
	for _, sel := range p.locators.TagInput {
		input := page.Locator(sel).First()
		if count, _ := input.Count(); count == 0 {
			continue
		}
		for _, tag := range tags {
			tag = strings.TrimSpace(tag)
			if tag == "" {
				continue
			}
			if err := input.Fill(tag); err != nil {
				utils.WarnWithPlatform(p.platform, fmt.Sprintf("填写标签失败: %v", err))
				return
			}
			page.Keyboard().Press("Enter")
			time.Sleep(300 * time.Millisecond)
		}
		return
	}
}

var articleURLPattern = regexp.MustCompile(`blog\.csdn\.net/[^/]+/article/details/(\d+)`)

func extractArticleID(url string) (string, bool) {
	m := articleURLPattern.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// verifyPublished 结果校验：离开编辑路由且出现文章ID或成功页标记
// 状态不明确按失败处理并留诊断截图
func (p *Publisher) verifyPublished(page playwright.Page, task *types.ArticleTask) (*types.PublishResult, error) {
	deadline := time.Now().Add(p.config.SubmitCheckTimeout)
	for time.Now().Before(deadline) {
		current := page.URL()

		if articleID, ok := extractArticleID(current); ok {
			utils.SuccessWithPlatform(p.platform, fmt.Sprintf("发布成功: %s", current))
			return &types.PublishResult{
				Success:   true,
				URL:       current,
				ArticleID: articleID,
				Message:   "发布成功",
			}, nil
		}

		// 发布成功页会给出文章链接
		if !strings.Contains(current, "editor.csdn.net") {
			for _, sel := range p.locators.SuccessMarker {
				marker := page.Locator(sel).First()
				if count, _ := marker.Count(); count > 0 {
					link := page.Locator(`a[href*='article/details']`).First()
					url, _ := link.GetAttribute("href")
					articleID, _ := extractArticleID(url)
					utils.SuccessWithPlatform(p.platform, fmt.Sprintf("发布成功: %s", url))
					return &types.PublishResult{
						Success:   true,
						URL:       url,
						ArticleID: articleID,
						Message:   "发布成功",
					}, nil
				}
			}
		}
		time.Sleep(1 * time.Second)
	}

	shot, shotErr := utils.Screenshot(page, fmt.Sprintf("csdn_publish_ambiguous_%s", task.ArticleID))
	if shotErr != nil {
		utils.WarnWithPlatform(p.platform, fmt.Sprintf("保存诊断截图失败: %v", shotErr))
	}
	return nil, types.NewPublishAmbiguousError("校验发布结果",
		fmt.Errorf("超时未确认发布成功，当前URL: %s，诊断截图: %s", page.URL(), shot))
}
