package browser

import (
	"github.com/playwright-community/playwright-go"
)

// stealthScript 在每个页面加载前注入，抹掉常见的自动化痕迹
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['zh-CN', 'zh', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
window.chrome = window.chrome || { runtime: {} };
const originalQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
  parameters.name === 'notifications'
    ? Promise.resolve({ state: Notification.permission })
    : originalQuery(parameters)
);
`

// InjectStealthScript 给浏览器上下文注入反检测脚本
func InjectStealthScript(context playwright.BrowserContext) error {
	return context.AddInitScript(playwright.Script{
		Content: playwright.String(stealthScript),
	})
}
