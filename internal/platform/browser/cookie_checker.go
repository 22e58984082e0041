package browser

import (
	"fmt"
	"strings"

	"Apublisher/internal/utils"

	"github.com/playwright-community/playwright-go"
)

// PlatformCookieConfig 平台Cookie检测配置
type PlatformCookieConfig struct {
	Domain          string   // Cookie域名，空表示取全部
	RequiredCookies []string // 必需Cookie名称列表（维持登录态）
	ExtendedCookies []string // 扩展Cookie名称列表（操作/风控）
}

// PlatformCookieConfigs 各平台的Cookie配置
var PlatformCookieConfigs = map[string]PlatformCookieConfig{
	"zhihu": {
		Domain:          "https://www.zhihu.com",
		RequiredCookies: []string{"z_c0"},
		ExtendedCookies: []string{"d_c0", "q_c1"},
	},
	"csdn": {
		Domain:          "https://www.csdn.net",
		RequiredCookies: []string{"UserToken", "UserName"},
		ExtendedCookies: []string{"UserInfo"},
	},
}

// GetCookieConfig 获取指定平台的Cookie配置
func GetCookieConfig(platform string) (PlatformCookieConfig, bool) {
	config, ok := PlatformCookieConfigs[platform]
	return config, ok
}

// cookieNames 全量获取上下文Cookie并转为名称集合
func cookieNames(browserCtx playwright.BrowserContext, domain string) (map[string]string, error) {
	var cookies []playwright.Cookie
	var err error
	if domain == "" {
		cookies, err = browserCtx.Cookies()
	} else {
		cookies, err = browserCtx.Cookies(domain)
	}
	if err != nil {
		return nil, fmt.Errorf("获取Cookie失败: %w", err)
	}

	names := make(map[string]string, len(cookies))
	for _, c := range cookies {
		names[strings.ToLower(c.Name)] = c.Value
	}
	return names, nil
}

// HasAnyCookie 判断上下文中是否存在任一指定名称的Cookie
func HasAnyCookie(browserCtx playwright.BrowserContext, domain string, wanted []string) (bool, error) {
	names, err := cookieNames(browserCtx, domain)
	if err != nil {
		return false, err
	}
	for _, name := range wanted {
		if _, ok := names[strings.ToLower(name)]; ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAllRequired 判断必需Cookie是否全部存在
func HasAllRequired(browserCtx playwright.BrowserContext, config PlatformCookieConfig) (bool, error) {
	names, err := cookieNames(browserCtx, config.Domain)
	if err != nil {
		return false, err
	}

	for _, name := range config.RequiredCookies {
		if _, ok := names[strings.ToLower(name)]; !ok {
			utils.Debug(fmt.Sprintf("必需Cookie缺失: %s", name))
			return false, nil
		}
	}
	return true, nil
}
