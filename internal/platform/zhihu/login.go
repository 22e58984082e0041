package zhihu

import (
	"context"
	"fmt"
	"strings"

	"Apublisher/internal/config"
	"Apublisher/internal/platform/browser"
	"Apublisher/internal/utils"
)

func (p *Publisher) qrLoginConfig() browser.QRLoginConfig {
	return browser.QRLoginConfig{
		SignInURL:            QRLogin.SignInURL,
		QRTabSelectors:       QRLogin.QRTab,
		QRImageSelectors:     QRLogin.QRImage,
		QRContainerSelectors: QRLogin.QRContainer,
		LoginAreaSelector:    QRLogin.LoginArea,
		ExpiredSelector:      QRLogin.Expired,
		RefreshSelector:      QRLogin.Refresh,
		LoggedInSelectors:    QRLogin.LoggedInSelectors,
		PostLoginCookies:     QRLogin.PostLoginCookies,
	}
}

// Login 二维码扫码登录，成功后把Cookie写入凭据存储
func (p *Publisher) Login(ctx context.Context) error {
	utils.InfoWithPlatform(p.platform, "开始扫码登录...")

	session, err := p.registry.NewSession(p.platform, p.sessionOptions())
	if err != nil {
		return fmt.Errorf("失败: 登录 - %w", err)
	}
	defer session.Close()

	qrConfig := p.qrLoginConfig()
	image, err := session.GetQRCode(qrConfig, config.Config.MaxQRRetries)
	if err != nil {
		return err
	}
	utils.InfoWithPlatform(p.platform, fmt.Sprintf("请扫码登录（二维码 %d 字节，策略 %s）", len(image.Data), image.Strategy))

	if err := session.WaitForLogin(ctx, qrConfig, config.Config.LoginPollInterval, config.Config.LoginTimeout); err != nil {
		return err
	}

	return session.SaveCookies(p.username)
}

// ValidateCookie 校验已保存的凭据是否包含维持登录态的必需Cookie
// 只看凭据文件，不启动浏览器，给引擎第二阶段做快速前置检查
func (p *Publisher) ValidateCookie(ctx context.Context) (bool, error) {
	cookies, err := p.store.Load(p.platform, p.username)
	if err != nil {
		return false, nil
	}

	cookieConfig, ok := browser.GetCookieConfig(p.platform)
	if !ok {
		return false, fmt.Errorf("失败: 验证Cookie - 未知平台: %s", p.platform)
	}

	names := make(map[string]bool, len(cookies))
	for _, c := range cookies {
		names[strings.ToLower(c.Name)] = true
	}
	for _, required := range cookieConfig.RequiredCookies {
		if !names[strings.ToLower(required)] {
			utils.WarnWithPlatform(p.platform, fmt.Sprintf("必需Cookie缺失: %s", required))
			return false, nil
		}
	}
	return true, nil
}
