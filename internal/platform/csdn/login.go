package csdn

import (
	"context"
	"fmt"

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
