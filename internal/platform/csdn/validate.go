package csdn

import (
	"context"
	"fmt"
	"strings"

	"Apublisher/internal/credential"
	"Apublisher/internal/utils"

	"github.com/imroc/req/v3"
	"github.com/tidwall/gjson"
)

const profileAPI = "https://bizapi.csdn.net/community-personal/v1/get-personal-info"

func cookieHeader(cookies []credential.Cookie) string {
	var parts []string
	for _, c := range cookies {
		parts = append(parts, fmt.Sprintf("%s=%s", c.Name, c.Value))
	}
	return strings.Join(parts, "; ")
}

// ValidateCookie 不启动浏览器，直接带Cookie请求个人信息接口判断登录态
func (p *Publisher) ValidateCookie(ctx context.Context) (bool, error) {
	utils.InfoWithPlatform(p.platform, "验证Cookie(API)")

	cookies, err := p.store.Load(p.platform, p.username)
	if err != nil {
		utils.WarnWithPlatform(p.platform, fmt.Sprintf("验证Cookie(API) - 读取cookie文件失败: %v", err))
		return false, nil
	}
	if len(cookies) == 0 {
		utils.WarnWithPlatform(p.platform, "验证Cookie(API) - cookie文件为空")
		return false, nil
	}

	client := req.C().
		SetTimeout(p.config.APITimeout).
		SetCommonHeaders(map[string]string{
			"user-agent": "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"cookie":     cookieHeader(cookies),
			"Referer":    "https://www.csdn.net",
		})

	resp, err := client.R().SetContext(ctx).Get(profileAPI)
	if err != nil {
		utils.WarnWithPlatform(p.platform, fmt.Sprintf("验证Cookie(API) - API请求失败: %v", err))
		return false, err
	}

	respBody := resp.Bytes()
	code := gjson.GetBytes(respBody, "code").Int()
	if code != 200 {
		message := gjson.GetBytes(respBody, "message").String()
		utils.WarnWithPlatform(p.platform, fmt.Sprintf("验证Cookie(API) - API返回错误: code=%d, message=%s", code, message))
		return false, nil
	}

	username := gjson.GetBytes(respBody, "data.username").String()
	if username == "" {
		utils.WarnWithPlatform(p.platform, "验证Cookie(API) - 未取到用户名，Cookie已失效")
		return false, nil
	}

	utils.SuccessWithPlatform(p.platform, fmt.Sprintf("Cookie有效: %s", username))
	return true, nil
}
