// Package captcha 封装第三方验证码识别服务客户端
package captcha

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"Apublisher/internal/types"
	"Apublisher/internal/utils"

	"github.com/imroc/req/v3"
	"github.com/tidwall/gjson"
)

// Request 一次识别请求
// 双图滑块时 Image 为背景图、Image2 为滑块图，其余类型只用 Image
type Request struct {
	Kind   Kind
	Image  []byte
	Image2 []byte
}

// Result 识别结果
type Result struct {
	Answer     string // 识别出的答案（字符/坐标/距离，随类型而定）
	UniqueCode string // 本次识别的唯一码，报错退款时使用
}

// Resolver 无状态识别客户端
type Resolver struct {
	config Config
	client *req.Client
}

func NewResolver(config Config) *Resolver {
	client := req.C().
		SetTimeout(config.Timeout).
		SetCommonHeader("Content-Type", "application/json")
	return &Resolver{config: config, client: client}
}

// Solve 提交识别请求
// 配额耗尽或网络失败返回验证码服务错误，调用方按可重试一次处理
func (r *Resolver) Solve(ctx context.Context, request *Request) (*Result, error) {
	if len(request.Image) == 0 {
		return nil, fmt.Errorf("失败: 识别验证码 - 图片为空")
	}

	body := map[string]interface{}{
		"token": r.config.Token,
		"type":  int(request.Kind),
		"image": base64.StdEncoding.EncodeToString(request.Image),
	}
	if request.Kind == KindDualSlide {
		if len(request.Image2) == 0 {
			return nil, fmt.Errorf("失败: 识别验证码 - 双图滑块缺少滑块图")
		}
		body["image2"] = base64.StdEncoding.EncodeToString(request.Image2)
	}

	resp, err := r.client.R().SetContext(ctx).SetBodyJsonMarshal(body).Post(r.config.APIURL)
	if err != nil {
		return nil, types.NewCaptchaServiceError("识别验证码", err)
	}

	respBody := resp.Bytes()
	code := gjson.GetBytes(respBody, "code").Int()
	msg := gjson.GetBytes(respBody, "msg").String()

	if int(code) != r.config.SuccessCode {
		err := fmt.Errorf("服务返回错误: code=%d, msg=%s", code, msg)
		if isQuotaError(msg) || resp.StatusCode >= 500 {
			return nil, types.NewCaptchaServiceError("识别验证码", err)
		}
		return nil, fmt.Errorf("失败: 识别验证码 - %w", err)
	}

	answer := gjson.GetBytes(respBody, "data.data").String()
	if answer == "" {
		return nil, fmt.Errorf("失败: 识别验证码 - 响应中没有答案")
	}

	result := &Result{
		Answer:     answer,
		UniqueCode: gjson.GetBytes(respBody, "data.uniqueCode").String(),
	}
	utils.Info(fmt.Sprintf("验证码识别成功: type=%d, uniqueCode=%s", request.Kind, result.UniqueCode))
	return result, nil
}

// ReportWrong 答案错误时上报退款
func (r *Resolver) ReportWrong(ctx context.Context, uniqueCode string) error {
	if uniqueCode == "" {
		return fmt.Errorf("失败: 报错退款 - uniqueCode为空")
	}

	body := map[string]interface{}{
		"token":      r.config.Token,
		"uniqueCode": uniqueCode,
	}

	resp, err := r.client.R().SetContext(ctx).SetBodyJsonMarshal(body).Post(r.config.ReportURL)
	if err != nil {
		return types.NewCaptchaServiceError("报错退款", err)
	}

	respBody := resp.Bytes()
	code := gjson.GetBytes(respBody, "code").Int()
	if int(code) != r.config.SuccessCode {
		return fmt.Errorf("失败: 报错退款 - code=%d, msg=%s",
			code, gjson.GetBytes(respBody, "msg").String())
	}

	utils.Info(fmt.Sprintf("验证码报错退款成功: uniqueCode=%s", uniqueCode))
	return nil
}

// isQuotaError 判断是否为配额/余额类错误
func isQuotaError(msg string) bool {
	lower := strings.ToLower(msg)
	keywords := []string{"配额", "余额", "欠费", "quota", "balance", "insufficient"}
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
