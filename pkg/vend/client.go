package vend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client 全系统统一的 Vend API 出口
// 只负责一次带鉴权的 HTTP 往返 + JSON 解析，失败分类后原样上抛
// 不做重试和退避，调用方需要的话自己加
type Client struct {
	http *resty.Client
}

// NewClient 创建配置好超时和标准头的 Resty 客户端
func NewClient() *Client {
	c := resty.New().
		SetTimeout(20 * time.Second). // 拉取大集合可能比较慢，给 20s
		SetHeader("User-Agent", "Vend-Sync-App/1.0")
	return &Client{http: c}
}

// GetJSON 发起一次带 Bearer 鉴权的 GET，返回解析后的 JSON 值 (对象或数组)
// 非 2xx 状态、非 JSON 响应体、传输层错误统一包成 SyncError
func (c *Client) GetJSON(ctx context.Context, url, accessToken string) (interface{}, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+accessToken).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		Get(url)
	if err != nil {
		// DNS / 超时 / 连接重置等传输层错误
		return nil, NewSyncError("GET "+url, err)
	}
	if !resp.IsSuccess() {
		return nil, SyncErrorf("GET "+url, "received %d status from Vend API", resp.StatusCode())
	}

	var data interface{}
	if err := json.Unmarshal(resp.Body(), &data); err != nil {
		return nil, NewSyncError("GET "+url, err)
	}
	return data, nil
}

// ExchangeCode 授权码换 Token
// 表单字段与发起授权时保持一致，redirect_uri 必须完全相同
func (c *Client) ExchangeCode(ctx context.Context, tokenURL, code, clientID, clientSecret, redirectURI string) (*TokenResponse, error) {
	return c.postToken(ctx, tokenURL, map[string]string{
		"code":          code,
		"client_id":     clientID,
		"client_secret": clientSecret,
		"grant_type":    "authorization_code",
		"redirect_uri":  redirectURI,
	})
}

// RefreshToken 用 refresh_token 续期
func (c *Client) RefreshToken(ctx context.Context, tokenURL, refreshToken, clientID, clientSecret string) (*TokenResponse, error) {
	return c.postToken(ctx, tokenURL, map[string]string{
		"refresh_token": refreshToken,
		"client_id":     clientID,
		"client_secret": clientSecret,
		"grant_type":    "refresh_token",
	})
}

// postToken 表单 POST 到 Token 端点并严格校验响应
func (c *Client) postToken(ctx context.Context, tokenURL string, form map[string]string) (*TokenResponse, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetFormData(form).
		Post(tokenURL)
	if err != nil {
		return nil, fmt.Errorf("%w: token request failed: %v", ErrOAuthProtocol, err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("%w: token endpoint returned %d", ErrOAuthProtocol, resp.StatusCode())
	}

	var token TokenResponse
	if err := json.Unmarshal(resp.Body(), &token); err != nil {
		return nil, fmt.Errorf("%w: token response is not valid JSON: %v", ErrOAuthProtocol, err)
	}
	if err := token.Validate(); err != nil {
		return nil, err
	}
	return &token, nil
}
