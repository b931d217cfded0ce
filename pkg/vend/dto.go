package vend

import "fmt"

// TokenResponse Token 端点响应
// expires 是绝对过期时间 (epoch 秒)，expires_in 是相对秒数
// Vend 两个都会返回，入库时 expires_in 保留原值仅做审计
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	Expires      int64  `json:"expires"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// Validate 严格校验 Token 响应
// 任一字段缺失/为零值，或 token_type 不是区分大小写的 "Bearer"，都按协议错误处理
func (r *TokenResponse) Validate() error {
	if r.AccessToken == "" {
		return fmt.Errorf("%w: token response missing access_token", ErrOAuthProtocol)
	}
	// 必须精确等于 "Bearer"，小写 "bearer" 等变体一律拒绝
	if r.TokenType != "Bearer" {
		return fmt.Errorf("%w: unexpected token_type %q", ErrOAuthProtocol, r.TokenType)
	}
	if r.Expires == 0 {
		return fmt.Errorf("%w: token response missing expires", ErrOAuthProtocol)
	}
	if r.ExpiresIn == 0 {
		return fmt.Errorf("%w: token response missing expires_in", ErrOAuthProtocol)
	}
	if r.RefreshToken == "" {
		return fmt.Errorf("%w: token response missing refresh_token", ErrOAuthProtocol)
	}
	return nil
}

// UserStub select-user 页面用的远端用户桩
// 直接取列表响应里的原始字段，不落库
type UserStub struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	AccountType string `json:"account_type"`
}
