package vend

import "fmt"

// 业务常量
const (
	// AuthorizeURL Vend 官方授权页，domain 无关
	AuthorizeURL = "https://secure.vendhq.com/connect"

	// 以下模板以 retailer 的 domain_prefix (name) 拼出各租户自己的 API 入口
	tokenURLTemplate          = "https://%s.vendhq.com/api/1.0/token"
	userCollectionURLTemplate = "https://%s.vendhq.com/api/users"
	userObjectURLTemplate     = "https://%s.vendhq.com/api/1.0/user/%s"
)

// TokenURL 换取/刷新 Token 的端点，按租户域名拼接
func TokenURL(name string) string {
	return fmt.Sprintf(tokenURLTemplate, name)
}

// UserCollectionURL 用户列表端点
func UserCollectionURL(name string) string {
	return fmt.Sprintf(userCollectionURLTemplate, name)
}

// UserObjectURL 单个用户端点
func UserObjectURL(name, uid string) string {
	return fmt.Sprintf(userObjectURLTemplate, name, uid)
}

// BuildAuthorizeURL 生成授权跳转链接
// redirect_uri 必须与回调时 token 交换用的完全一致
func BuildAuthorizeURL(clientID, redirectURI, state string) string {
	return fmt.Sprintf(
		"%s?response_type=code&client_id=%s&redirect_uri=%s&state=%s",
		AuthorizeURL, clientID, redirectURI, state,
	)
}
