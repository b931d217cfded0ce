package model

import "time"

// Token 状态常量
const (
	TokenStatusValid   = "valid"        // 有效
	TokenStatusExpired = "expired"      // 已过期
	TokenStatusInvalid = "auth_invalid" // 需重新授权
)

// VendRetailer 一个接入平台的客户账号 (租户)
// name 即 Vend 的 domain_prefix，API 入口都由它拼出来
type VendRetailer struct {
	BaseModel

	// 1. 核心身份
	// 每个 domain_prefix 至多一行，回调重复到达时只更新不重建
	Name string `gorm:"uniqueIndex;size:256;not null"`

	// 2. OAuth 凭证
	// access_token 和 refresh_token 永远一起更新，不允许单边过期
	AccessToken  string    `gorm:"size:256"`
	RefreshToken string    `gorm:"size:256"`
	ExpiresAt    time.Time // Token 具体的过期时间点 (由响应里的 expires 换算)
	ExpiresIn    int       // 服务端返回的相对秒数，保留原值仅做审计，不参与计算

	// 3. Token 生命周期
	// 周期任务按此状态挑选需要刷新的租户
	TokenStatus string `gorm:"index;size:20;default:'auth_invalid'"`

	// 4. 关联关系
	Users []VendUser `gorm:"foreignKey:RetailerID"`
}

func (VendRetailer) TableName() string {
	return "vend_retailers"
}

// Authorized 是否已完成过授权
func (r *VendRetailer) Authorized() bool {
	return r.AccessToken != "" && r.RefreshToken != ""
}
