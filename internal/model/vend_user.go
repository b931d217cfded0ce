package model

import "time"

// 账号类型常量 (取远端 account_type 的首字母)
const (
	AccountTypeAdmin   = "A"
	AccountTypeManager = "M"
	AccountTypeCashier = "C"
)

// VendUser 远端用户对象在本地的镜像
// uid 由 Vend 分配，写入后不可变；远端删除不感知 (明确的 non-goal)
type VendUser struct {
	BaseModel

	// uid 决定至多一行，重复同步靠它保证幂等
	UID string `gorm:"uniqueIndex;size:64;not null"`

	// 归属租户，创建后不可变；所有查询都按租户隔离
	RetailerID int64         `gorm:"index;not null"`
	Retailer   *VendRetailer `gorm:"foreignKey:RetailerID"`

	// 远端字段集
	Name        string `gorm:"size:256"`
	DisplayName string `gorm:"size:256"`
	Email       string `gorm:"size:256"`
	Image       string `gorm:"size:512"` // 缺失时用配置的兜底头像
	AccountType string `gorm:"size:1;default:'C'"`

	// 远端自己的时间戳，区别于本地的 CreatedAt/UpdatedAt
	VendCreatedAt time.Time
	VendUpdatedAt time.Time

	// Retrieved 最近一次同步成功的本地时间
	Retrieved time.Time
}

func (VendUser) TableName() string {
	return "vend_users"
}
