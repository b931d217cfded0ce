package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"vend_sync_v1_202608/internal/model"
	syncengine "vend_sync_v1_202608/internal/sync"
	"vend_sync_v1_202608/pkg/vend"
)

// ==================== 接口定义 ====================

// VendUserRepository 用户镜像仓储接口
// Upsert 即同步引擎的 RecordStore 契约
type VendUserRepository interface {
	GetByUID(ctx context.Context, uid string) (*model.VendUser, error)
	ListByRetailer(ctx context.Context, retailerID int64) ([]model.VendUser, error)
	CountByRetailer(ctx context.Context, retailerID int64) (int64, error)

	Upsert(ctx context.Context, retailerID int64, uid string, fields map[string]interface{}) (syncengine.Outcome, error)
}

// 编译期确认满足引擎契约
var _ syncengine.RecordStore = (*vendUserRepo)(nil)

// ==================== 仓储实现 ====================

type vendUserRepo struct {
	db *gorm.DB
}

// NewVendUserRepository 创建用户镜像仓储
func NewVendUserRepository(db *gorm.DB) VendUserRepository {
	return &vendUserRepo{db: db}
}

func (r *vendUserRepo) GetByUID(ctx context.Context, uid string) (*model.VendUser, error) {
	var user model.VendUser
	if err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, vend.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *vendUserRepo) ListByRetailer(ctx context.Context, retailerID int64) ([]model.VendUser, error) {
	var users []model.VendUser
	err := r.db.WithContext(ctx).
		Where("retailer_id = ?", retailerID).
		Order("name ASC").
		Find(&users).Error
	return users, err
}

func (r *vendUserRepo) CountByRetailer(ctx context.Context, retailerID int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.VendUser{}).
		Where("retailer_id = ?", retailerID).
		Count(&count).Error
	return count, err
}

// Upsert 按 uid 建或改镜像记录
// 远端字段全等时只刷新 retrieved 并报 Unchanged，保证重复同步幂等
func (r *vendUserRepo) Upsert(ctx context.Context, retailerID int64, uid string, fields map[string]interface{}) (syncengine.Outcome, error) {
	var existing model.VendUser
	err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		user := model.VendUser{UID: uid, RetailerID: retailerID}
		applyUserFields(&user, fields)
		if err := r.db.WithContext(ctx).Create(&user).Error; err != nil {
			return syncengine.OutcomeUnchanged, err
		}
		return syncengine.OutcomeCreated, nil
	}
	if err != nil {
		return syncengine.OutcomeUnchanged, err
	}

	changed := applyUserFields(&existing, fields)
	if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
		return syncengine.OutcomeUnchanged, err
	}
	if changed {
		return syncengine.OutcomeUpdated, nil
	}
	return syncengine.OutcomeUnchanged, nil
}

// applyUserFields 把归一化字段集写进模型
// 返回 retrieved 之外是否有字段真的变了 (幂等判断的依据)
func applyUserFields(user *model.VendUser, fields map[string]interface{}) bool {
	changed := false

	setString := func(dst *string, key string) {
		if v, ok := fields[key].(string); ok && v != *dst {
			*dst = v
			changed = true
		}
	}
	setTime := func(dst *time.Time, key string) {
		if v, ok := fields[key].(time.Time); ok && !v.Equal(*dst) {
			*dst = v
			changed = true
		}
	}

	setString(&user.Name, "name")
	setString(&user.DisplayName, "display_name")
	setString(&user.Email, "email")
	setString(&user.Image, "image")
	setString(&user.AccountType, "account_type")
	setTime(&user.VendCreatedAt, "vend_created_at")
	setTime(&user.VendUpdatedAt, "vend_updated_at")

	// retrieved 永远刷新，但不算作变化
	if v, ok := fields["retrieved"].(time.Time); ok {
		user.Retrieved = v
	}

	return changed
}
