package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"vend_sync_v1_202608/internal/model"
	"vend_sync_v1_202608/pkg/vend"
)

// ==================== 接口定义 ====================

// RetailerRepository 租户仓储接口
type RetailerRepository interface {
	GetByID(ctx context.Context, id int64) (*model.VendRetailer, error)
	GetByName(ctx context.Context, name string) (*model.VendRetailer, error)

	// UpsertByName 按 name 建或改租户凭证
	// 同一 domain_prefix 重复回调只更新已有行，四个凭证字段一起写
	UpsertByName(ctx context.Context, name string, cred model.VendRetailer) (*model.VendRetailer, bool, error)

	// UpdateToken 整组更新凭证 (刷新任务用)
	UpdateToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time, expiresIn int) error
	UpdateTokenStatus(ctx context.Context, id int64, tokenStatus string) error

	// FindExpiring 查找 Token 即将过期 (1 小时内) 且仍有效的租户
	FindExpiring(ctx context.Context) ([]model.VendRetailer, error)
	ListAuthorized(ctx context.Context) ([]model.VendRetailer, error)
}

// ==================== 仓储实现 ====================

type retailerRepo struct {
	db *gorm.DB
}

// NewRetailerRepository 创建租户仓储
func NewRetailerRepository(db *gorm.DB) RetailerRepository {
	return &retailerRepo{db: db}
}

func (r *retailerRepo) GetByID(ctx context.Context, id int64) (*model.VendRetailer, error) {
	var retailer model.VendRetailer
	if err := r.db.WithContext(ctx).First(&retailer, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, vend.ErrNotFound
		}
		return nil, err
	}
	return &retailer, nil
}

func (r *retailerRepo) GetByName(ctx context.Context, name string) (*model.VendRetailer, error) {
	var retailer model.VendRetailer
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&retailer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, vend.ErrNotFound
		}
		return nil, err
	}
	return &retailer, nil
}

// UpsertByName 按唯一键 name upsert
// 返回 (记录, 是否新建, 错误)；access/refresh token 永远一起落库
func (r *retailerRepo) UpsertByName(ctx context.Context, name string, cred model.VendRetailer) (*model.VendRetailer, bool, error) {
	var retailer model.VendRetailer
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&retailer).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		retailer = model.VendRetailer{
			Name:         name,
			AccessToken:  cred.AccessToken,
			RefreshToken: cred.RefreshToken,
			ExpiresAt:    cred.ExpiresAt,
			ExpiresIn:    cred.ExpiresIn,
			TokenStatus:  model.TokenStatusValid,
		}
		if err := r.db.WithContext(ctx).Create(&retailer).Error; err != nil {
			return nil, false, err
		}
		return &retailer, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	retailer.AccessToken = cred.AccessToken
	retailer.RefreshToken = cred.RefreshToken
	retailer.ExpiresAt = cred.ExpiresAt
	retailer.ExpiresIn = cred.ExpiresIn
	retailer.TokenStatus = model.TokenStatusValid
	if err := r.db.WithContext(ctx).Save(&retailer).Error; err != nil {
		return nil, false, err
	}
	return &retailer, false, nil
}

func (r *retailerRepo) UpdateToken(ctx context.Context, id int64, accessToken, refreshToken string, expiresAt time.Time, expiresIn int) error {
	return r.db.WithContext(ctx).
		Model(&model.VendRetailer{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"expires_at":    expiresAt,
			"expires_in":    expiresIn,
			"token_status":  model.TokenStatusValid,
		}).Error
}

func (r *retailerRepo) UpdateTokenStatus(ctx context.Context, id int64, tokenStatus string) error {
	return r.db.WithContext(ctx).
		Model(&model.VendRetailer{}).
		Where("id = ?", id).
		Update("token_status", tokenStatus).Error
}

// FindExpiring 状态有效且 1 小时内过期的租户
func (r *retailerRepo) FindExpiring(ctx context.Context) ([]model.VendRetailer, error) {
	var retailers []model.VendRetailer
	threshold := time.Now().Add(1 * time.Hour)
	err := r.db.WithContext(ctx).
		Where("token_status = ? AND expires_at < ?", model.TokenStatusValid, threshold).
		Find(&retailers).Error
	return retailers, err
}

// ListAuthorized 拿到过凭证的全部租户 (周期同步任务的遍历对象)
func (r *retailerRepo) ListAuthorized(ctx context.Context) ([]model.VendRetailer, error) {
	var retailers []model.VendRetailer
	err := r.db.WithContext(ctx).
		Where("access_token <> ''").
		Find(&retailers).Error
	return retailers, err
}
