package service

import (
	"context"
	"fmt"
	"time"

	"vend_sync_v1_202608/internal/model"
	"vend_sync_v1_202608/internal/repository"
	syncengine "vend_sync_v1_202608/internal/sync"
	"vend_sync_v1_202608/pkg/vend"
)

// ==================== 资源定义 ====================

// UserResource "user" 资源类型的同步插件
// 只提供 URL 模板、包裹字段和解析逻辑，其余交给引擎
// 用户既有列表端点又有单对象端点，两种拉取能力都开
type UserResource struct {
	// DefaultImage 远端没给头像时的兜底值，由配置显式传入
	DefaultImage string
}

func (r *UserResource) ObjectURL(retailerName, uid string) string {
	return vend.UserObjectURL(retailerName, uid)
}

func (r *UserResource) CollectionURL(retailerName string) string {
	return vend.UserCollectionURL(retailerName)
}

// ObjectEnvelope 单对象响应没有包裹
func (r *UserResource) ObjectEnvelope() string { return "" }

// CollectionEnvelope 列表响应包在 "users" 里
func (r *UserResource) CollectionEnvelope() string { return "users" }

// Parse 把远端用户 JSON 映射成归一化字段集
// 纯函数；缺必填字段按 SyncError 处理
func (r *UserResource) Parse(raw map[string]interface{}) (map[string]interface{}, error) {
	name, err := requireString(raw, "name")
	if err != nil {
		return nil, err
	}
	displayName, err := requireString(raw, "display_name")
	if err != nil {
		return nil, err
	}
	email, err := requireString(raw, "email")
	if err != nil {
		return nil, err
	}
	createdAt, err := requireTime(raw, "created_at")
	if err != nil {
		return nil, err
	}
	updatedAt, err := requireTime(raw, "updated_at")
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"name":            name,
		"display_name":    displayName,
		"email":           email,
		"image":           r.DefaultImage,
		"vend_created_at": createdAt,
		"vend_updated_at": updatedAt,
	}

	// image 可选，给了就必须带 url
	if img, ok := raw["image"]; ok {
		imgObj, ok := img.(map[string]interface{})
		if !ok {
			return nil, vend.SyncErrorf("parse user", "image is not a JSON object")
		}
		url, err := requireString(imgObj, "url")
		if err != nil {
			return nil, err
		}
		fields["image"] = url
	}

	// account_type 可选 (单对象响应里没有，列表元素里有)
	if _, ok := raw["account_type"]; ok {
		accountType, err := parseAccountType(raw)
		if err != nil {
			return nil, err
		}
		fields["account_type"] = accountType
	}

	return fields, nil
}

// parseAccountType 远端 account_type 映射成首字母分类
// "admin"/"manager"/"cashier" -> A/M/C，其余一律拒绝
func parseAccountType(raw map[string]interface{}) (string, error) {
	s, err := requireString(raw, "account_type")
	if err != nil {
		return "", err
	}
	initial := string([]rune(s)[0])
	switch {
	case initial == "a" || initial == "A":
		return model.AccountTypeAdmin, nil
	case initial == "m" || initial == "M":
		return model.AccountTypeManager, nil
	case initial == "c" || initial == "C":
		return model.AccountTypeCashier, nil
	}
	return "", vend.SyncErrorf("parse user", "unknown account_type %q", s)
}

// requireString 取必填字符串字段
func requireString(raw map[string]interface{}, key string) (string, error) {
	v, ok := raw[key].(string)
	if !ok || v == "" {
		return "", vend.SyncErrorf("parse user", "object does not contain key %s", key)
	}
	return v, nil
}

// requireTime 取必填时间字段 (RFC3339)
func requireTime(raw map[string]interface{}, key string) (time.Time, error) {
	s, err := requireString(raw, key)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, vend.SyncErrorf("parse user", "invalid %s: %v", key, err)
	}
	return t.UTC(), nil
}

// ==================== 用户同步服务 ====================

// UserService 用户镜像的同步与查询
type UserService struct {
	RetailerRepo repository.RetailerRepository
	UserRepo     repository.VendUserRepository

	reconciler *syncengine.Reconciler
}

// NewUserService 工厂方法
// defaultImage 从配置传入，资源定义不读任何全局默认
func NewUserService(retailerRepo repository.RetailerRepository, userRepo repository.VendUserRepository, fetcher syncengine.Fetcher, defaultImage string) *UserService {
	resource := &UserResource{DefaultImage: defaultImage}
	return &UserService{
		RetailerRepo: retailerRepo,
		UserRepo:     userRepo,
		reconciler:   syncengine.NewReconciler(fetcher, resource, userRepo),
	}
}

// Sync 组合入口：uid 非空同步单个用户，否则同步整个集合
func (s *UserService) Sync(ctx context.Context, retailerID int64, uid string) ([]syncengine.ItemResult, error) {
	retailer, err := s.loadAuthorized(ctx, retailerID)
	if err != nil {
		return nil, err
	}
	return s.reconciler.Sync(ctx, retailer, uid)
}

// SyncUsers 同步租户的全部用户
func (s *UserService) SyncUsers(ctx context.Context, retailerID int64) ([]syncengine.ItemResult, error) {
	retailer, err := s.loadAuthorized(ctx, retailerID)
	if err != nil {
		return nil, err
	}
	return s.reconciler.SyncCollection(ctx, retailer)
}

// SyncUser 同步单个用户，可带调用方覆盖字段
func (s *UserService) SyncUser(ctx context.Context, retailerID int64, uid string, overrides map[string]interface{}) (syncengine.ItemResult, error) {
	retailer, err := s.loadAuthorized(ctx, retailerID)
	if err != nil {
		return syncengine.ItemResult{}, err
	}
	return s.reconciler.SyncObject(ctx, retailer, uid, overrides)
}

// List 查询本地镜像 (按租户隔离)
func (s *UserService) List(ctx context.Context, retailerID int64) ([]model.VendUser, error) {
	return s.UserRepo.ListByRetailer(ctx, retailerID)
}

// loadAuthorized 载入租户并确认已授权
func (s *UserService) loadAuthorized(ctx context.Context, retailerID int64) (*model.VendRetailer, error) {
	retailer, err := s.RetailerRepo.GetByID(ctx, retailerID)
	if err != nil {
		return nil, err
	}
	if !retailer.Authorized() {
		return nil, fmt.Errorf("retailer %s is not authorized", retailer.Name)
	}
	return retailer, nil
}
