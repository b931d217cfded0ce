package sync

import (
	"context"
	"strconv"
	"time"

	"vend_sync_v1_202608/internal/model"
	"vend_sync_v1_202608/pkg/vend"
)

// ==================== 同步结果 ====================

// Outcome 单条记录的落库结果
// 按记录区分新建/更新/无变化，集合同步不再折叠成单个布尔值
type Outcome int

const (
	OutcomeUnchanged Outcome = iota // 远端数据没变，只刷新 retrieved
	OutcomeCreated                  // 本地新建
	OutcomeUpdated                  // 本地已有且字段有变化
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeUpdated:
		return "updated"
	default:
		return "unchanged"
	}
}

// ItemResult 一条远端对象的同步结果
type ItemResult struct {
	UID     string  `json:"uid"`
	Outcome Outcome `json:"outcome"`
}

// ==================== 资源定义接口 ====================

// Resource 每种远端资源类型的插件定义
// 只描述 URL 模板、JSON 包裹字段和字段解析，拉取/解包/落库全部由引擎负责
type Resource interface {
	// ObjectURL 单对象端点；不支持单对象拉取的资源返回 ""
	ObjectURL(retailerName, uid string) string

	// CollectionURL 集合端点；不支持集合拉取的资源返回 ""
	CollectionURL(retailerName string) string

	// ObjectEnvelope 单对象响应的包裹字段名，"" 表示响应本身就是对象
	ObjectEnvelope() string

	// CollectionEnvelope 集合响应的包裹字段名，如 "users"
	CollectionEnvelope() string

	// Parse 把一个远端原始 JSON 对象映射成归一化字段集
	// 纯函数：不做网络请求、无副作用；缺必填字段时返回 SyncError
	Parse(raw map[string]interface{}) (map[string]interface{}, error)
}

// RecordStore 镜像记录的落库契约
// 按 uid upsert，并报告新建/更新/无变化
type RecordStore interface {
	Upsert(ctx context.Context, retailerID int64, uid string, fields map[string]interface{}) (Outcome, error)
}

// Fetcher 带鉴权的 JSON 拉取入口 (生产实现是 pkg/vend.Client)
type Fetcher interface {
	GetJSON(ctx context.Context, url, accessToken string) (interface{}, error)
}

// ==================== 引擎实现 ====================

// Reconciler 通用同步引擎
// 同一套 拉取→解包→取 id→解析→合并覆盖→盖时间戳→落库 流程，所有资源类型复用
type Reconciler struct {
	fetcher  Fetcher
	resource Resource
	store    RecordStore

	// 测试时可替换时钟
	now func() time.Time
}

// NewReconciler 创建引擎实例
func NewReconciler(fetcher Fetcher, resource Resource, store RecordStore) *Reconciler {
	return &Reconciler{
		fetcher:  fetcher,
		resource: resource,
		store:    store,
		now:      time.Now,
	}
}

// SetClock 注入时钟 (仅测试用)
func (r *Reconciler) SetClock(now func() time.Time) {
	r.now = now
}

// Sync 组合入口：带 uid 走单对象，不带走集合
// 适用于既有列表端点又有单对象端点的资源
func (r *Reconciler) Sync(ctx context.Context, retailer *model.VendRetailer, uid string) ([]ItemResult, error) {
	if uid != "" {
		res, err := r.SyncObject(ctx, retailer, uid, nil)
		if err != nil {
			return nil, err
		}
		return []ItemResult{res}, nil
	}
	return r.SyncCollection(ctx, retailer)
}

// SyncObject 拉取并落库一个远端对象
// overrides 由调用方额外指定的字段，优先级高于解析结果
func (r *Reconciler) SyncObject(ctx context.Context, retailer *model.VendRetailer, uid string, overrides map[string]interface{}) (ItemResult, error) {
	url := r.resource.ObjectURL(retailer.Name, uid)
	if url == "" {
		return ItemResult{}, vend.SyncErrorf("sync object", "resource does not support single-object retrieval")
	}

	data, err := r.fetcher.GetJSON(ctx, url, retailer.AccessToken)
	if err != nil {
		return ItemResult{}, err
	}

	inner, err := unwrapEnvelope(data, r.resource.ObjectEnvelope(), "sync object")
	if err != nil {
		return ItemResult{}, err
	}
	raw, ok := inner.(map[string]interface{})
	if !ok {
		return ItemResult{}, vend.SyncErrorf("sync object", "expected JSON object, got %T", inner)
	}

	return r.reconcileOne(ctx, retailer, raw, overrides)
}

// SyncCollection 拉取并落库一个远端集合
// 按远端返回顺序逐条处理，前一条落库后才解析下一条，无跨条并发
// 首个坏元素中止整批并返回 SyncError，之前已落库的条目保持提交 (部分提交语义)
func (r *Reconciler) SyncCollection(ctx context.Context, retailer *model.VendRetailer) ([]ItemResult, error) {
	url := r.resource.CollectionURL(retailer.Name)
	if url == "" {
		return nil, vend.SyncErrorf("sync collection", "resource does not support collection retrieval")
	}

	data, err := r.fetcher.GetJSON(ctx, url, retailer.AccessToken)
	if err != nil {
		return nil, err
	}

	inner, err := unwrapEnvelope(data, r.resource.CollectionEnvelope(), "sync collection")
	if err != nil {
		return nil, err
	}
	list, ok := inner.([]interface{})
	if !ok {
		return nil, vend.SyncErrorf("sync collection", "expected JSON array, got %T", inner)
	}

	results := make([]ItemResult, 0, len(list))
	for i, elem := range list {
		raw, ok := elem.(map[string]interface{})
		if !ok {
			return results, vend.SyncErrorf("sync collection", "element %d is not a JSON object", i)
		}
		res, err := r.reconcileOne(ctx, retailer, raw, nil)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// reconcileOne 单条对象的 解析→覆盖合并→盖戳→落库
func (r *Reconciler) reconcileOne(ctx context.Context, retailer *model.VendRetailer, raw map[string]interface{}, overrides map[string]interface{}) (ItemResult, error) {
	uid, err := uidFromRaw(raw)
	if err != nil {
		return ItemResult{}, err
	}

	fields, err := r.resource.Parse(raw)
	if err != nil {
		return ItemResult{}, err
	}

	// 调用方覆盖字段优先
	for k, v := range overrides {
		fields[k] = v
	}

	fields["retrieved"] = r.now()

	outcome, err := r.store.Upsert(ctx, retailer.ID, uid, fields)
	if err != nil {
		return ItemResult{}, vend.NewSyncError("upsert "+uid, err)
	}
	return ItemResult{UID: uid, Outcome: outcome}, nil
}

// ==================== 内部辅助 ====================

// unwrapEnvelope 解开响应的命名包裹字段
// key 为空直接返回原值；包裹字段缺失按 SyncError 处理
func unwrapEnvelope(data interface{}, key, op string) (interface{}, error) {
	if key == "" {
		return data, nil
	}
	obj, ok := data.(map[string]interface{})
	if !ok {
		return nil, vend.SyncErrorf(op, "expected envelope object with key %q, got %T", key, data)
	}
	inner, ok := obj[key]
	if !ok {
		return nil, vend.SyncErrorf(op, "response does not contain key %q", key)
	}
	return inner, nil
}

// uidFromRaw 取远端对象的 id 字段，缺失或为空按 SyncError 处理
// Vend 的 id 是 UUID 字符串，但兼容数字形式
func uidFromRaw(raw map[string]interface{}) (string, error) {
	v, ok := raw["id"]
	if !ok {
		return "", vend.SyncErrorf("parse object", "object does not contain key id")
	}
	switch id := v.(type) {
	case string:
		if id == "" {
			return "", vend.SyncErrorf("parse object", "object has empty id")
		}
		return id, nil
	case float64:
		return strconv.FormatInt(int64(id), 10), nil
	default:
		return "", vend.SyncErrorf("parse object", "unsupported id type %T", v)
	}
}
