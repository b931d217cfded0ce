package vend

import (
	"errors"
	"fmt"
)

// ==================== 错误分类 ====================

// 授权流程与同步流程共用的错误分类
// 边界层（controller / task）通过 errors.Is 判断类别后映射状态码
var (
	// ErrConfiguration 缺少必要的部署配置 (VEND_KEY / VEND_SECRET)
	// 当前请求不可恢复，需要运维修正环境变量
	ErrConfiguration = errors.New("vend: missing required configuration")

	// ErrOAuthProtocol OAuth 交换过程不完整或被篡改
	// 缺参数、state 不匹配、Token 响应非法都归入此类
	ErrOAuthProtocol = errors.New("vend: oauth protocol failure")

	// ErrMethodNotAllowed 回调端点收到非 GET 请求
	ErrMethodNotAllowed = errors.New("vend: method not allowed")

	// ErrNotFound 本地存储中查不到引用的记录
	ErrNotFound = errors.New("vend: record not found")
)

// SyncError 拉取/解析远端资源失败
// 传输错误、非 2xx 状态、非法 JSON、缺少必填字段统一包成 SyncError
// 不自动重试，原样抛给同步操作的调用方
type SyncError struct {
	Op  string // 出错的操作，如 "fetch users"
	Err error  // 底层原因，可为 nil
	Msg string
}

func (e *SyncError) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("vend sync: %s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("vend sync: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("vend sync: %s: %s", e.Op, e.Msg)
	}
}

func (e *SyncError) Unwrap() error { return e.Err }

// NewSyncError 包装底层错误
func NewSyncError(op string, err error) *SyncError {
	return &SyncError{Op: op, Err: err}
}

// SyncErrorf 无底层错误时的便捷构造
func SyncErrorf(op, format string, args ...interface{}) *SyncError {
	return &SyncError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsSyncError 判断是否为同步错误
func IsSyncError(err error) bool {
	var se *SyncError
	return errors.As(err, &se)
}
