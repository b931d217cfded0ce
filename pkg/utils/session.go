package utils

import (
	"sync"
	"time"
)

// 浏览器会话级的 key-value 存储
// 使用 sync.Map 保证并发安全，按 "sessionID:key" 存储
var (
	sessionStore sync.Map
)

// sessionItem 内部结构，包含值和过期时间
type sessionItem struct {
	value      string
	expiration int64
}

// SessionSet 写入会话值
// key: vend_state / vend_retailer_id
func SessionSet(sessionID, key, value string) {
	// 默认 30 分钟过期，足够完成一轮授权流程
	exp := time.Now().Add(30 * time.Minute).Unix()

	sessionStore.Store(sessionID+":"+key, sessionItem{
		value:      value,
		expiration: exp,
	})
}

// SessionGet 读取会话值并验证是否过期
func SessionGet(sessionID, key string) (string, bool) {
	val, ok := sessionStore.Load(sessionID + ":" + key)
	if !ok {
		return "", false
	}

	item := val.(sessionItem)

	// 检查是否过期
	if time.Now().Unix() > item.expiration {
		sessionStore.Delete(sessionID + ":" + key) // 懒删除
		return "", false
	}

	return item.value, true
}

// SessionDelete 删除会话值 (用完即焚)
func SessionDelete(sessionID, key string) {
	sessionStore.Delete(sessionID + ":" + key)
}
