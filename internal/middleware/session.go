package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// 会话 cookie
const (
	SessionCookieName = "vend_session"
	sessionCtxKey     = "session_id"

	// 与 pkg/utils 里的会话 TTL 对齐
	sessionMaxAge = 30 * 60
)

// Session 浏览器会话中间件
// 没有会话 cookie 就发一个，后续授权流程的 state/租户 ID 都挂在它下面
func Session() gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(SessionCookieName)
		if err != nil || sid == "" {
			sid = uuid.NewString()
			c.SetCookie(SessionCookieName, sid, sessionMaxAge, "/", "", false, true)
		}
		c.Set(sessionCtxKey, sid)
		c.Next()
	}
}

// SessionID 取当前请求的会话标识
func SessionID(c *gin.Context) string {
	if v, ok := c.Get(sessionCtxKey); ok {
		if sid, ok := v.(string); ok {
			return sid
		}
	}
	return ""
}
