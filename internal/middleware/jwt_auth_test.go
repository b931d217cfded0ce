package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestAdminToken_RoundTrip(t *testing.T) {
	token, err := GenerateAdminToken("ops")
	if err != nil {
		t.Fatalf("签发失败: %v", err)
	}

	claims, err := ParseAdminToken(token)
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if claims.Subject != "ops" {
		t.Errorf("subject = %s, want ops", claims.Subject)
	}
}

func TestParseAdminToken_WrongSecret(t *testing.T) {
	SetJWTConfig(&JWTConfig{SecretKey: "secret-a", AccessTokenTTL: jwtConfig.AccessTokenTTL, Issuer: "vend-sync"})
	token, _ := GenerateAdminToken("ops")

	SetJWTConfig(&JWTConfig{SecretKey: "secret-b", AccessTokenTTL: jwtConfig.AccessTokenTTL, Issuer: "vend-sync"})
	defer SetJWTConfig(DefaultJWTConfig())

	if _, err := ParseAdminToken(token); err == nil {
		t.Error("密钥不匹配的 Token 应解析失败")
	}
}

func TestJWTAuth_Guard(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/guarded", JWTAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	// 无 Authorization 头
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("无 Token code = %d, want 401", w.Code)
	}

	// 格式错误
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Basic abc")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("格式错误 code = %d, want 401", w.Code)
	}

	// 合法 Token
	token, _ := GenerateAdminToken("ops")
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("合法 Token code = %d, want 200", w.Code)
	}
}
