package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"vend_sync_v1_202608/internal/model"
	"vend_sync_v1_202608/internal/repository"
	"vend_sync_v1_202608/pkg/config"
	"vend_sync_v1_202608/pkg/utils"
	"vend_sync_v1_202608/pkg/vend"
)

const validTokenBody = `{"access_token":"at-1","token_type":"Bearer","expires":1893456000,"expires_in":604800,"refresh_token":"rt-1"}`

// ==================== 测试辅助 ====================

func setupServiceTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("连接测试数据库失败: %v", err)
	}

	db.AutoMigrate(&model.VendRetailer{}, &model.VendUser{})
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		VendKey:     "test-key",
		VendSecret:  "test-secret",
		CallbackURL: "http://127.0.0.1:8080/vend/auth/complete/",
	}
}

// newAuthService 指向本地假 Token 端点的授权服务
func newAuthService(db *gorm.DB, cfg *config.Config, tokenServerURL string) *AuthService {
	s := NewAuthService(repository.NewRetailerRepository(db), vend.NewClient(), cfg)
	s.SetTokenURL(func(name string) string { return tokenServerURL })
	return s
}

func validCallback(state string) CallbackParams {
	return CallbackParams{
		DomainPrefix: "acme",
		Code:         "the-code",
		UserID:       "u-1",
		State:        state,
	}
}

// ==================== 发起授权 ====================

func TestAuthService_LoginURL(t *testing.T) {
	db := setupServiceTestDB(t)
	s := newAuthService(db, testConfig(), "")

	url, err := s.LoginURL("sess-login")
	if err != nil {
		t.Fatalf("LoginURL 失败: %v", err)
	}
	if !strings.Contains(url, "client_id=test-key") {
		t.Errorf("url = %s, 缺少 client_id", url)
	}
	if !strings.Contains(url, "response_type=code") {
		t.Errorf("url = %s, 缺少 response_type", url)
	}

	// state 必须已经写进会话，回调时要比对
	state, ok := utils.SessionGet("sess-login", SessionKeyState)
	if !ok || len(state) != 32 {
		t.Errorf("session state = %q (%v), want 32 位随机串", state, ok)
	}
	if !strings.Contains(url, "state="+state) {
		t.Errorf("url 里的 state 与会话不一致: %s", url)
	}
}

func TestAuthService_LoginURL_MissingKey(t *testing.T) {
	db := setupServiceTestDB(t)
	s := newAuthService(db, &config.Config{}, "")

	_, err := s.LoginURL("sess-nokey")
	if !errors.Is(err, vend.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

// ==================== 回调处理 ====================

func TestAuthService_HandleCallback_MissingParams(t *testing.T) {
	db := setupServiceTestDB(t)
	s := newAuthService(db, testConfig(), "")
	ctx := context.Background()

	cases := []CallbackParams{
		{Code: "c", UserID: "u", State: "s"},              // 缺 domain_prefix
		{DomainPrefix: "acme", UserID: "u", State: "s"},   // 缺 code
		{DomainPrefix: "acme", Code: "c", State: "s"},     // 缺 user_id
		{DomainPrefix: "acme", Code: "c", UserID: "u"},    // 缺 state
	}
	for i, p := range cases {
		if _, err := s.HandleCallback(ctx, "sess-x", p); !errors.Is(err, vend.ErrOAuthProtocol) {
			t.Errorf("case %d: err = %v, want ErrOAuthProtocol", i, err)
		}
	}
}

func TestAuthService_HandleCallback_StateMismatch(t *testing.T) {
	db := setupServiceTestDB(t)

	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(validTokenBody))
	}))
	defer server.Close()

	s := newAuthService(db, testConfig(), server.URL)
	utils.SessionSet("sess-mismatch", SessionKeyState, "expected-state")

	_, err := s.HandleCallback(context.Background(), "sess-mismatch", validCallback("forged-state"))
	if !errors.Is(err, vend.ErrOAuthProtocol) {
		t.Fatalf("err = %v, want ErrOAuthProtocol", err)
	}

	// state 校验在 Token 请求之前：端点不能被碰，库里不能有租户
	if hits != 0 {
		t.Errorf("token endpoint hits = %d, want 0", hits)
	}
	var count int64
	db.Model(&model.VendRetailer{}).Count(&count)
	if count != 0 {
		t.Errorf("retailer count = %d, want 0", count)
	}
}

func TestAuthService_HandleCallback_NoSessionState(t *testing.T) {
	db := setupServiceTestDB(t)
	s := newAuthService(db, testConfig(), "")

	// 从未发起过授权的会话，state 一律按不匹配处理
	_, err := s.HandleCallback(context.Background(), "sess-fresh", validCallback("whatever"))
	if !errors.Is(err, vend.ErrOAuthProtocol) {
		t.Errorf("err = %v, want ErrOAuthProtocol", err)
	}
}

func TestAuthService_HandleCallback_Success(t *testing.T) {
	db := setupServiceTestDB(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(validTokenBody))
	}))
	defer server.Close()

	s := newAuthService(db, testConfig(), server.URL)
	utils.SessionSet("sess-ok", SessionKeyState, "good-state")

	retailer, err := s.HandleCallback(context.Background(), "sess-ok", validCallback("good-state"))
	if err != nil {
		t.Fatalf("HandleCallback 失败: %v", err)
	}
	if retailer.Name != "acme" {
		t.Errorf("name = %s, want acme", retailer.Name)
	}
	if retailer.AccessToken != "at-1" || retailer.RefreshToken != "rt-1" {
		t.Errorf("tokens = (%s, %s)", retailer.AccessToken, retailer.RefreshToken)
	}
	// expires 是 epoch 秒，换算成绝对时间
	if !retailer.ExpiresAt.Equal(time.Unix(1893456000, 0)) {
		t.Errorf("expires_at = %v", retailer.ExpiresAt)
	}

	// state 用完即焚，会话里换成租户 ID
	if _, ok := utils.SessionGet("sess-ok", SessionKeyState); ok {
		t.Error("回调成功后 state 应该被删除")
	}
	if rid, ok := utils.SessionGet("sess-ok", SessionKeyRetailerID); !ok || rid == "" {
		t.Error("回调成功后会话应记录租户 ID")
	}
}

func TestAuthService_HandleCallback_RepeatUpdatesRow(t *testing.T) {
	db := setupServiceTestDB(t)
	body := validTokenBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer server.Close()

	s := newAuthService(db, testConfig(), server.URL)
	ctx := context.Background()

	utils.SessionSet("sess-r1", SessionKeyState, "s1")
	first, err := s.HandleCallback(ctx, "sess-r1", validCallback("s1"))
	if err != nil {
		t.Fatalf("第一次回调失败: %v", err)
	}

	// 同一 domain_prefix 再来一次，换了新 Token
	body = `{"access_token":"at-2","token_type":"Bearer","expires":1893460000,"expires_in":604800,"refresh_token":"rt-2"}`
	utils.SessionSet("sess-r2", SessionKeyState, "s2")
	second, err := s.HandleCallback(ctx, "sess-r2", validCallback("s2"))
	if err != nil {
		t.Fatalf("第二次回调失败: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("id = %d, want %d (同一行)", second.ID, first.ID)
	}
	if second.AccessToken != "at-2" || second.RefreshToken != "rt-2" {
		t.Errorf("tokens = (%s, %s), want (at-2, rt-2)", second.AccessToken, second.RefreshToken)
	}

	var count int64
	db.Model(&model.VendRetailer{}).Count(&count)
	if count != 1 {
		t.Errorf("retailer count = %d, want 1", count)
	}
}

func TestAuthService_HandleCallback_InvalidTokenNoPersist(t *testing.T) {
	db := setupServiceTestDB(t)
	// token_type 必须区分大小写等于 "Bearer"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"access_token":"at","token_type":"bearer","expires":1,"expires_in":1,"refresh_token":"rt"}`))
	}))
	defer server.Close()

	s := newAuthService(db, testConfig(), server.URL)
	utils.SessionSet("sess-bad", SessionKeyState, "st")

	_, err := s.HandleCallback(context.Background(), "sess-bad", validCallback("st"))
	if !errors.Is(err, vend.ErrOAuthProtocol) {
		t.Fatalf("err = %v, want ErrOAuthProtocol", err)
	}

	var count int64
	db.Model(&model.VendRetailer{}).Count(&count)
	if count != 0 {
		t.Errorf("非法 Token 响应不应落库, count = %d", count)
	}
}

func TestAuthService_HandleCallback_MissingSecret(t *testing.T) {
	db := setupServiceTestDB(t)
	s := newAuthService(db, &config.Config{VendKey: "k"}, "")
	utils.SessionSet("sess-nosec", SessionKeyState, "st")

	_, err := s.HandleCallback(context.Background(), "sess-nosec", validCallback("st"))
	if !errors.Is(err, vend.ErrConfiguration) {
		t.Errorf("err = %v, want ErrConfiguration", err)
	}
}

// ==================== Token 刷新 ====================

func TestAuthService_RefreshAccessToken(t *testing.T) {
	db := setupServiceTestDB(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostFormValue("grant_type") != "refresh_token" {
			t.Errorf("grant_type = %q", r.PostFormValue("grant_type"))
		}
		w.Write([]byte(`{"access_token":"at-new","token_type":"Bearer","expires":1893460000,"expires_in":604800,"refresh_token":"rt-new"}`))
	}))
	defer server.Close()

	s := newAuthService(db, testConfig(), server.URL)

	retailer := model.VendRetailer{Name: "acme", AccessToken: "at-old", RefreshToken: "rt-old", TokenStatus: model.TokenStatusValid}
	db.Create(&retailer)

	if err := s.RefreshAccessToken(context.Background(), &retailer); err != nil {
		t.Fatalf("RefreshAccessToken 失败: %v", err)
	}

	// 内存对象和数据库都要更新
	if retailer.AccessToken != "at-new" || retailer.RefreshToken != "rt-new" {
		t.Errorf("内存对象 tokens = (%s, %s)", retailer.AccessToken, retailer.RefreshToken)
	}
	var stored model.VendRetailer
	db.First(&stored, retailer.ID)
	if stored.AccessToken != "at-new" || stored.RefreshToken != "rt-new" {
		t.Errorf("库里 tokens = (%s, %s)", stored.AccessToken, stored.RefreshToken)
	}
}

func TestAuthService_RefreshAccessToken_DeniedMarksInvalid(t *testing.T) {
	db := setupServiceTestDB(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	s := newAuthService(db, testConfig(), server.URL)

	retailer := model.VendRetailer{Name: "acme", RefreshToken: "rt-dead", TokenStatus: model.TokenStatusValid}
	db.Create(&retailer)

	err := s.RefreshAccessToken(context.Background(), &retailer)
	if !errors.Is(err, vend.ErrOAuthProtocol) {
		t.Fatalf("err = %v, want ErrOAuthProtocol", err)
	}

	// 被端点明确拒绝后租户要标记为需重新授权
	var stored model.VendRetailer
	db.First(&stored, retailer.ID)
	if stored.TokenStatus != model.TokenStatusInvalid {
		t.Errorf("token_status = %s, want auth_invalid", stored.TokenStatus)
	}
}

// ==================== 远端用户列表 (select-user) ====================

func TestAuthService_ListRemoteUsers(t *testing.T) {
	db := setupServiceTestDB(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"users":[{"id":"u-1","name":"john","display_name":"John","email":"j@x.com","account_type":"manager"}]}`))
	}))
	defer server.Close()

	s := newAuthService(db, testConfig(), "")
	s.SetUserListURL(func(name string) string { return server.URL })

	retailer := model.VendRetailer{Name: "acme", AccessToken: "at"}
	db.Create(&retailer)

	users, err := s.ListRemoteUsers(context.Background(), retailer.ID)
	if err != nil {
		t.Fatalf("ListRemoteUsers 失败: %v", err)
	}
	if len(users) != 1 || users[0].ID != "u-1" || users[0].Name != "john" {
		t.Errorf("users = %+v", users)
	}
}

func TestAuthService_ListRemoteUsers_Lenient(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"响应不是JSON", `<html>error</html>`},
		{"缺users字段", `{"data":[]}`},
		{"响应不是对象", `[1,2,3]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db := setupServiceTestDB(t)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			s := newAuthService(db, testConfig(), "")
			s.SetUserListURL(func(name string) string { return server.URL })

			retailer := model.VendRetailer{Name: "acme", AccessToken: "at"}
			db.Create(&retailer)

			// 解析不了就按无用户处理，页面不失败
			users, err := s.ListRemoteUsers(context.Background(), retailer.ID)
			if err != nil {
				t.Fatalf("宽松解析不应报错: %v", err)
			}
			if users != nil {
				t.Errorf("users = %v, want nil", users)
			}
		})
	}
}

func TestAuthService_ListRemoteUsers_TransportErrorPropagates(t *testing.T) {
	db := setupServiceTestDB(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := newAuthService(db, testConfig(), "")
	s.SetUserListURL(func(name string) string { return server.URL })

	retailer := model.VendRetailer{Name: "acme", AccessToken: "at"}
	db.Create(&retailer)

	// 非 2xx 不属于宽松范围，照常上抛
	_, err := s.ListRemoteUsers(context.Background(), retailer.ID)
	if !vend.IsSyncError(err) {
		t.Errorf("err = %v, want SyncError", err)
	}
}

func TestAuthService_ListRemoteUsers_RetailerNotFound(t *testing.T) {
	db := setupServiceTestDB(t)
	s := newAuthService(db, testConfig(), "")

	_, err := s.ListRemoteUsers(context.Background(), 999)
	if !errors.Is(err, vend.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
