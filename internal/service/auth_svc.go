package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"vend_sync_v1_202608/internal/model"
	"vend_sync_v1_202608/internal/repository"
	"vend_sync_v1_202608/pkg/config"
	"vend_sync_v1_202608/pkg/utils"
	"vend_sync_v1_202608/pkg/vend"
)

// 会话键
const (
	SessionKeyState      = "vend_state"       // 发起授权时写入的防 CSRF state
	SessionKeyRetailerID = "vend_retailer_id" // 回调成功后写入的租户 ID
)

// CallbackParams 回调请求携带的查询参数
type CallbackParams struct {
	DomainPrefix string
	Code         string
	UserID       string
	State        string
}

// AuthService 授权码换 Token 的三步流程
// 状态只存在会话和租户表里，每一步都是无状态的请求处理
type AuthService struct {
	RetailerRepo repository.RetailerRepository
	client       *vend.Client
	cfg          *config.Config

	// tokenURL / userListURL 按租户域名拼端点，测试时可替换
	tokenURL    func(name string) string
	userListURL func(name string) string
}

// NewAuthService 工厂方法
func NewAuthService(retailerRepo repository.RetailerRepository, client *vend.Client, cfg *config.Config) *AuthService {
	return &AuthService{
		RetailerRepo: retailerRepo,
		client:       client,
		cfg:          cfg,
		tokenURL:     vend.TokenURL,
		userListURL:  vend.UserCollectionURL,
	}
}

// SetTokenURL 覆盖 Token 端点构造 (仅测试用)
func (s *AuthService) SetTokenURL(f func(name string) string) {
	s.tokenURL = f
}

// SetUserListURL 覆盖用户列表端点构造 (仅测试用)
func (s *AuthService) SetUserListURL(f func(name string) string) {
	s.userListURL = f
}

// LoginURL 发起授权：生成随机 state 存入会话，返回跳转链接
// 不发任何网络请求；缺 VEND_KEY 直接报配置错误
func (s *AuthService) LoginURL(sessionID string) (string, error) {
	if s.cfg.VendKey == "" {
		return "", fmt.Errorf("%w: VEND_KEY is required", vend.ErrConfiguration)
	}

	state, err := utils.GenerateRandomString(32)
	if err != nil {
		return "", err
	}
	utils.SessionSet(sessionID, SessionKeyState, state)

	return vend.BuildAuthorizeURL(s.cfg.VendKey, s.cfg.CallbackURL, state), nil
}

// HandleCallback 处理 Vend 回调 -> 换 Token -> 租户落库
// state 校验必须在发起 Token 请求之前完成；任何失败都不落库
func (s *AuthService) HandleCallback(ctx context.Context, sessionID string, p CallbackParams) (*model.VendRetailer, error) {
	// 1. 必填参数检查
	switch {
	case p.DomainPrefix == "":
		return nil, fmt.Errorf("%w: missing domain_prefix", vend.ErrOAuthProtocol)
	case p.Code == "":
		return nil, fmt.Errorf("%w: missing code", vend.ErrOAuthProtocol)
	case p.UserID == "":
		return nil, fmt.Errorf("%w: missing user_id", vend.ErrOAuthProtocol)
	case p.State == "":
		return nil, fmt.Errorf("%w: missing state", vend.ErrOAuthProtocol)
	}

	// 2. state 与会话存值精确比对 (CSRF 防线)
	// 会话里没有存值同样按不匹配处理；只认完全相等，不做前缀/子串匹配
	sessionState, ok := utils.SessionGet(sessionID, SessionKeyState)
	if !ok || p.State != sessionState {
		return nil, fmt.Errorf("%w: state mismatch", vend.ErrOAuthProtocol)
	}

	// 3. 配置检查
	if s.cfg.VendKey == "" {
		return nil, fmt.Errorf("%w: VEND_KEY is required", vend.ErrConfiguration)
	}
	if s.cfg.VendSecret == "" {
		return nil, fmt.Errorf("%w: VEND_SECRET is required", vend.ErrConfiguration)
	}

	// 4. 授权码换 Token
	// redirect_uri 必须与发起授权时的完全一致
	token, err := s.client.ExchangeCode(ctx, s.tokenURL(p.DomainPrefix), p.Code, s.cfg.VendKey, s.cfg.VendSecret, s.cfg.CallbackURL)
	if err != nil {
		return nil, err
	}

	// 5. 租户落库，name = domain_prefix，重复回调只更新
	// expires 是 epoch 秒，换算成绝对时间；expires_in 保留原值
	retailer, created, err := s.RetailerRepo.UpsertByName(ctx, p.DomainPrefix, model.VendRetailer{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    time.Unix(token.Expires, 0),
		ExpiresIn:    token.ExpiresIn,
	})
	if err != nil {
		return nil, err
	}
	if created {
		log.Printf("[Auth] 租户 [%s] 首次授权成功", retailer.Name)
	} else {
		log.Printf("[Auth] 租户 [%s] 凭证已更新", retailer.Name)
	}

	// 6. 会话记录租户，state 用完即焚
	utils.SessionDelete(sessionID, SessionKeyState)
	utils.SessionSet(sessionID, SessionKeyRetailerID, strconv.FormatInt(retailer.ID, 10))

	return retailer, nil
}

// ListRemoteUsers 拉取租户的远端用户列表 (select-user 页面用，不落库)
// 响应解析不了或缺 users 字段时降级为空列表，不让整页失败；传输层错误照常上抛
func (s *AuthService) ListRemoteUsers(ctx context.Context, retailerID int64) ([]vend.UserStub, error) {
	retailer, err := s.RetailerRepo.GetByID(ctx, retailerID)
	if err != nil {
		return nil, err
	}

	data, err := s.client.GetJSON(ctx, s.userListURL(retailer.Name), retailer.AccessToken)
	if err != nil {
		// 刻意宽松：响应体不是 JSON 时按无用户处理
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, nil
		}
		return nil, err
	}

	obj, ok := data.(map[string]interface{})
	if !ok {
		return nil, nil
	}
	rawUsers, ok := obj["users"]
	if !ok {
		return nil, nil
	}

	// JSON 往返转成用户桩，个别字段缺失不影响整体
	buf, err := json.Marshal(rawUsers)
	if err != nil {
		return nil, nil
	}
	var users []vend.UserStub
	if err := json.Unmarshal(buf, &users); err != nil {
		return nil, nil
	}
	return users, nil
}

// RefreshAccessToken 用 refresh_token 续期并整组更新凭证
// 服务端明确拒绝时把租户标记为需重新授权
func (s *AuthService) RefreshAccessToken(ctx context.Context, retailer *model.VendRetailer) error {
	if s.cfg.VendKey == "" {
		return fmt.Errorf("%w: VEND_KEY is required", vend.ErrConfiguration)
	}
	if s.cfg.VendSecret == "" {
		return fmt.Errorf("%w: VEND_SECRET is required", vend.ErrConfiguration)
	}

	token, err := s.client.RefreshToken(ctx, s.tokenURL(retailer.Name), retailer.RefreshToken, s.cfg.VendKey, s.cfg.VendSecret)
	if err != nil {
		if errors.Is(err, vend.ErrOAuthProtocol) {
			// 只有明确收到协议层拒绝才标记为失效
			if stErr := s.RetailerRepo.UpdateTokenStatus(ctx, retailer.ID, model.TokenStatusInvalid); stErr != nil {
				log.Printf("[Auth] 租户 [%s] 状态更新失败: %v", retailer.Name, stErr)
			}
		}
		return fmt.Errorf("refresh denied for retailer %s: %w", retailer.Name, err)
	}

	expiresAt := time.Unix(token.Expires, 0)
	if err := s.RetailerRepo.UpdateToken(ctx, retailer.ID, token.AccessToken, token.RefreshToken, expiresAt, token.ExpiresIn); err != nil {
		return err
	}

	// 同步更新内存对象，供调用方继续使用
	retailer.AccessToken = token.AccessToken
	retailer.RefreshToken = token.RefreshToken
	retailer.ExpiresAt = expiresAt
	retailer.ExpiresIn = token.ExpiresIn
	retailer.TokenStatus = model.TokenStatusValid

	return nil
}
