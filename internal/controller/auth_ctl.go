package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"vend_sync_v1_202608/internal/middleware"
	"vend_sync_v1_202608/internal/service"
	"vend_sync_v1_202608/pkg/utils"
	"vend_sync_v1_202608/pkg/vend"
)

type AuthController struct {
	authService *service.AuthService
}

func NewAuthController(s *service.AuthService) *AuthController {
	return &AuthController{authService: s}
}

// Login 发起授权
// 生成 state 写入会话后 302 跳到 Vend 授权页
func (ctrl *AuthController) Login(c *gin.Context) {
	sid := middleware.SessionID(c)

	url, err := ctrl.authService.LoginURL(sid)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.Redirect(http.StatusFound, url)
}

// Complete 授权回调
// 只接受 GET；成功后 302 跳到 select-user
func (ctrl *AuthController) Complete(c *gin.Context) {
	if c.Request.Method != http.MethodGet {
		writeAuthError(c, fmt.Errorf("%w: %s request not allowed", vend.ErrMethodNotAllowed, c.Request.Method))
		return
	}

	sid := middleware.SessionID(c)
	params := service.CallbackParams{
		DomainPrefix: c.Query("domain_prefix"),
		Code:         c.Query("code"),
		UserID:       c.Query("user_id"),
		State:        c.Query("state"),
	}

	if _, err := ctrl.authService.HandleCallback(c.Request.Context(), sid, params); err != nil {
		writeAuthError(c, err)
		return
	}

	c.Redirect(http.StatusFound, "/vend/auth/select-user/")
}

// SelectUser 授权完成后的用户选择页
// 会话里没有租户 ID 视为流程未开始，跳回 login 而不是报错
func (ctrl *AuthController) SelectUser(c *gin.Context) {
	sid := middleware.SessionID(c)

	ridStr, ok := utils.SessionGet(sid, service.SessionKeyRetailerID)
	if !ok {
		c.Redirect(http.StatusFound, "/vend/auth/login/")
		return
	}
	retailerID, err := strconv.ParseInt(ridStr, 10, 64)
	if err != nil {
		c.Redirect(http.StatusFound, "/vend/auth/login/")
		return
	}

	users, err := ctrl.authService.ListRemoteUsers(c.Request.Context(), retailerID)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	// 视图模型：远端用户桩列表，可能为空
	c.JSON(http.StatusOK, gin.H{
		"retailer_id": retailerID,
		"users":       users,
	})
}

// writeAuthError 错误分类 -> HTTP 状态码
func writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, vend.ErrConfiguration):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "配置缺失", "detail": err.Error()})
	case errors.Is(err, vend.ErrOAuthProtocol):
		c.JSON(http.StatusBadRequest, gin.H{"error": "OAuth2 failure", "detail": err.Error()})
	case errors.Is(err, vend.ErrMethodNotAllowed):
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "方法不被允许", "detail": err.Error()})
	case errors.Is(err, vend.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "记录不存在"})
	case vend.IsSyncError(err):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Vend API 调用失败", "detail": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "内部错误", "detail": err.Error()})
	}
}
