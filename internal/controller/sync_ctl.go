package controller

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"vend_sync_v1_202608/internal/service"
	syncengine "vend_sync_v1_202608/internal/sync"
)

type SyncController struct {
	userService *service.UserService
}

func NewSyncController(s *service.UserService) *SyncController {
	return &SyncController{userService: s}
}

// SyncUsers 手动触发用户同步
// 带 uid 参数走单对象路径，否则同步整个集合
func (ctrl *SyncController) SyncUsers(c *gin.Context) {
	retailerID, ok := queryRetailerID(c)
	if !ok {
		return
	}
	uid := c.Query("uid")

	results, err := ctrl.userService.Sync(c.Request.Context(), retailerID, uid)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	// 按结果分类计数，方便运维一眼看出本轮变化
	var created, updated, unchanged int
	for _, r := range results {
		switch r.Outcome {
		case syncengine.OutcomeCreated:
			created++
		case syncengine.OutcomeUpdated:
			updated++
		default:
			unchanged++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "同步完成",
		"created":   created,
		"updated":   updated,
		"unchanged": unchanged,
		"results":   results,
	})
}

// ListUsers 查询本地用户镜像
func (ctrl *SyncController) ListUsers(c *gin.Context) {
	retailerID, ok := queryRetailerID(c)
	if !ok {
		return
	}

	users, err := ctrl.userService.List(c.Request.Context(), retailerID)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total": len(users),
		"users": users,
	})
}

// queryRetailerID 解析必填的 retailer_id 查询参数
func queryRetailerID(c *gin.Context) (int64, bool) {
	idStr := c.Query("retailer_id")
	if idStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少 retailer_id 参数"})
		return 0, false
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "retailer_id 必须是数字"})
		return 0, false
	}
	return id, true
}
