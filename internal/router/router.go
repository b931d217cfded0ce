package router

import (
	"github.com/gin-gonic/gin"

	"vend_sync_v1_202608/internal/controller"
	"vend_sync_v1_202608/internal/middleware"
)

// Controllers 控制器集合
type Controllers struct {
	Auth *controller.AuthController
	Sync *controller.SyncController
}

// SetupRouter 创建引擎并注册所有路由
func SetupRouter(ctls *Controllers) *gin.Engine {
	r := gin.Default()
	r.Use(middleware.Session())
	InitRoutes(r, ctls)
	return r
}

// InitRoutes 注册所有路由
func InitRoutes(r *gin.Engine, ctls *Controllers) {
	// 1. 授权流程 (浏览器侧)
	auth := r.Group("/vend/auth")
	{
		// GET /vend/auth/login/
		auth.GET("/login/", ctls.Auth.Login)

		// 回调必须自己做方法检查，非 GET 要回 405 而不是 404
		auth.Any("/complete/", ctls.Auth.Complete)

		// GET /vend/auth/select-user/
		auth.GET("/select-user/", ctls.Auth.SelectUser)
	}

	// 2. 管理 API (JWT 守卫)
	api := r.Group("/api")
	api.Use(middleware.JWTAuth())
	{
		// POST /api/sync/users?retailer_id=1[&uid=...]
		api.POST("/sync/users", ctls.Sync.SyncUsers)

		// GET /api/users?retailer_id=1
		api.GET("/users", ctls.Sync.ListUsers)
	}
}
