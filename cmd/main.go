package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"vend_sync_v1_202608/internal/controller"
	"vend_sync_v1_202608/internal/middleware"
	"vend_sync_v1_202608/internal/model"
	"vend_sync_v1_202608/internal/repository"
	"vend_sync_v1_202608/internal/router"
	"vend_sync_v1_202608/internal/service"
	"vend_sync_v1_202608/internal/task"
	"vend_sync_v1_202608/pkg/config"
	"vend_sync_v1_202608/pkg/database"
	"vend_sync_v1_202608/pkg/vend"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	// 2. 初始化数据库
	db := initDatabase(cfg)

	// 3. 初始化依赖
	deps := initDependencies(db, cfg)

	// 4. 启动定时任务
	initTasks(deps)

	// 5. 初始化路由
	r := router.SetupRouter(deps.Controllers)

	// 6. 启动服务
	startServer(r, cfg)
}

// ==================== 依赖容器 ====================

// Dependencies 依赖容器
type Dependencies struct {
	DB          *gorm.DB
	Repos       *Repositories
	Services    *Services
	Controllers *router.Controllers
}

// Repositories 仓库集合
type Repositories struct {
	Retailer repository.RetailerRepository
	VendUser repository.VendUserRepository
}

// Services 服务集合
type Services struct {
	Auth *service.AuthService
	User *service.UserService
}

// ==================== 初始化函数 ====================

// initDatabase 初始化数据库
func initDatabase(cfg *config.Config) *gorm.DB {
	return database.InitDB(cfg.DatabaseDSN,
		&model.VendRetailer{},
		&model.VendUser{},
	)
}

// initDependencies 初始化所有依赖
func initDependencies(db *gorm.DB, cfg *config.Config) *Dependencies {
	// -------- Repo 层 --------
	repos := &Repositories{
		Retailer: repository.NewRetailerRepository(db),
		VendUser: repository.NewVendUserRepository(db),
	}

	// -------- 基础服务 --------
	client := vend.NewClient()
	middleware.SetJWTConfig(&middleware.JWTConfig{
		SecretKey:      cfg.JWTSecret,
		AccessTokenTTL: 2 * time.Hour,
		Issuer:         "vend-sync",
	})

	// -------- 业务服务 --------
	services := &Services{
		Auth: service.NewAuthService(repos.Retailer, client, cfg),
		User: service.NewUserService(repos.Retailer, repos.VendUser, client, cfg.DefaultUserImage),
	}

	// -------- Controller 层 --------
	controllers := &router.Controllers{
		Auth: controller.NewAuthController(services.Auth),
		Sync: controller.NewSyncController(services.User),
	}

	return &Dependencies{
		DB:          db,
		Repos:       repos,
		Services:    services,
		Controllers: controllers,
	}
}

// ==================== 定时任务 ====================

// initTasks 初始化定时任务
func initTasks(deps *Dependencies) {
	// Token 保活
	tokenTask := task.NewTokenTask(deps.Repos.Retailer, deps.Services.Auth)
	tokenTask.Start()

	// 用户镜像周期同步
	userTask := task.NewUserSyncTask(deps.Repos.Retailer, deps.Services.User)
	userTask.Start()

	log.Println("定时任务已启动")
}

// ==================== 服务启动 ====================

// startServer 启动服务
func startServer(r *gin.Engine, cfg *config.Config) {
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// 异步启动服务
	go func() {
		log.Printf("服务启动在 :%s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("服务启动失败: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 优雅关闭，最多等待 30 秒
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("服务强制关闭: %v", err)
	}

	log.Println("服务已退出")
}
