package task

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"vend_sync_v1_202608/internal/model"
	"vend_sync_v1_202608/internal/repository"
	"vend_sync_v1_202608/internal/service"
)

// TokenTask Token 保活定时任务
// 周期找出即将过期的租户，用 refresh_token 续期
type TokenTask struct {
	RetailerRepo repository.RetailerRepository
	AuthService  *service.AuthService
	Cron         *cron.Cron

	// 控制并发刷新的数量，防止把 Token 端点打满
	concurrencyLimit int
	sleepTime        time.Duration
}

func NewTokenTask(retailerRepo repository.RetailerRepository, authService *service.AuthService) *TokenTask {
	return &TokenTask{
		RetailerRepo:     retailerRepo,
		AuthService:      authService,
		Cron:             cron.New(cron.WithSeconds()), // 支持秒级控制
		concurrencyLimit: 20,
		sleepTime:        50 * time.Millisecond, // 每个协程启动间隔，平滑波峰
	}
}

// Start 启动定时任务
func (t *TokenTask) Start() {
	// 首次执行
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		log.Println("[TokenTask] 服务启动，正在执行首次 Token 检查...")
		t.refreshJob(ctx)
	}()

	// 每 40 分钟检查一次
	_, err := t.Cron.AddFunc("0 0/40 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		t.refreshJob(ctx)
	})
	if err != nil {
		log.Fatalf("[TokenTask] 无法启动定时任务: %v", err)
	}

	t.Cron.Start()
	log.Println("[TokenTask] Token 保活任务已启动 (每40分钟检查一次)")
}

// Stop 停止任务
func (t *TokenTask) Stop() {
	ctx := t.Cron.Stop()
	<-ctx.Done()
	log.Println("[TokenTask] 已停止")
}

// refreshJob 自动刷新逻辑
func (t *TokenTask) refreshJob(ctx context.Context) {
	retailers, err := t.RetailerRepo.FindExpiring(ctx)
	if err != nil {
		log.Printf("[TokenTask] 过期租户查询失败: %v", err)
		return
	}
	if len(retailers) == 0 {
		return
	}

	// 信号量通道限流
	sem := make(chan struct{}, t.concurrencyLimit)
	var wg sync.WaitGroup

	log.Printf("[TokenTask] 开始刷新 %d 个租户的 Token，并发上限: %d", len(retailers), t.concurrencyLimit)

	for _, retailer := range retailers {
		select {
		case <-ctx.Done():
			log.Println("[TokenTask] 任务超时停止")
			return
		default:
		}

		sem <- struct{}{}
		wg.Add(1)

		// 平滑波峰
		time.Sleep(t.sleepTime)

		go func(r model.VendRetailer) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := t.AuthService.RefreshAccessToken(ctx, &r); err != nil {
				// 日志仅记录，不中断其他协程
				log.Printf("[TokenTask] 租户 [%s] 刷新失败: %v", r.Name, err)
			}
		}(retailer)
	}

	wg.Wait()
	log.Println("[TokenTask] 本轮 Token 刷新任务完成")
}
