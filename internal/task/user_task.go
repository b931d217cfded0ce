package task

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"vend_sync_v1_202608/internal/repository"
	"vend_sync_v1_202608/internal/service"
	syncengine "vend_sync_v1_202608/internal/sync"
)

// UserSyncTask 用户镜像周期同步任务
// 逐租户顺序拉取用户集合并落库，单租户失败只记日志不影响其他租户
type UserSyncTask struct {
	RetailerRepo repository.RetailerRepository
	UserService  *service.UserService
	cron         *cron.Cron
}

// NewUserSyncTask 创建用户同步任务
func NewUserSyncTask(retailerRepo repository.RetailerRepository, userService *service.UserService) *UserSyncTask {
	return &UserSyncTask{
		RetailerRepo: retailerRepo,
		UserService:  userService,
		cron:         cron.New(cron.WithSeconds()),
	}
}

// Start 启动定时任务
func (t *UserSyncTask) Start() {
	// 首次执行（延迟 30 秒，等服务就绪）
	go func() {
		time.Sleep(30 * time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		log.Println("[UserSyncTask] 执行首次用户同步...")
		t.syncAllRetailers(ctx)
	}()

	// 每 6 小时执行
	_, err := t.cron.AddFunc("0 0 */6 * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		t.syncAllRetailers(ctx)
	})
	if err != nil {
		log.Printf("[UserSyncTask] 定时任务启动失败: %v", err)
		return
	}

	t.cron.Start()
	log.Println("[UserSyncTask] 已启动 (每6小时)")
}

// Stop 停止任务
func (t *UserSyncTask) Stop() {
	ctx := t.cron.Stop()
	<-ctx.Done()
	log.Println("[UserSyncTask] 已停止")
}

// SyncNow 手动触发一轮全量同步
func (t *UserSyncTask) SyncNow(ctx context.Context) {
	t.syncAllRetailers(ctx)
}

// syncAllRetailers 同步所有已授权租户的用户
func (t *UserSyncTask) syncAllRetailers(ctx context.Context) {
	retailers, err := t.RetailerRepo.ListAuthorized(ctx)
	if err != nil {
		log.Printf("[UserSyncTask] 获取租户列表失败: %v", err)
		return
	}
	if len(retailers) == 0 {
		log.Println("[UserSyncTask] 无已授权租户需要同步")
		return
	}

	for _, retailer := range retailers {
		select {
		case <-ctx.Done():
			log.Println("[UserSyncTask] 任务超时停止")
			return
		default:
		}

		results, err := t.UserService.SyncUsers(ctx, retailer.ID)
		if err != nil {
			// 集合同步是部分提交语义：失败前落库的条目保持提交
			log.Printf("[UserSyncTask] 租户 [%s] 同步失败 (已完成 %d 条): %v", retailer.Name, len(results), err)
			continue
		}

		var created, updated int
		for _, r := range results {
			switch r.Outcome {
			case syncengine.OutcomeCreated:
				created++
			case syncengine.OutcomeUpdated:
				updated++
			}
		}
		log.Printf("[UserSyncTask] 租户 [%s] 同步完成: %d 条 (新建 %d, 更新 %d)", retailer.Name, len(results), created, updated)
	}
}
