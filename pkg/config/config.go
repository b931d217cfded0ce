package config

import (
	"log"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config 应用全部配置
// VendKey / VendSecret 故意不标 required：
// 缺失时在使用点报配置错误，而不是启动时拦截 (同步功能不依赖它们)
type Config struct {
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	DatabaseDSN string `env:"DATABASE_DSN" envDefault:"host=127.0.0.1 user=vend password=vend dbname=vend_sync port=5432 sslmode=disable"`

	// Vend 应用凭证
	VendKey    string `env:"VEND_KEY"`
	VendSecret string `env:"VEND_SECRET"`

	// CallbackURL 必须与 Vend 后台填写的完全一致
	CallbackURL string `env:"VEND_CALLBACK_URL" envDefault:"http://127.0.0.1:8080/vend/auth/complete/"`

	// 同步用户缺图片时的兜底头像，显式传给资源定义，不走全局默认
	DefaultUserImage string `env:"VEND_DEFAULT_USER_IMAGE" envDefault:""`

	// 管理 API 的 JWT 签名密钥
	JWTSecret string `env:"JWT_SECRET" envDefault:"vend-sync-secret-change-in-production"`
}

// Load 加载配置
// .env 文件可选，主要给本地开发用
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("未找到 .env 文件，直接读取环境变量")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
