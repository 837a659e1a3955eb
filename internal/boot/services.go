package boot

import (
	"context"
	"time"

	"wxauth/internal/service"
	"wxauth/pkg/config"
	"wxauth/pkg/logger"
	"wxauth/pkg/redis"
)

// Services 包含所有服务实例
type Services struct {
	TokenService      service.TokenService
	WechatClient      service.WechatClient
	SignatureVerifier service.SignatureVerifier
	LoginService      service.LoginService
	EventDispatcher   service.EventDispatcher
}

// InitServices 初始化所有服务实例
func InitServices(cfg *config.Config, repos *Repositories, redisClient *redis.Client) *Services {
	// 初始化Token服务
	tokenService := service.NewTokenService(
		redisClient,
		cfg.JWT.Secret,
		time.Duration(cfg.JWT.AccessTokenExpire)*time.Hour,
		time.Duration(cfg.JWT.RefreshTokenExpire)*time.Second,
	)

	// 初始化微信API客户端
	wechatClient := service.NewWechatClient(&cfg.WeChat, redisClient)

	// 初始化签名校验服务
	signatureVerifier := service.NewSignatureVerifier(cfg.WeChat.Token)

	// 初始化扫码登录服务
	loginService := service.NewLoginService(
		&cfg.WeChat,
		wechatClient,
		repos.SceneRepo,
		repos.UserRepo,
		tokenService,
	)

	// 初始化回调事件分发器
	eventDispatcher := service.NewEventDispatcher(loginService, wechatClient)

	return &Services{
		TokenService:      tokenService,
		WechatClient:      wechatClient,
		SignatureVerifier: signatureVerifier,
		LoginService:      loginService,
		EventDispatcher:   eventDispatcher,
	}
}

// StartSceneSweeper 启动过期场景清理任务。
// 读时淘汰已保证正确性，清理只负责回收存储空间。
func StartSceneSweeper(ctx context.Context, repos *Repositories, cfg *config.WeChatConfig) {
	if cfg.SweepInterval <= 0 {
		return
	}
	interval := time.Duration(cfg.SweepInterval) * time.Second

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := repos.SceneRepo.DeleteExpired(ctx)
				if err != nil {
					logger.Warn("[QRCode] failed to sweep expired scenes: %v", err)
					continue
				}
				if deleted > 0 {
					logger.Info("[QRCode] swept %d expired login scenes", deleted)
				}
			}
		}
	}()
}
