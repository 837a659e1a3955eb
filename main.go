package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"wxauth/internal/boot"
	"wxauth/pkg/logger"
	"wxauth/pkg/redis"
	"wxauth/pkg/version"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"
)

// checkFatalErr 用于统一处理错误检查并中断流程。
func checkFatalErr(err error, message string) {
	if err != nil {
		logger.Fatal("%s: %v", message, err)
	}
}

func main() {
	// 设置构建时间（Build Time）
	version.BuildTime = time.Now().Format(time.RFC3339)

	cmd := &cli.Command{
		Name:    "wxauth",
		Usage:   "微信扫码登录与身份关联服务",
		Version: version.GetVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			configPath := cmd.String("config")

			// 如果未指定配置文件，尝试从默认位置加载
			if configPath == "" {
				possiblePaths := []string{
					"config.yaml",
					filepath.Join("config", "config.yaml"),
				}
				for _, path := range possiblePaths {
					if _, err := os.Stat(path); err == nil {
						configPath = path
						break
					}
				}
				if configPath == "" {
					return fmt.Errorf("未指定配置文件且未找到默认配置文件(config.yaml或config/config.yaml)")
				}
			}

			return run(ctx, configPath)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}
}

// run 启动应用程序的主要逻辑
func run(ctx context.Context, configPath string) error {
	// 加载配置文件（Configuration）
	cfg, err := boot.InitConfig(configPath)
	checkFatalErr(err, "Failed to load config")

	// 根据配置设置 Gin 的运行模式（Gin Mode）
	gin.SetMode(cfg.Server.Mode)

	// 初始化数据库连接（PostgreSQL）
	db, err := boot.InitDB(&cfg.Database)
	checkFatalErr(err, "Failed to connect to database")

	sqlDB, err := db.DB()
	checkFatalErr(err, "Failed to get underlying *sql.DB")
	defer sqlDB.Close()

	// 初始化 MongoDB 连接（MongoDB）
	mongodb, err := boot.InitMongo(&cfg.MongoDB)
	checkFatalErr(err, "Failed to connect to MongoDB")
	defer mongodb.Close(context.Background())

	// 初始化 Redis 客户端（Redis）
	redisClient, err := redis.NewClient(&redis.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	checkFatalErr(err, "Failed to connect to Redis")

	// 初始化仓储层（Repositories）
	repos := boot.InitRepositories(db, mongodb)

	// 初始化服务层（Services）
	services := boot.InitServices(cfg, repos, redisClient)

	// 初始化回调观测组件（Audit Components）
	auditComponents := boot.InitAudit(repos)

	// 启动 WebSocket 广播循环（WebSocket Server）
	go auditComponents.WebSocketServer.Start()

	// 启动过期场景清理任务（Scene Sweeper）
	boot.StartSceneSweeper(ctx, repos, &cfg.WeChat)

	// 初始化 HTTP 处理器（Handlers）
	handlers := boot.InitHandlers(services, repos, auditComponents, cfg)

	// 初始化 Gin 引擎和路由（Router）
	r := gin.Default()
	_ = boot.InitRouter(r, handlers, services, cfg)

	// 统计相关系统状态信息（System Status）
	userCount, err := repos.UserRepo.Count(context.Background())
	if err == nil {
		logger.Info("Registered users: %d", userCount)
	}
	if !services.WechatClient.IsConfigured() {
		logger.Warn("[WeChat] appid/secret not configured, provider calls will fail")
	}
	if cfg.WeChat.EnableTestAPIs {
		logger.Warn("[WeChat] test APIs are enabled, do not use in production")
	}

	// 启动服务器（Server）
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Starting server on %s (version %s)", addr, version.GetVersion())
	if err := r.Run(addr); err != nil {
		logger.Fatal("Failed to start server: %v", err)
	}

	return nil
}
