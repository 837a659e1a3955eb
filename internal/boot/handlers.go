package boot

import (
	v1 "wxauth/api/v1"
	"wxauth/internal/audit"
	"wxauth/pkg/config"
	"wxauth/pkg/middleware"
	"wxauth/pkg/router"

	"github.com/gin-gonic/gin"
)

// Handlers 包含所有HTTP处理器
type Handlers struct {
	AuthHandler   *v1.AuthHandler
	WechatHandler *v1.WechatHandler
	QRCodeHandler *v1.QRCodeHandler
	AuditHandler  *v1.AuditHandler
}

// InitHandlers 初始化所有HTTP处理器
func InitHandlers(services *Services, repos *Repositories, auditComponents *AuditComponents, cfg *config.Config) *Handlers {
	return &Handlers{
		AuthHandler: v1.NewAuthHandler(services.TokenService, repos.UserRepo),
		WechatHandler: v1.NewWechatHandler(
			services.SignatureVerifier,
			services.EventDispatcher,
			services.LoginService,
			services.WechatClient,
			auditComponents.Recorder,
			cfg.WeChat.EnableTestAPIs,
		),
		QRCodeHandler: v1.NewQRCodeHandler(services.LoginService),
		AuditHandler:  v1.NewAuditHandler(auditComponents.WebSocketServer, repos.WebhookEventRepo),
	}
}

// InitRouter 初始化路由
func InitRouter(engine *gin.Engine, handlers *Handlers, services *Services, cfg *config.Config) *router.Router {
	// 初始化认证中间件
	authMiddleware := middleware.NewAuthMiddleware(services.TokenService, cfg.Server.AuthEnabled)

	// 跨域中间件
	engine.Use(middleware.CORSMiddleware())

	r := router.NewRouter(
		engine,
		authMiddleware,
		handlers.AuthHandler,
		handlers.WechatHandler,
		handlers.QRCodeHandler,
		handlers.AuditHandler,
	)
	r.RegisterRoutes()
	return r
}

// AuditComponents 包含回调观测相关组件
type AuditComponents struct {
	WebSocketServer *audit.WebSocketServer
	Recorder        *audit.Recorder
}

// InitAudit 初始化回调观测组件
func InitAudit(repos *Repositories) *AuditComponents {
	wsServer := audit.NewWebSocketServer()
	recorder := audit.NewRecorder(repos.WebhookEventRepo, wsServer)

	return &AuditComponents{
		WebSocketServer: wsServer,
		Recorder:        recorder,
	}
}
