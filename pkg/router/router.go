package router

import (
	"net/http"

	v1 "wxauth/api/v1"
	"wxauth/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Router 路由管理器
type Router struct {
	engine         *gin.Engine
	authMiddleware *middleware.AuthMiddleware
	authHandler    *v1.AuthHandler
	wechatHandler  *v1.WechatHandler
	qrcodeHandler  *v1.QRCodeHandler
	auditHandler   *v1.AuditHandler
}

// NewRouter 创建路由管理器实例
func NewRouter(
	engine *gin.Engine,
	authMiddleware *middleware.AuthMiddleware,
	authHandler *v1.AuthHandler,
	wechatHandler *v1.WechatHandler,
	qrcodeHandler *v1.QRCodeHandler,
	auditHandler *v1.AuditHandler,
) *Router {
	return &Router{
		engine:         engine,
		authMiddleware: authMiddleware,
		authHandler:    authHandler,
		wechatHandler:  wechatHandler,
		qrcodeHandler:  qrcodeHandler,
		auditHandler:   auditHandler,
	}
}

// RegisterRoutes 注册所有路由
func (r *Router) RegisterRoutes() {
	// 健康检查
	r.engine.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	// API v1
	api := r.engine.Group("/api/v1")
	{
		// 微信回调与登录路由（回调由签名机制保护，不经过认证中间件）
		r.wechatHandler.Register(api)
		// 登录二维码路由
		r.qrcodeHandler.Register(api)
		// 令牌相关路由
		r.authHandler.Register(api)
		// 回调事件观测路由
		r.registerAuditRoutes(api)
		// 用户资源路由
		r.registerUserRoutes(api)
	}
}

// registerAuditRoutes 注册回调事件观测路由
func (r *Router) registerAuditRoutes(group *gin.RouterGroup) {
	if r.auditHandler == nil {
		return
	}
	events := group.Group("/webhook-events")
	events.Use(r.authMiddleware.HandleAuth())
	{
		events.GET("", r.auditHandler.ListRecentEvents)
		events.GET("/stats", r.auditHandler.GetEventStats)
		events.GET("/ws", r.auditHandler.StreamEvents)
	}
}

// registerUserRoutes 注册用户资源路由
func (r *Router) registerUserRoutes(group *gin.RouterGroup) {
	users := group.Group("/users")
	users.Use(r.authMiddleware.HandleAuth())
	{
		users.GET("/me", r.authHandler.GetCurrentUser)
	}

	// 关注者信息查询走微信API，同样要求登录
	wechat := group.Group("/wechat")
	wechat.Use(r.authMiddleware.HandleAuth())
	{
		wechat.GET("/user-info", r.wechatHandler.GetSubscriberInfo)
	}
}
