package v1

import (
	"errors"
	"net/http"

	"wxauth/internal/repository"
	"wxauth/internal/service"

	"github.com/gin-gonic/gin"
)

// QRCodeHandler 登录二维码处理器
type QRCodeHandler struct {
	loginService service.LoginService
}

// NewQRCodeHandler 创建登录二维码处理器实例
func NewQRCodeHandler(loginService service.LoginService) *QRCodeHandler {
	return &QRCodeHandler{loginService: loginService}
}

// Register 注册路由
func (h *QRCodeHandler) Register(r *gin.RouterGroup) {
	qrcode := r.Group("/wechat/qr-code")
	{
		qrcode.POST("/temp", h.CreateTempQRCode)
		qrcode.POST("/permanent", h.CreatePermanentQRCode)
		qrcode.GET("/status/:scene_value", h.GetQRCodeStatus)
	}
}

// CreateQRCodeRequest 创建二维码请求
type CreateQRCodeRequest struct {
	SceneValue    string `json:"scene_value"`
	ExpireSeconds int    `json:"expire_seconds"`
}

// CreateTempQRCode 创建临时登录二维码
func (h *QRCodeHandler) CreateTempQRCode(c *gin.Context) {
	var req CreateQRCodeRequest
	// 请求体可以为空，场景值与有效期都有默认值
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.loginService.BeginLogin(c.Request.Context(), req.SceneValue, req.ExpireSeconds)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWechatNotConfigured):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "wechat login is not configured"})
		case errors.Is(err, repository.ErrSceneExists):
			c.JSON(http.StatusConflict, gin.H{"error": "scene value already in use"})
		case errors.Is(err, service.ErrProviderUnavailable):
			c.JSON(http.StatusBadGateway, gin.H{"error": "wechat api unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// CreatePermanentQRCodeRequest 创建永久二维码请求
type CreatePermanentQRCodeRequest struct {
	SceneValue string `json:"scene_value" binding:"required"`
}

// CreatePermanentQRCode 创建永久场景二维码
func (h *QRCodeHandler) CreatePermanentQRCode(c *gin.Context) {
	var req CreatePermanentQRCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.loginService.CreatePermanentQR(c.Request.Context(), req.SceneValue)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrWechatNotConfigured):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "wechat login is not configured"})
		case errors.Is(err, service.ErrQRCodeUnauthorized):
			c.JSON(http.StatusBadRequest, gin.H{"error": "account has no permanent qrcode permission"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "wechat api unavailable"})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetQRCodeStatus 轮询二维码状态。场景不存在与已过期统一按expired返回，
// 始终200，前端只根据status字段驱动状态机。
func (h *QRCodeHandler) GetQRCodeStatus(c *gin.Context) {
	sceneValue := c.Param("scene_value")
	if sceneValue == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scene_value is required"})
		return
	}

	resp, err := h.loginService.Poll(c.Request.Context(), sceneValue)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query qrcode status"})
		return
	}

	c.JSON(http.StatusOK, resp)
}
