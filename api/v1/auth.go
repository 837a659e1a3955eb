package v1

import (
	"net/http"
	"strings"

	"wxauth/internal/model"
	"wxauth/internal/repository"
	"wxauth/internal/service"

	"github.com/gin-gonic/gin"
)

// AuthHandler 令牌处理器
type AuthHandler struct {
	tokenService service.TokenService
	userRepo     repository.UserRepository
}

// NewAuthHandler 创建令牌处理器实例
func NewAuthHandler(tokenService service.TokenService, userRepo repository.UserRepository) *AuthHandler {
	return &AuthHandler{
		tokenService: tokenService,
		userRepo:     userRepo,
	}
}

// Register 注册路由
func (h *AuthHandler) Register(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/refresh", h.RefreshToken)
		auth.POST("/logout", h.Logout)
		auth.GET("/validate", h.ValidateToken)
	}
}

// bearerToken 从Authorization头提取Bearer令牌
func bearerToken(c *gin.Context) (string, bool) {
	auth := c.GetHeader("Authorization")
	if auth == "" {
		return "", false
	}
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", false
	}
	return auth[len("Bearer "):], true
}

// tokenErrorResponse 将令牌错误映射为HTTP响应
func tokenErrorResponse(c *gin.Context, err error) {
	switch err {
	case service.ErrInvalidToken:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
	case service.ErrTokenExpired:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token expired"})
	case service.ErrTokenRevoked:
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token operation failed"})
	}
}

// RefreshTokenRequest 刷新令牌请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshToken 刷新访问令牌。刷新令牌可以放在请求体或Authorization头
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	refreshToken := req.RefreshToken
	if refreshToken == "" {
		token, ok := bearerToken(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing refresh token"})
			return
		}
		refreshToken = token
	}

	pair, err := h.tokenService.RefreshToken(c.Request.Context(), refreshToken)
	if err != nil {
		tokenErrorResponse(c, err)
		return
	}

	c.JSON(http.StatusOK, pair)
}

// Logout 登出：吊销访问令牌并删除刷新令牌
func (h *AuthHandler) Logout(c *gin.Context) {
	accessToken, ok := bearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing access token"})
		return
	}

	claims, err := h.tokenService.ValidateToken(c.Request.Context(), accessToken, model.AccessToken)
	if err != nil {
		tokenErrorResponse(c, err)
		return
	}

	if err := h.tokenService.RevokeToken(c.Request.Context(), accessToken, model.AccessToken); err != nil {
		tokenErrorResponse(c, err)
		return
	}

	// 同时作废刷新令牌，避免登出后还能续签
	if err := h.tokenService.RevokeUserRefreshToken(c.Request.Context(), claims.UserID); err != nil {
		tokenErrorResponse(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ValidateToken 验证访问令牌并返回用户信息
func (h *AuthHandler) ValidateToken(c *gin.Context) {
	accessToken, ok := bearerToken(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing access token"})
		return
	}

	claims, err := h.tokenService.ValidateToken(c.Request.Context(), accessToken, model.AccessToken)
	if err != nil {
		tokenErrorResponse(c, err)
		return
	}

	user, err := h.userRepo.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, user.SimpleInfo())
}

// GetCurrentUser 获取当前登录用户的完整信息（需认证中间件）
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	userID := c.GetString("user_id")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	user, err := h.userRepo.GetByID(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	c.JSON(http.StatusOK, user)
}
