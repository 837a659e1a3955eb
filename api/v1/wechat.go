package v1

import (
	"io"
	"net/http"
	"strings"

	"wxauth/internal/audit"
	"wxauth/internal/service"
	"wxauth/pkg/logger"

	"github.com/gin-gonic/gin"
)

// WechatHandler 微信回调与登录处理器
type WechatHandler struct {
	verifier       service.SignatureVerifier
	dispatcher     service.EventDispatcher
	loginService   service.LoginService
	client         service.WechatClient
	recorder       *audit.Recorder
	enableTestAPIs bool
}

// NewWechatHandler 创建微信处理器实例
func NewWechatHandler(
	verifier service.SignatureVerifier,
	dispatcher service.EventDispatcher,
	loginService service.LoginService,
	client service.WechatClient,
	recorder *audit.Recorder,
	enableTestAPIs bool,
) *WechatHandler {
	return &WechatHandler{
		verifier:       verifier,
		dispatcher:     dispatcher,
		loginService:   loginService,
		client:         client,
		recorder:       recorder,
		enableTestAPIs: enableTestAPIs,
	}
}

// Register 注册路由
func (h *WechatHandler) Register(r *gin.RouterGroup) {
	wechat := r.Group("/wechat")
	{
		wechat.GET("/webhook", h.VerifyWebhook)
		wechat.POST("/webhook", h.HandleWebhook)
		wechat.GET("/auth-url", h.GetAuthURL)
		wechat.POST("/login", h.OAuthLogin)
		if h.enableTestAPIs {
			wechat.POST("/dev/simulate-scan", h.SimulateScan)
		}
	}
}

// VerifyWebhook 微信服务器接入校验（URL有效性验证）
func (h *WechatHandler) VerifyWebhook(c *gin.Context) {
	signature := c.Query("signature")
	timestamp := c.Query("timestamp")
	nonce := c.Query("nonce")
	echostr := c.Query("echostr")

	if signature == "" || timestamp == "" || nonce == "" || echostr == "" {
		c.String(http.StatusBadRequest, "missing parameters")
		return
	}

	if !h.verifier.Verify(signature, timestamp, nonce) {
		logger.Warn("[Webhook] challenge signature verification failed")
		c.String(http.StatusForbidden, "signature verification failed")
		return
	}

	// 原样返回echostr，任何包装都会导致微信侧校验失败
	c.String(http.StatusOK, echostr)
}

// HandleWebhook 微信消息与事件回调入口。
// 无论处理结果如何都以200应答，错误通过应答体表达，
// 避免微信侧因5xx反复重试。
func (h *WechatHandler) HandleWebhook(c *gin.Context) {
	signature := c.Query("signature")
	timestamp := c.Query("timestamp")
	nonce := c.Query("nonce")

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.record(&audit.WebhookEvent{
			Method:  http.MethodPost,
			Outcome: audit.OutcomeMalformed,
			Remark:  "failed to read body",
		})
		c.String(http.StatusOK, "fail")
		return
	}

	if !h.verifier.Verify(signature, timestamp, nonce) {
		logger.Warn("[Webhook] event signature verification failed")
		h.record(&audit.WebhookEvent{
			Method:     http.MethodPost,
			Outcome:    audit.OutcomeRejected,
			RawPayload: string(body),
		})
		c.String(http.StatusOK, "fail")
		return
	}

	ev, err := h.dispatcher.Parse(body)
	if err != nil {
		// 解析失败也要确认收到，否则微信会持续重投同一条消息
		logger.Warn("[Webhook] malformed payload: %v", err)
		h.record(&audit.WebhookEvent{
			Method:     http.MethodPost,
			Outcome:    audit.OutcomeMalformed,
			RawPayload: string(body),
		})
		c.String(http.StatusOK, "success")
		return
	}

	reply := h.dispatcher.Dispatch(c.Request.Context(), ev)

	outcome := audit.OutcomeHandled
	if ev.Type == service.EventUnknown {
		outcome = audit.OutcomeIgnored
	}
	h.record(&audit.WebhookEvent{
		Method:     http.MethodPost,
		MsgType:    ev.Raw.MsgType,
		Event:      ev.Raw.Event,
		EventKey:   ev.EventKey,
		OpenID:     ev.OpenID,
		SceneID:    service.NormalizeSceneKey(ev.EventKey),
		Outcome:    outcome,
		RawPayload: string(body),
	})

	if strings.HasPrefix(reply, "<xml") {
		c.Data(http.StatusOK, "application/xml; charset=utf-8", []byte(reply))
		return
	}
	c.String(http.StatusOK, reply)
}

// GetAuthURL 获取网页授权跳转地址
func (h *WechatHandler) GetAuthURL(c *gin.Context) {
	scope := c.DefaultQuery("scope", "snsapi_userinfo")
	state := c.DefaultQuery("state", "wechat_login")

	authURL, err := h.client.BuildAuthURL(scope, state)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "wechat login is not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"auth_url": authURL})
}

// OAuthLoginRequest 网页授权登录请求
type OAuthLoginRequest struct {
	Code string `json:"code" binding:"required"`
}

// OAuthLogin 网页授权登录
func (h *WechatHandler) OAuthLogin(c *gin.Context) {
	var req OAuthLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	resp, err := h.loginService.OAuthLogin(c.Request.Context(), req.Code)
	if err != nil {
		switch err {
		case service.ErrWechatNotConfigured:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "wechat login is not configured"})
		case service.ErrUserDisabled:
			c.JSON(http.StatusForbidden, gin.H{"error": "user is disabled"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "wechat login failed"})
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

// GetSubscriberInfo 查询关注者信息（需要登录）
func (h *WechatHandler) GetSubscriberInfo(c *gin.Context) {
	openID := c.Query("openid")
	if openID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "openid is required"})
		return
	}

	info, err := h.client.GetSubscriberInfo(c.Request.Context(), openID)
	if err != nil {
		switch err {
		case service.ErrWechatNotConfigured:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "wechat is not configured"})
		default:
			c.JSON(http.StatusBadGateway, gin.H{"error": "failed to fetch subscriber info"})
		}
		return
	}

	c.JSON(http.StatusOK, info)
}

// SimulateScanRequest 模拟扫码请求
type SimulateScanRequest struct {
	SceneValue string `json:"scene_value" binding:"required"`
	OpenID     string `json:"openid"`
}

// SimulateScan 模拟扫码（仅测试环境开放）
func (h *WechatHandler) SimulateScan(c *gin.Context) {
	var req SimulateScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.loginService.SimulateScan(c.Request.Context(), req.OpenID, req.SceneValue); err != nil {
		switch err {
		case service.ErrSceneNotFoundOrExpired:
			c.JSON(http.StatusNotFound, gin.H{"error": "scene not found or expired"})
		case service.ErrSceneAlreadyScanned:
			c.JSON(http.StatusConflict, gin.H{"error": "scene already scanned"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "scan simulated"})
}

// record 审计记录（recorder可为空）
func (h *WechatHandler) record(event *audit.WebhookEvent) {
	if h.recorder != nil {
		h.recorder.Record(event)
	}
}
