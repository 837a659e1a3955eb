package v1

import (
	"net/http"
	"strconv"
	"time"

	"wxauth/internal/audit"
	"wxauth/internal/repository"
	"wxauth/pkg/api"
	"wxauth/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// AuditHandler 回调事件观测处理器
type AuditHandler struct {
	server   *audit.WebSocketServer
	events   repository.WebhookEventRepository
	upgrader websocket.Upgrader
}

// NewAuditHandler 创建观测处理器实例
func NewAuditHandler(server *audit.WebSocketServer, events repository.WebhookEventRepository) *AuditHandler {
	return &AuditHandler{
		server: server,
		events: events,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ListRecentEvents 获取最近的回调事件记录
func (h *AuditHandler) ListRecentEvents(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if err != nil || limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	events, err := h.events.ListRecent(c.Request.Context(), limit)
	if err != nil {
		api.Error(c, http.StatusInternalServerError, "failed to query webhook events", err)
		return
	}

	api.Success(c, gin.H{"events": events, "count": len(events)})
}

// GetEventStats 获取最近24小时的回调事件数量
func (h *AuditHandler) GetEventStats(c *gin.Context) {
	since := time.Now().Add(-24 * time.Hour)
	count, err := h.events.CountSince(c.Request.Context(), since)
	if err != nil {
		api.Error(c, http.StatusInternalServerError, "failed to count webhook events", err)
		return
	}

	api.Success(c, gin.H{
		"count_24h": count,
		"clients":   h.server.GetClientCount(),
	})
}

// StreamEvents 升级到WebSocket，实时推送回调事件
func (h *AuditHandler) StreamEvents(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("Failed to upgrade websocket: %v", err)
		return
	}

	h.server.AddClient(conn)
}
