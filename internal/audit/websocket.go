package audit

import (
	"encoding/json"
	"sync"
	"time"

	"wxauth/pkg/logger"

	"github.com/gorilla/websocket"
)

// WebSocketMessage 推送给客户端的消息封装
type WebSocketMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocketServer 回调事件实时推送服务器
type WebSocketServer struct {
	mu        sync.RWMutex
	clients   map[*websocket.Conn]struct{}
	broadcast chan *WebhookEvent
}

// NewWebSocketServer 创建WebSocket服务器
func NewWebSocketServer() *WebSocketServer {
	return &WebSocketServer{
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan *WebhookEvent, 100), // 缓冲区大小为100
	}
}

// Start 启动广播循环
func (s *WebSocketServer) Start() {
	for event := range s.broadcast {
		s.broadcastEvent(event)
	}
}

// AddClient 添加新的WebSocket客户端
func (s *WebSocketServer) AddClient(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients[conn] = struct{}{}

	// 启动客户端读取协程
	go s.readPump(conn)
}

// RemoveClient 移除WebSocket客户端
func (s *WebSocketServer) RemoveClient(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clients[conn]; ok {
		delete(s.clients, conn)
		conn.Close()
	}
}

// Broadcast 广播回调事件，通道满时丢弃（推送仅用于观测，不阻塞回调处理）
func (s *WebSocketServer) Broadcast(event *WebhookEvent) {
	select {
	case s.broadcast <- event:
	default:
	}
}

// broadcastEvent 向所有客户端推送事件
func (s *WebSocketServer) broadcastEvent(event *WebhookEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	message := WebSocketMessage{
		Type:    "webhook_event",
		Payload: event,
	}

	data, err := json.Marshal(message)
	if err != nil {
		logger.Error("Failed to marshal websocket message: %v", err)
		return
	}

	for conn := range s.clients {
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Warn("Failed to write to websocket: %v", err)
			go s.RemoveClient(conn)
		}
	}
}

// readPump 处理来自客户端的消息（主要用于检测连接状态）
func (s *WebSocketServer) readPump(conn *websocket.Conn) {
	defer s.RemoveClient(conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket error: %v", err)
			}
			break
		}
	}
}

// GetClientCount 获取当前连接的客户端数量
func (s *WebSocketServer) GetClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
