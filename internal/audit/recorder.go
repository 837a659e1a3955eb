package audit

import (
	"context"
	"time"

	"wxauth/pkg/logger"
)

// EventStore 事件落盘能力，由仓储层实现
type EventStore interface {
	Insert(ctx context.Context, event *WebhookEvent) error
}

// Recorder 回调事件记录器：异步归档到存储并推送给实时观测客户端。
// 记录失败只打日志，不影响回调处理流程。
type Recorder struct {
	store  EventStore
	server *WebSocketServer
}

// NewRecorder 创建事件记录器
func NewRecorder(store EventStore, server *WebSocketServer) *Recorder {
	return &Recorder{
		store:  store,
		server: server,
	}
}

// Record 记录一次回调事件
func (r *Recorder) Record(event *WebhookEvent) {
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}

	if r.server != nil {
		r.server.Broadcast(event)
	}

	if r.store == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := r.store.Insert(ctx, event); err != nil {
			logger.Warn("[Webhook] failed to archive event: %v", err)
		}
	}()
}
