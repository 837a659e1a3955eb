package repository

import (
	"context"
	"time"

	"wxauth/internal/audit"
	"wxauth/pkg/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	webhookEventCollection = "webhook_events"
)

// WebhookEventRepository 微信回调事件归档仓储接口
type WebhookEventRepository interface {
	// Insert 写入一条事件记录
	Insert(ctx context.Context, event *audit.WebhookEvent) error
	// ListRecent 按时间倒序获取最近的事件记录
	ListRecent(ctx context.Context, limit int64) ([]*audit.WebhookEvent, error)
	// CountSince 统计某时刻之后的事件数量
	CountSince(ctx context.Context, since time.Time) (int64, error)
}

// webhookEventRepository 微信回调事件归档仓储实现
type webhookEventRepository struct {
	mongo *database.MongoClient
}

// NewWebhookEventRepository 创建事件归档仓储实例
func NewWebhookEventRepository(mongo *database.MongoClient) WebhookEventRepository {
	return &webhookEventRepository{mongo: mongo}
}

// Insert 写入一条事件记录
func (r *webhookEventRepository) Insert(ctx context.Context, event *audit.WebhookEvent) error {
	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = time.Now()
	}
	collection := r.mongo.Collection(webhookEventCollection)
	_, err := collection.InsertOne(ctx, event)
	return err
}

// ListRecent 按时间倒序获取最近的事件记录
func (r *webhookEventRepository) ListRecent(ctx context.Context, limit int64) ([]*audit.WebhookEvent, error) {
	collection := r.mongo.Collection(webhookEventCollection)

	opts := options.Find().
		SetSort(bson.M{"received_at": -1}).
		SetLimit(limit)

	cursor, err := collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var events []*audit.WebhookEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// CountSince 统计某时刻之后的事件数量
func (r *webhookEventRepository) CountSince(ctx context.Context, since time.Time) (int64, error) {
	collection := r.mongo.Collection(webhookEventCollection)
	return collection.CountDocuments(ctx, bson.M{"received_at": bson.M{"$gte": since}})
}
