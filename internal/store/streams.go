package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// NotificationStream 通知事件流（前端实时推送消费）
const NotificationStream = "fieldops:notifications"

// Publisher 事件发布接口
type Publisher interface {
	PublishJSON(ctx context.Context, stream string, data any) (string, error)
}

type StreamPublisher struct {
	c *redis.Client
}

func NewStreamPublisher(c *redis.Client) *StreamPublisher { return &StreamPublisher{c: c} }

// PublishJSON 序列化 data 并 XADD 到指定 stream
func (p *StreamPublisher) PublishJSON(ctx context.Context, stream string, data any) (string, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return p.c.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data":      string(jsonBytes),
			"timestamp": time.Now().Unix(),
		},
	}).Result()
}
