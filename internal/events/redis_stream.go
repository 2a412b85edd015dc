package events

import (
	"context"
	"fmt"

	rediscommon "chata-intake/common/redis"

	"github.com/go-redis/redis/v8"
)

const (
	// DefaultStream stream key for assessment events
	DefaultStream = "chata:events"
	// DefaultStreamMaxLen approximate cap on stream length
	DefaultStreamMaxLen = 10000
)

// RedisStream appends events to a Redis stream as {type, data, timestamp}
type RedisStream struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewRedisStream(client *redis.Client, stream string, maxLen int64) *RedisStream {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisStream{client: client, stream: stream, maxLen: maxLen}
}

func (p *RedisStream) Publish(ctx context.Context, e Event) error {
	if _, err := rediscommon.PublishJSONToStream(ctx, p.client, p.stream, p.maxLen, e.Type, e); err != nil {
		return fmt.Errorf("failed to publish %s to stream %s: %w", e.Type, p.stream, err)
	}
	return nil
}
