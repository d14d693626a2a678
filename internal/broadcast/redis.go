package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisPublisher is the subset of *redis.Client used here.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisPublisher forwards payloads to Redis pub/sub, one channel per topic,
// so other processes can relay market updates.
type RedisPublisher struct {
	rdb     redisPublisher
	timeout time.Duration
}

// NewRedisPublisher creates a publisher bounded by timeout per message.
func NewRedisPublisher(rdb redisPublisher, timeout time.Duration) *RedisPublisher {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &RedisPublisher{rdb: rdb, timeout: timeout}
}

func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.rdb.Publish(ctx, topic, data).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}
