package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gosuda/tenantd/internal/store/redis"
)

// RedisChannel publishes events to the tenant's Redis pub/sub channel, where
// the websocket hub picks them up for connected admin clients.
type RedisChannel struct {
	client *redis.Client
}

func NewRedisChannel(client *redis.Client) *RedisChannel {
	return &RedisChannel{client: client}
}

func (r *RedisChannel) Name() string { return "redis" }

func (r *RedisChannel) Send(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("notify.RedisChannel.Send: marshal: %w", err)
	}

	err = r.client.Publish(ctx, redis.TenantChannel(event.TenantID), payload)
	if err != nil {
		return fmt.Errorf("notify.RedisChannel.Send: %w", err)
	}

	return nil
}
