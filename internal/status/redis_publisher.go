package status

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher pushes progress snapshots to a Redis pub/sub channel so
// external dashboards can subscribe instead of polling the control API.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher connects to addr and returns a publisher bound to channel.
func NewRedisPublisher(addr, password string, db int, channel string) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisPublisher{client: client, channel: channel}
}

// Publish encodes the snapshot as JSON and publishes it on the channel.
func (p *RedisPublisher) Publish(ctx context.Context, snapshot Progress) error {
	if p == nil || p.client == nil {
		return nil
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("redis publisher: encode snapshot: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publisher: publish: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (p *RedisPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
