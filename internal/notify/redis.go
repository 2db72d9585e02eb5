// Package notify publishes new-mail notifications for downstream
// consumers.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vdavid/mailvault/internal/sink"
)

// DefaultChannel is the pub/sub channel consumers subscribe to.
const DefaultChannel = "email"

// Notification is the JSON payload published for every stored artifact.
type Notification struct {
	User    string `json:"user"`
	Folder  string `json:"folder"`
	UID     uint32 `json:"uid"`
	Fogname string `json:"fogname"`
}

// RedisPublisher announces stored artifacts on a Redis pub/sub channel.
// It implements sink.Observer.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher connects to Redis at addr and publishes to channel.
// An empty channel selects DefaultChannel.
func NewRedisPublisher(ctx context.Context, addr, password string, db int, channel string) (*RedisPublisher, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach Redis at %s: %w", addr, err)
	}
	return &RedisPublisher{client: client, channel: channel}, nil
}

// ArtifactStored publishes one notification. Consumers that miss the
// message can still recover it from the metadata records.
func (p *RedisPublisher) ArtifactStored(ctx context.Context, event sink.ArtifactEvent) error {
	payload, err := json.Marshal(Notification{
		User:    event.Identity.User,
		Folder:  event.Identity.Box,
		UID:     event.Identity.UID,
		Fogname: event.Fogname,
	})
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
