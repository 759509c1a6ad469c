// Package push hands notifications to the mobile push gateway and keeps
// the per-user device token registry.
//
// Both live in Redis. The gateway is a separate process that pops the
// outbound list and talks to APNs/FCM; this service only enqueues.
package push

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Message is one push for one device.
type Message struct {
	DeviceToken string     `json:"device_token"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Type        string     `json:"type"`
	ChannelID   *uuid.UUID `json:"channel_id,omitempty"`
}

// Pusher delivers a push. Delivery is best effort; callers log and move on.
type Pusher interface {
	Send(ctx context.Context, msg Message) error
}

// DeviceRegistry maps users to the device tokens their apps registered.
type DeviceRegistry interface {
	Register(ctx context.Context, userID uuid.UUID, token string) error
	Unregister(ctx context.Context, userID uuid.UUID, token string) error
	Tokens(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// RedisQueue pushes JSON-encoded messages onto a Redis list.
type RedisQueue struct {
	client redis.Cmdable
	key    string
}

var _ Pusher = (*RedisQueue)(nil)

func NewRedisQueue(client redis.Cmdable, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode push: %w", err)
	}
	if err := q.client.RPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("enqueue push: %w", err)
	}
	return nil
}

// RedisDevices stores each user's tokens in a Redis set.
type RedisDevices struct {
	client redis.Cmdable
}

var _ DeviceRegistry = (*RedisDevices)(nil)

func NewRedisDevices(client redis.Cmdable) *RedisDevices {
	return &RedisDevices{client: client}
}

func devicesKey(userID uuid.UUID) string {
	return "devices:" + userID.String()
}

func (d *RedisDevices) Register(ctx context.Context, userID uuid.UUID, token string) error {
	if err := d.client.SAdd(ctx, devicesKey(userID), token).Err(); err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	return nil
}

func (d *RedisDevices) Unregister(ctx context.Context, userID uuid.UUID, token string) error {
	if err := d.client.SRem(ctx, devicesKey(userID), token).Err(); err != nil {
		return fmt.Errorf("unregister device: %w", err)
	}
	return nil
}

func (d *RedisDevices) Tokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	tokens, err := d.client.SMembers(ctx, devicesKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	return tokens, nil
}
