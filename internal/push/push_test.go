package push

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func TestDevicesKeyIsPerUser(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	if devicesKey(a) == devicesKey(b) {
		t.Fatal("keys must differ per user")
	}
	if !strings.HasPrefix(devicesKey(a), "devices:") {
		t.Fatalf("key = %q", devicesKey(a))
	}
}

// A Redis that refuses connections must surface as an error, never a panic
// or a hang; the notification worker logs it and moves on.
func TestRedisUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := NewRedisQueue(client, "push:test").Send(ctx, Message{DeviceToken: "t", Title: "x"}); err == nil {
		t.Fatal("expected enqueue error")
	}
	if _, err := NewRedisDevices(client).Tokens(ctx, uuid.New()); err == nil {
		t.Fatal("expected tokens error")
	}
}

func TestMemoryDevices(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDevices()
	userID := uuid.New()

	d.Register(ctx, userID, "b")
	d.Register(ctx, userID, "a")
	d.Register(ctx, userID, "a")

	tokens, _ := d.Tokens(ctx, userID)
	if len(tokens) != 2 || tokens[0] != "a" {
		t.Fatalf("tokens = %v", tokens)
	}

	d.Unregister(ctx, userID, "a")
	tokens, _ = d.Tokens(ctx, userID)
	if len(tokens) != 1 || tokens[0] != "b" {
		t.Fatalf("tokens after unregister = %v", tokens)
	}

	other, _ := d.Tokens(ctx, uuid.New())
	if len(other) != 0 {
		t.Fatalf("unknown user tokens = %v", other)
	}
}
