package push

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryDevices is a DeviceRegistry for local runs without Redis.
type MemoryDevices struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]map[string]struct{}
}

var _ DeviceRegistry = (*MemoryDevices)(nil)

func NewMemoryDevices() *MemoryDevices {
	return &MemoryDevices{tokens: make(map[uuid.UUID]map[string]struct{})}
}

func (d *MemoryDevices) Register(ctx context.Context, userID uuid.UUID, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.tokens[userID]
	if !ok {
		set = make(map[string]struct{})
		d.tokens[userID] = set
	}
	set[token] = struct{}{}
	return nil
}

func (d *MemoryDevices) Unregister(ctx context.Context, userID uuid.UUID, token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tokens[userID], token)
	return nil
}

func (d *MemoryDevices) Tokens(ctx context.Context, userID uuid.UUID) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.tokens[userID]))
	for t := range d.tokens[userID] {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

// Discard drops every message. Used when no gateway is configured.
type Discard struct{}

func (Discard) Send(context.Context, Message) error { return nil }
