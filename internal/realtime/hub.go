package realtime

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hub tracks live connections by user.
//
// Deliver never blocks: each client has a bounded outbound buffer, and a
// client whose buffer is full is disconnected instead of stalling the
// sender. The client reconnects and reloads history by message id.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[*Client]struct{}
	logger  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[uuid.UUID]map[*Client]struct{}),
		logger:  logger,
	}
}

// Register adds c to the registry.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.userID]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.userID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes c. Safe to call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
}

// IsConnected reports whether userID has at least one live connection.
func (h *Hub) IsConnected(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, set := range h.clients {
		n += len(set)
	}
	return n
}

// Deliver enqueues env on every connection of userID and returns how many
// connections took it.
//
// When tenantID is non-nil only connections bound to that tenant receive
// it; a connection authenticated for another building never sees the
// event. A nil tenantID (public channels) reaches every connection.
func (h *Hub) Deliver(userID uuid.UUID, tenantID *uuid.UUID, env Envelope) int {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("marshal envelope", zap.String("type", string(env.Type)), zap.Error(err))
		return 0
	}

	var (
		slow      []*Client
		delivered int
	)
	h.mu.RLock()
	for c := range h.clients[userID] {
		if tenantID != nil && (c.tenantID == nil || *c.tenantID != *tenantID) {
			continue
		}
		if c.enqueue(data) {
			delivered++
		} else {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("dropping slow websocket client",
			zap.String("user_id", userID.String()),
			zap.String("type", string(env.Type)),
		)
		h.Unregister(c)
		c.Close()
	}
	return delivered
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[uuid.UUID]map[*Client]struct{})
	h.mu.Unlock()

	for _, set := range all {
		for c := range set {
			c.Close()
		}
	}
}
