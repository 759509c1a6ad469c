package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one websocket connection, bound for its lifetime to the user
// and tenant that authenticated it.
//
// gorilla/websocket supports one concurrent reader and one concurrent
// writer, so each client runs exactly one of each.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	userID   uuid.UUID
	tenantID *uuid.UUID
	logger   *zap.Logger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient wraps conn. bufferSize bounds the outbound queue.
func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, tenantID *uuid.UUID, bufferSize int, logger *zap.Logger) *Client {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		hub:      hub,
		conn:     conn,
		userID:   userID,
		tenantID: tenantID,
		logger:   logger,
		send:     make(chan []byte, bufferSize),
		done:     make(chan struct{}),
	}
}

// Serve registers the client and pumps frames until the connection drops
// or ctx is cancelled.
func (c *Client) Serve(ctx context.Context) {
	c.hub.Register(c)
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	go c.writePump()

	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	c.readPump()
}

// enqueue hands data to the write pump without blocking. It returns false
// when the buffer is full.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close tears the connection down. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// readPump drains inbound frames. Clients do not send commands over the
// socket; reading is what notices a dead peer and processes pongs.
func (c *Client) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read", zap.String("user_id", c.userID.String()), zap.Error(err))
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.Close()
				return
			}
		}
	}
}
