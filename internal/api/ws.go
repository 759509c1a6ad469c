package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lalith-99/courtyard/internal/auth"
	"github.com/lalith-99/courtyard/internal/middleware"
	"github.com/lalith-99/courtyard/internal/realtime"
	"go.uber.org/zap"
)

// Browser clients pass the token as the second Sec-WebSocket-Protocol
// value. The handshake must echo "bearer" back or the browser drops the
// connection.
var websocketUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	Subprotocols:    []string{"bearer"},
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler upgrades authenticated requests into realtime connections.
type WSHandler struct {
	hub        *realtime.Hub
	resolver   *auth.Resolver
	sendBuffer int
	logger     *zap.Logger
}

func NewWSHandler(hub *realtime.Hub, resolver *auth.Resolver, sendBuffer int, logger *zap.Logger) *WSHandler {
	return &WSHandler{hub: hub, resolver: resolver, sendBuffer: sendBuffer, logger: logger}
}

// Serve handles GET /v1/ws
//
// Why authenticate here and not with AuthMiddleware?
//   - Browsers cannot set an Authorization header on a websocket upgrade,
//     so the token may arrive as a subprotocol or a query parameter.
//   - A bad token must be refused with a plain 401 BEFORE the upgrade.
//     Once upgraded, there is no HTTP status left to send.
//
// The connection is bound to the user and building of the token for its
// whole life. Switching buildings means reconnecting with the new token.
func (h *WSHandler) Serve(c *gin.Context) {
	ctx := c.Request.Context()

	p, err := h.resolver.ResolveToken(ctx, middleware.TokenFromRequest(c.Request))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	p, err = h.resolver.WithTenant(ctx, p)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	conn, err := websocketUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written an HTTP error response.
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	h.logger.Debug("websocket connected",
		zap.String("user_id", p.UserID.String()),
		zap.Int("connections", h.hub.ConnectionCount()+1),
	)
	client := realtime.NewClient(h.hub, conn, p.UserID, p.TenantID, h.sendBuffer, h.logger)
	client.Serve(ctx)
	h.logger.Debug("websocket disconnected",
		zap.String("user_id", p.UserID.String()),
		zap.Bool("user_still_online", h.hub.IsConnected(p.UserID)),
		zap.Int("connections", h.hub.ConnectionCount()),
	)
}
