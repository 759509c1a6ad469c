package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/courtyard/internal/auth"
	"github.com/lalith-99/courtyard/internal/middleware"
	"github.com/lalith-99/courtyard/internal/realtime"
	"github.com/lalith-99/courtyard/internal/repository"
	"github.com/lalith-99/courtyard/internal/service"
	"go.uber.org/zap"
)

// Deps is everything the HTTP surface needs.
type Deps struct {
	Services *service.Services
	Resolver *auth.Resolver
	Users    repository.UserRepository
	Hub      *realtime.Hub
	Logger   *zap.Logger

	// Health reports storage reachability. Nil means always healthy.
	Health func(ctx context.Context) error

	WSSendBuffer int
}

// NewRouter builds the gin engine with every /v1 route registered.
func NewRouter(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(middleware.RequestLogger(logger.Named("http")), gin.Recovery())

	auths := NewAuthHandler(d.Users, d.Resolver, logger)
	users := NewUserHandler(d.Users, logger)
	channels := NewChannelHandler(d.Services.Channels, logger)
	members := NewMembershipHandler(d.Services.Members, logger)
	messages := NewMessageHandler(d.Services.Messages, logger)
	calls := NewCallHandler(d.Services.Calls, logger)
	notifications := NewNotificationHandler(d.Services.Notifications, logger)
	ws := NewWSHandler(d.Hub, d.Resolver, d.WSSendBuffer, logger.Named("ws"))

	// Health check is PUBLIC, no auth required.
	// Load balancers hit this to check if the server is alive. If it
	// required auth, the LB couldn't health-check us.
	r.GET("/v1/health", func(c *gin.Context) {
		if d.Health != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := d.Health(ctx); err != nil {
				logger.Warn("health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/v1/auth/signup", auths.Signup)
	r.POST("/v1/auth/login", auths.Login)

	// The websocket authenticates itself; see WSHandler.Serve.
	r.GET("/v1/ws", ws.Serve)

	// All other /v1/* routes require a valid JWT.
	// The middleware runs BEFORE any handler in this group.
	// If the token is missing/invalid, the request never reaches the handler.
	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(d.Resolver))

	v1.POST("/auth/select-building", auths.SelectBuilding)
	v1.GET("/auth/buildings", auths.ListBuildings)
	v1.GET("/users/me", users.GetMe)

	v1.POST("/channels", channels.Create)
	v1.GET("/channels", channels.List)
	v1.POST("/channels/direct", channels.Direct)
	v1.GET("/channels/:id", channels.GetByID)
	v1.PATCH("/channels/:id", channels.Update)
	v1.POST("/channels/:id/close", channels.Close)

	v1.GET("/channels/:id/members", members.List)
	v1.POST("/channels/:id/members", members.Add)
	v1.PATCH("/channels/:id/members/:userId", members.Update)
	v1.DELETE("/channels/:id/members/:userId", members.Remove)
	v1.POST("/channels/:id/join", members.Join)
	v1.POST("/channels/:id/leave", members.Leave)

	v1.POST("/channels/:id/messages", messages.Create)
	v1.GET("/channels/:id/messages", messages.List)
	v1.GET("/channels/:id/media", messages.Media)
	v1.PATCH("/messages/:id", messages.Edit)
	v1.DELETE("/messages/:id", messages.Delete)

	v1.POST("/channels/:id/calls", calls.Initiate)
	v1.GET("/channels/:id/calls", calls.History)
	v1.GET("/calls/:id", calls.GetByID)
	v1.POST("/calls/:id/answer", calls.Answer)
	v1.POST("/calls/:id/end", calls.End)
	v1.POST("/calls/:id/reject", calls.Reject)

	v1.GET("/notifications", notifications.List)
	v1.GET("/notifications/unread-count", notifications.UnreadCount)
	v1.POST("/notifications/read-all", notifications.MarkAllRead)
	v1.POST("/notifications/:id/read", notifications.MarkRead)
	v1.POST("/devices", notifications.RegisterDevice)
	v1.DELETE("/devices/:token", notifications.UnregisterDevice)

	return r
}
