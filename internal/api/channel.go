package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/middleware"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/service"
	"go.uber.org/zap"
)

// ChannelHandler holds the dependencies needed to handle channel requests.
//
// Why a struct with methods, not standalone functions?
//   - Each handler method needs access to the service and logger.
//   - A struct gives us a clean place to hold those dependencies.
//   - In NewRouter: channels := api.NewChannelHandler(svc.Channels, logger)
//     then: v1.POST("/channels", channels.Create)
type ChannelHandler struct {
	channels *service.ChannelDirectory
	logger   *zap.Logger
}

func NewChannelHandler(channels *service.ChannelDirectory, logger *zap.Logger) *ChannelHandler {
	return &ChannelHandler{channels: channels, logger: logger}
}

// createChannelRequest is the expected JSON body for POST /v1/channels.
//
// Why a separate struct and not reuse models.Channel?
//   - The API request is NOT the same shape as the DB row.
//   - The row has id, tenant_id, creator_id and timestamps, which the
//     client should NEVER control. The tenant comes from the token.
type createChannelRequest struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Type        string      `json:"type" binding:"required"`
	IsPrivate   bool        `json:"is_private"`
	MemberIDs   []uuid.UUID `json:"member_ids"`
}

// Create handles POST /v1/channels
func (h *ChannelHandler) Create(c *gin.Context) {
	var req createChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	// c.Request.Context() passes the HTTP request's context down. If the
	// client disconnects, this context cancels and the DB query stops.
	ch, err := h.channels.CreateChannel(c.Request.Context(), middleware.GetPrincipal(c), service.CreateChannelInput{
		Name:        req.Name,
		Description: req.Description,
		Type:        models.ChannelType(req.Type),
		IsPrivate:   req.IsPrivate,
		MemberIDs:   req.MemberIDs,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	// 201 Created, not 200 OK: a new resource was created.
	c.JSON(http.StatusCreated, ch)
}

type directChannelRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// Direct handles POST /v1/channels/direct
//
// Returns 201 when the channel was created and 200 when the pair already
// had one. Either way the body is the one direct channel for the pair.
func (h *ChannelHandler) Direct(c *gin.Context) {
	var req directChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ch, created, err := h.channels.GetOrCreateDirectChannel(c.Request.Context(), middleware.GetPrincipal(c), req.UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, ch)
}

// List handles GET /v1/channels?limit=&offset=
func (h *ChannelHandler) List(c *gin.Context) {
	page, ok := pageQuery(c)
	if !ok {
		return
	}

	channels, err := h.channels.GetAccessibleChannels(c.Request.Context(), middleware.GetPrincipal(c), page)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	// Repositories return make([]..., 0), so this serializes to [] when
	// there are no channels, never null.
	c.JSON(http.StatusOK, channels)
}

// GetByID handles GET /v1/channels/:id
func (h *ChannelHandler) GetByID(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	ch, err := h.channels.GetChannel(c.Request.Context(), middleware.GetPrincipal(c), channelID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

// updateChannelRequest uses pointers so "not sent" and "set to zero value"
// are different things.
type updateChannelRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	IsPrivate   *bool   `json:"is_private"`
}

// Update handles PATCH /v1/channels/:id
func (h *ChannelHandler) Update(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req updateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	ch, err := h.channels.UpdateChannel(c.Request.Context(), middleware.GetPrincipal(c), channelID, service.UpdateChannelInput{
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

// Close handles POST /v1/channels/:id/close
func (h *ChannelHandler) Close(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	ch, err := h.channels.CloseChannel(c.Request.Context(), middleware.GetPrincipal(c), channelID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}
