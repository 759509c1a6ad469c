package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/courtyard/internal/middleware"
	"github.com/lalith-99/courtyard/internal/service"
	"go.uber.org/zap"
)

// NotificationHandler serves the caller's inbox and push device tokens.
type NotificationHandler struct {
	notifications *service.NotificationFanout
	logger        *zap.Logger
}

func NewNotificationHandler(notifications *service.NotificationFanout, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// List handles GET /v1/notifications?unread=true&limit=&offset=
func (h *NotificationHandler) List(c *gin.Context) {
	page, ok := pageQuery(c)
	if !ok {
		return
	}
	unreadOnly := c.Query("unread") == "true"

	items, err := h.notifications.List(c.Request.Context(), middleware.GetPrincipal(c), unreadOnly, page)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// UnreadCount handles GET /v1/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	count, err := h.notifications.UnreadCount(c.Request.Context(), middleware.GetPrincipal(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// MarkRead handles POST /v1/notifications/:id/read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	notificationID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	item, err := h.notifications.MarkRead(c.Request.Context(), middleware.GetPrincipal(c), notificationID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// MarkAllRead handles POST /v1/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	changed, err := h.notifications.MarkAllRead(c.Request.Context(), middleware.GetPrincipal(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": changed})
}

type registerDeviceRequest struct {
	Token string `json:"token" binding:"required"`
}

// RegisterDevice handles POST /v1/devices
func (h *NotificationHandler) RegisterDevice(c *gin.Context) {
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if err := h.notifications.RegisterDevice(c.Request.Context(), middleware.GetPrincipal(c), req.Token); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UnregisterDevice handles DELETE /v1/devices/:token
func (h *NotificationHandler) UnregisterDevice(c *gin.Context) {
	if err := h.notifications.UnregisterDevice(c.Request.Context(), middleware.GetPrincipal(c), c.Param("token")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
