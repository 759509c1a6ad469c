package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/middleware"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/service"
	"go.uber.org/zap"
)

type MessageHandler struct {
	messages *service.MessageRouter
	logger   *zap.Logger
}

func NewMessageHandler(messages *service.MessageRouter, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{messages: messages, logger: logger}
}

// Content is optional: an attachment alone is a valid message.
type createMessageRequest struct {
	Content      string     `json:"content"`
	Type         string     `json:"type"`
	ReplyToID    *int64     `json:"reply_to_id"`
	AttachmentID *uuid.UUID `json:"attachment_id"`
}

// Create handles POST /v1/channels/:id/messages
func (h *MessageHandler) Create(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	msg, err := h.messages.Send(c.Request.Context(), middleware.GetPrincipal(c), service.SendMessageInput{
		ChannelID:    channelID,
		Content:      req.Content,
		Type:         models.MessageType(req.Type),
		ReplyToID:    req.ReplyToID,
		AttachmentID: req.AttachmentID,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// List handles GET /v1/channels/:id/messages?before=123&limit=50
func (h *MessageHandler) List(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	before, limit, ok := cursorQuery(c)
	if !ok {
		return
	}

	messages, err := h.messages.List(c.Request.Context(), middleware.GetPrincipal(c), channelID, before, limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

// Media handles GET /v1/channels/:id/media?types=image,file&before=&limit=
func (h *MessageHandler) Media(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	before, limit, ok := cursorQuery(c)
	if !ok {
		return
	}

	var types []models.MessageType
	if raw := c.Query("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			types = append(types, models.MessageType(strings.TrimSpace(t)))
		}
	}

	messages, err := h.messages.ListSharedMedia(c.Request.Context(), middleware.GetPrincipal(c), channelID, types, before, limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

type editMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// Edit handles PATCH /v1/messages/:id
func (h *MessageHandler) Edit(c *gin.Context) {
	messageID, ok := messageParam(c)
	if !ok {
		return
	}
	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	msg, err := h.messages.Edit(c.Request.Context(), middleware.GetPrincipal(c), messageID, req.Content)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

// Delete handles DELETE /v1/messages/:id
//
// Responds with the tombstone rather than 204 so clients can replace the
// message in place.
func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, ok := messageParam(c)
	if !ok {
		return
	}

	msg, err := h.messages.Delete(c.Request.Context(), middleware.GetPrincipal(c), messageID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func messageParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id < 1 {
		badRequest(c, "invalid message id")
		return 0, false
	}
	return id, true
}
