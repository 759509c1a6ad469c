package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/auth"
	"github.com/lalith-99/courtyard/internal/middleware"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/service"
	"go.uber.org/zap"
)

// CallHandler exposes call signaling. The media itself never passes
// through this service; clients exchange it peer to peer once answered.
type CallHandler struct {
	calls  *service.CallSignaling
	logger *zap.Logger
}

func NewCallHandler(calls *service.CallSignaling, logger *zap.Logger) *CallHandler {
	return &CallHandler{calls: calls, logger: logger}
}

type initiateCallRequest struct {
	ReceiverID uuid.UUID `json:"receiver_id" binding:"required"`
	IsVideo    bool      `json:"is_video"`
}

// Initiate handles POST /v1/channels/:id/calls
func (h *CallHandler) Initiate(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req initiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	call, err := h.calls.Initiate(c.Request.Context(), middleware.GetPrincipal(c), channelID, req.ReceiverID, req.IsVideo)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, call)
}

// History handles GET /v1/channels/:id/calls
func (h *CallHandler) History(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	page, ok := pageQuery(c)
	if !ok {
		return
	}

	calls, err := h.calls.History(c.Request.Context(), middleware.GetPrincipal(c), channelID, page)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, calls)
}

// GetByID handles GET /v1/calls/:id
func (h *CallHandler) GetByID(c *gin.Context) {
	h.transition(c, h.calls.Get)
}

// Answer handles POST /v1/calls/:id/answer
func (h *CallHandler) Answer(c *gin.Context) {
	h.transition(c, h.calls.Answer)
}

// End handles POST /v1/calls/:id/end
func (h *CallHandler) End(c *gin.Context) {
	h.transition(c, h.calls.End)
}

// Reject handles POST /v1/calls/:id/reject
func (h *CallHandler) Reject(c *gin.Context) {
	h.transition(c, h.calls.Reject)
}

// transition runs one per-call operation. They all share a shape: a call
// id in the path, the call in the response.
func (h *CallHandler) transition(c *gin.Context, op func(context.Context, auth.Principal, uuid.UUID) (*models.Call, error)) {
	callID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	call, err := op(c.Request.Context(), middleware.GetPrincipal(c), callID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, call)
}
