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

// MembershipHandler handles channel membership operations.
type MembershipHandler struct {
	members *service.MembershipLedger
	logger  *zap.Logger
}

func NewMembershipHandler(members *service.MembershipLedger, logger *zap.Logger) *MembershipHandler {
	return &MembershipHandler{members: members, logger: logger}
}

type addMemberRequest struct {
	UserID uuid.UUID `json:"user_id" binding:"required"`
}

// Add handles POST /v1/channels/:id/members
//
// Why a separate "join" endpoint instead of reusing this one?
//   - Semantics. "Join" is a user action on themselves. Adding a member is
//     a manager action on someone else, with different rules:
//     POST /channels/:id/members (owner/admin adds someone)
//     POST /channels/:id/join (user adds themselves to an open channel)
func (h *MembershipHandler) Add(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	m, err := h.members.AddMember(c.Request.Context(), middleware.GetPrincipal(c), channelID, req.UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Remove handles DELETE /v1/channels/:id/members/:userId
func (h *MembershipHandler) Remove(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}

	if err := h.members.RemoveMember(c.Request.Context(), middleware.GetPrincipal(c), channelID, userID); err != nil {
		writeError(c, h.logger, err)
		return
	}

	// 204 No Content: success, no body to return.
	c.Status(http.StatusNoContent)
}

type updateMemberRequest struct {
	Role     string `json:"role" binding:"required"`
	CanWrite *bool  `json:"can_write" binding:"required"`
}

// Update handles PATCH /v1/channels/:id/members/:userId
func (h *MembershipHandler) Update(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}
	userID, ok := uuidParam(c, "userId")
	if !ok {
		return
	}
	var req updateMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	m, err := h.members.UpdateMemberPermissions(c.Request.Context(), middleware.GetPrincipal(c), channelID, userID, models.MemberRole(req.Role), *req.CanWrite)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Join handles POST /v1/channels/:id/join
func (h *MembershipHandler) Join(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	m, err := h.members.JoinChannel(c.Request.Context(), middleware.GetPrincipal(c), channelID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// Leave handles POST /v1/channels/:id/leave
func (h *MembershipHandler) Leave(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	if err := h.members.LeaveChannel(c.Request.Context(), middleware.GetPrincipal(c), channelID); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// List handles GET /v1/channels/:id/members
func (h *MembershipHandler) List(c *gin.Context) {
	channelID, ok := uuidParam(c, "id")
	if !ok {
		return
	}

	members, err := h.members.ListMembers(c.Request.Context(), middleware.GetPrincipal(c), channelID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, members)
}
