package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/apperr"
	"github.com/lalith-99/courtyard/internal/middleware"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/repository"
	"go.uber.org/zap"
)

// UserHandler handles user-related operations.
type UserHandler struct {
	users  repository.UserRepository
	logger *zap.Logger
}

func NewUserHandler(users repository.UserRepository, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// meResponse is the caller's profile plus the building and role the
// current token is scoped to.
type meResponse struct {
	*models.User
	TenantID *uuid.UUID        `json:"tenant_id"`
	Role     models.TenantRole `json:"role"`
}

// GetMe handles GET /v1/users/me
//
// Why /users/me and not /users/:id?
//   - /users/me is idiomatic for "get my own profile". The client doesn't
//     need to know its own UUID.
func (h *UserHandler) GetMe(c *gin.Context) {
	p := middleware.GetPrincipal(c)

	user, err := h.users.GetByID(c.Request.Context(), p.UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	// A user in the JWT but not in the DB was deleted after the token was
	// issued. 404, not 500.
	if user == nil {
		writeError(c, h.logger, apperr.NotFound("user not found"))
		return
	}

	c.JSON(http.StatusOK, meResponse{User: user, TenantID: p.TenantID, Role: p.Role})
}
