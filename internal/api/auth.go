package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/apperr"
	"github.com/lalith-99/courtyard/internal/auth"
	"github.com/lalith-99/courtyard/internal/middleware"
	"github.com/lalith-99/courtyard/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler handles signup and login, the only PUBLIC endpoints, plus
// building selection for authenticated users.
// Signup and login don't go through AuthMiddleware because the user doesn't
// have a JWT yet (that's what these endpoints produce).
type AuthHandler struct {
	users    repository.UserRepository
	resolver *auth.Resolver
	logger   *zap.Logger
}

func NewAuthHandler(users repository.UserRepository, resolver *auth.Resolver, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, resolver: resolver, logger: logger}
}

type signupRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	DisplayName string `json:"display_name" binding:"required"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type selectBuildingRequest struct {
	TenantID string `json:"tenant_id" binding:"required"`
}

// authResponse is what signup, login and select-building return.
// The client stores this token and sends it as "Authorization: Bearer <token>"
// on every subsequent request. TenantID is the building the token is scoped
// to, nil until the user belongs to one.
type authResponse struct {
	Token    string     `json:"token"`
	TenantID *uuid.UUID `json:"tenant_id"`
}

// Signup handles POST /v1/auth/signup
//
// Buildings are provisioned elsewhere, so a fresh account has no building.
// The first token is unscoped; it picks up a building on the next login
// once the user has been added to one.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := h.users.GetByEmail(c.Request.Context(), email)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if existing != nil {
		writeError(c, h.logger, apperr.StateConflict(apperr.CodeConflict, "email already registered"))
		return
	}

	// bcrypt.DefaultCost = 10, and bcrypt salts each hash itself:
	// two users with the same password get different hashes.
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	user, err := h.users.Create(c.Request.Context(), email, strings.TrimSpace(req.DisplayName), string(hash))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	token, err := h.resolver.Issue(auth.Principal{UserID: user.ID, Email: user.Email})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	h.logger.Info("user signed up", zap.String("user_id", user.ID.String()))
	c.JSON(http.StatusCreated, authResponse{Token: token})
}

// Login handles POST /v1/auth/login
//
// The token is scoped to the user's first active building. Users with
// several buildings switch with /v1/auth/select-building.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	// Generic error for both "user not found" and "wrong password".
	// NEVER say which one it was: that tells an attacker which emails
	// are registered.
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(c, h.logger, apperr.Authentication("invalid email or password"))
		return
	}

	p, err := h.resolver.WithTenant(c.Request.Context(), auth.Principal{UserID: user.ID, Email: user.Email})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	token, err := h.resolver.Issue(p)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, authResponse{Token: token, TenantID: p.TenantID})
}

// SelectBuilding handles POST /v1/auth/select-building
func (h *AuthHandler) SelectBuilding(c *gin.Context) {
	var req selectBuildingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		badRequest(c, "invalid tenant_id")
		return
	}

	token, p, err := h.resolver.SelectTenant(c.Request.Context(), middleware.GetPrincipal(c), tenantID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, authResponse{Token: token, TenantID: p.TenantID})
}

// ListBuildings handles GET /v1/auth/buildings
func (h *AuthHandler) ListBuildings(c *gin.Context) {
	memberships, err := h.resolver.ListTenants(c.Request.Context(), middleware.GetPrincipal(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, memberships)
}
