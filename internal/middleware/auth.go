package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/apperr"
	"github.com/lalith-99/courtyard/internal/auth"
)

// ContextKeyPrincipal is the gin.Context key the resolved auth.Principal
// is stored under.
//
// Why one key holding the whole Principal instead of user_id/tenant_id keys?
//   - Handlers hand the Principal straight to the service layer. Keeping it
//     as one value means nobody rebuilds it from loose pieces and forgets
//     the role or the tenant.
const ContextKeyPrincipal = "principal"

// AuthMiddleware returns a Gin middleware that resolves the bearer token
// into a Principal.
//
// If the token is missing or invalid it aborts with 401 and the handler
// never runs. When the token selected no building, the resolver falls back
// to the user's first active building membership.
func AuthMiddleware(resolver *auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			abortWithError(c, err)
			return
		}

		p, err := resolver.ResolveToken(c.Request.Context(), raw)
		if err != nil {
			abortWithError(c, err)
			return
		}
		p, err = resolver.WithTenant(c.Request.Context(), p)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(ContextKeyPrincipal, p)
		c.Next()
	}
}

// TokenFromRequest extracts a credential for a websocket handshake.
//
// Browsers cannot set headers on a websocket upgrade, so besides the
// Authorization header we accept "Sec-WebSocket-Protocol: bearer, <token>"
// and a ?token= query parameter, in that order.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if raw, err := bearerToken(header); err == nil {
			return raw
		}
	}

	for _, value := range r.Header.Values("Sec-WebSocket-Protocol") {
		parts := strings.Split(value, ",")
		for i := 0; i+1 < len(parts); i++ {
			if strings.EqualFold(strings.TrimSpace(parts[i]), "bearer") {
				return strings.TrimSpace(parts[i+1])
			}
		}
	}

	return r.URL.Query().Get("token")
}

// bearerToken splits "Bearer eyJhbG..." into the token part.
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", apperr.Authentication("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", apperr.Authentication("invalid authorization format, expected: Bearer <token>")
	}
	return parts[1], nil
}

func abortWithError(c *gin.Context, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"kind": "internal", "code": "INTERNAL", "message": "internal error"},
		})
		return
	}
	c.AbortWithStatusJSON(apperr.HTTPStatus(e.Kind), gin.H{
		"error": gin.H{"kind": e.Kind, "code": e.Code, "message": e.Message},
	})
}

// GetPrincipal returns the Principal set by AuthMiddleware. The zero value
// is returned when the middleware did not run; it carries uuid.Nil and
// fails every membership check downstream.
func GetPrincipal(c *gin.Context) auth.Principal {
	val, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return auth.Principal{}
	}
	p, ok := val.(auth.Principal)
	if !ok {
		return auth.Principal{}
	}
	return p
}

func GetUserID(c *gin.Context) uuid.UUID {
	return GetPrincipal(c).UserID
}
