package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/apperr"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/repository"
)

// Principal is the resolved identity for one operation. It is passed
// explicitly into every service call; nothing reads it from ambient state.
type Principal struct {
	UserID   uuid.UUID
	TenantID *uuid.UUID
	Role     models.TenantRole
	Email    string
}

// HasTenant reports whether a building is selected.
func (p Principal) HasTenant() bool {
	return p.TenantID != nil
}

// IsSuperAdmin reports platform-level administration rights.
func (p Principal) IsSuperAdmin() bool {
	return p.Role == models.TenantRoleSuperAdmin
}

// Resolver turns signed credentials into Principals and issues
// building-scoped credentials.
type Resolver struct {
	secret  string
	ttl     time.Duration
	users   repository.UserRepository
	tenants repository.TenantRepository
}

func NewResolver(secret string, ttl time.Duration, users repository.UserRepository, tenants repository.TenantRepository) *Resolver {
	return &Resolver{secret: secret, ttl: ttl, users: users, tenants: tenants}
}

// ResolveToken validates raw and returns the Principal it names. A malformed,
// expired or unknown-user credential fails with an authentication error.
func (r *Resolver) ResolveToken(ctx context.Context, raw string) (Principal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, apperr.Authentication("missing credential")
	}

	claims, err := ParseToken(raw, r.secret)
	if err != nil {
		return Principal{}, apperr.Authentication("invalid or expired token")
	}

	userID := claims.UserID
	if userID == uuid.Nil {
		if claims.Email == "" {
			return Principal{}, apperr.Authentication("credential names no user")
		}
		u, err := r.users.GetByEmail(ctx, claims.Email)
		if err != nil {
			return Principal{}, fmt.Errorf("resolve user by email: %w", err)
		}
		if u == nil {
			return Principal{}, apperr.Authentication("credential names an unknown user")
		}
		userID = u.ID
	}

	return Principal{
		UserID:   userID,
		TenantID: claims.TenantID,
		Role:     models.TenantRole(claims.Role),
		Email:    claims.Email,
	}, nil
}

// WithTenant fills in a tenant when the credential selected none, using the
// user's first active building membership. This is the lower-confidence
// path; clients with several buildings should call SelectTenant instead.
// The Principal is returned unchanged when the user has no membership.
func (r *Resolver) WithTenant(ctx context.Context, p Principal) (Principal, error) {
	if p.TenantID != nil {
		return p, nil
	}

	memberships, err := r.tenants.ListMemberships(ctx, p.UserID)
	if err != nil {
		return p, fmt.Errorf("list tenant memberships: %w", err)
	}
	for _, m := range memberships {
		if !m.IsActive {
			continue
		}
		tenantID := m.TenantID
		p.TenantID = &tenantID
		if !p.IsSuperAdmin() {
			p.Role = m.Role
		}
		return p, nil
	}
	return p, nil
}

// ListTenants returns the caller's building memberships.
func (r *Resolver) ListTenants(ctx context.Context, p Principal) ([]models.TenantMembership, error) {
	return r.tenants.ListMemberships(ctx, p.UserID)
}

// SelectTenant issues a fresh credential scoped to tenantID. The caller must
// be an active member of that building unless they are a super admin.
func (r *Resolver) SelectTenant(ctx context.Context, p Principal, tenantID uuid.UUID) (string, Principal, error) {
	role := p.Role
	if !p.IsSuperAdmin() {
		m, err := r.tenants.GetMembership(ctx, tenantID, p.UserID)
		if err != nil {
			return "", Principal{}, fmt.Errorf("get tenant membership: %w", err)
		}
		if m == nil || !m.IsActive {
			return "", Principal{}, apperr.Authorization(apperr.CodeForbidden, "not a member of this building")
		}
		role = m.Role
	}

	scoped := Principal{UserID: p.UserID, TenantID: &tenantID, Role: role, Email: p.Email}
	token, err := r.Issue(scoped)
	if err != nil {
		return "", Principal{}, err
	}
	return token, scoped, nil
}

// Issue signs a credential for p.
func (r *Resolver) Issue(p Principal) (string, error) {
	return GenerateToken(p.UserID, p.TenantID, string(p.Role), p.Email, r.secret, r.ttl)
}
