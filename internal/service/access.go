package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/apperr"
	"github.com/lalith-99/courtyard/internal/auth"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/repository"
)

func requireTenant(p auth.Principal) (uuid.UUID, error) {
	if !p.HasTenant() {
		return uuid.Nil, apperr.TenancyRequired("select a building first")
	}
	return *p.TenantID, nil
}

// checkTenant rejects access to a channel of another building. Public
// channels carry no tenant and pass for everyone.
func checkTenant(p auth.Principal, ch *models.Channel) error {
	if ch.TenantID == nil {
		return nil
	}
	if !p.HasTenant() {
		return apperr.TenancyRequired("select a building first")
	}
	if !ch.SameTenant(p.TenantID) {
		return apperr.TenancyMismatch("channel belongs to another building")
	}
	return nil
}

func loadChannel(ctx context.Context, store repository.Store, channelID uuid.UUID) (*models.Channel, error) {
	ch, err := store.Channels().GetByID(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	if ch == nil {
		return nil, apperr.NotFound("channel not found")
	}
	return ch, nil
}

// channelFor loads a channel and applies the tenant check.
func channelFor(ctx context.Context, store repository.Store, p auth.Principal, channelID uuid.UUID) (*models.Channel, error) {
	ch, err := loadChannel(ctx, store, channelID)
	if err != nil {
		return nil, err
	}
	if err := checkTenant(p, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

// activeMembership returns nil, nil when the user has no active row.
func activeMembership(ctx context.Context, store repository.Store, channelID, userID uuid.UUID) (*models.ChannelMember, error) {
	m, err := store.Memberships().Get(ctx, channelID, userID)
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	if m == nil || !m.IsActive {
		return nil, nil
	}
	return m, nil
}

func requireMember(ctx context.Context, store repository.Store, channelID, userID uuid.UUID) (*models.ChannelMember, error) {
	m, err := activeMembership(ctx, store, channelID, userID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.Authorization(apperr.CodeNotMember, "not a member of this channel")
	}
	return m, nil
}

// requireManager allows channel owners and admins, and platform super admins.
// The returned membership is nil for a super admin without a row.
func requireManager(ctx context.Context, store repository.Store, p auth.Principal, channelID uuid.UUID) (*models.ChannelMember, error) {
	m, err := activeMembership(ctx, store, channelID, p.UserID)
	if err != nil {
		return nil, err
	}
	if m != nil && m.Role.CanManage() {
		return m, nil
	}
	if p.IsSuperAdmin() {
		return m, nil
	}
	return nil, apperr.Authorization(apperr.CodeForbidden, "channel owner or admin role required")
}

// inTenant reports whether userID is an active member of the building.
func inTenant(ctx context.Context, store repository.Store, tenantID, userID uuid.UUID) (bool, error) {
	m, err := store.Tenants().GetMembership(ctx, tenantID, userID)
	if err != nil {
		return false, fmt.Errorf("get tenant membership: %w", err)
	}
	return m != nil && m.IsActive, nil
}

// openToTenant reports whether members of the channel's building may see
// and join it without an invitation.
func openToTenant(ch *models.Channel) bool {
	if ch.IsPrivate || !ch.IsActive {
		return false
	}
	switch ch.Type {
	case models.ChannelTypeBuilding, models.ChannelTypeBuildingGroup, models.ChannelTypePublic:
		return true
	}
	return false
}

// canView is the read rule for channel metadata and member lists.
func canView(ctx context.Context, store repository.Store, p auth.Principal, ch *models.Channel) error {
	m, err := activeMembership(ctx, store, ch.ID, p.UserID)
	if err != nil {
		return err
	}
	if m != nil || openToTenant(ch) || p.IsSuperAdmin() {
		return nil
	}
	return apperr.Authorization(apperr.CodeNotMember, "not a member of this channel")
}
