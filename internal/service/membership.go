package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/apperr"
	"github.com/lalith-99/courtyard/internal/auth"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/realtime"
	"go.uber.org/zap"
)

// MembershipLedger manages who belongs to a channel. Rows are never
// deleted: removal deactivates, and re-adding reactivates the same row.
type MembershipLedger struct {
	*base
	notify *NotificationFanout
}

// AddMember adds targetID to the channel as a writing member. The actor
// must be a channel owner or admin, or a super admin.
func (l *MembershipLedger) AddMember(ctx context.Context, p auth.Principal, channelID, targetID uuid.UUID) (*models.ChannelMember, error) {
	ch, err := channelFor(ctx, l.store, p, channelID)
	if err != nil {
		return nil, err
	}
	if _, err := requireManager(ctx, l.store, p, ch.ID); err != nil {
		return nil, err
	}
	if ch.Type == models.ChannelTypeDirect {
		return nil, apperr.Validation(apperr.CodeInvalidChannelType, "direct channels have exactly two members")
	}
	if ch.IsClosed {
		return nil, apperr.ChannelClosed()
	}
	if ch.TenantID != nil {
		ok, err := inTenant(ctx, l.store, *ch.TenantID, targetID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.TenancyMismatch("user is not a resident of this building")
		}
	}

	m, added, err := l.activate(ctx, ch.ID, targetID)
	if err != nil {
		return nil, err
	}
	if added {
		l.logger.Info("member added",
			zap.String("channel_id", ch.ID.String()),
			zap.String("user_id", targetID.String()),
			zap.String("by", p.UserID.String()),
		)
		l.announceAdded(ctx, ch, m, p.UserID)
	}
	return m, nil
}

// activate returns the active membership, creating or reactivating it as a
// plain member. An existing active row keeps its role. added is true only
// for the one call that actually made the row active.
func (l *MembershipLedger) activate(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelMember, bool, error) {
	m, added, err := l.store.Memberships().Activate(ctx, &models.ChannelMember{
		ChannelID: channelID, UserID: userID, Role: models.MemberRoleMember, CanWrite: true,
	})
	if err != nil {
		return nil, false, fmt.Errorf("activate membership: %w", err)
	}
	return m, added, nil
}

func (l *MembershipLedger) announceAdded(ctx context.Context, ch *models.Channel, m *models.ChannelMember, actorID uuid.UUID) {
	if m.UserID != actorID {
		actor := l.displayName(ctx, actorID)
		l.notify.notifyAll(ctx, []CreateNotificationInput{{
			RecipientID: m.UserID,
			TenantID:    ch.TenantID,
			Title:       ch.Name,
			Body:        fmt.Sprintf("%s added you to %s", actor, ch.Name),
			Type:        models.NotificationTypeChannelInvite,
			ChannelID:   &ch.ID,
		}})
	}
	l.after("channel.member_added", func(ctx context.Context) {
		l.broadcast(ctx, ch, realtime.NewEnvelope(realtime.EventChannelMemberAdded, ch.ID, m))
	})
}

// RemoveMember deactivates targetID's membership. The owner cannot be
// removed, and only the owner or a super admin may remove an admin.
// Removing someone who is not a member succeeds without changes.
func (l *MembershipLedger) RemoveMember(ctx context.Context, p auth.Principal, channelID, targetID uuid.UUID) error {
	ch, err := channelFor(ctx, l.store, p, channelID)
	if err != nil {
		return err
	}
	actor, err := requireManager(ctx, l.store, p, ch.ID)
	if err != nil {
		return err
	}

	target, err := activeMembership(ctx, l.store, ch.ID, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return nil
	}
	if target.Role == models.MemberRoleOwner {
		return apperr.Authorization(apperr.CodeOwnerImmutable, "the channel owner cannot be removed")
	}
	if target.Role == models.MemberRoleAdmin && !p.IsSuperAdmin() && (actor == nil || actor.Role != models.MemberRoleOwner) {
		return apperr.Authorization(apperr.CodeForbidden, "only the owner can remove an admin")
	}

	if err := l.store.Memberships().Deactivate(ctx, ch.ID, targetID, l.now()); err != nil {
		return fmt.Errorf("deactivate membership: %w", err)
	}
	l.logger.Info("member removed",
		zap.String("channel_id", ch.ID.String()),
		zap.String("user_id", targetID.String()),
		zap.String("by", p.UserID.String()),
	)
	l.announceRemoved(ch, targetID)
	return nil
}

func (l *MembershipLedger) announceRemoved(ch *models.Channel, userID uuid.UUID) {
	l.after("channel.member_removed", func(ctx context.Context) {
		payload := map[string]uuid.UUID{"channel_id": ch.ID, "user_id": userID}
		l.broadcast(ctx, ch, realtime.NewEnvelope(realtime.EventChannelMemberRemoved, ch.ID, payload), userID)
	})
}

// JoinChannel is the self-service add for open channels: building-wide and
// building-group channels of the caller's building, and public channels.
func (l *MembershipLedger) JoinChannel(ctx context.Context, p auth.Principal, channelID uuid.UUID) (*models.ChannelMember, error) {
	ch, err := channelFor(ctx, l.store, p, channelID)
	if err != nil {
		return nil, err
	}
	if !openToTenant(ch) {
		return nil, apperr.Authorization(apperr.CodeForbidden, "this channel requires an invitation")
	}
	if ch.IsClosed {
		return nil, apperr.ChannelClosed()
	}
	if ch.TenantID != nil && !p.IsSuperAdmin() {
		ok, err := inTenant(ctx, l.store, *ch.TenantID, p.UserID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.TenancyMismatch("not a resident of this building")
		}
	}

	m, added, err := l.activate(ctx, ch.ID, p.UserID)
	if err != nil {
		return nil, err
	}
	if added {
		l.announceAdded(ctx, ch, m, p.UserID)
	}
	return m, nil
}

// LeaveChannel deactivates the caller's own membership. The owner cannot
// leave; leaving a channel one is not in succeeds without changes.
func (l *MembershipLedger) LeaveChannel(ctx context.Context, p auth.Principal, channelID uuid.UUID) error {
	ch, err := channelFor(ctx, l.store, p, channelID)
	if err != nil {
		return err
	}
	m, err := activeMembership(ctx, l.store, ch.ID, p.UserID)
	if err != nil {
		return err
	}
	if m == nil {
		return nil
	}
	if m.Role == models.MemberRoleOwner {
		return apperr.StateConflict(apperr.CodeOwnerImmutable, "the owner cannot leave the channel")
	}

	if err := l.store.Memberships().Deactivate(ctx, ch.ID, p.UserID, l.now()); err != nil {
		return fmt.Errorf("deactivate membership: %w", err)
	}
	l.announceRemoved(ch, p.UserID)
	return nil
}

// ListMembers returns the channel's active members.
func (l *MembershipLedger) ListMembers(ctx context.Context, p auth.Principal, channelID uuid.UUID) ([]models.ChannelMember, error) {
	ch, err := channelFor(ctx, l.store, p, channelID)
	if err != nil {
		return nil, err
	}
	if err := canView(ctx, l.store, p, ch); err != nil {
		return nil, err
	}
	members, err := l.store.Memberships().ListActive(ctx, ch.ID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// UpdateMemberPermissions changes a member's role and write flag. The
// owner role can be neither granted nor taken away here.
func (l *MembershipLedger) UpdateMemberPermissions(ctx context.Context, p auth.Principal, channelID, targetID uuid.UUID, role models.MemberRole, canWrite bool) (*models.ChannelMember, error) {
	if !role.Valid() {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "unknown member role %q", role)
	}
	if role == models.MemberRoleOwner {
		return nil, apperr.Authorization(apperr.CodeOwnerImmutable, "ownership cannot be granted")
	}

	ch, err := channelFor(ctx, l.store, p, channelID)
	if err != nil {
		return nil, err
	}
	if _, err := requireManager(ctx, l.store, p, ch.ID); err != nil {
		return nil, err
	}
	target, err := activeMembership(ctx, l.store, ch.ID, targetID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, apperr.NotFound("member not found")
	}
	if target.Role == models.MemberRoleOwner {
		return nil, apperr.Authorization(apperr.CodeOwnerImmutable, "the owner's permissions cannot change")
	}

	updated, err := l.store.Memberships().UpdatePermissions(ctx, ch.ID, targetID, role, canWrite)
	if err != nil {
		return nil, fmt.Errorf("update member permissions: %w", err)
	}
	if updated == nil {
		return nil, apperr.NotFound("member not found")
	}
	return updated, nil
}
