package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/apperr"
	"github.com/lalith-99/courtyard/internal/auth"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/realtime"
	"github.com/lalith-99/courtyard/internal/repository"
	"go.uber.org/zap"
)

const maxChannelNameLength = 100

// ChannelDirectory creates, looks up and authorizes access to channels.
type ChannelDirectory struct {
	*base
	notify *NotificationFanout
}

type CreateChannelInput struct {
	Name        string
	Description string
	Type        models.ChannelType
	IsPrivate   bool
	MemberIDs   []uuid.UUID
}

type UpdateChannelInput struct {
	Name        *string
	Description *string
	IsPrivate   *bool
}

// channelRule is the creation policy of one channel type.
//
// members turns the requested member ids into the final list, and may
// reject the request. The creator is never part of the returned list.
type channelRule struct {
	tenantScoped bool
	minRole      models.TenantRole
	members      func(ctx context.Context, store repository.Store, p auth.Principal, in CreateChannelInput) ([]uuid.UUID, error)
}

var channelRules = map[models.ChannelType]channelRule{
	models.ChannelTypeDirect: {
		tenantScoped: true,
		minRole:      models.TenantRoleResident,
		members: func(ctx context.Context, store repository.Store, p auth.Principal, in CreateChannelInput) ([]uuid.UUID, error) {
			others := withoutCreator(in.MemberIDs, p.UserID)
			if len(others) != 1 {
				return nil, apperr.Validation(apperr.CodeInvalidInput, "a direct channel needs exactly one other member")
			}
			return others, nil
		},
	},
	models.ChannelTypeGroup: {
		tenantScoped: true,
		minRole:      models.TenantRoleResident,
		members:      listedTenantMembers,
	},
	models.ChannelTypeBuildingGroup: {
		tenantScoped: true,
		minRole:      models.TenantRoleAdmin,
		members:      listedTenantMembers,
	},
	models.ChannelTypeBuilding: {
		tenantScoped: true,
		minRole:      models.TenantRoleAdmin,
		members: func(ctx context.Context, store repository.Store, p auth.Principal, in CreateChannelInput) ([]uuid.UUID, error) {
			existing, err := store.Channels().ActiveBuildingChannel(ctx, *p.TenantID)
			if err != nil {
				return nil, fmt.Errorf("get building channel: %w", err)
			}
			if existing != nil {
				return nil, buildingChannelExists()
			}
			residents, err := store.Tenants().ListActiveUsers(ctx, *p.TenantID)
			if err != nil {
				return nil, fmt.Errorf("list building residents: %w", err)
			}
			return withoutCreator(residents, p.UserID), nil
		},
	},
	models.ChannelTypePublic: {
		tenantScoped: false,
		minRole:      models.TenantRoleAdmin,
		members: func(ctx context.Context, store repository.Store, p auth.Principal, in CreateChannelInput) ([]uuid.UUID, error) {
			return withoutCreator(in.MemberIDs, p.UserID), nil
		},
	},
}

func buildingChannelExists() error {
	return apperr.Validation(apperr.CodeBuildingChannelExists, "this building already has an active building-wide channel")
}

func listedTenantMembers(ctx context.Context, store repository.Store, p auth.Principal, in CreateChannelInput) ([]uuid.UUID, error) {
	ids := withoutCreator(in.MemberIDs, p.UserID)
	for _, id := range ids {
		ok, err := inTenant(ctx, store, *p.TenantID, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "user %s is not a resident of this building", id)
		}
	}
	return ids, nil
}

// withoutCreator deduplicates ids and drops the creator.
func withoutCreator(ids []uuid.UUID, creator uuid.UUID) []uuid.UUID {
	seen := map[uuid.UUID]bool{creator: true, uuid.Nil: true}
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// directKey is the two ids sorted and joined, so (a, b) and (b, a) agree.
func directKey(a, b uuid.UUID) string {
	pair := []string{a.String(), b.String()}
	sort.Strings(pair)
	return pair[0] + ":" + pair[1]
}

// CreateChannel applies the type's creation rule and writes the channel,
// the creator's owner membership and every member membership in one
// transaction.
func (d *ChannelDirectory) CreateChannel(ctx context.Context, p auth.Principal, in CreateChannelInput) (*models.Channel, error) {
	rule, ok := channelRules[in.Type]
	if !ok {
		return nil, apperr.Validation(apperr.CodeInvalidChannelType, "unknown channel type %q", in.Type)
	}

	var tenantID *uuid.UUID
	if rule.tenantScoped {
		id, err := requireTenant(p)
		if err != nil {
			return nil, err
		}
		tenantID = &id
		ok, err := inTenant(ctx, d.store, id, p.UserID)
		if err != nil {
			return nil, err
		}
		if !ok && !p.IsSuperAdmin() {
			return nil, apperr.Authorization(apperr.CodeForbidden, "not a resident of this building")
		}
	}
	if !p.IsSuperAdmin() && !p.Role.AtLeast(rule.minRole) {
		return nil, apperr.Authorization(apperr.CodeForbidden, "%s role required to create a %s channel", rule.minRole, in.Type)
	}

	members, err := rule.members(ctx, d.store, p, in)
	if err != nil {
		return nil, err
	}

	if in.Type == models.ChannelTypeDirect {
		ch, _, err := d.GetOrCreateDirectChannel(ctx, p, members[0])
		return ch, err
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "channel name is required")
	}
	if len([]rune(name)) > maxChannelNameLength {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "channel name is longer than %d characters", maxChannelNameLength)
	}

	ch := &models.Channel{
		ID:          uuid.New(),
		TenantID:    tenantID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Type:        in.Type,
		CreatorID:   p.UserID,
		IsActive:    true,
		IsPrivate:   in.IsPrivate && in.Type == models.ChannelTypeGroup,
	}

	var created *models.Channel
	err = d.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		created, err = tx.Channels().Create(ctx, ch)
		if errors.Is(err, repository.ErrConflict) {
			return buildingChannelExists()
		}
		if err != nil {
			return fmt.Errorf("create channel: %w", err)
		}
		if _, err := tx.Memberships().Upsert(ctx, &models.ChannelMember{
			ChannelID: created.ID, UserID: p.UserID, Role: models.MemberRoleOwner, CanWrite: true,
		}); err != nil {
			return fmt.Errorf("create owner membership: %w", err)
		}
		for _, id := range members {
			if _, err := tx.Memberships().Upsert(ctx, &models.ChannelMember{
				ChannelID: created.ID, UserID: id, Role: models.MemberRoleMember, CanWrite: true,
			}); err != nil {
				return fmt.Errorf("create membership: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info("channel created",
		zap.String("channel_id", created.ID.String()),
		zap.String("type", string(created.Type)),
		zap.Int("members", len(members)+1),
	)
	d.announce(ctx, created, p.UserID, members)
	return created, nil
}

// announce tells invited members about a new channel.
func (d *ChannelDirectory) announce(ctx context.Context, ch *models.Channel, creatorID uuid.UUID, members []uuid.UUID) {
	creator := d.displayName(ctx, creatorID)
	items := make([]CreateNotificationInput, 0, len(members))
	for _, id := range members {
		items = append(items, CreateNotificationInput{
			RecipientID: id,
			TenantID:    ch.TenantID,
			Title:       ch.Name,
			Body:        fmt.Sprintf("%s added you to %s", creator, ch.Name),
			Type:        models.NotificationTypeChannelInvite,
			ChannelID:   &ch.ID,
		})
	}
	d.notify.notifyAll(ctx, items)

	d.after("channel.created", func(context.Context) {
		env := realtime.NewEnvelope(realtime.EventChannelCreated, ch.ID, ch)
		for _, id := range members {
			d.presence.Deliver(id, ch.TenantID, env)
		}
	})
}

// GetOrCreateDirectChannel returns the caller's one-to-one channel with
// otherID in the current building, creating it on first use. Concurrent
// callers for the same pair get the same channel.
func (d *ChannelDirectory) GetOrCreateDirectChannel(ctx context.Context, p auth.Principal, otherID uuid.UUID) (*models.Channel, bool, error) {
	tenantID, err := requireTenant(p)
	if err != nil {
		return nil, false, err
	}
	if otherID == uuid.Nil || otherID == p.UserID {
		return nil, false, apperr.Validation(apperr.CodeInvalidInput, "a direct channel needs another user")
	}
	for _, id := range []uuid.UUID{p.UserID, otherID} {
		ok, err := inTenant(ctx, d.store, tenantID, id)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			return nil, false, apperr.Validation(apperr.CodeInvalidInput, "both users must live in the selected building")
		}
	}

	key := directKey(p.UserID, otherID)
	var (
		ch      *models.Channel
		created bool
	)
	err = d.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		ch, created, err = tx.Channels().CreateDirectIfAbsent(ctx, &models.Channel{
			ID:        uuid.New(),
			TenantID:  &tenantID,
			Type:      models.ChannelTypeDirect,
			CreatorID: p.UserID,
			IsActive:  true,
			IsPrivate: true,
			DirectKey: &key,
		})
		if err != nil {
			return fmt.Errorf("create direct channel: %w", err)
		}

		// A pair member who left is brought back; the original creator
		// keeps the owner role.
		for _, id := range []uuid.UUID{ch.CreatorID, otherOf(ch.CreatorID, p.UserID, otherID)} {
			m, err := tx.Memberships().Get(ctx, ch.ID, id)
			if err != nil {
				return fmt.Errorf("get membership: %w", err)
			}
			if m != nil && m.IsActive {
				continue
			}
			role := models.MemberRoleMember
			if id == ch.CreatorID {
				role = models.MemberRoleOwner
			}
			if _, err := tx.Memberships().Upsert(ctx, &models.ChannelMember{
				ChannelID: ch.ID, UserID: id, Role: role, CanWrite: true,
			}); err != nil {
				return fmt.Errorf("upsert direct membership: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		d.logger.Info("direct channel created", zap.String("channel_id", ch.ID.String()))
		d.after("channel.created", func(ctx context.Context) {
			d.presence.Deliver(otherID, ch.TenantID, realtime.NewEnvelope(realtime.EventChannelCreated, ch.ID, ch))
		})
	}
	return ch, created, nil
}

// otherOf returns whichever of a, b is not creator.
func otherOf(creator, a, b uuid.UUID) uuid.UUID {
	if a == creator {
		return b
	}
	return a
}

// GetChannel requires an active membership, or an open channel of the
// caller's building.
func (d *ChannelDirectory) GetChannel(ctx context.Context, p auth.Principal, channelID uuid.UUID) (*models.Channel, error) {
	ch, err := channelFor(ctx, d.store, p, channelID)
	if err != nil {
		return nil, err
	}
	if err := canView(ctx, d.store, p, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

func (d *ChannelDirectory) UpdateChannel(ctx context.Context, p auth.Principal, channelID uuid.UUID, in UpdateChannelInput) (*models.Channel, error) {
	ch, err := channelFor(ctx, d.store, p, channelID)
	if err != nil {
		return nil, err
	}
	if _, err := requireManager(ctx, d.store, p, ch.ID); err != nil {
		return nil, err
	}

	if in.Name != nil {
		if ch.Type == models.ChannelTypeDirect {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "direct channels have no name")
		}
		name := strings.TrimSpace(*in.Name)
		if name == "" || len([]rune(name)) > maxChannelNameLength {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "channel name must be 1 to %d characters", maxChannelNameLength)
		}
		ch.Name = name
	}
	if in.Description != nil {
		ch.Description = strings.TrimSpace(*in.Description)
	}
	if in.IsPrivate != nil {
		if ch.Type != models.ChannelTypeGroup {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "only group channels can change visibility")
		}
		ch.IsPrivate = *in.IsPrivate
	}

	updated, err := d.store.Channels().Update(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("update channel: %w", err)
	}
	if updated == nil {
		return nil, apperr.NotFound("channel not found")
	}
	return updated, nil
}

// CloseChannel stops the channel from accepting messages. Closing a closed
// channel returns it unchanged.
func (d *ChannelDirectory) CloseChannel(ctx context.Context, p auth.Principal, channelID uuid.UUID) (*models.Channel, error) {
	ch, err := channelFor(ctx, d.store, p, channelID)
	if err != nil {
		return nil, err
	}
	if _, err := requireManager(ctx, d.store, p, ch.ID); err != nil {
		return nil, err
	}
	if ch.IsClosed {
		return ch, nil
	}

	ch.IsClosed = true
	closed, err := d.store.Channels().Update(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("close channel: %w", err)
	}
	if closed == nil {
		return nil, apperr.NotFound("channel not found")
	}

	d.after("channel.closed", func(ctx context.Context) {
		d.broadcast(ctx, closed, realtime.NewEnvelope(realtime.EventChannelClosed, closed.ID, closed))
	})
	return closed, nil
}

// GetAccessibleChannels lists the caller's channels in the selected
// building, most recent activity first. Channels of other buildings are
// never returned.
func (d *ChannelDirectory) GetAccessibleChannels(ctx context.Context, p auth.Principal, page models.Page) ([]models.Channel, error) {
	tenantID, err := requireTenant(p)
	if err != nil {
		return nil, err
	}
	channels, err := d.store.Channels().ListForMember(ctx, tenantID, p.UserID, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}
