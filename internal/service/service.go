// Package service holds the messaging core: channel directory, membership
// ledger, message router, call signaling and notification fan-out.
//
// Every operation takes the caller's auth.Principal as an explicit
// argument. Writes that span several rows run in one repository.Store
// transaction. Notification rows are written once it has committed, on the
// caller's goroutine. Live deliveries and pushes are then submitted to an
// Async runner, which may drop them under load.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/push"
	"github.com/lalith-99/courtyard/internal/realtime"
	"github.com/lalith-99/courtyard/internal/repository"
	"github.com/lalith-99/courtyard/internal/worker"
	"go.uber.org/zap"
)

// Presence is the connection registry as seen by the core.
type Presence interface {
	// Deliver is best effort and must not block. tenantID restricts
	// delivery to connections bound to that building; nil reaches all.
	// It returns the number of connections that took the envelope.
	Deliver(userID uuid.UUID, tenantID *uuid.UUID, env realtime.Envelope) int
}

// Async runs post-commit side effects. Submit must not block.
type Async interface {
	Submit(name string, fn worker.Job) bool
}

// Config wires the collaborators shared by every component.
type Config struct {
	Store    repository.Store
	Presence Presence
	Async    Async
	Pusher   push.Pusher
	Devices  push.DeviceRegistry
	Logger   *zap.Logger

	// PreviewLength caps notification bodies derived from messages, in runes.
	PreviewLength int

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Services is the assembled core.
type Services struct {
	Channels      *ChannelDirectory
	Members       *MembershipLedger
	Messages      *MessageRouter
	Calls         *CallSignaling
	Notifications *NotificationFanout
}

func New(cfg Config) *Services {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.PreviewLength <= 0 {
		cfg.PreviewLength = DefaultPreviewLength
	}

	b := &base{
		store:    cfg.Store,
		presence: cfg.Presence,
		async:    cfg.Async,
		logger:   cfg.Logger,
		clock:    cfg.Clock,
	}
	notifications := &NotificationFanout{
		base:    b.named("notifications"),
		pusher:  cfg.Pusher,
		devices: cfg.Devices,
	}
	return &Services{
		Channels:      &ChannelDirectory{base: b.named("channels"), notify: notifications},
		Members:       &MembershipLedger{base: b.named("members"), notify: notifications},
		Messages:      &MessageRouter{base: b.named("messages"), notify: notifications, previewLength: cfg.PreviewLength},
		Calls:         &CallSignaling{base: b.named("calls"), notify: notifications},
		Notifications: notifications,
	}
}

type base struct {
	store    repository.Store
	presence Presence
	async    Async
	logger   *zap.Logger
	clock    func() time.Time
}

func (b *base) named(name string) *base {
	c := *b
	c.logger = b.logger.Named(name)
	return &c
}

func (b *base) now() time.Time {
	return b.clock().UTC()
}

// after submits fn to run once the caller's write has committed.
func (b *base) after(name string, fn func(ctx context.Context)) {
	if !b.async.Submit(name, fn) {
		b.logger.Warn("side effect dropped", zap.String("job", name))
	}
}

// broadcast delivers env to every active member of ch.
func (b *base) broadcast(ctx context.Context, ch *models.Channel, env realtime.Envelope, extra ...uuid.UUID) {
	members, err := b.store.Memberships().ListActive(ctx, ch.ID)
	if err != nil {
		b.logger.Error("list members for broadcast",
			zap.String("channel_id", ch.ID.String()),
			zap.String("type", string(env.Type)),
			zap.Error(err),
		)
		return
	}
	seen := make(map[uuid.UUID]bool, len(members)+len(extra))
	for _, m := range members {
		seen[m.UserID] = true
		b.presence.Deliver(m.UserID, ch.TenantID, env)
	}
	for _, id := range extra {
		if !seen[id] {
			seen[id] = true
			b.presence.Deliver(id, ch.TenantID, env)
		}
	}
}

// displayName falls back to the email, then to a neutral label.
func (b *base) displayName(ctx context.Context, userID uuid.UUID) string {
	u, err := b.store.Users().GetByID(ctx, userID)
	if err != nil || u == nil {
		return "Someone"
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	if u.Email != "" {
		return u.Email
	}
	return "Someone"
}
