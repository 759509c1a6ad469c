package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/apperr"
	"github.com/lalith-99/courtyard/internal/auth"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/push"
	"go.uber.org/zap"
)

// NotificationFanout persists inbox items and hands them to push.
//
// The stored row is the durable record and is written on the caller's
// goroutine. Push is a latency optimization that runs on the job queue:
// failures are logged and dropped, and there is no retry.
type NotificationFanout struct {
	*base
	pusher  push.Pusher
	devices push.DeviceRegistry
}

// CreateNotificationInput describes one notification for one recipient.
type CreateNotificationInput struct {
	RecipientID uuid.UUID
	TenantID    *uuid.UUID
	Title       string
	Body        string
	Type        models.NotificationType
	ChannelID   *uuid.UUID
	VoteID      *uuid.UUID
	DocumentID  *uuid.UUID
}

// Create persists the notification, then schedules the push.
func (n *NotificationFanout) Create(ctx context.Context, in CreateNotificationInput) (*models.Notification, error) {
	if in.RecipientID == uuid.Nil {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "recipient is required")
	}
	if in.Type == "" {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "notification type is required")
	}

	created, err := n.store.Notifications().Create(ctx, &models.Notification{
		ID:          uuid.New(),
		RecipientID: in.RecipientID,
		TenantID:    in.TenantID,
		Title:       in.Title,
		Body:        in.Body,
		Type:        in.Type,
		ChannelID:   in.ChannelID,
		VoteID:      in.VoteID,
		DocumentID:  in.DocumentID,
	})
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	n.PushOnly(in.RecipientID, in.Title, in.Body, in.Type, in.ChannelID)
	return created, nil
}

// notifyAll persists one notification per item after the originating write
// has committed. The caller's cancellation is ignored so a client hanging
// up cannot lose inbox items for everyone else. Failures are logged per
// recipient.
func (n *NotificationFanout) notifyAll(ctx context.Context, items []CreateNotificationInput) {
	ctx = context.WithoutCancel(ctx)
	for _, in := range items {
		if _, err := n.Create(ctx, in); err != nil {
			n.logger.Error("create notification",
				zap.String("recipient_id", in.RecipientID.String()),
				zap.String("type", string(in.Type)),
				zap.Error(err),
			)
		}
	}
}

// PushOnly schedules a push with no inbox record, for signals that are
// stale within seconds such as a ringing call.
func (n *NotificationFanout) PushOnly(recipientID uuid.UUID, title, body string, typ models.NotificationType, channelID *uuid.UUID) {
	n.after("push", func(ctx context.Context) {
		n.deliverPush(ctx, recipientID, push.Message{
			Title:     title,
			Body:      body,
			Type:      string(typ),
			ChannelID: channelID,
		})
	})
}

func (n *NotificationFanout) deliverPush(ctx context.Context, recipientID uuid.UUID, msg push.Message) {
	tokens, err := n.devices.Tokens(ctx, recipientID)
	if err != nil {
		n.logger.Warn("lookup device tokens", zap.String("user_id", recipientID.String()), zap.Error(err))
		return
	}
	for _, token := range tokens {
		msg.DeviceToken = token
		if err := n.pusher.Send(ctx, msg); err != nil {
			n.logger.Warn("push failed",
				zap.String("user_id", recipientID.String()),
				zap.String("type", msg.Type),
				zap.Error(err),
			)
		}
	}
}

// List returns the caller's notifications, newest first, scoped to the
// selected building when there is one.
func (n *NotificationFanout) List(ctx context.Context, p auth.Principal, unreadOnly bool, page models.Page) ([]models.Notification, error) {
	items, err := n.store.Notifications().ListByRecipient(ctx, p.UserID, p.TenantID, unreadOnly, page.Normalize())
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

// MarkRead is idempotent. A notification owned by someone else is
// reported as not found.
func (n *NotificationFanout) MarkRead(ctx context.Context, p auth.Principal, notificationID uuid.UUID) (*models.Notification, error) {
	item, err := n.store.Notifications().MarkRead(ctx, p.UserID, notificationID, n.now())
	if err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	if item == nil {
		return nil, apperr.NotFound("notification not found")
	}
	return item, nil
}

func (n *NotificationFanout) MarkAllRead(ctx context.Context, p auth.Principal) (int64, error) {
	changed, err := n.store.Notifications().MarkAllRead(ctx, p.UserID, p.TenantID, n.now())
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return changed, nil
}

func (n *NotificationFanout) UnreadCount(ctx context.Context, p auth.Principal) (int64, error) {
	count, err := n.store.Notifications().CountUnread(ctx, p.UserID, p.TenantID)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (n *NotificationFanout) RegisterDevice(ctx context.Context, p auth.Principal, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperr.Validation(apperr.CodeInvalidInput, "device token is required")
	}
	if err := n.devices.Register(ctx, p.UserID, token); err != nil {
		return fmt.Errorf("register device: %w", err)
	}
	return nil
}

func (n *NotificationFanout) UnregisterDevice(ctx context.Context, p auth.Principal, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperr.Validation(apperr.CodeInvalidInput, "device token is required")
	}
	if err := n.devices.Unregister(ctx, p.UserID, token); err != nil {
		return fmt.Errorf("unregister device: %w", err)
	}
	return nil
}
