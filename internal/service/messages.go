package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/apperr"
	"github.com/lalith-99/courtyard/internal/auth"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/realtime"
	"github.com/lalith-99/courtyard/internal/repository"
	"go.uber.org/zap"
)

const (
	// DefaultPreviewLength is the notification body cap, in runes.
	DefaultPreviewLength = 100

	maxContentLength = 4000

	defaultMessageLimit = 50
	maxMessageLimit     = 100
)

var mediaTypes = []models.MessageType{
	models.MessageTypeImage,
	models.MessageTypeVideo,
	models.MessageTypeAudio,
	models.MessageTypeFile,
}

// MessageRouter validates, persists and fans out channel messages.
type MessageRouter struct {
	*base
	notify        *NotificationFanout
	previewLength int
}

type SendMessageInput struct {
	ChannelID    uuid.UUID
	Content      string
	Type         models.MessageType
	ReplyToID    *int64
	AttachmentID *uuid.UUID
}

// Send persists a message and bumps the channel's activity time in one
// transaction. Delivery to connected members and their notifications
// happen after commit.
func (r *MessageRouter) Send(ctx context.Context, p auth.Principal, in SendMessageInput) (*models.Message, error) {
	ch, err := channelFor(ctx, r.store, p, in.ChannelID)
	if err != nil {
		return nil, err
	}
	if ch.IsClosed {
		return nil, apperr.ChannelClosed()
	}
	m, err := requireMember(ctx, r.store, ch.ID, p.UserID)
	if err != nil {
		return nil, err
	}
	if !m.CanWrite {
		return nil, apperr.Authorization(apperr.CodeWriteDisabled, "write permission is disabled for this channel")
	}

	msg, err := r.compose(ctx, p, ch, in)
	if err != nil {
		return nil, err
	}

	var saved *models.Message
	err = r.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		saved, err = tx.Messages().Create(ctx, msg)
		if err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		if err := tx.Channels().Touch(ctx, ch.ID, saved.CreatedAt); err != nil {
			return fmt.Errorf("touch channel: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.fanout(ctx, ch, saved)
	return saved, nil
}

// compose validates the input and derives display content and type.
func (r *MessageRouter) compose(ctx context.Context, p auth.Principal, ch *models.Channel, in SendMessageInput) (*models.Message, error) {
	content := strings.TrimSpace(in.Content)
	if len([]rune(content)) > maxContentLength {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "message is longer than %d characters", maxContentLength)
	}

	typ := in.Type
	if typ != "" && (!typ.Valid() || typ == models.MessageTypeCall || typ == models.MessageTypeSystem) {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "message type %q cannot be sent", typ)
	}

	msg := &models.Message{
		ChannelID: ch.ID,
		SenderID:  p.UserID,
		Content:   content,
		Type:      typ,
	}

	if in.AttachmentID != nil {
		a, err := r.store.Attachments().GetByID(ctx, *in.AttachmentID)
		if err != nil {
			return nil, fmt.Errorf("get attachment: %w", err)
		}
		if a == nil {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "attachment does not exist")
		}
		if a.OwnerID != p.UserID {
			return nil, apperr.Validation(apperr.CodeAttachmentNotOwned, "attachment belongs to another user")
		}
		if msg.Type == "" || msg.Type == models.MessageTypeText {
			msg.Type = typeFromMIME(a.MimeType)
		}
		if msg.Content == "" {
			msg.Content = attachmentContent(msg.Type, a)
		}
		msg.AttachmentID = &a.ID
	}

	if msg.Content == "" {
		return nil, apperr.Validation(apperr.CodeEmptyMessage, "message needs content or an attachment")
	}
	if msg.Type == "" {
		msg.Type = models.MessageTypeText
	}

	if in.ReplyToID != nil {
		parent, err := r.store.Messages().GetByID(ctx, *in.ReplyToID)
		if err != nil {
			return nil, fmt.Errorf("get reply target: %w", err)
		}
		if parent == nil || parent.ChannelID != ch.ID {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "reply target is not in this channel")
		}
		msg.ReplyToID = &parent.ID
	}
	return msg, nil
}

func typeFromMIME(mime string) models.MessageType {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return models.MessageTypeImage
	case strings.HasPrefix(mime, "video/"):
		return models.MessageTypeVideo
	case strings.HasPrefix(mime, "audio/"):
		return models.MessageTypeAudio
	default:
		return models.MessageTypeFile
	}
}

// attachmentContent is what an attachment-only message displays: the media
// URL for images, the original file name otherwise.
func attachmentContent(typ models.MessageType, a *models.Attachment) string {
	if typ == models.MessageTypeImage && a.URL != "" {
		return a.URL
	}
	if a.FileName != "" {
		return a.FileName
	}
	return a.URL
}

// fanout records a notification for every other active member, then
// queues the live delivery.
func (r *MessageRouter) fanout(ctx context.Context, ch *models.Channel, msg *models.Message) {
	ctx = context.WithoutCancel(ctx)
	members, err := r.store.Memberships().ListActive(ctx, ch.ID)
	if err != nil {
		r.logger.Error("list members for fan-out", zap.String("channel_id", ch.ID.String()), zap.Error(err))
		return
	}

	sender := r.displayName(ctx, msg.SenderID)
	title, body := shapeNotification(ch, sender, msg.Content, r.previewLength)
	items := make([]CreateNotificationInput, 0, len(members))
	for _, m := range members {
		if m.UserID == msg.SenderID {
			continue
		}
		items = append(items, CreateNotificationInput{
			RecipientID: m.UserID,
			TenantID:    ch.TenantID,
			Title:       title,
			Body:        body,
			Type:        models.NotificationTypeMessage,
			ChannelID:   &ch.ID,
		})
	}
	r.notify.notifyAll(ctx, items)

	r.after("message.new", func(context.Context) {
		env := realtime.NewEnvelope(realtime.EventMessageNew, ch.ID, msg)
		for _, m := range members {
			r.presence.Deliver(m.UserID, ch.TenantID, env)
		}
	})
}

// shapeNotification builds title and body for a message notification.
// Direct channels show who wrote; other channels show where, with the
// sender in the body.
func shapeNotification(ch *models.Channel, sender, content string, limit int) (string, string) {
	if ch.Type == models.ChannelTypeDirect {
		return sender, truncate(content, limit)
	}
	return ch.Name, truncate(sender+": "+content, limit)
}

// truncate cuts s to limit runes, marking the cut with an ellipsis.
func truncate(s string, limit int) string {
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}

// messageFor loads a message plus its channel and checks that the caller
// is an active member of a channel in their building.
func (r *MessageRouter) messageFor(ctx context.Context, p auth.Principal, messageID int64) (*models.Message, *models.Channel, *models.ChannelMember, error) {
	msg, err := r.store.Messages().GetByID(ctx, messageID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return nil, nil, nil, apperr.NotFound("message not found")
	}
	ch, err := channelFor(ctx, r.store, p, msg.ChannelID)
	if err != nil {
		return nil, nil, nil, err
	}
	m, err := requireMember(ctx, r.store, ch.ID, p.UserID)
	if err != nil {
		return nil, nil, nil, err
	}
	return msg, ch, m, nil
}

// Edit replaces the content of the caller's own message. Id, sender,
// channel and creation time never change.
func (r *MessageRouter) Edit(ctx context.Context, p auth.Principal, messageID int64, content string) (*models.Message, error) {
	msg, ch, _, err := r.messageFor(ctx, p, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != p.UserID {
		return nil, apperr.Authorization(apperr.CodeForbidden, "only the sender can edit a message")
	}
	if msg.IsDeleted {
		return nil, apperr.StateConflict(apperr.CodeMessageDeleted, "message was deleted")
	}
	if msg.Type == models.MessageTypeCall || msg.Type == models.MessageTypeSystem {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "%s messages cannot be edited", msg.Type)
	}
	if ch.IsClosed {
		return nil, apperr.ChannelClosed()
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation(apperr.CodeEmptyMessage, "message content is required")
	}
	if len([]rune(content)) > maxContentLength {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "message is longer than %d characters", maxContentLength)
	}

	edited, err := r.store.Messages().UpdateContent(ctx, msg.ID, content, true, false, r.now())
	if err != nil {
		return nil, fmt.Errorf("edit message: %w", err)
	}
	if edited == nil {
		return nil, apperr.NotFound("message not found")
	}

	r.after("message.edited", func(ctx context.Context) {
		r.broadcast(ctx, ch, realtime.NewEnvelope(realtime.EventMessageEdited, ch.ID, edited))
	})
	return edited, nil
}

// Delete tombstones a message. The sender or a channel owner/admin may
// delete; deleting twice returns the tombstone unchanged.
func (r *MessageRouter) Delete(ctx context.Context, p auth.Principal, messageID int64) (*models.Message, error) {
	msg, ch, m, err := r.messageFor(ctx, p, messageID)
	if err != nil {
		return nil, err
	}
	if msg.SenderID != p.UserID && !m.Role.CanManage() {
		return nil, apperr.Authorization(apperr.CodeForbidden, "only the sender or a channel admin can delete a message")
	}
	if msg.IsDeleted {
		return msg, nil
	}

	deleted, err := r.store.Messages().UpdateContent(ctx, msg.ID, models.DeletedContent, false, true, r.now())
	if err != nil {
		return nil, fmt.Errorf("delete message: %w", err)
	}
	if deleted == nil {
		return nil, apperr.NotFound("message not found")
	}

	r.logger.Info("message deleted",
		zap.Int64("message_id", deleted.ID),
		zap.String("channel_id", ch.ID.String()),
		zap.String("by", p.UserID.String()),
	)
	r.after("message.deleted", func(ctx context.Context) {
		r.broadcast(ctx, ch, realtime.NewEnvelope(realtime.EventMessageDeleted, ch.ID, deleted))
	})
	return deleted, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultMessageLimit
	case limit > maxMessageLimit:
		return maxMessageLimit
	}
	return limit
}

// List returns messages newest first. before is a message id cursor;
// zero starts from the latest message.
func (r *MessageRouter) List(ctx context.Context, p auth.Principal, channelID uuid.UUID, before int64, limit int) ([]models.Message, error) {
	return r.list(ctx, p, channelID, before, limit, nil)
}

// ListSharedMedia is List filtered by message type. An empty filter means
// every media type.
func (r *MessageRouter) ListSharedMedia(ctx context.Context, p auth.Principal, channelID uuid.UUID, types []models.MessageType, before int64, limit int) ([]models.Message, error) {
	if len(types) == 0 {
		types = mediaTypes
	}
	for _, t := range types {
		if !t.IsMedia() {
			return nil, apperr.Validation(apperr.CodeInvalidInput, "%q is not a media type", t)
		}
	}
	return r.list(ctx, p, channelID, before, limit, types)
}

func (r *MessageRouter) list(ctx context.Context, p auth.Principal, channelID uuid.UUID, before int64, limit int, types []models.MessageType) ([]models.Message, error) {
	if before < 0 {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "invalid cursor")
	}
	ch, err := channelFor(ctx, r.store, p, channelID)
	if err != nil {
		return nil, err
	}
	if _, err := requireMember(ctx, r.store, ch.ID, p.UserID); err != nil {
		return nil, err
	}
	messages, err := r.store.Messages().ListByChannel(ctx, ch.ID, before, clampLimit(limit), types)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}
