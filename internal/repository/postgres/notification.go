package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/courtyard/internal/models"
)

const notificationColumns = `id, recipient_id, tenant_id, title, body, type, channel_id, vote_id,
	document_id, is_read, read_at, created_at`

type NotificationStore struct {
	q Querier
}

func NewNotificationStore(q Querier) *NotificationStore {
	return &NotificationStore{q: q}
}

func scanNotification(row scanner) (*models.Notification, error) {
	var n models.Notification
	err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.TenantID,
		&n.Title,
		&n.Body,
		&n.Type,
		&n.ChannelID,
		&n.VoteID,
		&n.DocumentID,
		&n.IsRead,
		&n.ReadAt,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *NotificationStore) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	query := `
		INSERT INTO notifications (id, recipient_id, tenant_id, title, body, type, channel_id, vote_id, document_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		RETURNING ` + notificationColumns

	created, err := scanNotification(s.q.QueryRow(ctx, query,
		n.ID, n.RecipientID, n.TenantID, n.Title, n.Body, n.Type, n.ChannelID, n.VoteID, n.DocumentID,
	))
	if err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}
	return created, nil
}

func (s *NotificationStore) ListByRecipient(ctx context.Context, recipientID uuid.UUID, tenantID *uuid.UUID, unreadOnly bool, page models.Page) ([]models.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE recipient_id = $1
			AND ($2::uuid IS NULL OR tenant_id = $2)
			AND (NOT $3 OR NOT is_read)
		ORDER BY created_at DESC, id
		LIMIT $4 OFFSET $5`

	rows, err := s.q.Query(ctx, query, recipientID, tenantID, unreadOnly, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	items := make([]models.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		items = append(items, *n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return items, nil
}

func (s *NotificationStore) MarkRead(ctx context.Context, recipientID uuid.UUID, notificationID uuid.UUID, at time.Time) (*models.Notification, error) {
	// COALESCE keeps the first read time when marked twice.
	query := `
		UPDATE notifications
		SET is_read = true, read_at = COALESCE(read_at, $3)
		WHERE id = $1 AND recipient_id = $2
		RETURNING ` + notificationColumns

	n, err := scanNotification(s.q.QueryRow(ctx, query, notificationID, recipientID, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	return n, nil
}

func (s *NotificationStore) MarkAllRead(ctx context.Context, recipientID uuid.UUID, tenantID *uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE notifications
		SET is_read = true, read_at = $3
		WHERE recipient_id = $1 AND NOT is_read AND ($2::uuid IS NULL OR tenant_id = $2)`

	tag, err := s.q.Exec(ctx, query, recipientID, tenantID, at)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *NotificationStore) CountUnread(ctx context.Context, recipientID uuid.UUID, tenantID *uuid.UUID) (int64, error) {
	query := `
		SELECT count(*)
		FROM notifications
		WHERE recipient_id = $1 AND NOT is_read AND ($2::uuid IS NULL OR tenant_id = $2)`

	var count int64
	if err := s.q.QueryRow(ctx, query, recipientID, tenantID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}
