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

const messageColumns = `id, channel_id, sender_id, content, type, reply_to_id, attachment_id,
	call_id, is_edited, is_deleted, created_at, updated_at`

type MessageStore struct {
	q Querier
}

func NewMessageStore(q Querier) *MessageStore {
	return &MessageStore{q: q}
}

func scanMessage(row scanner) (*models.Message, error) {
	var msg models.Message
	err := row.Scan(
		&msg.ID,
		&msg.ChannelID,
		&msg.SenderID,
		&msg.Content,
		&msg.Type,
		&msg.ReplyToID,
		&msg.AttachmentID,
		&msg.CallID,
		&msg.IsEdited,
		&msg.IsDeleted,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *MessageStore) Create(ctx context.Context, msg *models.Message) (*models.Message, error) {
	// Messages use bigserial, so Postgres assigns the id. Clients order and
	// reconcile by this id, not by arrival order.
	query := `
		INSERT INTO messages (channel_id, sender_id, content, type, reply_to_id, attachment_id, call_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING ` + messageColumns

	created, err := scanMessage(s.q.QueryRow(ctx, query,
		msg.ChannelID, msg.SenderID, msg.Content, msg.Type, msg.ReplyToID, msg.AttachmentID, msg.CallID,
	))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return created, nil
}

func (s *MessageStore) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`

	msg, err := scanMessage(s.q.QueryRow(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) UpdateContent(ctx context.Context, messageID int64, content string, edited, deleted bool, at time.Time) (*models.Message, error) {
	query := `
		UPDATE messages
		SET content = $2,
			is_edited = is_edited OR $3,
			is_deleted = is_deleted OR $4,
			attachment_id = CASE WHEN $4 THEN NULL ELSE attachment_id END,
			updated_at = $5
		WHERE id = $1
		RETURNING ` + messageColumns

	msg, err := scanMessage(s.q.QueryRow(ctx, query, messageID, content, edited, deleted, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update message: %w", err)
	}
	return msg, nil
}

func (s *MessageStore) ListByChannel(ctx context.Context, channelID uuid.UUID, before int64, limit int, types []models.MessageType) ([]models.Message, error) {
	// before=0 is the first page (newest). before=42 means "older than 42".
	query := `SELECT ` + messageColumns + ` FROM messages WHERE channel_id = $1`
	args := []any{channelID}

	if before > 0 {
		args = append(args, before)
		query += fmt.Sprintf(" AND id < $%d", len(args))
	}
	if len(types) > 0 {
		names := make([]string, len(types))
		for i, t := range types {
			names[i] = string(t)
		}
		args = append(args, names)
		query += fmt.Sprintf(" AND type = ANY($%d)", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d", len(args))

	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	return messages, nil
}
