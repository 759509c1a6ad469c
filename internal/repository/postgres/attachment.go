package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/courtyard/internal/models"
)

type AttachmentStore struct {
	q Querier
}

func NewAttachmentStore(q Querier) *AttachmentStore {
	return &AttachmentStore{q: q}
}

func (s *AttachmentStore) GetByID(ctx context.Context, attachmentID uuid.UUID) (*models.Attachment, error) {
	query := `
		SELECT id, owner_id, file_name, mime_type, url, created_at
		FROM attachments
		WHERE id = $1`

	var a models.Attachment
	err := s.q.QueryRow(ctx, query, attachmentID).Scan(
		&a.ID,
		&a.OwnerID,
		&a.FileName,
		&a.MimeType,
		&a.URL,
		&a.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get attachment: %w", err)
	}
	return &a, nil
}
