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

const callColumns = `id, channel_id, caller_id, receiver_id, status, is_video, started_at,
	ended_at, duration_seconds, created_at, updated_at`

type CallStore struct {
	q Querier
}

func NewCallStore(q Querier) *CallStore {
	return &CallStore{q: q}
}

func scanCall(row scanner) (*models.Call, error) {
	var c models.Call
	err := row.Scan(
		&c.ID,
		&c.ChannelID,
		&c.CallerID,
		&c.ReceiverID,
		&c.Status,
		&c.IsVideo,
		&c.StartedAt,
		&c.EndedAt,
		&c.DurationSeconds,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *CallStore) Create(ctx context.Context, call *models.Call) (*models.Call, error) {
	query := `
		INSERT INTO calls (id, channel_id, caller_id, receiver_id, status, is_video, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING ` + callColumns

	created, err := scanCall(s.q.QueryRow(ctx, query,
		call.ID, call.ChannelID, call.CallerID, call.ReceiverID, call.Status, call.IsVideo,
	))
	if err != nil {
		return nil, fmt.Errorf("insert call: %w", err)
	}
	return created, nil
}

func (s *CallStore) get(ctx context.Context, query string, callID uuid.UUID) (*models.Call, error) {
	call, err := scanCall(s.q.QueryRow(ctx, query, callID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get call: %w", err)
	}
	return call, nil
}

func (s *CallStore) GetByID(ctx context.Context, callID uuid.UUID) (*models.Call, error) {
	return s.get(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1`, callID)
}

func (s *CallStore) GetForUpdate(ctx context.Context, callID uuid.UUID) (*models.Call, error) {
	// Row lock held until the surrounding transaction ends: answer, reject
	// and end on one call run one at a time.
	return s.get(ctx, `SELECT `+callColumns+` FROM calls WHERE id = $1 FOR UPDATE`, callID)
}

func (s *CallStore) Update(ctx context.Context, call *models.Call) (*models.Call, error) {
	query := `
		UPDATE calls
		SET status = $2, started_at = $3, ended_at = $4, duration_seconds = $5, updated_at = now()
		WHERE id = $1
		RETURNING ` + callColumns

	updated, err := scanCall(s.q.QueryRow(ctx, query,
		call.ID, call.Status, call.StartedAt, call.EndedAt, call.DurationSeconds,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update call: %w", err)
	}
	return updated, nil
}

func (s *CallStore) list(ctx context.Context, query string, args ...any) ([]models.Call, error) {
	rows, err := s.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list calls: %w", err)
	}
	defer rows.Close()

	calls := make([]models.Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		calls = append(calls, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return calls, nil
}

func (s *CallStore) ListByChannel(ctx context.Context, channelID uuid.UUID, page models.Page) ([]models.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE channel_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`
	return s.list(ctx, query, channelID, page.Limit, page.Offset)
}

func (s *CallStore) ListRingingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Call, error) {
	query := `
		SELECT ` + callColumns + `
		FROM calls
		WHERE status = 'INITIATED' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`
	return s.list(ctx, query, cutoff, limit)
}
