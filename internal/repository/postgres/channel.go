package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/repository"
)

const channelColumns = `id, tenant_id, name, description, type, creator_id, is_active,
	is_private, is_closed, direct_key, last_activity_at, created_at, updated_at`

type ChannelStore struct {
	q Querier
}

func NewChannelStore(q Querier) *ChannelStore {
	return &ChannelStore{q: q}
}

func scanChannel(row scanner) (*models.Channel, error) {
	var ch models.Channel
	err := row.Scan(
		&ch.ID,
		&ch.TenantID,
		&ch.Name,
		&ch.Description,
		&ch.Type,
		&ch.CreatorID,
		&ch.IsActive,
		&ch.IsPrivate,
		&ch.IsClosed,
		&ch.DirectKey,
		&ch.LastActivityAt,
		&ch.CreatedAt,
		&ch.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *ChannelStore) Create(ctx context.Context, ch *models.Channel) (*models.Channel, error) {
	query := `
		INSERT INTO channels (id, tenant_id, name, description, type, creator_id,
			is_active, is_private, is_closed, direct_key, last_activity_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now(), now())
		RETURNING ` + channelColumns

	created, err := scanChannel(s.q.QueryRow(ctx, query,
		ch.ID, ch.TenantID, ch.Name, ch.Description, ch.Type, ch.CreatorID,
		ch.IsActive, ch.IsPrivate, ch.IsClosed, ch.DirectKey,
	))
	if err != nil {
		if isUniqueViolation(err, "uq_channels_active_building") {
			return nil, repository.ErrConflict
		}
		return nil, fmt.Errorf("insert channel: %w", err)
	}
	return created, nil
}

func (s *ChannelStore) CreateDirectIfAbsent(ctx context.Context, ch *models.Channel) (*models.Channel, bool, error) {
	// A concurrent insert of the same pair blocks on the unique index until
	// the other transaction finishes, then DO NOTHING returns no row and we
	// read the winner.
	query := `
		INSERT INTO channels (id, tenant_id, name, description, type, creator_id,
			is_active, is_private, is_closed, direct_key, last_activity_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 'direct', $5, true, true, false, $6, now(), now(), now())
		ON CONFLICT (tenant_id, direct_key) WHERE type = 'direct' DO NOTHING
		RETURNING ` + channelColumns

	created, err := scanChannel(s.q.QueryRow(ctx, query,
		ch.ID, ch.TenantID, ch.Name, ch.Description, ch.CreatorID, ch.DirectKey,
	))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("insert direct channel: %w", err)
	}

	if ch.TenantID == nil || ch.DirectKey == nil {
		return nil, false, fmt.Errorf("insert direct channel: tenant and direct key are required")
	}
	existing, err := s.GetDirect(ctx, *ch.TenantID, *ch.DirectKey)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("direct channel conflict without existing row")
	}
	return existing, false, nil
}

func (s *ChannelStore) GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	query := `SELECT ` + channelColumns + ` FROM channels WHERE id = $1`

	ch, err := scanChannel(s.q.QueryRow(ctx, query, channelID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return ch, nil
}

func (s *ChannelStore) GetDirect(ctx context.Context, tenantID uuid.UUID, directKey string) (*models.Channel, error) {
	query := `
		SELECT ` + channelColumns + `
		FROM channels
		WHERE tenant_id = $1 AND direct_key = $2 AND type = 'direct'`

	ch, err := scanChannel(s.q.QueryRow(ctx, query, tenantID, directKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get direct channel: %w", err)
	}
	return ch, nil
}

func (s *ChannelStore) ActiveBuildingChannel(ctx context.Context, tenantID uuid.UUID) (*models.Channel, error) {
	query := `
		SELECT ` + channelColumns + `
		FROM channels
		WHERE tenant_id = $1 AND type = 'building' AND is_active`

	ch, err := scanChannel(s.q.QueryRow(ctx, query, tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get building channel: %w", err)
	}
	return ch, nil
}

func (s *ChannelStore) ListForMember(ctx context.Context, tenantID uuid.UUID, userID uuid.UUID, page models.Page) ([]models.Channel, error) {
	query := `
		SELECT c.id, c.tenant_id, c.name, c.description, c.type, c.creator_id, c.is_active,
			c.is_private, c.is_closed, c.direct_key, c.last_activity_at, c.created_at, c.updated_at
		FROM channels c
		JOIN channel_members m ON m.channel_id = c.id
		WHERE c.tenant_id = $1 AND m.user_id = $2 AND m.is_active AND c.is_active
		ORDER BY c.last_activity_at DESC, c.id
		LIMIT $3 OFFSET $4`

	rows, err := s.q.Query(ctx, query, tenantID, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	channels := make([]models.Channel, 0)
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, *ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}

	return channels, nil
}

func (s *ChannelStore) Update(ctx context.Context, ch *models.Channel) (*models.Channel, error) {
	query := `
		UPDATE channels
		SET name = $2, description = $3, is_private = $4, is_closed = $5, is_active = $6, updated_at = now()
		WHERE id = $1
		RETURNING ` + channelColumns

	updated, err := scanChannel(s.q.QueryRow(ctx, query,
		ch.ID, ch.Name, ch.Description, ch.IsPrivate, ch.IsClosed, ch.IsActive,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update channel: %w", err)
	}
	return updated, nil
}

func (s *ChannelStore) Touch(ctx context.Context, channelID uuid.UUID, at time.Time) error {
	query := `
		UPDATE channels
		SET last_activity_at = GREATEST(last_activity_at, $2)
		WHERE id = $1`

	if _, err := s.q.Exec(ctx, query, channelID, at); err != nil {
		return fmt.Errorf("touch channel: %w", err)
	}
	return nil
}
