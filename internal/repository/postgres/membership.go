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

const memberColumns = `channel_id, user_id, role, can_write, is_active, joined_at, left_at`

type MembershipStore struct {
	q Querier
}

func NewMembershipStore(q Querier) *MembershipStore {
	return &MembershipStore{q: q}
}

func scanMember(row scanner) (*models.ChannelMember, error) {
	var m models.ChannelMember
	if err := row.Scan(&m.ChannelID, &m.UserID, &m.Role, &m.CanWrite, &m.IsActive, &m.JoinedAt, &m.LeftAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MembershipStore) Upsert(ctx context.Context, m *models.ChannelMember) (*models.ChannelMember, error) {
	// The primary key on (channel_id, user_id) makes concurrent joins by the
	// same user converge on one row. An already-active row keeps its
	// original joined_at.
	query := `
		INSERT INTO channel_members (channel_id, user_id, role, can_write, is_active, joined_at, left_at)
		VALUES ($1, $2, $3, $4, true, now(), NULL)
		ON CONFLICT (channel_id, user_id) DO UPDATE
		SET role = EXCLUDED.role,
			can_write = EXCLUDED.can_write,
			is_active = true,
			left_at = NULL,
			joined_at = CASE WHEN channel_members.is_active THEN channel_members.joined_at ELSE now() END
		RETURNING ` + memberColumns

	member, err := scanMember(s.q.QueryRow(ctx, query, m.ChannelID, m.UserID, m.Role, m.CanWrite))
	if err != nil {
		return nil, fmt.Errorf("upsert member: %w", err)
	}
	return member, nil
}

func (s *MembershipStore) Activate(ctx context.Context, m *models.ChannelMember) (*models.ChannelMember, bool, error) {
	// The WHERE on the conflict branch is evaluated against the row after
	// any concurrent writer has committed. A second joiner finds it active,
	// updates nothing and gets no row back.
	query := `
		INSERT INTO channel_members (channel_id, user_id, role, can_write, is_active, joined_at, left_at)
		VALUES ($1, $2, $3, $4, true, now(), NULL)
		ON CONFLICT (channel_id, user_id) DO UPDATE
		SET role = EXCLUDED.role,
			can_write = EXCLUDED.can_write,
			is_active = true,
			left_at = NULL,
			joined_at = now()
		WHERE NOT channel_members.is_active
		RETURNING ` + memberColumns

	member, err := scanMember(s.q.QueryRow(ctx, query, m.ChannelID, m.UserID, m.Role, m.CanWrite))
	if err == nil {
		return member, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("activate member: %w", err)
	}

	existing, err := s.Get(ctx, m.ChannelID, m.UserID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (s *MembershipStore) Get(ctx context.Context, channelID uuid.UUID, userID uuid.UUID) (*models.ChannelMember, error) {
	query := `SELECT ` + memberColumns + ` FROM channel_members WHERE channel_id = $1 AND user_id = $2`

	member, err := scanMember(s.q.QueryRow(ctx, query, channelID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return member, nil
}

func (s *MembershipStore) Deactivate(ctx context.Context, channelID uuid.UUID, userID uuid.UUID, at time.Time) error {
	// Soft removal: the row stays so a later re-add reactivates it.
	query := `
		UPDATE channel_members
		SET is_active = false, left_at = $3
		WHERE channel_id = $1 AND user_id = $2 AND is_active`

	if _, err := s.q.Exec(ctx, query, channelID, userID, at); err != nil {
		return fmt.Errorf("deactivate member: %w", err)
	}
	return nil
}

func (s *MembershipStore) UpdatePermissions(ctx context.Context, channelID uuid.UUID, userID uuid.UUID, role models.MemberRole, canWrite bool) (*models.ChannelMember, error) {
	query := `
		UPDATE channel_members
		SET role = $3, can_write = $4
		WHERE channel_id = $1 AND user_id = $2
		RETURNING ` + memberColumns

	member, err := scanMember(s.q.QueryRow(ctx, query, channelID, userID, role, canWrite))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("update member: %w", err)
	}
	return member, nil
}

func (s *MembershipStore) ListActive(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM channel_members
		WHERE channel_id = $1 AND is_active
		ORDER BY joined_at, user_id`

	rows, err := s.q.Query(ctx, query, channelID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := make([]models.ChannelMember, 0)
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate members: %w", err)
	}

	return members, nil
}
