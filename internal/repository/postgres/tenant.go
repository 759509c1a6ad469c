package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/courtyard/internal/models"
)

// TenantStore reads building memberships. Buildings and residents are
// written by the building-management service.
type TenantStore struct {
	q Querier
}

func NewTenantStore(q Querier) *TenantStore {
	return &TenantStore{q: q}
}

func scanTenantMembership(row scanner) (*models.TenantMembership, error) {
	var m models.TenantMembership
	if err := row.Scan(&m.TenantID, &m.UserID, &m.Role, &m.IsActive, &m.CreatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *TenantStore) ListMemberships(ctx context.Context, userID uuid.UUID) ([]models.TenantMembership, error) {
	query := `
		SELECT tenant_id, user_id, role, is_active, created_at
		FROM tenant_members
		WHERE user_id = $1
		ORDER BY created_at, tenant_id`

	rows, err := s.q.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list tenant memberships: %w", err)
	}
	defer rows.Close()

	memberships := make([]models.TenantMembership, 0)
	for rows.Next() {
		m, err := scanTenantMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tenant membership: %w", err)
		}
		memberships = append(memberships, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenant memberships: %w", err)
	}
	return memberships, nil
}

func (s *TenantStore) GetMembership(ctx context.Context, tenantID uuid.UUID, userID uuid.UUID) (*models.TenantMembership, error) {
	query := `
		SELECT tenant_id, user_id, role, is_active, created_at
		FROM tenant_members
		WHERE tenant_id = $1 AND user_id = $2`

	m, err := scanTenantMembership(s.q.QueryRow(ctx, query, tenantID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get tenant membership: %w", err)
	}
	return m, nil
}

func (s *TenantStore) ListActiveUsers(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT user_id
		FROM tenant_members
		WHERE tenant_id = $1 AND is_active
		ORDER BY created_at, user_id`

	rows, err := s.q.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list tenant users: %w", err)
	}
	defer rows.Close()

	ids := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant user: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tenant users: %w", err)
	}
	return ids, nil
}
