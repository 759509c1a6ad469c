package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/lalith-99/courtyard/internal/models"
)

type UserStore struct {
	q Querier
}

func NewUserStore(q Querier) *UserStore {
	return &UserStore{q: q}
}

func scanUser(row scanner) (*models.User, error) {
	var u models.User
	if err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user row.
func (s *UserStore) Create(ctx context.Context, email, displayName, passwordHash string) (*models.User, error) {
	query := `
		INSERT INTO users (id, email, display_name, password_hash, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, email, display_name, password_hash, created_at`

	u, err := scanUser(s.q.QueryRow(ctx, query, uuid.New(), email, displayName, passwordHash))
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	query := `
		SELECT id, email, display_name, password_hash, created_at
		FROM users
		WHERE id = $1`

	u, err := scanUser(s.q.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// GetByEmail looks up a user by email. Used for login and for tokens that
// identify the caller by email only.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
		SELECT id, email, display_name, password_hash, created_at
		FROM users
		WHERE lower(email) = lower($1)`

	u, err := scanUser(s.q.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}
