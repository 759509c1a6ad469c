package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/courtyard/internal/repository"
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx, so every
// store works the same inside and outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const uniqueViolation = "23505"

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolation && (constraint == "" || pgErr.ConstraintName == constraint)
}

// Store implements repository.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
	q    Querier
	tx   bool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, q: pool}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Channels() repository.ChannelRepository { return NewChannelStore(s.q) }

func (s *Store) Memberships() repository.MembershipRepository { return NewMembershipStore(s.q) }

func (s *Store) Messages() repository.MessageRepository { return NewMessageStore(s.q) }

func (s *Store) Calls() repository.CallRepository { return NewCallStore(s.q) }

func (s *Store) Notifications() repository.NotificationRepository { return NewNotificationStore(s.q) }

func (s *Store) Users() repository.UserRepository { return NewUserStore(s.q) }

func (s *Store) Tenants() repository.TenantRepository { return NewTenantStore(s.q) }

func (s *Store) Attachments() repository.AttachmentRepository { return NewAttachmentStore(s.q) }

// InTx begins a transaction, or joins the current one when s is already
// transactional.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.tx {
		return fn(s)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Rollback after a successful Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&Store{pool: s.pool, q: tx, tx: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
