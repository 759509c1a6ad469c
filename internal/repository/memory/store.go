// Package memory is an in-process implementation of repository.Store.
//
// Transactions hold one store-wide lock and undo their writes on error,
// which gives the same atomicity and serialization guarantees the Postgres
// implementation gets from row locks and unique indexes. It backs the
// service tests and single-binary local runs.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/repository"
)

type memberKey struct {
	channelID uuid.UUID
	userID    uuid.UUID
}

type tenantKey struct {
	tenantID uuid.UUID
	userID   uuid.UUID
}

type directKey struct {
	tenantID uuid.UUID
	key      string
}

type state struct {
	users         map[uuid.UUID]models.User
	tenantMembers map[tenantKey]models.TenantMembership
	tenantOrder   []tenantKey
	attachments   map[uuid.UUID]models.Attachment

	channels      map[uuid.UUID]models.Channel
	channelOrder  []uuid.UUID
	directIndex   map[directKey]uuid.UUID
	members       map[memberKey]models.ChannelMember
	memberOrder   []memberKey
	messages      []models.Message
	calls         map[uuid.UUID]models.Call
	callOrder     []uuid.UUID
	notifications []models.Notification

	// inTx is set while InTx runs; undo then collects one reversal per write.
	inTx bool
	undo []func()
}

func newState() *state {
	return &state{
		users:         make(map[uuid.UUID]models.User),
		tenantMembers: make(map[tenantKey]models.TenantMembership),
		attachments:   make(map[uuid.UUID]models.Attachment),
		channels:      make(map[uuid.UUID]models.Channel),
		directIndex:   make(map[directKey]uuid.UUID),
		members:       make(map[memberKey]models.ChannelMember),
		calls:         make(map[uuid.UUID]models.Call),
	}
}

// Writes go through put, push and replace so a transaction can record how
// to reverse them. Outside a transaction nothing is recorded.

func put[K comparable, V any](st *state, m map[K]V, k K, v V) {
	if st.inTx {
		old, existed := m[k]
		st.undo = append(st.undo, func() {
			if existed {
				m[k] = old
			} else {
				delete(m, k)
			}
		})
	}
	m[k] = v
}

func push[T any](st *state, s *[]T, v T) {
	if st.inTx {
		n := len(*s)
		st.undo = append(st.undo, func() { *s = (*s)[:n] })
	}
	*s = append(*s, v)
}

func replace[T any](st *state, s *[]T, i int, v T) {
	if st.inTx {
		old := (*s)[i]
		st.undo = append(st.undo, func() { (*s)[i] = old })
	}
	(*s)[i] = v
}

func (st *state) rollback() {
	for i := len(st.undo) - 1; i >= 0; i-- {
		st.undo[i]()
	}
}

type db struct {
	mu    sync.Mutex
	st    *state
	clock func() time.Time
}

// Store implements repository.Store in memory.
type Store struct {
	db *db
	// locked is true for the Store handed to an InTx callback; its methods
	// run under the lock InTx already holds.
	locked bool
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{db: &db{st: newState(), clock: time.Now}}
}

// do runs fn with the state lock held.
func (s *Store) do(fn func(st *state)) {
	if !s.locked {
		s.db.mu.Lock()
		defer s.db.mu.Unlock()
	}
	fn(s.db.st)
}

func (s *Store) now() time.Time {
	return s.db.clock().UTC()
}

func (s *Store) InTx(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.locked {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	st := s.db.st
	st.inTx = true
	committed := false
	defer func() {
		if !committed {
			st.rollback()
		}
		st.inTx, st.undo = false, nil
	}()

	if err := fn(&Store{db: s.db, locked: true}); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) Channels() repository.ChannelRepository { return channelRepo{s} }

func (s *Store) Memberships() repository.MembershipRepository { return memberRepo{s} }

func (s *Store) Messages() repository.MessageRepository { return messageRepo{s} }

func (s *Store) Calls() repository.CallRepository { return callRepo{s} }

func (s *Store) Notifications() repository.NotificationRepository { return notificationRepo{s} }

func (s *Store) Users() repository.UserRepository { return userRepo{s} }

func (s *Store) Tenants() repository.TenantRepository { return tenantRepo{s} }

func (s *Store) Attachments() repository.AttachmentRepository { return attachmentRepo{s} }

// Seeding helpers for the rows owned by collaborating services.

// AddTenantMember records a user as belonging to a building.
func (s *Store) AddTenantMember(tenantID, userID uuid.UUID, role models.TenantRole) {
	s.do(func(st *state) {
		k := tenantKey{tenantID, userID}
		if _, ok := st.tenantMembers[k]; !ok {
			push(st, &st.tenantOrder, k)
		}
		put(st, st.tenantMembers, k, models.TenantMembership{
			TenantID:  tenantID,
			UserID:    userID,
			Role:      role,
			IsActive:  true,
			CreatedAt: s.now(),
		})
	})
}

// SetTenantMemberActive toggles a building membership.
func (s *Store) SetTenantMemberActive(tenantID, userID uuid.UUID, active bool) {
	s.do(func(st *state) {
		k := tenantKey{tenantID, userID}
		if m, ok := st.tenantMembers[k]; ok {
			m.IsActive = active
			put(st, st.tenantMembers, k, m)
		}
	})
}

// AddAttachment records an uploaded file.
func (s *Store) AddAttachment(a models.Attachment) {
	s.do(func(st *state) {
		if a.CreatedAt.IsZero() {
			a.CreatedAt = s.now()
		}
		put(st, st.attachments, a.ID, a)
	})
}
