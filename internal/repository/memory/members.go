package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/models"
)

type memberRepo struct{ s *Store }

func (r memberRepo) Upsert(ctx context.Context, m *models.ChannelMember) (*models.ChannelMember, error) {
	var out models.ChannelMember
	r.s.do(func(st *state) {
		k := memberKey{m.ChannelID, m.UserID}
		existing, ok := st.members[k]
		if !ok {
			push(st, &st.memberOrder, k)
		}
		joined := r.s.now()
		if ok && existing.IsActive {
			joined = existing.JoinedAt
		}
		out = models.ChannelMember{
			ChannelID: m.ChannelID,
			UserID:    m.UserID,
			Role:      m.Role,
			CanWrite:  m.CanWrite,
			IsActive:  true,
			JoinedAt:  joined,
		}
		put(st, st.members, k, out)
	})
	return &out, nil
}

func (r memberRepo) Activate(ctx context.Context, m *models.ChannelMember) (*models.ChannelMember, bool, error) {
	var (
		out       models.ChannelMember
		activated bool
	)
	r.s.do(func(st *state) {
		k := memberKey{m.ChannelID, m.UserID}
		existing, ok := st.members[k]
		if ok && existing.IsActive {
			out = existing
			return
		}
		if !ok {
			push(st, &st.memberOrder, k)
		}
		out = models.ChannelMember{
			ChannelID: m.ChannelID,
			UserID:    m.UserID,
			Role:      m.Role,
			CanWrite:  m.CanWrite,
			IsActive:  true,
			JoinedAt:  r.s.now(),
		}
		put(st, st.members, k, out)
		activated = true
	})
	return &out, activated, nil
}

func (r memberRepo) Get(ctx context.Context, channelID uuid.UUID, userID uuid.UUID) (*models.ChannelMember, error) {
	var out *models.ChannelMember
	r.s.do(func(st *state) {
		if m, ok := st.members[memberKey{channelID, userID}]; ok {
			out = &m
		}
	})
	return out, nil
}

func (r memberRepo) Deactivate(ctx context.Context, channelID uuid.UUID, userID uuid.UUID, at time.Time) error {
	r.s.do(func(st *state) {
		k := memberKey{channelID, userID}
		m, ok := st.members[k]
		if !ok || !m.IsActive {
			return
		}
		left := at
		m.IsActive = false
		m.LeftAt = &left
		put(st, st.members, k, m)
	})
	return nil
}

func (r memberRepo) UpdatePermissions(ctx context.Context, channelID uuid.UUID, userID uuid.UUID, role models.MemberRole, canWrite bool) (*models.ChannelMember, error) {
	var out *models.ChannelMember
	r.s.do(func(st *state) {
		k := memberKey{channelID, userID}
		m, ok := st.members[k]
		if !ok {
			return
		}
		m.Role, m.CanWrite = role, canWrite
		put(st, st.members, k, m)
		out = &m
	})
	return out, nil
}

func (r memberRepo) ListActive(ctx context.Context, channelID uuid.UUID) ([]models.ChannelMember, error) {
	out := make([]models.ChannelMember, 0)
	r.s.do(func(st *state) {
		for _, k := range st.memberOrder {
			if k.channelID != channelID {
				continue
			}
			if m := st.members[k]; m.IsActive {
				out = append(out, m)
			}
		}
	})
	return out, nil
}
