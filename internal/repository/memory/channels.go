package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/repository"
)

type channelRepo struct{ s *Store }

func (r channelRepo) insert(st *state, ch *models.Channel) *models.Channel {
	now := r.s.now()
	c := *ch
	c.LastActivityAt, c.CreatedAt, c.UpdatedAt = now, now, now
	put(st, st.channels, c.ID, c)
	push(st, &st.channelOrder, c.ID)
	if c.Type == models.ChannelTypeDirect && c.TenantID != nil && c.DirectKey != nil {
		put(st, st.directIndex, directKey{*c.TenantID, *c.DirectKey}, c.ID)
	}
	return &c
}

func (r channelRepo) Create(ctx context.Context, ch *models.Channel) (*models.Channel, error) {
	var (
		out *models.Channel
		err error
	)
	r.s.do(func(st *state) {
		if _, exists := st.channels[ch.ID]; exists {
			err = fmt.Errorf("insert channel: duplicate id %s", ch.ID)
			return
		}
		if ch.Type == models.ChannelTypeBuilding && ch.IsActive && ch.TenantID != nil {
			if activeBuilding(st, *ch.TenantID) != nil {
				err = repository.ErrConflict
				return
			}
		}
		out = r.insert(st, ch)
	})
	return out, err
}

func (r channelRepo) CreateDirectIfAbsent(ctx context.Context, ch *models.Channel) (*models.Channel, bool, error) {
	if ch.TenantID == nil || ch.DirectKey == nil {
		return nil, false, fmt.Errorf("insert direct channel: tenant and direct key are required")
	}
	var (
		out     *models.Channel
		created bool
	)
	r.s.do(func(st *state) {
		if id, ok := st.directIndex[directKey{*ch.TenantID, *ch.DirectKey}]; ok {
			existing := st.channels[id]
			out = &existing
			return
		}
		c := *ch
		c.Type = models.ChannelTypeDirect
		c.IsActive, c.IsPrivate, c.IsClosed = true, true, false
		out, created = r.insert(st, &c), true
	})
	return out, created, nil
}

func (r channelRepo) GetByID(ctx context.Context, channelID uuid.UUID) (*models.Channel, error) {
	var out *models.Channel
	r.s.do(func(st *state) {
		if c, ok := st.channels[channelID]; ok {
			out = &c
		}
	})
	return out, nil
}

func (r channelRepo) GetDirect(ctx context.Context, tenantID uuid.UUID, key string) (*models.Channel, error) {
	var out *models.Channel
	r.s.do(func(st *state) {
		if id, ok := st.directIndex[directKey{tenantID, key}]; ok {
			c := st.channels[id]
			out = &c
		}
	})
	return out, nil
}

func activeBuilding(st *state, tenantID uuid.UUID) *models.Channel {
	for _, id := range st.channelOrder {
		c := st.channels[id]
		if c.Type == models.ChannelTypeBuilding && c.IsActive && c.TenantID != nil && *c.TenantID == tenantID {
			return &c
		}
	}
	return nil
}

func (r channelRepo) ActiveBuildingChannel(ctx context.Context, tenantID uuid.UUID) (*models.Channel, error) {
	var out *models.Channel
	r.s.do(func(st *state) { out = activeBuilding(st, tenantID) })
	return out, nil
}

func (r channelRepo) ListForMember(ctx context.Context, tenantID uuid.UUID, userID uuid.UUID, page models.Page) ([]models.Channel, error) {
	out := make([]models.Channel, 0)
	r.s.do(func(st *state) {
		for _, id := range st.channelOrder {
			c := st.channels[id]
			if !c.IsActive || c.TenantID == nil || *c.TenantID != tenantID {
				continue
			}
			if m, ok := st.members[memberKey{c.ID, userID}]; ok && m.IsActive {
				out = append(out, c)
			}
		}
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastActivityAt.After(out[j].LastActivityAt)
	})
	return window(out, page), nil
}

func (r channelRepo) Update(ctx context.Context, ch *models.Channel) (*models.Channel, error) {
	var out *models.Channel
	r.s.do(func(st *state) {
		c, ok := st.channels[ch.ID]
		if !ok {
			return
		}
		c.Name, c.Description = ch.Name, ch.Description
		c.IsPrivate, c.IsClosed, c.IsActive = ch.IsPrivate, ch.IsClosed, ch.IsActive
		c.UpdatedAt = r.s.now()
		put(st, st.channels, c.ID, c)
		out = &c
	})
	return out, nil
}

func (r channelRepo) Touch(ctx context.Context, channelID uuid.UUID, at time.Time) error {
	r.s.do(func(st *state) {
		c, ok := st.channels[channelID]
		if !ok || !at.After(c.LastActivityAt) {
			return
		}
		c.LastActivityAt = at
		put(st, st.channels, channelID, c)
	})
	return nil
}

func window[T any](items []T, page models.Page) []T {
	if page.Offset >= len(items) {
		return make([]T, 0)
	}
	items = items[page.Offset:]
	if page.Limit > 0 && len(items) > page.Limit {
		items = items[:page.Limit]
	}
	return items
}
