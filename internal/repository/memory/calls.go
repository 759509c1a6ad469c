package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/models"
)

type callRepo struct{ s *Store }

func (r callRepo) Create(ctx context.Context, call *models.Call) (*models.Call, error) {
	var (
		out models.Call
		err error
	)
	r.s.do(func(st *state) {
		if _, exists := st.calls[call.ID]; exists {
			err = fmt.Errorf("insert call: duplicate id %s", call.ID)
			return
		}
		out = *call
		now := r.s.now()
		out.CreatedAt, out.UpdatedAt = now, now
		put(st, st.calls, out.ID, out)
		push(st, &st.callOrder, out.ID)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r callRepo) GetByID(ctx context.Context, callID uuid.UUID) (*models.Call, error) {
	var out *models.Call
	r.s.do(func(st *state) {
		if c, ok := st.calls[callID]; ok {
			out = &c
		}
	})
	return out, nil
}

// GetForUpdate needs no row lock: a transaction already holds the store lock.
func (r callRepo) GetForUpdate(ctx context.Context, callID uuid.UUID) (*models.Call, error) {
	return r.GetByID(ctx, callID)
}

func (r callRepo) Update(ctx context.Context, call *models.Call) (*models.Call, error) {
	var out *models.Call
	r.s.do(func(st *state) {
		c, ok := st.calls[call.ID]
		if !ok {
			return
		}
		c.Status = call.Status
		c.StartedAt, c.EndedAt = call.StartedAt, call.EndedAt
		c.DurationSeconds = call.DurationSeconds
		c.UpdatedAt = r.s.now()
		put(st, st.calls, c.ID, c)
		out = &c
	})
	return out, nil
}

func (r callRepo) ListByChannel(ctx context.Context, channelID uuid.UUID, page models.Page) ([]models.Call, error) {
	out := make([]models.Call, 0)
	r.s.do(func(st *state) {
		for i := len(st.callOrder) - 1; i >= 0; i-- {
			if c := st.calls[st.callOrder[i]]; c.ChannelID == channelID {
				out = append(out, c)
			}
		}
	})
	return window(out, page), nil
}

func (r callRepo) ListRingingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Call, error) {
	out := make([]models.Call, 0)
	r.s.do(func(st *state) {
		for _, id := range st.callOrder {
			if len(out) >= limit {
				return
			}
			c := st.calls[id]
			if c.Status == models.CallStatusInitiated && c.CreatedAt.Before(cutoff) {
				out = append(out, c)
			}
		}
	})
	return out, nil
}
