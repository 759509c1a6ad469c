package memory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/models"
)

type messageRepo struct{ s *Store }

func (r messageRepo) Create(ctx context.Context, msg *models.Message) (*models.Message, error) {
	var out models.Message
	r.s.do(func(st *state) {
		out = *msg
		out.ID = int64(len(st.messages) + 1)
		now := r.s.now()
		out.CreatedAt, out.UpdatedAt = now, now
		out.IsEdited, out.IsDeleted = false, false
		push(st, &st.messages, out)
	})
	return &out, nil
}

func (r messageRepo) GetByID(ctx context.Context, messageID int64) (*models.Message, error) {
	var out *models.Message
	r.s.do(func(st *state) {
		if messageID < 1 || messageID > int64(len(st.messages)) {
			return
		}
		m := st.messages[messageID-1]
		out = &m
	})
	return out, nil
}

func (r messageRepo) UpdateContent(ctx context.Context, messageID int64, content string, edited, deleted bool, at time.Time) (*models.Message, error) {
	var out *models.Message
	r.s.do(func(st *state) {
		if messageID < 1 || messageID > int64(len(st.messages)) {
			return
		}
		m := st.messages[messageID-1]
		m.Content = content
		m.IsEdited = m.IsEdited || edited
		m.IsDeleted = m.IsDeleted || deleted
		if deleted {
			m.AttachmentID = nil
		}
		m.UpdatedAt = at
		replace(st, &st.messages, int(messageID-1), m)
		out = &m
	})
	return out, nil
}

func (r messageRepo) ListByChannel(ctx context.Context, channelID uuid.UUID, before int64, limit int, types []models.MessageType) ([]models.Message, error) {
	allowed := make(map[models.MessageType]bool, len(types))
	for _, t := range types {
		allowed[t] = true
	}

	out := make([]models.Message, 0, limit)
	r.s.do(func(st *state) {
		for i := len(st.messages) - 1; i >= 0 && len(out) < limit; i-- {
			m := st.messages[i]
			if m.ChannelID != channelID {
				continue
			}
			if before > 0 && m.ID >= before {
				continue
			}
			if len(allowed) > 0 && !allowed[m.Type] {
				continue
			}
			out = append(out, m)
		}
	})
	return out, nil
}
