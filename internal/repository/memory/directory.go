package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/models"
)

type notificationRepo struct{ s *Store }

func tenantMatches(filter, value *uuid.UUID) bool {
	if filter == nil {
		return true
	}
	return value != nil && *value == *filter
}

func (r notificationRepo) Create(ctx context.Context, n *models.Notification) (*models.Notification, error) {
	var out models.Notification
	r.s.do(func(st *state) {
		out = *n
		out.IsRead, out.ReadAt = false, nil
		out.CreatedAt = r.s.now()
		push(st, &st.notifications, out)
	})
	return &out, nil
}

func (r notificationRepo) ListByRecipient(ctx context.Context, recipientID uuid.UUID, tenantID *uuid.UUID, unreadOnly bool, page models.Page) ([]models.Notification, error) {
	out := make([]models.Notification, 0)
	r.s.do(func(st *state) {
		for i := len(st.notifications) - 1; i >= 0; i-- {
			n := st.notifications[i]
			if n.RecipientID != recipientID || !tenantMatches(tenantID, n.TenantID) {
				continue
			}
			if unreadOnly && n.IsRead {
				continue
			}
			out = append(out, n)
		}
	})
	return window(out, page), nil
}

func (r notificationRepo) MarkRead(ctx context.Context, recipientID uuid.UUID, notificationID uuid.UUID, at time.Time) (*models.Notification, error) {
	var out *models.Notification
	r.s.do(func(st *state) {
		for i, n := range st.notifications {
			if n.ID != notificationID || n.RecipientID != recipientID {
				continue
			}
			if !n.IsRead {
				readAt := at
				n.IsRead, n.ReadAt = true, &readAt
				replace(st, &st.notifications, i, n)
			}
			out = &n
			return
		}
	})
	return out, nil
}

func (r notificationRepo) MarkAllRead(ctx context.Context, recipientID uuid.UUID, tenantID *uuid.UUID, at time.Time) (int64, error) {
	var changed int64
	r.s.do(func(st *state) {
		for i, n := range st.notifications {
			if n.RecipientID != recipientID || n.IsRead || !tenantMatches(tenantID, n.TenantID) {
				continue
			}
			readAt := at
			n.IsRead, n.ReadAt = true, &readAt
			replace(st, &st.notifications, i, n)
			changed++
		}
	})
	return changed, nil
}

func (r notificationRepo) CountUnread(ctx context.Context, recipientID uuid.UUID, tenantID *uuid.UUID) (int64, error) {
	var count int64
	r.s.do(func(st *state) {
		for _, n := range st.notifications {
			if n.RecipientID == recipientID && !n.IsRead && tenantMatches(tenantID, n.TenantID) {
				count++
			}
		}
	})
	return count, nil
}

type userRepo struct{ s *Store }

func (r userRepo) Create(ctx context.Context, email, displayName, passwordHash string) (*models.User, error) {
	var (
		out models.User
		err error
	)
	r.s.do(func(st *state) {
		for _, u := range st.users {
			if strings.EqualFold(u.Email, email) {
				err = fmt.Errorf("insert user: email %q already registered", email)
				return
			}
		}
		out = models.User{
			ID:           uuid.New(),
			Email:        email,
			DisplayName:  displayName,
			PasswordHash: passwordHash,
			CreatedAt:    r.s.now(),
		}
		put(st, st.users, out.ID, out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r userRepo) GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var out *models.User
	r.s.do(func(st *state) {
		if u, ok := st.users[userID]; ok {
			out = &u
		}
	})
	return out, nil
}

func (r userRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var out *models.User
	r.s.do(func(st *state) {
		for _, u := range st.users {
			if strings.EqualFold(u.Email, email) {
				u := u
				out = &u
				return
			}
		}
	})
	return out, nil
}

type tenantRepo struct{ s *Store }

func (r tenantRepo) ListMemberships(ctx context.Context, userID uuid.UUID) ([]models.TenantMembership, error) {
	out := make([]models.TenantMembership, 0)
	r.s.do(func(st *state) {
		for _, k := range st.tenantOrder {
			if k.userID == userID {
				out = append(out, st.tenantMembers[k])
			}
		}
	})
	return out, nil
}

func (r tenantRepo) GetMembership(ctx context.Context, tenantID uuid.UUID, userID uuid.UUID) (*models.TenantMembership, error) {
	var out *models.TenantMembership
	r.s.do(func(st *state) {
		if m, ok := st.tenantMembers[tenantKey{tenantID, userID}]; ok {
			out = &m
		}
	})
	return out, nil
}

func (r tenantRepo) ListActiveUsers(ctx context.Context, tenantID uuid.UUID) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0)
	r.s.do(func(st *state) {
		for _, k := range st.tenantOrder {
			if k.tenantID == tenantID && st.tenantMembers[k].IsActive {
				out = append(out, k.userID)
			}
		}
	})
	return out, nil
}

type attachmentRepo struct{ s *Store }

func (r attachmentRepo) GetByID(ctx context.Context, attachmentID uuid.UUID) (*models.Attachment, error) {
	var out *models.Attachment
	r.s.do(func(st *state) {
		if a, ok := st.attachments[attachmentID]; ok {
			out = &a
		}
	})
	return out, nil
}
