package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/apperr"
	"github.com/lalith-99/courtyard/internal/auth"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/push"
	"github.com/lalith-99/courtyard/internal/realtime"
	"github.com/lalith-99/courtyard/internal/repository/memory"
	"github.com/lalith-99/courtyard/internal/worker"
)

// inlineAsync runs side effects immediately so tests can assert on them.
type inlineAsync struct{}

func (inlineAsync) Submit(name string, fn worker.Job) bool {
	fn(context.Background())
	return true
}

type delivery struct {
	userID   uuid.UUID
	tenantID *uuid.UUID
	env      realtime.Envelope
}

// fakePresence records every delivery attempt. Its return value follows
// the hub: only connections bound to the envelope's building count, and a
// nil building reaches every connection.
type fakePresence struct {
	mu        sync.Mutex
	conns     map[uuid.UUID][]*uuid.UUID
	delivered []delivery
}

func newFakePresence() *fakePresence {
	return &fakePresence{conns: make(map[uuid.UUID][]*uuid.UUID)}
}

func (p *fakePresence) Deliver(userID uuid.UUID, tenantID *uuid.UUID, env realtime.Envelope) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delivered = append(p.delivered, delivery{userID, tenantID, env})

	n := 0
	for _, bound := range p.conns[userID] {
		if tenantID == nil || (bound != nil && *bound == *tenantID) {
			n++
		}
	}
	return n
}

// connect opens a connection for userID bound to tenantID.
func (p *fakePresence) connect(userID uuid.UUID, tenantID *uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[userID] = append(p.conns[userID], tenantID)
}

// to returns the event types delivered to userID, in order.
func (p *fakePresence) to(userID uuid.UUID) []realtime.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []realtime.EventType
	for _, d := range p.delivered {
		if d.userID == userID {
			out = append(out, d.env.Type)
		}
	}
	return out
}

type fakePusher struct {
	mu   sync.Mutex
	sent []push.Message
	err  error
}

func (p *fakePusher) Send(ctx context.Context, msg push.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, msg)
	return p.err
}

func (p *fakePusher) messages() []push.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]push.Message(nil), p.sent...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memory.Store
	svc      *Services
	presence *fakePresence
	pusher   *fakePusher
	devices  *push.MemoryDevices
	clock    *fakeClock
	tenant   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		store:    memory.NewStore(),
		presence: newFakePresence(),
		pusher:   &fakePusher{},
		devices:  push.NewMemoryDevices(),
		clock:    &fakeClock{now: time.Now()},
		tenant:   uuid.New(),
	}
	f.rebuild(f.presence, inlineAsync{})
	return f
}

// rebuild reassembles the services around presence and async, keeping the
// store, pusher, devices and clock.
func (f *fixture) rebuild(presence Presence, async Async) {
	f.svc = New(Config{
		Store:         f.store,
		Presence:      presence,
		Async:         async,
		Pusher:        f.pusher,
		Devices:       f.devices,
		PreviewLength: 20,
		Clock:         f.clock.Now,
	})
}

// user creates a user living in tenant with role and returns their
// building-scoped principal.
func (f *fixture) user(name string, tenant uuid.UUID, role models.TenantRole) auth.Principal {
	f.t.Helper()
	u, err := f.store.Users().Create(f.ctx, strings.ToLower(name)+"@example.com", name, "")
	if err != nil {
		f.t.Fatalf("create user %s: %v", name, err)
	}
	f.store.AddTenantMember(tenant, u.ID, role)
	tid := tenant
	return auth.Principal{UserID: u.ID, TenantID: &tid, Role: role, Email: u.Email}
}

func (f *fixture) resident(name string) auth.Principal {
	return f.user(name, f.tenant, models.TenantRoleResident)
}

func (f *fixture) admin(name string) auth.Principal {
	return f.user(name, f.tenant, models.TenantRoleAdmin)
}

func (f *fixture) group(owner auth.Principal, members ...auth.Principal) *models.Channel {
	f.t.Helper()
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	ch, err := f.svc.Channels.CreateChannel(f.ctx, owner, CreateChannelInput{
		Name: "neighbours", Type: models.ChannelTypeGroup, MemberIDs: ids,
	})
	if err != nil {
		f.t.Fatalf("create group: %v", err)
	}
	return ch
}

func (f *fixture) notifications(p auth.Principal) []models.Notification {
	f.t.Helper()
	items, err := f.store.Notifications().ListByRecipient(f.ctx, p.UserID, nil, false, models.Page{Limit: 100})
	if err != nil {
		f.t.Fatalf("list notifications: %v", err)
	}
	return items
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("error kind = %q (%v), want %q", got, err, kind)
	}
}

func wantCode(t *testing.T, err error, code apperr.Code) {
	t.Helper()
	var e *apperr.Error
	if !errors.As(err, &e) || e.Code != code {
		t.Fatalf("error = %v, want code %s", err, code)
	}
}
