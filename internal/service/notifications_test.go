package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/apperr"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/realtime"
	"github.com/lalith-99/courtyard/internal/worker"
)

func TestNotificationInbox(t *testing.T) {
	f := newFixture(t)
	alice := f.resident("Alice")
	other := uuid.New()

	for _, tenant := range []*uuid.UUID{&f.tenant, &f.tenant, &other} {
		if _, err := f.svc.Notifications.Create(f.ctx, CreateNotificationInput{
			RecipientID: alice.UserID,
			TenantID:    tenant,
			Title:       "Vote",
			Body:        "New vote on the roof repair",
			Type:        models.NotificationTypeMessage,
		}); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	items, err := f.svc.Notifications.List(f.ctx, alice, false, models.Page{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("listed %d notifications, want 2 from the selected building", len(items))
	}
	if count, _ := f.svc.Notifications.UnreadCount(f.ctx, alice); count != 2 {
		t.Fatalf("unread = %d, want 2", count)
	}

	read, err := f.svc.Notifications.MarkRead(f.ctx, alice, items[0].ID)
	if err != nil || !read.IsRead || read.ReadAt == nil {
		t.Fatalf("MarkRead = %+v, %v", read, err)
	}
	again, err := f.svc.Notifications.MarkRead(f.ctx, alice, items[0].ID)
	if err != nil || !again.ReadAt.Equal(*read.ReadAt) {
		t.Fatalf("second MarkRead = %+v, %v", again, err)
	}

	unread, _ := f.svc.Notifications.List(f.ctx, alice, true, models.Page{})
	if len(unread) != 1 || unread[0].ID != items[1].ID {
		t.Fatalf("unread = %+v", unread)
	}

	changed, err := f.svc.Notifications.MarkAllRead(f.ctx, alice)
	if err != nil || changed != 1 {
		t.Fatalf("MarkAllRead = %d, %v", changed, err)
	}
	if count, _ := f.svc.Notifications.UnreadCount(f.ctx, alice); count != 0 {
		t.Fatalf("unread after MarkAllRead = %d", count)
	}
}

func TestMarkReadOfAnotherUsersNotification(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.resident("Alice"), f.resident("Bob")
	n, _ := f.svc.Notifications.Create(f.ctx, CreateNotificationInput{
		RecipientID: alice.UserID, TenantID: &f.tenant, Title: "t", Body: "b", Type: models.NotificationTypeMessage,
	})

	_, err := f.svc.Notifications.MarkRead(f.ctx, bob, n.ID)
	wantKind(t, err, apperr.KindNotFound)
	if count, _ := f.svc.Notifications.UnreadCount(f.ctx, alice); count != 1 {
		t.Fatalf("alice unread = %d, want 1", count)
	}
}

func TestCreateNotificationValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Notifications.Create(f.ctx, CreateNotificationInput{Type: models.NotificationTypeMessage})
	wantKind(t, err, apperr.KindValidation)
	_, err = f.svc.Notifications.Create(f.ctx, CreateNotificationInput{RecipientID: uuid.New()})
	wantKind(t, err, apperr.KindValidation)
}

func TestPushGoesToEveryDevice(t *testing.T) {
	f := newFixture(t)
	alice := f.resident("Alice")

	if err := f.svc.Notifications.RegisterDevice(f.ctx, alice, " "); err == nil {
		t.Fatal("blank token should be rejected")
	}
	f.svc.Notifications.RegisterDevice(f.ctx, alice, "phone")
	f.svc.Notifications.RegisterDevice(f.ctx, alice, "tablet")

	f.svc.Notifications.Create(f.ctx, CreateNotificationInput{
		RecipientID: alice.UserID, TenantID: &f.tenant, Title: "t", Body: "b", Type: models.NotificationTypeChannelInvite,
	})
	sent := f.pusher.messages()
	if len(sent) != 2 || sent[0].DeviceToken != "phone" || sent[1].DeviceToken != "tablet" {
		t.Fatalf("pushes = %+v", sent)
	}

	f.svc.Notifications.UnregisterDevice(f.ctx, alice, "tablet")
	f.svc.Notifications.PushOnly(alice.UserID, "Bob", "Incoming call", models.NotificationTypeCallIncoming, nil)
	sent = f.pusher.messages()
	if len(sent) != 3 || sent[2].DeviceToken != "phone" {
		t.Fatalf("pushes after unregister = %+v", sent)
	}
}

func TestPushFailureKeepsNotification(t *testing.T) {
	f := newFixture(t)
	alice := f.resident("Alice")
	f.pusher.err = errors.New("gateway down")
	f.devices.Register(f.ctx, alice.UserID, "phone")

	n, err := f.svc.Notifications.Create(f.ctx, CreateNotificationInput{
		RecipientID: alice.UserID, TenantID: &f.tenant, Title: "t", Body: "b", Type: models.NotificationTypeMessage,
	})
	if err != nil || n == nil {
		t.Fatalf("Create with failing push = %+v, %v", n, err)
	}
	if len(f.pusher.messages()) != 1 {
		t.Fatal("push should be attempted exactly once")
	}
	if len(f.notifications(alice)) != 1 {
		t.Fatal("notification was not stored")
	}
}

func TestNotificationsSurviveFullJobQueue(t *testing.T) {
	f := newFixture(t)
	// One slot and no workers: the first job fills the queue and every
	// later delivery or push is dropped.
	f.rebuild(f.presence, worker.NewDispatcher(1, 1, nil))

	alice, bob := f.resident("Alice"), f.resident("Bob")
	ch := f.group(alice, bob)
	for i := 0; i < 3; i++ {
		if _, err := f.svc.Messages.Send(f.ctx, alice, SendMessageInput{ChannelID: ch.ID, Content: "parcel at the desk"}); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	dm := f.direct(alice, bob)
	call, err := f.svc.Calls.Initiate(f.ctx, alice, dm.ID, bob.UserID, false)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if _, err := f.svc.Calls.End(f.ctx, alice, call.ID); err != nil {
		t.Fatalf("End: %v", err)
	}

	counts := make(map[models.NotificationType]int)
	for _, n := range f.notifications(bob) {
		counts[n.Type]++
	}
	want := map[models.NotificationType]int{
		models.NotificationTypeChannelInvite: 1,
		models.NotificationTypeMessage:       3,
		models.NotificationTypeMissedCall:    1,
	}
	for typ, n := range want {
		if counts[typ] != n {
			t.Errorf("%s notifications = %d, want %d (all: %v)", typ, counts[typ], n, counts)
		}
	}
	if len(f.pusher.messages()) != 0 {
		t.Fatal("no job ran, so nothing should have been pushed")
	}
}

func TestAddedMemberGetsOneInvite(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.resident("Alice"), f.resident("Bob")
	ch := f.group(alice)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Members.AddMember(f.ctx, alice, ch.ID, bob.UserID); err != nil {
				t.Errorf("AddMember: %v", err)
			}
		}()
	}
	wg.Wait()

	invites := 0
	for _, n := range f.notifications(bob) {
		if n.Type == models.NotificationTypeChannelInvite {
			invites++
		}
	}
	if invites != 1 {
		t.Fatalf("invites = %d, want 1", invites)
	}
	added := 0
	for _, e := range f.presence.to(alice.UserID) {
		if e == realtime.EventChannelMemberAdded {
			added++
		}
	}
	if added != 1 {
		t.Fatalf("member_added events to owner = %d, want 1", added)
	}
}

type brokenDevices struct{ err error }

func (d brokenDevices) Register(context.Context, uuid.UUID, string) error { return d.err }
func (d brokenDevices) Unregister(context.Context, uuid.UUID, string) error { return d.err }
func (d brokenDevices) Tokens(context.Context, uuid.UUID) ([]string, error) { return nil, d.err }

func TestDeviceRegistryErrorsAreWrapped(t *testing.T) {
	f := newFixture(t)
	down := errors.New("redis down")
	svc := New(Config{Store: f.store, Presence: f.presence, Async: inlineAsync{}, Pusher: f.pusher, Devices: brokenDevices{down}})
	alice := f.resident("Alice")

	err := svc.Notifications.RegisterDevice(f.ctx, alice, "alice-phone")
	if !errors.Is(err, down) || !strings.HasPrefix(err.Error(), "register device: ") {
		t.Fatalf("RegisterDevice error = %v", err)
	}
	err = svc.Notifications.UnregisterDevice(f.ctx, alice, "alice-phone")
	if !errors.Is(err, down) || !strings.HasPrefix(err.Error(), "unregister device: ") {
		t.Fatalf("UnregisterDevice error = %v", err)
	}
}
