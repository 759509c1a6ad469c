package service

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/apperr"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/realtime"
)

func TestSendThenListReturnsMessageFirst(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.resident("Alice"), f.resident("Bob")
	ch := f.group(alice, bob)

	for _, text := range []string{"one", "two", "three"} {
		sent, err := f.svc.Messages.Send(f.ctx, alice, SendMessageInput{ChannelID: ch.ID, Content: text})
		if err != nil {
			t.Fatalf("Send: %v", err)
		}

		for read := 0; read < 2; read++ {
			list, err := f.svc.Messages.List(f.ctx, bob, ch.ID, 0, 10)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) == 0 || list[0].ID != sent.ID || list[0].Content != text {
				t.Fatalf("latest = %+v, want id %d", list, sent.ID)
			}
		}
	}

	page, _ := f.svc.Messages.List(f.ctx, bob, ch.ID, 0, 2)
	older, _ := f.svc.Messages.List(f.ctx, bob, ch.ID, page[1].ID, 2)
	if len(older) != 1 || older[0].Content != "one" {
		t.Fatalf("older page = %+v", older)
	}
}

func TestSendFanOut(t *testing.T) {
	f := newFixture(t)
	alice, bob, carol := f.resident("Alice"), f.resident("Bob"), f.resident("Carol")
	ch := f.group(alice, bob, carol)
	f.devices.Register(f.ctx, bob.UserID, "bob-phone")

	if _, err := f.svc.Messages.Send(f.ctx, alice, SendMessageInput{ChannelID: ch.ID, Content: "Water is off on Tuesday morning"}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	for _, p := range []uuid.UUID{alice.UserID, bob.UserID, carol.UserID} {
		got := f.presence.to(p)
		if len(got) == 0 || got[len(got)-1] != realtime.EventMessageNew {
			t.Fatalf("deliveries to %s = %v", p, got)
		}
	}

	if n := f.notifications(alice); len(n) != 0 {
		t.Fatalf("sender notified: %+v", n)
	}
	var msgNote *models.Notification
	for _, n := range f.notifications(bob) {
		if n.Type == models.NotificationTypeMessage {
			n := n
			msgNote = &n
		}
	}
	if msgNote == nil {
		t.Fatal("bob got no message notification")
	}
	if msgNote.Title != "neighbours" {
		t.Fatalf("title = %q, want channel name", msgNote.Title)
	}
	// Preview length is 20 runes in the fixture.
	if msgNote.Body != "Alice: Water is off …" {
		t.Fatalf("body = %q", msgNote.Body)
	}

	pushed := false
	for _, m := range f.pusher.messages() {
		if m.DeviceToken == "bob-phone" && m.Type == string(models.NotificationTypeMessage) {
			pushed = true
		}
	}
	if !pushed {
		t.Fatalf("no push to bob's device: %+v", f.pusher.messages())
	}
}

func TestDirectMessageNotificationShowsSender(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.resident("Alice"), f.resident("Bob")
	ch, _, _ := f.svc.Channels.GetOrCreateDirectChannel(f.ctx, alice, bob.UserID)

	f.svc.Messages.Send(f.ctx, alice, SendMessageInput{ChannelID: ch.ID, Content: "hi"})

	notes := f.notifications(bob)
	if len(notes) != 1 || notes[0].Title != "Alice" || notes[0].Body != "hi" {
		t.Fatalf("notifications = %+v", notes)
	}
}

func TestNonMemberCannotTouchChannel(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.resident("Alice"), f.resident("Bob")
	admin := f.admin("Admin")
	ch := f.group(alice)

	sent, err := f.svc.Messages.Send(f.ctx, alice, SendMessageInput{ChannelID: ch.ID, Content: "members only"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	for _, p := range []struct {
		name string
		err  error
	}{
		{"send", func() error {
			_, err := f.svc.Messages.Send(f.ctx, bob, SendMessageInput{ChannelID: ch.ID, Content: "let me in"})
			return err
		}()},
		{"send as building admin", func() error {
			_, err := f.svc.Messages.Send(f.ctx, admin, SendMessageInput{ChannelID: ch.ID, Content: "admin"})
			return err
		}()},
		{"list", func() error { _, err := f.svc.Messages.List(f.ctx, bob, ch.ID, 0, 10); return err }()},
		{"edit", func() error { _, err := f.svc.Messages.Edit(f.ctx, bob, sent.ID, "x"); return err }()},
		{"delete", func() error { _, err := f.svc.Messages.Delete(f.ctx, bob, sent.ID); return err }()},
	} {
		t.Run(p.name, func(t *testing.T) {
			wantKind(t, p.err, apperr.KindAuthorization)
		})
	}

	list, _ := f.store.Messages().ListByChannel(f.ctx, ch.ID, 0, 100, nil)
	if len(list) != 1 {
		t.Fatalf("messages stored = %d, want 1", len(list))
	}
}

func TestFormerMemberLosesAccess(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.resident("Alice"), f.resident("Bob")
	ch := f.group(alice, bob)
	f.svc.Members.LeaveChannel(f.ctx, bob, ch.ID)

	_, err := f.svc.Messages.Send(f.ctx, bob, SendMessageInput{ChannelID: ch.ID, Content: "still here?"})
	wantKind(t, err, apperr.KindAuthorization)
	_, err = f.svc.Messages.List(f.ctx, bob, ch.ID, 0, 10)
	wantKind(t, err, apperr.KindAuthorization)
}

func TestSendAttachmentOnly(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.resident("Alice"), f.resident("Bob")
	ch := f.group(alice, bob)

	image := models.Attachment{ID: uuid.New(), OwnerID: alice.UserID, FileName: "leak.jpg", MimeType: "image/jpeg", URL: "https://files.example.com/leak.jpg"}
	pdf := models.Attachment{ID: uuid.New(), OwnerID: alice.UserID, FileName: "lease.pdf", MimeType: "application/pdf", URL: "https://files.example.com/lease.pdf"}
	foreign := models.Attachment{ID: uuid.New(), OwnerID: bob.UserID, FileName: "bob.png", MimeType: "image/png", URL: "https://files.example.com/bob.png"}
	for _, a := range []models.Attachment{image, pdf, foreign} {
		f.store.AddAttachment(a)
	}

	msg, err := f.svc.Messages.Send(f.ctx, alice, SendMessageInput{ChannelID: ch.ID, AttachmentID: &image.ID})
	if err != nil {
		t.Fatalf("Send image: %v", err)
	}
	if msg.Content != image.URL || msg.Type != models.MessageTypeImage {
		t.Fatalf("image message = %+v", msg)
	}

	msg, err = f.svc.Messages.Send(f.ctx, alice, SendMessageInput{ChannelID: ch.ID, AttachmentID: &pdf.ID})
	if err != nil {
		t.Fatalf("Send pdf: %v", err)
	}
	if msg.Content != "lease.pdf" || msg.Type != models.MessageTypeFile {
		t.Fatalf("file message = %+v", msg)
	}

	_, err = f.svc.Messages.Send(f.ctx, alice, SendMessageInput{ChannelID: ch.ID, AttachmentID: &foreign.ID})
	wantCode(t, err, apperr.CodeAttachmentNotOwned)

	_, err = f.svc.Messages.Send(f.ctx, alice, SendMessageInput{ChannelID: ch.ID, Content: "   "})
	wantKind(t, err, apperr.KindValidation)
	wantCode(t, err, apperr.CodeEmptyMessage)

	media, err := f.svc.Messages.ListSharedMedia(f.ctx, bob, ch.ID, nil, 0, 10)
	if err != nil || len(media) != 2 {
		t.Fatalf("shared media = %+v, %v", media, err)
	}
	images, _ := f.svc.Messages.ListSharedMedia(f.ctx, bob, ch.ID, []models.MessageType{models.MessageTypeImage}, 0, 10)
	if len(images) != 1 || images[0].Type != models.MessageTypeImage {
		t.Fatalf("images = %+v", images)
	}
	_, err = f.svc.Messages.ListSharedMedia(f.ctx, bob, ch.ID, []models.MessageType{models.MessageTypeText}, 0, 10)
	wantKind(t, err, apperr.KindValidation)
}

func TestReplyMustBeInSameChannel(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.resident("Alice"), f.resident("Bob")
	one, two := f.group(alice, bob), f.group(alice, bob)

	parent, _ := f.svc.Messages.Send(f.ctx, alice, SendMessageInput{ChannelID: one.ID, Content: "question"})

	reply, err := f.svc.Messages.Send(f.ctx, bob, SendMessageInput{ChannelID: one.ID, Content: "answer", ReplyToID: &parent.ID})
	if err != nil || reply.ReplyToID == nil || *reply.ReplyToID != parent.ID {
		t.Fatalf("reply = %+v, %v", reply, err)
	}
	_, err = f.svc.Messages.Send(f.ctx, bob, SendMessageInput{ChannelID: two.ID, Content: "answer", ReplyToID: &parent.ID})
	wantKind(t, err, apperr.KindValidation)
}

func TestEditPreservesIdentity(t *testing.T) {
	f := newFixture(t)
	alice, bob := f.resident("Alice"), f.resident("Bob")
	ch := f.group(alice, bob)
	orig, _ := f.svc.Messages.Send(f.ctx, alice, SendMessageInput{ChannelID: ch.ID, Content: "helo"})

	edited, err := f.svc.Messages.Edit(f.ctx, alice, orig.ID, "hello")
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if edited.ID != orig.ID || edited.ChannelID != orig.ChannelID || edited.SenderID != orig.SenderID || !edited.CreatedAt.Equal(orig.CreatedAt) {
		t.Fatalf("identity changed: %+v vs %+v", edited, orig)
	}
	if !edited.IsEdited || edited.Content != "hello" {
		t.Fatalf("edited = %+v", edited)
	}
	if got := f.presence.to(bob.UserID); got[len(got)-1] != realtime.EventMessageEdited {
		t.Fatalf("bob deliveries = %v", got)
	}

	_, err = f.svc.Messages.Edit(f.ctx, bob, orig.ID, "not mine")
	wantKind(t, err, apperr.KindAuthorization)
	_, err = f.svc.Messages.Edit(f.ctx, alice, orig.ID, "")
	wantKind(t, err, apperr.KindValidation)
}

func TestDeleteIsTombstoneAndIrreversible(t *testing.T) {
	f := newFixture(t)
	owner, alice, bob := f.resident("Owner"), f.resident("Alice"), f.resident("Bob")
	ch := f.group(owner, alice, bob)

	img := models.Attachment{ID: uuid.New(), OwnerID: alice.UserID, FileName: "a.png", MimeType: "image/png", URL: "https://files.example.com/a.png"}
	f.store.AddAttachment(img)
	msg, _ := f.svc.Messages.Send(f.ctx, alice, SendMessageInput{ChannelID: ch.ID, Content: "look", AttachmentID: &img.ID})

	_, err := f.svc.Messages.Delete(f.ctx, bob, msg.ID)
	wantKind(t, err, apperr.KindAuthorization)

	// Channel owner may delete someone else's message.
	deleted, err := f.svc.Messages.Delete(f.ctx, owner, msg.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted.IsDeleted || deleted.Content != models.DeletedContent || deleted.AttachmentID != nil || deleted.ID != msg.ID {
		t.Fatalf("tombstone = %+v", deleted)
	}

	again, err := f.svc.Messages.Delete(f.ctx, alice, msg.ID)
	if err != nil || again.Content != models.DeletedContent {
		t.Fatalf("second delete = %+v, %v", again, err)
	}

	_, err = f.svc.Messages.Edit(f.ctx, alice, msg.ID, "undo")
	wantKind(t, err, apperr.KindStateConflict)
	wantCode(t, err, apperr.CodeMessageDeleted)

	list, _ := f.svc.Messages.List(f.ctx, bob, ch.ID, 0, 10)
	if len(list) != 1 || list[0].Content != models.DeletedContent || !list[0].IsDeleted {
		t.Fatalf("listed = %+v", list)
	}
}

func TestListAcrossTenantsRejected(t *testing.T) {
	f := newFixture(t)
	alice := f.resident("Alice")
	ch := f.group(alice)

	elsewhere := f.user("Mallory", uuid.New(), models.TenantRoleSuperAdmin)
	_, err := f.svc.Messages.List(f.ctx, elsewhere, ch.ID, 0, 10)
	wantKind(t, err, apperr.KindTenancyMismatch)
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"héllo wörld", 5, "héllo…"},
		{strings.Repeat("a", 5), 0, "aaaaa"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.limit); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}

func TestShapeNotification(t *testing.T) {
	direct := &models.Channel{Type: models.ChannelTypeDirect}
	title, body := shapeNotification(direct, "Alice", "hi", 100)
	if title != "Alice" || body != "hi" {
		t.Fatalf("direct = %q, %q", title, body)
	}

	group := &models.Channel{Type: models.ChannelTypeBuilding, Name: "Lobby"}
	title, body = shapeNotification(group, "Alice", "hi", 100)
	if title != "Lobby" || body != "Alice: hi" {
		t.Fatalf("group = %q, %q", title, body)
	}
}
