package service

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/lalith-99/courtyard/internal/apperr"
	"github.com/lalith-99/courtyard/internal/models"
	"github.com/lalith-99/courtyard/internal/realtime"
)

func TestAddRemoveMemberReactivates(t *testing.T) {
	f := newFixture(t)
	owner, bob := f.resident("Owner"), f.resident("Bob")
	ch := f.group(owner)

	first, err := f.svc.Members.AddMember(f.ctx, owner, ch.ID, bob.UserID)
	if err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	if err := f.svc.Members.RemoveMember(f.ctx, owner, ch.ID, bob.UserID); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	m, _ := f.store.Memberships().Get(f.ctx, ch.ID, bob.UserID)
	if m.IsActive || m.LeftAt == nil {
		t.Fatalf("after removal: %+v", m)
	}

	again, err := f.svc.Members.AddMember(f.ctx, owner, ch.ID, bob.UserID)
	if err != nil {
		t.Fatalf("re-add: %v", err)
	}
	if !again.IsActive || again.LeftAt != nil || again.ChannelID != first.ChannelID {
		t.Fatalf("re-added membership = %+v", again)
	}
	members, _ := f.store.Memberships().ListActive(f.ctx, ch.ID)
	if len(members) != 2 {
		t.Fatalf("active members = %d, want 2", len(members))
	}

	got := f.presence.to(bob.UserID)
	want := []realtime.EventType{realtime.EventChannelMemberAdded, realtime.EventChannelMemberRemoved, realtime.EventChannelMemberAdded}
	if len(got) != len(want) {
		t.Fatalf("bob deliveries = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("bob deliveries = %v, want %v", got, want)
		}
	}
}

func TestAddMemberRules(t *testing.T) {
	f := newFixture(t)
	owner, bob, carol := f.resident("Owner"), f.resident("Bob"), f.resident("Carol")
	outsider := f.user("Out", uuid.New(), models.TenantRoleResident)
	ch := f.group(owner, bob)

	_, err := f.svc.Members.AddMember(f.ctx, bob, ch.ID, carol.UserID)
	wantKind(t, err, apperr.KindAuthorization)

	_, err = f.svc.Members.AddMember(f.ctx, owner, ch.ID, outsider.UserID)
	wantKind(t, err, apperr.KindTenancyMismatch)

	direct, _, _ := f.svc.Channels.GetOrCreateDirectChannel(f.ctx, owner, bob.UserID)
	_, err = f.svc.Members.AddMember(f.ctx, owner, direct.ID, carol.UserID)
	wantKind(t, err, apperr.KindValidation)

	// Re-adding an active member keeps its row and role.
	if _, err := f.svc.Members.UpdateMemberPermissions(f.ctx, owner, ch.ID, bob.UserID, models.MemberRoleAdmin, true); err != nil {
		t.Fatalf("promote: %v", err)
	}
	m, err := f.svc.Members.AddMember(f.ctx, owner, ch.ID, bob.UserID)
	if err != nil || m.Role != models.MemberRoleAdmin {
		t.Fatalf("re-add active = %+v, %v", m, err)
	}
}

func TestOwnerCannotBeRemovedOrLeave(t *testing.T) {
	f := newFixture(t)
	owner, bob := f.resident("Owner"), f.resident("Bob")
	ch := f.group(owner, bob)
	f.svc.Members.UpdateMemberPermissions(f.ctx, owner, ch.ID, bob.UserID, models.MemberRoleAdmin, true)

	err := f.svc.Members.RemoveMember(f.ctx, bob, ch.ID, owner.UserID)
	wantKind(t, err, apperr.KindAuthorization)
	wantCode(t, err, apperr.CodeOwnerImmutable)

	err = f.svc.Members.LeaveChannel(f.ctx, owner, ch.ID)
	wantKind(t, err, apperr.KindStateConflict)

	_, err = f.svc.Members.UpdateMemberPermissions(f.ctx, bob, ch.ID, owner.UserID, models.MemberRoleMember, false)
	wantCode(t, err, apperr.CodeOwnerImmutable)
	_, err = f.svc.Members.UpdateMemberPermissions(f.ctx, owner, ch.ID, bob.UserID, models.MemberRoleOwner, true)
	wantCode(t, err, apperr.CodeOwnerImmutable)

	if m, _ := f.store.Memberships().Get(f.ctx, ch.ID, owner.UserID); !m.IsActive || m.Role != models.MemberRoleOwner {
		t.Fatalf("owner membership changed: %+v", m)
	}
}

func TestOnlyOwnerRemovesAdmin(t *testing.T) {
	f := newFixture(t)
	owner, a1, a2 := f.resident("Owner"), f.resident("A1"), f.resident("A2")
	ch := f.group(owner, a1, a2)
	f.svc.Members.UpdateMemberPermissions(f.ctx, owner, ch.ID, a1.UserID, models.MemberRoleAdmin, true)
	f.svc.Members.UpdateMemberPermissions(f.ctx, owner, ch.ID, a2.UserID, models.MemberRoleAdmin, true)

	wantKind(t, f.svc.Members.RemoveMember(f.ctx, a1, ch.ID, a2.UserID), apperr.KindAuthorization)
	if err := f.svc.Members.RemoveMember(f.ctx, owner, ch.ID, a2.UserID); err != nil {
		t.Fatalf("owner removes admin: %v", err)
	}
}

func TestJoinAndLeave(t *testing.T) {
	f := newFixture(t)
	admin, bob := f.admin("Admin"), f.resident("Bob")
	outsider := f.user("Out", uuid.New(), models.TenantRoleResident)

	open, err := f.svc.Channels.CreateChannel(f.ctx, admin, CreateChannelInput{Name: "Garden", Type: models.ChannelTypeBuildingGroup})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	m, err := f.svc.Members.JoinChannel(f.ctx, bob, open.ID)
	if err != nil || !m.IsActive || m.Role != models.MemberRoleMember {
		t.Fatalf("JoinChannel = %+v, %v", m, err)
	}
	if err := f.svc.Members.LeaveChannel(f.ctx, bob, open.ID); err != nil {
		t.Fatalf("LeaveChannel: %v", err)
	}
	if err := f.svc.Members.LeaveChannel(f.ctx, bob, open.ID); err != nil {
		t.Fatalf("leaving twice: %v", err)
	}
	if _, err := f.svc.Members.JoinChannel(f.ctx, bob, open.ID); err != nil {
		t.Fatalf("re-join: %v", err)
	}

	_, err = f.svc.Members.JoinChannel(f.ctx, outsider, open.ID)
	wantKind(t, err, apperr.KindTenancyMismatch)

	group := f.group(admin)
	_, err = f.svc.Members.JoinChannel(f.ctx, bob, group.ID)
	wantKind(t, err, apperr.KindAuthorization)
}

func TestPublicChannelJoinWithoutTenant(t *testing.T) {
	f := newFixture(t)
	admin := f.admin("Admin")
	pub, err := f.svc.Channels.CreateChannel(f.ctx, admin, CreateChannelInput{Name: "Announcements", Type: models.ChannelTypePublic})
	if err != nil {
		t.Fatalf("create public: %v", err)
	}
	if pub.TenantID != nil {
		t.Fatal("public channel must have no tenant")
	}

	visitor := f.user("Visitor", uuid.New(), models.TenantRoleResident)
	if _, err := f.svc.Members.JoinChannel(f.ctx, visitor, pub.ID); err != nil {
		t.Fatalf("join public: %v", err)
	}
	if _, err := f.svc.Messages.List(f.ctx, visitor, pub.ID, 0, 10); err != nil {
		t.Fatalf("list public as member: %v", err)
	}
}

func TestConcurrentJoinConverges(t *testing.T) {
	f := newFixture(t)
	admin, bob := f.admin("Admin"), f.resident("Bob")
	open, _ := f.svc.Channels.CreateChannel(f.ctx, admin, CreateChannelInput{Name: "Garden", Type: models.ChannelTypeBuildingGroup})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Members.JoinChannel(f.ctx, bob, open.ID); err != nil {
				t.Errorf("JoinChannel: %v", err)
			}
		}()
	}
	wg.Wait()

	members, _ := f.store.Memberships().ListActive(f.ctx, open.ID)
	count := 0
	for _, m := range members {
		if m.UserID == bob.UserID {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("bob memberships = %d, want 1", count)
	}
	added := 0
	for _, e := range f.presence.to(bob.UserID) {
		if e == realtime.EventChannelMemberAdded {
			added++
		}
	}
	if added != 1 {
		t.Fatalf("member_added deliveries = %d, want 1", added)
	}
}

func TestWriteDisabledMemberCannotSend(t *testing.T) {
	f := newFixture(t)
	owner, bob := f.resident("Owner"), f.resident("Bob")
	ch := f.group(owner, bob)

	if _, err := f.svc.Members.UpdateMemberPermissions(f.ctx, owner, ch.ID, bob.UserID, models.MemberRoleMember, false); err != nil {
		t.Fatalf("UpdateMemberPermissions: %v", err)
	}
	_, err := f.svc.Messages.Send(f.ctx, bob, SendMessageInput{ChannelID: ch.ID, Content: "hi"})
	wantKind(t, err, apperr.KindAuthorization)
	wantCode(t, err, apperr.CodeWriteDisabled)
}
