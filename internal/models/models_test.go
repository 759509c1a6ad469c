package models

import (
	"testing"

	"github.com/google/uuid"
)

func TestTenantRoleAtLeast(t *testing.T) {
	tests := []struct {
		role TenantRole
		min  TenantRole
		want bool
	}{
		{TenantRoleResident, TenantRoleResident, true},
		{TenantRoleResident, TenantRoleAdmin, false},
		{TenantRoleAdmin, TenantRoleResident, true},
		{TenantRoleSuperAdmin, TenantRoleAdmin, true},
		{"", TenantRoleResident, false},
	}
	for _, tt := range tests {
		if got := tt.role.AtLeast(tt.min); got != tt.want {
			t.Errorf("%q.AtLeast(%q) = %v, want %v", tt.role, tt.min, got, tt.want)
		}
	}
}

func TestChannelSameTenant(t *testing.T) {
	t1, t2 := uuid.New(), uuid.New()

	tenantChannel := Channel{TenantID: &t1}
	if !tenantChannel.SameTenant(&t1) {
		t.Fatal("expected same tenant")
	}
	if tenantChannel.SameTenant(&t2) {
		t.Fatal("different tenant matched")
	}
	if tenantChannel.SameTenant(nil) {
		t.Fatal("nil tenant matched a tenant channel")
	}

	public := Channel{}
	if !public.SameTenant(nil) {
		t.Fatal("public channel should match nil tenant")
	}
	if public.SameTenant(&t1) {
		t.Fatal("public channel should not match a tenant")
	}
}

func TestCallStatusTerminal(t *testing.T) {
	for _, s := range []CallStatus{CallStatusEnded, CallStatusMissed, CallStatusRejected} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []CallStatus{CallStatusInitiated, CallStatusAnswered} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestPageNormalize(t *testing.T) {
	if got := (Page{}).Normalize(); got.Limit != DefaultPageLimit {
		t.Fatalf("default limit = %d", got.Limit)
	}
	if got := (Page{Limit: 1000, Offset: -5}).Normalize(); got.Limit != MaxPageLimit || got.Offset != 0 {
		t.Fatalf("clamped page = %+v", got)
	}
}
