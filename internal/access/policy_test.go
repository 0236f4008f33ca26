package access

import "testing"

func TestCheckPermissionTable(t *testing.T) {
	policy := DefaultPolicy()

	cases := []struct {
		name     string
		role     Role
		resource string
		action   string
		want     bool
	}{
		{"executive wildcard", RoleExecutive, ResourceSecurity, ActionConfigure, true},
		{"executive arbitrary resource", RoleExecutive, "anything", "whatever", true},
		{"admin games wildcard action", RoleAdmin, ResourceGames, ActionDelete, true},
		{"admin cannot approve agent actions", RoleAdmin, ResourceAIActions, ActionApprove, false},
		{"manager configure games", RoleManager, ResourceGames, ActionConfigure, true},
		{"manager cannot create users", RoleManager, ResourceUsers, ActionCreate, false},
		{"member plays games", RoleMember, ResourceGames, ActionPlay, true},
		{"member writes saves", RoleMember, ResourceSaves, ActionWrite, true},
		{"member cannot approve ai actions", RoleMember, ResourceAIActions, ActionApprove, false},
		{"viewer reads games", RoleViewer, ResourceGames, ActionRead, true},
		{"viewer cannot play", RoleViewer, ResourceGames, ActionPlay, false},
		{"unknown role has nothing", Role("ghost"), ResourceGames, ActionRead, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := policy.CheckPermission(tc.role, tc.resource, tc.action); got != tc.want {
				t.Fatalf("CheckPermission(%s, %s, %s) = %v, want %v", tc.role, tc.resource, tc.action, got, tc.want)
			}
		})
	}
}

func TestRequiresMFATable(t *testing.T) {
	policy := DefaultPolicy()

	cases := []struct {
		resource string
		action   string
		want     bool
	}{
		{ResourceSecurity, ActionRead, true},
		{ResourceUsers, ActionRead, true},
		{ResourceAIActions, ActionRead, true},
		{ResourceGames, ActionDelete, true},
		{ResourceGames, ActionExecute, true},
		{ResourceGames, ActionApprove, true},
		{ResourceGames, ActionConfigure, true},
		{ResourceGames, ActionRead, false},
		{ResourceLobby, ActionJoin, false},
	}
	for _, tc := range cases {
		if got := policy.RequiresMFA(tc.resource, tc.action); got != tc.want {
			t.Fatalf("RequiresMFA(%s, %s) = %v, want %v", tc.resource, tc.action, got, tc.want)
		}
	}
}

func TestRequiresApprovalTable(t *testing.T) {
	policy := DefaultPolicy()

	cases := []struct {
		resource string
		action   string
		want     bool
	}{
		{ResourceAIActions, ActionRead, true},
		{ResourceSecurity, ActionRead, true},
		{ResourceUsers, ActionRead, true},
		{ResourceGames, ActionExecute, true},
		{ResourceGames, ActionApprove, true},
		{ResourceGames, ActionDelete, true},
		{ResourceGames, ActionConfigure, true},
		{ResourceGames, ActionPlay, false},
		{ResourceSaves, ActionWrite, false},
	}
	for _, tc := range cases {
		if got := policy.RequiresApproval(tc.resource, tc.action); got != tc.want {
			t.Fatalf("RequiresApproval(%s, %s) = %v, want %v", tc.resource, tc.action, got, tc.want)
		}
	}
}

func TestPermissionWildcards(t *testing.T) {
	full := Permission{Resource: Wildcard, Actions: []string{Wildcard}}
	if !full.Allows("anything", "at-all") {
		t.Fatalf("double wildcard must always match")
	}
	scoped := Permission{Resource: ResourceGames, Actions: []string{ActionRead, ActionPlay}}
	if !scoped.Allows(ResourceGames, ActionPlay) {
		t.Fatalf("exact match expected")
	}
	if scoped.Allows(ResourceSaves, ActionPlay) {
		t.Fatalf("resource mismatch must not match")
	}
	anyAction := Permission{Resource: ResourceGames, Actions: []string{Wildcard}}
	if !anyAction.Allows(ResourceGames, ActionDelete) {
		t.Fatalf("wildcard action must match")
	}
}

func TestParseRole(t *testing.T) {
	for _, name := range []string{"executive", "admin", "manager", "member", "viewer"} {
		if _, err := ParseRole(name); err != nil {
			t.Fatalf("ParseRole(%q): %v", name, err)
		}
	}
	if _, err := ParseRole("superuser"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}
