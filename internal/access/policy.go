package access

// Resource names governed by the core.
const (
	ResourceGames      = "games"
	ResourceSaves      = "saves"
	ResourceLobby      = "lobby"
	ResourceUsers      = "users"
	ResourceSecurity   = "security"
	ResourceAIActions  = "ai_actions"
	ResourceCompliance = "compliance"
	ResourceAudit      = "audit"
)

// Action names with policy significance.
const (
	ActionRead      = "read"
	ActionPlay      = "play"
	ActionJoin      = "join"
	ActionWrite     = "write"
	ActionUpdate    = "update"
	ActionCreate    = "create"
	ActionDelete    = "delete"
	ActionExecute   = "execute"
	ActionApprove   = "approve"
	ActionConfigure = "configure"
	ActionAssess    = "assess"
)

// PolicyStore holds the role→permission table and the MFA/approval rule
// sets. It is constructed once at startup, injected into the Service and
// treated as immutable afterwards; there is no hot reload.
type PolicyStore struct {
	rolePermissions   map[Role][]Permission
	mfaResources      map[string]bool
	mfaActions        map[string]bool
	approvalResources map[string]bool
	approvalActions   map[string]bool
}

// NewPolicyStore builds a store from explicit tables, mainly for tests.
func NewPolicyStore(rolePermissions map[Role][]Permission, mfaResources, mfaActions, approvalResources, approvalActions []string) *PolicyStore {
	return &PolicyStore{
		rolePermissions:   rolePermissions,
		mfaResources:      toSet(mfaResources),
		mfaActions:        toSet(mfaActions),
		approvalResources: toSet(approvalResources),
		approvalActions:   toSet(approvalActions),
	}
}

// DefaultPolicy returns the production rule tables.
func DefaultPolicy() *PolicyStore {
	return NewPolicyStore(
		map[Role][]Permission{
			RoleExecutive: {
				{Resource: Wildcard, Actions: []string{Wildcard}},
			},
			RoleAdmin: {
				{Resource: ResourceGames, Actions: []string{Wildcard}},
				{Resource: ResourceSaves, Actions: []string{Wildcard}},
				{Resource: ResourceLobby, Actions: []string{Wildcard}},
				{Resource: ResourceUsers, Actions: []string{ActionRead, ActionCreate, ActionUpdate}},
				{Resource: ResourceSecurity, Actions: []string{ActionRead}},
				{Resource: ResourceAudit, Actions: []string{ActionRead}},
				{Resource: ResourceCompliance, Actions: []string{ActionRead, ActionAssess}},
				{Resource: ResourceAIActions, Actions: []string{ActionRead}},
			},
			RoleManager: {
				{Resource: ResourceGames, Actions: []string{ActionRead, ActionUpdate, ActionConfigure}},
				{Resource: ResourceLobby, Actions: []string{ActionRead, ActionUpdate}},
				{Resource: ResourceSaves, Actions: []string{ActionRead}},
				{Resource: ResourceUsers, Actions: []string{ActionRead}},
				{Resource: ResourceAudit, Actions: []string{ActionRead}},
				{Resource: ResourceCompliance, Actions: []string{ActionRead}},
			},
			RoleMember: {
				{Resource: ResourceGames, Actions: []string{ActionRead, ActionPlay}},
				{Resource: ResourceSaves, Actions: []string{ActionRead, ActionWrite}},
				{Resource: ResourceLobby, Actions: []string{ActionRead, ActionJoin}},
			},
			RoleViewer: {
				{Resource: ResourceGames, Actions: []string{ActionRead}},
				{Resource: ResourceLobby, Actions: []string{ActionRead}},
			},
		},
		[]string{ResourceSecurity, ResourceUsers, ResourceAIActions},
		[]string{ActionDelete, ActionExecute, ActionApprove, ActionConfigure},
		[]string{ResourceAIActions, ResourceSecurity, ResourceUsers},
		[]string{ActionExecute, ActionApprove, ActionDelete, ActionConfigure},
	)
}

// CheckPermission reports whether role may perform action on resource.
// Wildcards match on either axis.
func (p *PolicyStore) CheckPermission(role Role, resource, action string) bool {
	for _, perm := range p.rolePermissions[role] {
		if perm.Allows(resource, action) {
			return true
		}
	}
	return false
}

// RequiresMFA reports whether the pair falls under the MFA rule set.
func (p *PolicyStore) RequiresMFA(resource, action string) bool {
	return p.mfaResources[resource] || p.mfaActions[action]
}

// RequiresApproval reports whether the pair needs executive approval.
func (p *PolicyStore) RequiresApproval(resource, action string) bool {
	return p.approvalResources[resource] || p.approvalActions[action]
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}
