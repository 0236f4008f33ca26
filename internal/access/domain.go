// Package access is the only component that says yes or no to a
// real-world action. Decisions are made against an injected PolicyStore
// and every decision lands on the audit trail before it is returned.
package access

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the access module.
var (
	// ErrNotFound indicates that the requested principal does not exist.
	ErrNotFound = errors.New("access: not found")
	// ErrForbidden indicates the caller lacks privilege for a management operation.
	ErrForbidden = errors.New("access: forbidden")
	// ErrValidation indicates malformed input such as an unknown role.
	ErrValidation = errors.New("access: invalid input")
	// ErrStorage wraps persistence failures.
	ErrStorage = errors.New("access: storage unavailable")
)

// Role is a named bundle of permissions.
type Role string

const (
	RoleExecutive Role = "executive"
	RoleAdmin     Role = "admin"
	RoleManager   Role = "manager"
	RoleMember    Role = "member"
	RoleViewer    Role = "viewer"
)

// ParseRole validates a role name.
func ParseRole(name string) (Role, error) {
	switch Role(name) {
	case RoleExecutive, RoleAdmin, RoleManager, RoleMember, RoleViewer:
		return Role(name), nil
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrValidation, name)
	}
}

// Wildcard matches any resource or action in a permission.
const Wildcard = "*"

// Permission grants a list of actions on a resource pattern, optionally
// narrowed by conditions.
type Permission struct {
	Resource   string            `json:"resource"`
	Actions    []string          `json:"actions"`
	Conditions map[string]string `json:"conditions,omitempty"`
}

// Allows reports whether the permission covers resource/action.
func (p Permission) Allows(resource, action string) bool {
	if p.Resource != Wildcard && p.Resource != resource {
		return false
	}
	for _, a := range p.Actions {
		if a == Wildcard || a == action {
			return true
		}
	}
	return false
}

// User is a principal subject to authorization. Users are soft-deactivated,
// never deleted. Grants are directly-attached permissions kept for
// lifecycle completeness; authorization decisions are driven by the role
// table (per-user overrides are outside this core).
type User struct {
	ID         string
	Role       Role
	Grants     []Permission
	MFAEnabled bool
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// RequestContext carries optional client metadata attached to decisions.
type RequestContext struct {
	ClientIP  string
	UserAgent string
}

// Decision is the outcome of a single Authorize call. Authorization
// failures are not errors; a denial always carries a readable reason.
type Decision struct {
	Allowed          bool   `json:"allowed"`
	Reason           string `json:"reason,omitempty"`
	RequiresApproval bool   `json:"requires_approval,omitempty"`
	AuditRequired    bool   `json:"audit_required,omitempty"`
	// PendingActionID is set when an agent-originated action was queued
	// for executive approval instead of being executed.
	PendingActionID string `json:"pending_action_id,omitempty"`
}
