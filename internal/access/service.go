package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gunnchOS3k/arcade-core/internal/audit"
)

// agentPrefix marks principal identifiers that belong to automated agents.
const agentPrefix = "agent:"

// Denial reasons surfaced to callers.
const (
	reasonUnknownPrincipal = "unknown principal"
	reasonInactive         = "account is deactivated"
	reasonMFARequired      = "multi-factor authentication required"
	reasonNoPermission     = "insufficient permissions"
	reasonNeedsApproval    = "requires executive approval"
	reasonAuditUnavailable = "authorization could not be audited"
	reasonStoreUnavailable = "authorization temporarily unavailable"
)

// AuditRecorder is the narrow write capability the service needs from the
// audit log.
type AuditRecorder interface {
	Record(ctx context.Context, e audit.Event) (string, error)
	RecordIncident(ctx context.Context, inc audit.Incident) (string, error)
	SubmitAgentAction(ctx context.Context, principalID, action string, meta map[string]any) (string, error)
}

// IncidentReader is the narrow read capability used for security scoring.
type IncidentReader interface {
	QueryIncidents(ctx context.Context, f audit.IncidentFilter) ([]audit.Incident, error)
}

// Repository defines persistence for principals. Deactivation is the only
// removal; rows are never deleted.
type Repository interface {
	Insert(ctx context.Context, u User) error
	Get(ctx context.Context, id string) (User, error)
	UpdateRole(ctx context.Context, id string, role Role) error
	Deactivate(ctx context.Context, id string) error
}

// Service makes authorization decisions and manages principal lifecycle.
type Service struct {
	policy    *PolicyStore
	users     Repository
	recorder  AuditRecorder
	incidents IncidentReader
	logger    *slog.Logger
}

// NewService constructs the access control service. The policy store is
// injected, never a package-level table.
func NewService(policy *PolicyStore, users Repository, recorder AuditRecorder, incidents IncidentReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{policy: policy, users: users, recorder: recorder, incidents: incidents, logger: logger}
}

// Policy exposes the injected rule tables.
func (s *Service) Policy() *PolicyStore { return s.policy }

// IsAgentPrincipal reports whether the identifier denotes an automated
// agent rather than a human.
func IsAgentPrincipal(principalID string) bool {
	return principalID == "" || strings.HasPrefix(principalID, agentPrefix)
}

// Authorize runs the per-call decision state machine. Every branch emits
// exactly one audit event, written as the last step so the returned
// decision and the audited decision never diverge; if that write cannot be
// confirmed the decision fails closed.
func (s *Service) Authorize(ctx context.Context, principalID, resource, action string, reqCtx RequestContext) (Decision, error) {
	if resource == "" || action == "" {
		return Decision{}, fmt.Errorf("%w: resource and action required", ErrValidation)
	}

	if IsAgentPrincipal(principalID) {
		return s.authorizeAgent(ctx, principalID, resource, action, reqCtx)
	}

	decision, incident := s.evaluate(ctx, principalID, resource, action)

	if incident != nil {
		incident.Meta = map[string]any{"resource": resource, "action": action}
		if _, err := s.recorder.RecordIncident(ctx, *incident); err != nil {
			// Incidents are best effort; the decision event below is not.
			s.logger.Warn("record incident", slog.String("principal", principalID), slog.Any("error", err))
		}
	}

	return s.finalize(ctx, principalID, resource, action, reqCtx, decision)
}

// authorizeAgent queues the proposed action for executive approval instead
// of executing it. Agent actions always require approval regardless of
// resource or action.
func (s *Service) authorizeAgent(ctx context.Context, principalID, resource, action string, reqCtx RequestContext) (Decision, error) {
	agentID := principalID
	if agentID == "" {
		agentID = "agent:unidentified"
	}
	pendingID, err := s.recorder.SubmitAgentAction(ctx, agentID, action, map[string]any{"resource": resource})
	if err != nil {
		s.logger.Error("queue agent action", slog.String("agent", agentID), slog.Any("error", err))
		return s.failClosed(ctx, agentID, resource, action), nil
	}
	decision := Decision{
		Allowed:          false,
		Reason:           reasonNeedsApproval,
		RequiresApproval: true,
		AuditRequired:    true,
		PendingActionID:  pendingID,
	}
	return s.finalize(ctx, agentID, resource, action, reqCtx, decision)
}

// evaluate walks the decision state machine for a human principal.
func (s *Service) evaluate(ctx context.Context, principalID, resource, action string) (Decision, *audit.Incident) {
	user, err := s.users.Get(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return deny(reasonUnknownPrincipal),
				incident(audit.CategoryAuthentication, audit.SeverityMedium, principalID, "authorization attempt by unknown principal")
		}
		s.logger.Error("load principal", slog.String("principal", principalID), slog.Any("error", err))
		return deny(reasonStoreUnavailable),
			incident(audit.CategoryAuthorization, audit.SeverityMedium, principalID, "principal store unavailable, failing closed")
	}

	if !user.IsActive {
		return deny(reasonInactive),
			incident(audit.CategoryAuthentication, audit.SeverityMedium, principalID, "deactivated account attempted access")
	}

	if s.policy.RequiresMFA(resource, action) && !user.MFAEnabled {
		return deny(reasonMFARequired),
			incident(audit.CategoryAuthentication, audit.SeverityMedium, principalID, "sensitive access without MFA")
	}

	if !s.policy.CheckPermission(user.Role, resource, action) {
		return deny(reasonNoPermission),
			incident(audit.CategoryAuthorization, audit.SeverityMedium, principalID, fmt.Sprintf("role %s lacks %s on %s", user.Role, action, resource))
	}

	if s.policy.RequiresApproval(resource, action) && user.Role != RoleExecutive {
		d := deny(reasonNeedsApproval)
		d.RequiresApproval = true
		return d, incident(audit.CategoryAuthorization, audit.SeverityHigh, principalID, fmt.Sprintf("non-executive requested gated %s on %s", action, resource))
	}

	return Decision{
		Allowed:       true,
		AuditRequired: s.policy.RequiresApproval(resource, action) || s.policy.RequiresMFA(resource, action),
	}, nil
}

// finalize writes the decision event as the terminal step of the call.
func (s *Service) finalize(ctx context.Context, principalID, resource, action string, reqCtx RequestContext, decision Decision) (Decision, error) {
	result := audit.ResultFailure
	if decision.Allowed {
		result = audit.ResultSuccess
	}
	if decision.PendingActionID != "" {
		result = audit.ResultPending
	}
	meta := map[string]any{}
	if decision.Reason != "" {
		meta["reason"] = decision.Reason
	}
	if decision.PendingActionID != "" {
		meta["pending_action_id"] = decision.PendingActionID
	}
	_, err := s.recorder.Record(ctx, audit.Event{
		PrincipalID: principalID,
		Action:      action,
		Resource:    resource,
		Result:      result,
		ClientIP:    reqCtx.ClientIP,
		UserAgent:   reqCtx.UserAgent,
		Meta:        meta,
	})
	if err != nil {
		s.logger.Error("audit authorization", slog.String("principal", principalID), slog.Any("error", err))
		return s.failClosed(ctx, principalID, resource, action), nil
	}
	return decision, nil
}

// failClosed is the denial returned when the trail cannot confirm a
// decision. A Medium incident is attempted but never blocks the return.
func (s *Service) failClosed(ctx context.Context, principalID, resource, action string) Decision {
	inc := incident(audit.CategoryViolation, audit.SeverityMedium, principalID, "audit write failed, authorization failed closed")
	inc.Meta = map[string]any{"resource": resource, "action": action}
	if _, err := s.recorder.RecordIncident(ctx, *inc); err != nil {
		s.logger.Warn("record fail-closed incident", slog.Any("error", err))
	}
	return Decision{Allowed: false, Reason: reasonAuditUnavailable, AuditRequired: true}
}

// CheckPermission answers the pure table lookup without side effects.
func (s *Service) CheckPermission(role Role, resource, action string) bool {
	return s.policy.CheckPermission(role, resource, action)
}

// CreateUser registers a new principal. The actor needs the users/create
// permission. Both grant and refusal are audited.
func (s *Service) CreateUser(ctx context.Context, actorID string, user User) error {
	if _, err := ParseRole(string(user.Role)); err != nil {
		return err
	}
	if user.ID == "" {
		return fmt.Errorf("%w: user id required", ErrValidation)
	}
	actor, err := s.users.Get(ctx, actorID)
	if err != nil {
		return err
	}
	if !actor.IsActive || !s.policy.CheckPermission(actor.Role, ResourceUsers, ActionCreate) {
		s.auditManagement(ctx, actorID, ActionCreate, user.ID, audit.ResultFailure, "insufficient privilege")
		return fmt.Errorf("%w: %s may not create users", ErrForbidden, actorID)
	}
	now := time.Now().UTC()
	user.IsActive = true
	user.CreatedAt = now
	user.UpdatedAt = now
	if err := s.users.Insert(ctx, user); err != nil {
		return err
	}
	s.auditManagement(ctx, actorID, ActionCreate, user.ID, audit.ResultSuccess, "")
	return nil
}

// UpdateUserRole changes a principal's role. Only the Executive role may
// do this; a refusal is audited alongside a success.
func (s *Service) UpdateUserRole(ctx context.Context, actorID, targetID string, role Role) error {
	if _, err := ParseRole(string(role)); err != nil {
		return err
	}
	actor, err := s.users.Get(ctx, actorID)
	if err != nil {
		return err
	}
	if !actor.IsActive || actor.Role != RoleExecutive {
		s.auditManagement(ctx, actorID, ActionUpdate, targetID, audit.ResultFailure, "role change requires executive")
		return fmt.Errorf("%w: role changes require the executive role", ErrForbidden)
	}
	if err := s.users.UpdateRole(ctx, targetID, role); err != nil {
		return err
	}
	s.auditManagement(ctx, actorID, ActionUpdate, targetID, audit.ResultSuccess, string(role))
	return nil
}

// DeactivateUser soft-deactivates a principal; accounts are never deleted.
func (s *Service) DeactivateUser(ctx context.Context, actorID, targetID string) error {
	actor, err := s.users.Get(ctx, actorID)
	if err != nil {
		return err
	}
	if !actor.IsActive || !s.policy.CheckPermission(actor.Role, ResourceUsers, ActionUpdate) {
		s.auditManagement(ctx, actorID, "deactivate", targetID, audit.ResultFailure, "insufficient privilege")
		return fmt.Errorf("%w: %s may not deactivate users", ErrForbidden, actorID)
	}
	if err := s.users.Deactivate(ctx, targetID); err != nil {
		return err
	}
	s.auditManagement(ctx, actorID, "deactivate", targetID, audit.ResultSuccess, "")
	return nil
}

func (s *Service) auditManagement(ctx context.Context, actorID, action, targetID string, result audit.Result, note string) {
	meta := map[string]any{"target": targetID}
	if note != "" {
		meta["note"] = note
	}
	if _, err := s.recorder.Record(ctx, audit.Event{
		PrincipalID: actorID,
		Action:      "users." + action,
		Resource:    ResourceUsers,
		Result:      result,
		Meta:        meta,
	}); err != nil {
		s.logger.Error("audit user management", slog.String("actor", actorID), slog.Any("error", err))
	}
}

// Severity weights for the deterministic security score.
const (
	weightCritical = 20
	weightHigh     = 10
	weightMedium   = 5
)

// SecurityScore computes 100 minus the weighted incident count, floored
// at zero. Deterministic and auditable; no heuristics.
func (s *Service) SecurityScore(ctx context.Context) (int, error) {
	incidents, err := s.incidents.QueryIncidents(ctx, audit.IncidentFilter{})
	if err != nil {
		return 0, err
	}
	score := 100
	for _, inc := range incidents {
		switch inc.Severity {
		case audit.SeverityCritical:
			score -= weightCritical
		case audit.SeverityHigh:
			score -= weightHigh
		case audit.SeverityMedium:
			score -= weightMedium
		}
	}
	if score < 0 {
		score = 0
	}
	return score, nil
}

func deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason, AuditRequired: true}
}

func incident(category audit.IncidentCategory, severity audit.Severity, principalID, description string) *audit.Incident {
	return &audit.Incident{
		Category:    category,
		Severity:    severity,
		Description: description,
		PrincipalID: principalID,
	}
}
