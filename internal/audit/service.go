package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// queryCap bounds any single query result. It is a pagination floor, not a
// completeness guarantee for large ranges.
const queryCap = 1000

// Tagger produces and verifies keyed integrity tags. Satisfied by
// crypto.Service.
type Tagger interface {
	MAC(data []byte) []byte
	VerifyMAC(data, tag []byte) bool
}

// EventFilter narrows QueryEvents results. Zero values match everything.
type EventFilter struct {
	PrincipalID string
	From        time.Time
	To          time.Time
	Limit       int
}

// IncidentFilter narrows QueryIncidents results.
type IncidentFilter struct {
	Severity Severity
	Category IncidentCategory
	Limit    int
}

// Repository defines the persistence operations the log needs. All inserts
// are append-only; DecideAgentAction is the only update and is guarded on
// the pending state at the storage layer.
type Repository interface {
	InsertEvent(ctx context.Context, e Event) error
	InsertIncident(ctx context.Context, inc Incident) error
	InsertAgentAction(ctx context.Context, a AgentAction) error
	GetAgentAction(ctx context.Context, id string) (AgentAction, error)
	DecideAgentAction(ctx context.Context, id string, state ApprovalState, approverID string, decidedAt time.Time) (bool, error)
	ListEvents(ctx context.Context, f EventFilter) ([]Event, error)
	ListIncidents(ctx context.Context, f IncidentFilter) ([]Incident, error)
	ListPendingAgentActions(ctx context.Context) ([]AgentAction, error)
}

// Log coordinates the audit trail and the agent approval queue.
type Log struct {
	repo   Repository
	tagger Tagger
	logger *slog.Logger
	now    func() time.Time
}

// NewLog constructs the audit log service.
func NewLog(repo Repository, tagger Tagger, logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{repo: repo, tagger: tagger, logger: logger, now: time.Now}
}

// Record assigns an id and timestamp, tags the event and persists it.
// Returns the assigned id.
func (l *Log) Record(ctx context.Context, e Event) (string, error) {
	if e.Action == "" || e.Resource == "" {
		return "", fmt.Errorf("%w: action and resource required", ErrValidation)
	}
	e.ID = uuid.NewString()
	e.At = l.now().UTC()
	canonical, err := canonicalEvent(e)
	if err != nil {
		return "", err
	}
	e.IntegrityTag = l.tagger.MAC(canonical)
	if err := l.repo.InsertEvent(ctx, e); err != nil {
		l.logger.Error("insert audit event", slog.String("action", e.Action), slog.Any("error", err))
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return e.ID, nil
}

// RecordIncident persists a security incident. Incidents are operational
// signals and carry no integrity tag.
func (l *Log) RecordIncident(ctx context.Context, inc Incident) (string, error) {
	if inc.Category == "" || inc.Severity == "" {
		return "", fmt.Errorf("%w: category and severity required", ErrValidation)
	}
	inc.ID = uuid.NewString()
	inc.At = l.now().UTC()
	if err := l.repo.InsertIncident(ctx, inc); err != nil {
		l.logger.Error("insert security incident", slog.String("category", string(inc.Category)), slog.Any("error", err))
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return inc.ID, nil
}

// SubmitAgentAction queues an agent-proposed action in the pending state.
// It never executes the action; execution is the caller's responsibility
// after approval.
func (l *Log) SubmitAgentAction(ctx context.Context, principalID, action string, meta map[string]any) (string, error) {
	if principalID == "" || action == "" {
		return "", fmt.Errorf("%w: principal and action required", ErrValidation)
	}
	a := AgentAction{
		ID:          uuid.NewString(),
		At:          l.now().UTC(),
		PrincipalID: principalID,
		Action:      action,
		Meta:        meta,
		State:       StatePending,
	}
	canonical, err := canonicalAgentAction(a)
	if err != nil {
		return "", err
	}
	a.IntegrityTag = l.tagger.MAC(canonical)
	if err := l.repo.InsertAgentAction(ctx, a); err != nil {
		l.logger.Error("insert agent action", slog.String("action", action), slog.Any("error", err))
		return "", fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return a.ID, nil
}

// ApproveAgentAction transitions a pending action to approved. A second
// decision on an already-decided action fails with ErrAlreadyDecided.
func (l *Log) ApproveAgentAction(ctx context.Context, id, approverID string) error {
	return l.decideAgentAction(ctx, id, approverID, StateApproved)
}

// RejectAgentAction transitions a pending action to rejected.
func (l *Log) RejectAgentAction(ctx context.Context, id, approverID string) error {
	return l.decideAgentAction(ctx, id, approverID, StateRejected)
}

func (l *Log) decideAgentAction(ctx context.Context, id, approverID string, state ApprovalState) error {
	if approverID == "" {
		return fmt.Errorf("%w: approver required", ErrValidation)
	}
	current, err := l.repo.GetAgentAction(ctx, id)
	if err != nil {
		return err
	}
	if current.State != StatePending {
		return fmt.Errorf("%w: %s is %s", ErrAlreadyDecided, id, current.State)
	}
	// The repository update is guarded on the pending state so a concurrent
	// decision on the same id loses cleanly.
	decided, err := l.repo.DecideAgentAction(ctx, id, state, approverID, l.now().UTC())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !decided {
		return fmt.Errorf("%w: %s", ErrAlreadyDecided, id)
	}
	if _, err := l.Record(ctx, Event{
		PrincipalID: approverID,
		Action:      "agent_action." + string(state),
		Resource:    "ai_actions",
		Result:      ResultSuccess,
		Meta:        map[string]any{"agent_action_id": id},
	}); err != nil {
		// The transition committed; the trail entry is best effort here.
		l.logger.Warn("audit agent decision", slog.String("id", id), slog.Any("error", err))
	}
	return nil
}

// QueryEvents returns matching events newest-first, capped at 1000.
func (l *Log) QueryEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	f.Limit = clampLimit(f.Limit)
	events, err := l.repo.ListEvents(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return events, nil
}

// QueryIncidents returns matching incidents newest-first, capped at 1000.
func (l *Log) QueryIncidents(ctx context.Context, f IncidentFilter) ([]Incident, error) {
	f.Limit = clampLimit(f.Limit)
	incidents, err := l.repo.ListIncidents(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return incidents, nil
}

// PendingAgentActions returns all actions still awaiting a decision.
func (l *Log) PendingAgentActions(ctx context.Context) ([]AgentAction, error) {
	actions, err := l.repo.ListPendingAgentActions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return actions, nil
}

// VerifyEvent recomputes the integrity tag and compares it. A false result
// proves the row was altered after it was written; it cannot detect a
// deleted or reordered row.
func (l *Log) VerifyEvent(e Event) bool {
	canonical, err := canonicalEvent(e)
	if err != nil {
		return false
	}
	return l.tagger.VerifyMAC(canonical, e.IntegrityTag)
}

// VerifyAgentAction recomputes the proposal tag and compares it.
func (l *Log) VerifyAgentAction(a AgentAction) bool {
	canonical, err := canonicalAgentAction(a)
	if err != nil {
		return false
	}
	return l.tagger.VerifyMAC(canonical, a.IntegrityTag)
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > queryCap {
		return queryCap
	}
	return limit
}
