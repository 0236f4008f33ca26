package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/gunnchOS3k/arcade-core/internal/crypto"
)

type memRepo struct {
	events    []Event
	incidents []Incident
	actions   map[string]AgentAction

	insertEventErr error
	decideErr      error
	decideNoMatch  bool
}

func newMemRepo() *memRepo {
	return &memRepo{actions: make(map[string]AgentAction)}
}

func (m *memRepo) InsertEvent(ctx context.Context, e Event) error {
	if m.insertEventErr != nil {
		return m.insertEventErr
	}
	m.events = append(m.events, e)
	return nil
}

func (m *memRepo) InsertIncident(ctx context.Context, inc Incident) error {
	m.incidents = append(m.incidents, inc)
	return nil
}

func (m *memRepo) InsertAgentAction(ctx context.Context, a AgentAction) error {
	m.actions[a.ID] = a
	return nil
}

func (m *memRepo) GetAgentAction(ctx context.Context, id string) (AgentAction, error) {
	a, ok := m.actions[id]
	if !ok {
		return AgentAction{}, fmt.Errorf("%w: agent action %s", ErrNotFound, id)
	}
	return a, nil
}

func (m *memRepo) DecideAgentAction(ctx context.Context, id string, state ApprovalState, approverID string, decidedAt time.Time) (bool, error) {
	if m.decideErr != nil {
		return false, m.decideErr
	}
	if m.decideNoMatch {
		return false, nil
	}
	a, ok := m.actions[id]
	if !ok || a.State != StatePending {
		return false, nil
	}
	a.State = state
	a.ApproverID = approverID
	a.DecidedAt = &decidedAt
	m.actions[id] = a
	return true, nil
}

func (m *memRepo) ListEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	var out []Event
	for _, e := range m.events {
		if f.PrincipalID != "" && e.PrincipalID != f.PrincipalID {
			continue
		}
		if !f.From.IsZero() && e.At.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && e.At.After(f.To) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memRepo) ListIncidents(ctx context.Context, f IncidentFilter) ([]Incident, error) {
	var out []Incident
	for _, inc := range m.incidents {
		if f.Severity != "" && inc.Severity != f.Severity {
			continue
		}
		if f.Category != "" && inc.Category != f.Category {
			continue
		}
		out = append(out, inc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memRepo) ListPendingAgentActions(ctx context.Context) ([]AgentAction, error) {
	var out []AgentAction
	for _, a := range m.actions {
		if a.State == StatePending {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func testLog(t *testing.T) (*Log, *memRepo) {
	t.Helper()
	key, err := crypto.GenerateMasterKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	svc, err := crypto.NewService(key)
	if err != nil {
		t.Fatalf("new crypto service: %v", err)
	}
	repo := newMemRepo()
	return NewLog(repo, svc, nil), repo
}

func TestRecordAssignsIDAndTag(t *testing.T) {
	log, repo := testLog(t)
	id, err := log.Record(context.Background(), Event{
		PrincipalID: "alice",
		Action:      "read",
		Resource:    "games",
		Result:      ResultSuccess,
		Meta:        map[string]any{"title": "galaga"},
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if id == "" {
		t.Fatalf("expected assigned id")
	}
	if len(repo.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(repo.events))
	}
	stored := repo.events[0]
	if len(stored.IntegrityTag) == 0 {
		t.Fatalf("expected integrity tag")
	}
	if !log.VerifyEvent(stored) {
		t.Fatalf("expected stored event to verify")
	}
}

func TestVerifyEventDetectsTampering(t *testing.T) {
	log, repo := testLog(t)
	if _, err := log.Record(context.Background(), Event{PrincipalID: "alice", Action: "read", Resource: "games", Result: ResultSuccess}); err != nil {
		t.Fatalf("record: %v", err)
	}
	tampered := repo.events[0]
	tampered.Result = ResultFailure
	if log.VerifyEvent(tampered) {
		t.Fatalf("altered event must not verify")
	}
}

func TestVerifyEventDetectsFieldBoundaryShift(t *testing.T) {
	log, repo := testLog(t)
	if _, err := log.Record(context.Background(), Event{PrincipalID: "alice", Action: "read", Resource: "x|games", Result: ResultSuccess}); err != nil {
		t.Fatalf("record: %v", err)
	}
	// Content moved across a field boundary must change the canonical
	// bytes even though the concatenation of the fields is unchanged.
	tampered := repo.events[0]
	tampered.Action = "read|x"
	tampered.Resource = "games"
	if log.VerifyEvent(tampered) {
		t.Fatalf("event with shifted field boundary must not verify")
	}
}

func TestVerifyAgentActionDetectsFieldBoundaryShift(t *testing.T) {
	log, repo := testLog(t)
	id, err := log.SubmitAgentAction(context.Background(), "agent:save|bot", "prune", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	tampered := repo.actions[id]
	tampered.PrincipalID = "agent:save"
	tampered.Action = "bot|prune"
	if log.VerifyAgentAction(tampered) {
		t.Fatalf("agent action with shifted field boundary must not verify")
	}
}

func TestRecordRequiresActionAndResource(t *testing.T) {
	log, _ := testLog(t)
	if _, err := log.Record(context.Background(), Event{PrincipalID: "alice"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRecordStorageFailure(t *testing.T) {
	log, repo := testLog(t)
	repo.insertEventErr = errors.New("connection refused")
	if _, err := log.Record(context.Background(), Event{Action: "read", Resource: "games", Result: ResultSuccess}); !errors.Is(err, ErrStorage) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}

func TestAgentActionLifecycle(t *testing.T) {
	log, repo := testLog(t)
	ctx := context.Background()
	id, err := log.SubmitAgentAction(ctx, "agent-7", "purge_saves", map[string]any{"count": 3})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	stored := repo.actions[id]
	if stored.State != StatePending {
		t.Fatalf("expected pending state, got %s", stored.State)
	}
	if !log.VerifyAgentAction(stored) {
		t.Fatalf("expected proposal tag to verify")
	}

	if err := log.ApproveAgentAction(ctx, id, "exec-1"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	decided := repo.actions[id]
	if decided.State != StateApproved || decided.ApproverID != "exec-1" || decided.DecidedAt == nil {
		t.Fatalf("unexpected decided action: %+v", decided)
	}
	// The decision itself lands on the audit trail.
	if len(repo.events) != 1 || repo.events[0].Action != "agent_action.approved" {
		t.Fatalf("expected one approval audit event, got %+v", repo.events)
	}
	// Proposal tag still verifies after the decision columns changed.
	if !log.VerifyAgentAction(decided) {
		t.Fatalf("decision must not invalidate the proposal tag")
	}
}

func TestApproveUnknownActionIsNotFound(t *testing.T) {
	log, repo := testLog(t)
	err := log.ApproveAgentAction(context.Background(), "no-such-id", "exec-1")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(repo.events) != 0 {
		t.Fatalf("failed approval must not write audit events")
	}
}

func TestSecondDecisionRejected(t *testing.T) {
	log, _ := testLog(t)
	ctx := context.Background()
	id, err := log.SubmitAgentAction(ctx, "agent-7", "restart_lobby", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := log.RejectAgentAction(ctx, id, "exec-1"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := log.ApproveAgentAction(ctx, id, "exec-2"); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided, got %v", err)
	}
}

func TestDecisionLosesCleanRaceAtStorage(t *testing.T) {
	log, repo := testLog(t)
	ctx := context.Background()
	id, err := log.SubmitAgentAction(ctx, "agent-7", "restart_lobby", nil)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	// Simulate a concurrent decision landing between the state read and the
	// guarded update: the row looks pending, but the update matches nothing.
	repo.decideNoMatch = true
	if err := log.ApproveAgentAction(ctx, id, "exec-2"); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("expected ErrAlreadyDecided, got %v", err)
	}
}

func TestQueryEventsFiltersAndCaps(t *testing.T) {
	log, repo := testLog(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		e := Event{
			ID:          fmt.Sprintf("e%d", i),
			At:          base.Add(time.Duration(i) * time.Hour),
			PrincipalID: "alice",
			Action:      "read",
			Resource:    "games",
			Result:      ResultSuccess,
		}
		repo.events = append(repo.events, e)
	}
	repo.events = append(repo.events, Event{ID: "bob-1", At: base, PrincipalID: "bob", Action: "read", Resource: "games", Result: ResultSuccess})

	got, err := log.QueryEvents(ctx, EventFilter{PrincipalID: "alice", Limit: 3})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got))
	}
	// Newest first.
	if !got[0].At.After(got[1].At) || !got[1].At.After(got[2].At) {
		t.Fatalf("expected newest-first ordering")
	}
	for _, e := range got {
		if e.PrincipalID != "alice" {
			t.Fatalf("principal filter leaked %q", e.PrincipalID)
		}
	}
}

func TestQueryIncidentsBySeverity(t *testing.T) {
	log, _ := testLog(t)
	ctx := context.Background()
	for _, sev := range []Severity{SeverityLow, SeverityHigh, SeverityHigh, SeverityCritical} {
		if _, err := log.RecordIncident(ctx, Incident{Category: CategoryAuthorization, Severity: sev, Description: "denied"}); err != nil {
			t.Fatalf("record incident: %v", err)
		}
	}
	got, err := log.QueryIncidents(ctx, IncidentFilter{Severity: SeverityHigh})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 high incidents, got %d", len(got))
	}
}

func TestCanonicalEventStableUnderMetaOrder(t *testing.T) {
	e := Event{ID: "e1", At: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Action: "read", Resource: "games", Result: ResultSuccess}
	e.Meta = map[string]any{"b": 2, "a": 1}
	first, err := canonicalEvent(e)
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	e.Meta = map[string]any{"a": 1, "b": 2}
	second, err := canonicalEvent(e)
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("canonical form must not depend on map insertion order")
	}
}
