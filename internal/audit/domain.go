// Package audit persists the tamper-evident event history of the
// governance core and the queue of agent actions awaiting human approval.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the audit module.
var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("audit: not found")
	// ErrAlreadyDecided indicates a second decision on a decided agent action.
	ErrAlreadyDecided = errors.New("audit: agent action already decided")
	// ErrStorage wraps persistence failures. Callers fail closed on it.
	ErrStorage = errors.New("audit: storage unavailable")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("audit: invalid input")
)

// Result classifies the outcome recorded by an audit event.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultPending Result = "pending"
)

// IncidentCategory classifies a security incident.
type IncidentCategory string

const (
	CategoryAuthentication IncidentCategory = "authentication"
	CategoryAuthorization  IncidentCategory = "authorization"
	CategoryDataAccess     IncidentCategory = "data_access"
	CategoryAgentAction    IncidentCategory = "agent_action"
	CategoryViolation      IncidentCategory = "violation"
)

// Severity grades a security incident.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ApprovalState tracks the lifecycle of an agent action.
type ApprovalState string

const (
	StatePending  ApprovalState = "pending"
	StateApproved ApprovalState = "approved"
	StateRejected ApprovalState = "rejected"
)

// Event is a single immutable audit record. Once written it is never
// updated; the integrity tag covers the canonical serialization of every
// other field.
type Event struct {
	ID           string
	At           time.Time
	PrincipalID  string
	Action       string
	Resource     string
	Result       Result
	ClientIP     string
	UserAgent    string
	Meta         map[string]any
	IntegrityTag []byte
}

// Incident is an append-only operational security signal. Incidents carry
// no integrity tag; they are signals, not legal evidence.
type Incident struct {
	ID          string
	At          time.Time
	Category    IncidentCategory
	Severity    Severity
	Description string
	PrincipalID string
	Meta        map[string]any
}

// AgentAction is an action proposed by an automated principal. It is
// persisted pending and immutable once approved or rejected.
type AgentAction struct {
	ID           string
	At           time.Time
	PrincipalID  string
	Action       string
	Meta         map[string]any
	IntegrityTag []byte
	State        ApprovalState
	ApproverID   string
	DecidedAt    *time.Time
}

// canonicalEvent serializes the tag-covered fields of an Event in a fixed
// order. The fields are JSON-encoded as an array so every field boundary
// survives arbitrary caller-supplied content; two distinct records can
// never share canonical bytes. Meta is JSON-encoded, which sorts map keys.
func canonicalEvent(e Event) ([]byte, error) {
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return nil, fmt.Errorf("%w: meta: %v", ErrValidation, err)
	}
	return canonicalFields(
		e.ID,
		e.At.UTC().Format(time.RFC3339Nano),
		e.PrincipalID,
		e.Action,
		e.Resource,
		string(e.Result),
		e.ClientIP,
		e.UserAgent,
		string(meta),
	)
}

// canonicalAgentAction serializes the tag-covered fields of an AgentAction.
// Approval state is deliberately excluded: the tag proves the proposal was
// not altered, while the decision lives in guarded columns of its own.
func canonicalAgentAction(a AgentAction) ([]byte, error) {
	meta, err := json.Marshal(a.Meta)
	if err != nil {
		return nil, fmt.Errorf("%w: meta: %v", ErrValidation, err)
	}
	return canonicalFields(
		a.ID,
		a.At.UTC().Format(time.RFC3339Nano),
		a.PrincipalID,
		a.Action,
		string(meta),
	)
}

func canonicalFields(fields ...string) ([]byte, error) {
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: canonical fields: %v", ErrValidation, err)
	}
	return data, nil
}
