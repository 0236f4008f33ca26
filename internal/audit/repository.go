package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository implements Repository using PostgreSQL. All tables are
// append-only; the only UPDATE is the guarded agent action decision.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// InsertEvent appends an audit event.
func (r *PGRepository) InsertEvent(ctx context.Context, e Event) error {
	meta, err := json.Marshal(e.Meta)
	if err != nil {
		return fmt.Errorf("audit: marshal meta: %w", err)
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO audit_events (id, at, principal_id, action, resource, result, client_ip, user_agent, meta, integrity_tag)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.At, e.PrincipalID, e.Action, e.Resource, string(e.Result), e.ClientIP, e.UserAgent, meta, e.IntegrityTag)
	return err
}

// InsertIncident appends a security incident.
func (r *PGRepository) InsertIncident(ctx context.Context, inc Incident) error {
	meta, err := json.Marshal(inc.Meta)
	if err != nil {
		return fmt.Errorf("audit: marshal meta: %w", err)
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO security_events (id, at, category, severity, description, principal_id, meta)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inc.ID, inc.At, string(inc.Category), string(inc.Severity), inc.Description, inc.PrincipalID, meta)
	return err
}

// InsertAgentAction appends a pending agent action.
func (r *PGRepository) InsertAgentAction(ctx context.Context, a AgentAction) error {
	meta, err := json.Marshal(a.Meta)
	if err != nil {
		return fmt.Errorf("audit: marshal meta: %w", err)
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO agent_actions (id, at, principal_id, action, meta, integrity_tag, approval_state)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.At, a.PrincipalID, a.Action, meta, a.IntegrityTag, string(a.State))
	return err
}

// GetAgentAction fetches a single agent action by id.
func (r *PGRepository) GetAgentAction(ctx context.Context, id string) (AgentAction, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, at, principal_id, action, meta, integrity_tag, approval_state, approver_id, decided_at
FROM agent_actions WHERE id = $1`, id)
	action, err := scanAgentAction(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AgentAction{}, fmt.Errorf("%w: agent action %s", ErrNotFound, id)
		}
		return AgentAction{}, err
	}
	return action, nil
}

// DecideAgentAction applies a decision only when the row is still pending.
// Returns false when no pending row matched, which means a concurrent or
// earlier decision won.
func (r *PGRepository) DecideAgentAction(ctx context.Context, id string, state ApprovalState, approverID string, decidedAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE agent_actions SET approval_state = $2, approver_id = $3, decided_at = $4
WHERE id = $1 AND approval_state = 'pending'`,
		id, string(state), approverID, decidedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListEvents returns events newest-first under the supplied filter.
func (r *PGRepository) ListEvents(ctx context.Context, f EventFilter) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, at, principal_id, action, resource, result, client_ip, user_agent, meta, integrity_tag
FROM audit_events
WHERE ($1::text IS NULL OR principal_id = $1)
  AND ($2::timestamptz IS NULL OR at >= $2)
  AND ($3::timestamptz IS NULL OR at <= $3)
ORDER BY at DESC
LIMIT $4`,
		optionalText(f.PrincipalID), optionalTime(f.From), optionalTime(f.To), f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []Event
	for rows.Next() {
		var e Event
		var result string
		var meta []byte
		if err := rows.Scan(&e.ID, &e.At, &e.PrincipalID, &e.Action, &e.Resource, &result, &e.ClientIP, &e.UserAgent, &meta, &e.IntegrityTag); err != nil {
			return nil, err
		}
		e.Result = Result(result)
		if err := unmarshalMeta(meta, &e.Meta); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListIncidents returns incidents newest-first under the supplied filter.
func (r *PGRepository) ListIncidents(ctx context.Context, f IncidentFilter) ([]Incident, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, at, category, severity, description, principal_id, meta
FROM security_events
WHERE ($1::text IS NULL OR severity = $1)
  AND ($2::text IS NULL OR category = $2)
ORDER BY at DESC
LIMIT $3`,
		optionalText(string(f.Severity)), optionalText(string(f.Category)), f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var incidents []Incident
	for rows.Next() {
		var inc Incident
		var category, severity string
		var meta []byte
		if err := rows.Scan(&inc.ID, &inc.At, &category, &severity, &inc.Description, &inc.PrincipalID, &meta); err != nil {
			return nil, err
		}
		inc.Category = IncidentCategory(category)
		inc.Severity = Severity(severity)
		if err := unmarshalMeta(meta, &inc.Meta); err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, rows.Err()
}

// ListPendingAgentActions returns pending actions oldest-first so approvers
// see the longest-waiting proposals first.
func (r *PGRepository) ListPendingAgentActions(ctx context.Context) ([]AgentAction, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, at, principal_id, action, meta, integrity_tag, approval_state, approver_id, decided_at
FROM agent_actions WHERE approval_state = 'pending' ORDER BY at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var actions []AgentAction
	for rows.Next() {
		action, err := scanAgentAction(rows)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}
	return actions, rows.Err()
}

func scanAgentAction(row pgx.Row) (AgentAction, error) {
	var a AgentAction
	var state string
	var meta []byte
	var approver pgtype.Text
	var decidedAt pgtype.Timestamptz
	if err := row.Scan(&a.ID, &a.At, &a.PrincipalID, &a.Action, &meta, &a.IntegrityTag, &state, &approver, &decidedAt); err != nil {
		return AgentAction{}, err
	}
	a.State = ApprovalState(state)
	if approver.Valid {
		a.ApproverID = approver.String
	}
	if decidedAt.Valid {
		t := decidedAt.Time
		a.DecidedAt = &t
	}
	if err := unmarshalMeta(meta, &a.Meta); err != nil {
		return AgentAction{}, err
	}
	return a, nil
}

func unmarshalMeta(data []byte, dest *map[string]any) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	return json.Unmarshal(data, dest)
}

func optionalText(value string) pgtype.Text {
	if value == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: value, Valid: true}
}

func optionalTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
