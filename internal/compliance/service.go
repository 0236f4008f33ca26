package compliance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/gunnchOS3k/arcade-core/internal/audit"
	"github.com/gunnchOS3k/arcade-core/internal/crypto"
)

// evidenceWindow caps how many recent audit events an evidence export
// bundles.
const evidenceWindow = 100

// Recorder is the narrow write capability the engine needs from the
// audit log.
type Recorder interface {
	Record(ctx context.Context, e audit.Event) (string, error)
}

// AuditReader is the narrow read capability used for evidence export.
type AuditReader interface {
	QueryEvents(ctx context.Context, f audit.EventFilter) ([]audit.Event, error)
}

// Engine assesses frameworks and schedules retention. Safe for concurrent
// use; assessments never block authorization traffic.
type Engine struct {
	mu         sync.RWMutex
	frameworks map[string]*Framework
	policies   map[string]RetentionPolicy

	recorder Recorder
	reader   AuditReader
	keys     crypto.KeyPair
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine constructs the compliance engine. The key pair signs evidence
// exports before they leave the system boundary.
func NewEngine(frameworks []Framework, policies []RetentionPolicy, recorder Recorder, reader AuditReader, keys crypto.KeyPair, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	fw := make(map[string]*Framework, len(frameworks))
	for i := range frameworks {
		f := frameworks[i]
		fw[f.Name] = &f
	}
	pol := make(map[string]RetentionPolicy, len(policies))
	for _, p := range policies {
		pol[p.DataCategory] = p
	}
	return &Engine{
		frameworks: fw,
		policies:   pol,
		recorder:   recorder,
		reader:     reader,
		keys:       keys,
		logger:     logger,
		now:        time.Now,
	}
}

// evaluateRequirement applies the three-tier category rule: all tags
// present is compliant, any tag partial, none non-compliant.
func evaluateRequirement(req Requirement) Status {
	tags := categoryTags[req.Category]
	if len(tags) == 0 {
		return StatusNonCompliant
	}
	present := make(map[string]bool, len(req.Evidence))
	for _, ev := range req.Evidence {
		present[normalizeTag(ev)] = true
	}
	matched := 0
	for _, tag := range tags {
		if present[tag] {
			matched++
		}
	}
	switch {
	case matched == len(tags):
		return StatusCompliant
	case matched > 0:
		return StatusPartial
	default:
		return StatusNonCompliant
	}
}

// deriveStatus folds requirement statuses into the framework status.
func deriveStatus(requirements []Requirement) Status {
	status := StatusCompliant
	for _, req := range requirements {
		switch req.Status {
		case StatusNonCompliant:
			return StatusNonCompliant
		case StatusPartial:
			status = StatusPartial
		}
	}
	return status
}

// Assess re-evaluates every requirement of the named framework and
// derives its overall status. Idempotent under unchanged evidence.
func (e *Engine) Assess(ctx context.Context, name string) (Framework, error) {
	e.mu.Lock()
	fw, ok := e.frameworks[name]
	if !ok {
		e.mu.Unlock()
		return Framework{}, fmt.Errorf("%w: framework %q", ErrNotFound, name)
	}
	for i := range fw.Requirements {
		fw.Requirements[i].Status = evaluateRequirement(fw.Requirements[i])
	}
	fw.Status = deriveStatus(fw.Requirements)
	fw.LastAssessed = e.now().UTC()
	snapshot := cloneFramework(*fw)
	e.mu.Unlock()

	if _, err := e.recorder.Record(ctx, audit.Event{
		PrincipalID: "system:compliance",
		Action:      "compliance.assess",
		Resource:    "compliance",
		Result:      audit.ResultSuccess,
		Meta:        map[string]any{"framework": name, "status": string(snapshot.Status)},
	}); err != nil {
		// The assessment itself has no durable side effect to confirm.
		e.logger.Warn("audit assessment", slog.String("framework", name), slog.Any("error", err))
	}
	return snapshot, nil
}

// RecordEvidence appends evidence tags to a requirement. The new evidence
// takes effect on the next assessment.
func (e *Engine) RecordEvidence(name, requirementID string, evidence ...string) error {
	if len(evidence) == 0 {
		return fmt.Errorf("%w: evidence required", ErrValidation)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fw, ok := e.frameworks[name]
	if !ok {
		return fmt.Errorf("%w: framework %q", ErrNotFound, name)
	}
	for i := range fw.Requirements {
		if fw.Requirements[i].ID == requirementID {
			fw.Requirements[i].Evidence = append(fw.Requirements[i].Evidence, evidence...)
			return nil
		}
	}
	return fmt.Errorf("%w: requirement %q in %q", ErrNotFound, requirementID, name)
}

// Framework returns a copy of the named framework.
func (e *Engine) Framework(name string) (Framework, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fw, ok := e.frameworks[name]
	if !ok {
		return Framework{}, fmt.Errorf("%w: framework %q", ErrNotFound, name)
	}
	return cloneFramework(*fw), nil
}

// FrameworkNames lists the registered frameworks.
func (e *Engine) FrameworkNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.frameworks))
	for name := range e.frameworks {
		names = append(names, name)
	}
	return names
}

// FrameworkSummary is the per-framework slice of a report.
type FrameworkSummary struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Status       Status    `json:"status"`
	LastAssessed time.Time `json:"last_assessed,omitempty"`
	Compliant    int       `json:"compliant"`
	Partial      int       `json:"partial"`
	NonCompliant int       `json:"non_compliant"`
}

// Report aggregates frameworks, retention policies and the overall score.
type Report struct {
	GeneratedAt       time.Time          `json:"generated_at"`
	Frameworks        []FrameworkSummary `json:"frameworks"`
	RetentionPolicies []RetentionPolicy  `json:"retention_policies"`
	OverallScore      int                `json:"overall_score"`
}

// BuildReport scores every requirement across all frameworks: compliant
// counts 100, partial 50, non-compliant 0; the overall score is the
// rounded mean. Requirements are evaluated live so the score never
// depends on assessment staleness.
func (e *Engine) BuildReport(ctx context.Context) (Report, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	report := Report{GeneratedAt: e.now().UTC()}
	total, sum := 0, 0
	for _, fw := range e.frameworks {
		summary := FrameworkSummary{
			Name:         fw.Name,
			Version:      fw.Version,
			Status:       fw.Status,
			LastAssessed: fw.LastAssessed,
		}
		for _, req := range fw.Requirements {
			total++
			switch evaluateRequirement(req) {
			case StatusCompliant:
				sum += 100
				summary.Compliant++
			case StatusPartial:
				sum += 50
				summary.Partial++
			default:
				summary.NonCompliant++
			}
		}
		report.Frameworks = append(report.Frameworks, summary)
	}
	for _, p := range e.policies {
		report.RetentionPolicies = append(report.RetentionPolicies, p)
	}
	if total > 0 {
		report.OverallScore = int(math.Round(float64(sum) / float64(total)))
	}
	return report, nil
}

// RetentionPolicyFor looks up the policy for a data category.
func (e *Engine) RetentionPolicyFor(dataCategory string) (RetentionPolicy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.policies[dataCategory]
	return p, ok
}

// ScheduleDeletion computes the deletion date from the category's
// retention period and records it on the audit trail. The core never
// performs the deletion; external storage does, later.
func (e *Engine) ScheduleDeletion(ctx context.Context, dataCategory string) (bool, error) {
	policy, ok := e.RetentionPolicyFor(dataCategory)
	if !ok {
		return false, fmt.Errorf("%w: retention policy for %q", ErrNotFound, dataCategory)
	}
	deleteAfter := e.now().UTC().AddDate(0, 0, policy.RetentionDays)
	if _, err := e.recorder.Record(ctx, audit.Event{
		PrincipalID: "system:compliance",
		Action:      "retention.schedule_deletion",
		Resource:    "compliance",
		Result:      audit.ResultSuccess,
		Meta: map[string]any{
			"data_category": dataCategory,
			"delete_after":  deleteAfter.Format("2006-01-02"),
			"method":        string(policy.DeletionMethod),
			"audited":       policy.AuditDeletion,
		},
	}); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return true, nil
}

// EvidenceBundle is a signed export of a framework's current state plus a
// recent audit window. The caller transmits it; this core never does.
type EvidenceBundle struct {
	Payload   json.RawMessage `json:"payload"`
	Signature []byte          `json:"signature"`
	PublicKey []byte          `json:"public_key"`
}

type evidencePayload struct {
	Framework    string        `json:"framework"`
	Version      string        `json:"version"`
	GeneratedAt  time.Time     `json:"generated_at"`
	Status       Status        `json:"status"`
	Requirements []Requirement `json:"requirements"`
	AuditWindow  []audit.Event `json:"audit_window"`
}

// ExportEvidence bundles the framework's current requirement statuses
// with recent audit records and signs the canonical JSON payload.
func (e *Engine) ExportEvidence(ctx context.Context, name string) (EvidenceBundle, error) {
	fw, err := e.Framework(name)
	if err != nil {
		return EvidenceBundle{}, err
	}
	events, err := e.reader.QueryEvents(ctx, audit.EventFilter{Limit: evidenceWindow})
	if err != nil {
		return EvidenceBundle{}, err
	}
	payload, err := json.Marshal(evidencePayload{
		Framework:    fw.Name,
		Version:      fw.Version,
		GeneratedAt:  e.now().UTC(),
		Status:       fw.Status,
		Requirements: fw.Requirements,
		AuditWindow:  events,
	})
	if err != nil {
		return EvidenceBundle{}, fmt.Errorf("compliance: marshal evidence: %w", err)
	}
	sig, err := crypto.Sign(payload, e.keys.PrivateKey)
	if err != nil {
		return EvidenceBundle{}, err
	}
	return EvidenceBundle{Payload: payload, Signature: sig, PublicKey: e.keys.PublicKey}, nil
}

func cloneFramework(fw Framework) Framework {
	reqs := make([]Requirement, len(fw.Requirements))
	copy(reqs, fw.Requirements)
	for i := range reqs {
		evidence := make([]string, len(reqs[i].Evidence))
		copy(evidence, reqs[i].Evidence)
		reqs[i].Evidence = evidence
	}
	fw.Requirements = reqs
	return fw
}
