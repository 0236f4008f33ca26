// Package jobs defines the background work the worker process executes:
// scheduled compliance assessments and retention scans.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskComplianceAssess re-evaluates compliance frameworks.
	TaskComplianceAssess = "compliance:assess"
	// TaskRetentionScan checks stored data against retention policies.
	TaskRetentionScan = "retention:scan"
)

// ComplianceAssessPayload selects what to assess. An empty framework
// means every registered framework.
type ComplianceAssessPayload struct {
	Framework string `json:"framework,omitempty"`
}

// NewComplianceAssessTask constructs an Asynq task.
func NewComplianceAssessTask(payload ComplianceAssessPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskComplianceAssess, data), nil
}

// RetentionScanPayload selects which data categories to scan. Empty means
// every category with a retention policy backed by a table.
type RetentionScanPayload struct {
	DataCategories []string `json:"data_categories,omitempty"`
}

// NewRetentionScanTask constructs an Asynq task.
func NewRetentionScanTask(payload RetentionScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRetentionScan, data), nil
}
