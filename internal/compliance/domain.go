// Package compliance scores the system against named regulatory
// frameworks and manages data retention scheduling. It never blocks
// authorization traffic; assessments run on demand or from the worker.
package compliance

import (
	"errors"
	"strings"
	"time"
)

// Sentinel errors for the compliance module.
var (
	// ErrNotFound indicates an unknown framework or requirement.
	ErrNotFound = errors.New("compliance: not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("compliance: invalid input")
	// ErrStorage wraps audit persistence failures.
	ErrStorage = errors.New("compliance: storage unavailable")
)

// Status grades a requirement or a whole framework.
type Status string

const (
	StatusCompliant    Status = "compliant"
	StatusPartial      Status = "partial"
	StatusNonCompliant Status = "non_compliant"
	StatusNotAssessed  Status = "not_assessed"
)

// Category selects the evidence rule applied to a requirement.
type Category string

const (
	CategoryAccessControl  Category = "access_control"
	CategoryEncryption     Category = "encryption"
	CategoryAudit          Category = "audit"
	CategoryDataProtection Category = "data_protection"
	CategoryRetention      Category = "retention"
)

// Requirement is a single checklist item of a framework. Status is always
// derived by an assessment, never hand-set.
type Requirement struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Category Category `json:"category"`
	Evidence []string `json:"evidence"`
	Status   Status   `json:"status"`
}

// Framework is a named, versioned checklist. Its overall Status derives
// from its requirements on every assessment.
type Framework struct {
	Name         string        `json:"name"`
	Version      string        `json:"version"`
	Requirements []Requirement `json:"requirements"`
	Status       Status        `json:"status"`
	LastAssessed time.Time     `json:"last_assessed"`
}

// DeletionMethod states how a data category must eventually be destroyed.
type DeletionMethod string

const (
	DeleteSecure      DeletionMethod = "secure_delete"
	DeleteOverwrite   DeletionMethod = "overwrite"
	DeleteCryptoErase DeletionMethod = "crypto_erase"
)

// RetentionPolicy is static configuration; the core schedules deletions
// against it but never performs them.
type RetentionPolicy struct {
	DataCategory       string         `json:"data_category"`
	RetentionDays      int            `json:"retention_days"`
	EncryptionRequired bool           `json:"encryption_required"`
	DeletionMethod     DeletionMethod `json:"deletion_method"`
	AuditDeletion      bool           `json:"audit_deletion"`
}

// normalizeTag folds free-text evidence into the tag form the category
// rules match on: lower case, spaces collapsed to hyphens.
func normalizeTag(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), "-")
}
