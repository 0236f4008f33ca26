package compliance

// categoryTags holds the evidence tag set per category. A requirement is
// compliant when all of its category's tags appear in its evidence,
// partial when at least one does, non-compliant otherwise.
var categoryTags = map[Category][]string{
	CategoryAccessControl:  {"rbac", "mfa", "access-logs"},
	CategoryEncryption:     {"encryption-at-rest", "encryption-in-transit", "key-management"},
	CategoryAudit:          {"audit-logging", "integrity-tags", "incident-tracking"},
	CategoryDataProtection: {"data-encryption", "access-controls", "audit-logging"},
	CategoryRetention:      {"retention-policy", "deletion-scheduling", "deletion-audit"},
}

// DefaultFrameworks seeds the frameworks the core tracks out of the box.
// Evidence reflects what the governance core actually implements; the
// worker re-assesses on a schedule.
func DefaultFrameworks() []Framework {
	return []Framework{
		{
			Name:    "GDPR",
			Version: "2016/679",
			Requirements: []Requirement{
				{
					ID:       "Art.5",
					Title:    "Storage limitation",
					Category: CategoryRetention,
					Evidence: []string{"retention-policy", "deletion-scheduling", "deletion-audit"},
					Status:   StatusNotAssessed,
				},
				{
					ID:       "Art.25",
					Title:    "Data protection by design and by default",
					Category: CategoryAccessControl,
					Evidence: []string{"rbac", "mfa", "access-logs"},
					Status:   StatusNotAssessed,
				},
				{
					ID:       "Art.30",
					Title:    "Records of processing activities",
					Category: CategoryAudit,
					Evidence: []string{"audit-logging", "integrity-tags", "incident-tracking"},
					Status:   StatusNotAssessed,
				},
				{
					ID:       "Art.32",
					Title:    "Security of processing",
					Category: CategoryDataProtection,
					Evidence: []string{"Data encryption", "Access controls", "Audit logging"},
					Status:   StatusNotAssessed,
				},
			},
			Status: StatusNotAssessed,
		},
		{
			Name:    "SOC2",
			Version: "2017 TSC",
			Requirements: []Requirement{
				{
					ID:       "CC6.1",
					Title:    "Logical access security",
					Category: CategoryAccessControl,
					Evidence: []string{"rbac", "mfa", "access-logs"},
					Status:   StatusNotAssessed,
				},
				{
					ID:       "CC6.6",
					Title:    "Encryption of data",
					Category: CategoryEncryption,
					Evidence: []string{"encryption-at-rest", "encryption-in-transit"},
					Status:   StatusNotAssessed,
				},
				{
					ID:       "CC7.2",
					Title:    "System monitoring",
					Category: CategoryAudit,
					Evidence: []string{"audit-logging", "integrity-tags", "incident-tracking"},
					Status:   StatusNotAssessed,
				},
				{
					ID:       "CC6.5",
					Title:    "Disposal of data",
					Category: CategoryRetention,
					Evidence: []string{"retention-policy", "deletion-scheduling", "deletion-audit"},
					Status:   StatusNotAssessed,
				},
			},
			Status: StatusNotAssessed,
		},
		{
			Name:    "ISO27001",
			Version: "2022",
			Requirements: []Requirement{
				{
					ID:       "A.5.15",
					Title:    "Access control",
					Category: CategoryAccessControl,
					Evidence: []string{"rbac", "mfa", "access-logs"},
					Status:   StatusNotAssessed,
				},
				{
					ID:       "A.8.24",
					Title:    "Use of cryptography",
					Category: CategoryEncryption,
					Evidence: []string{"encryption-at-rest", "encryption-in-transit", "key-management"},
					Status:   StatusNotAssessed,
				},
				{
					ID:       "A.8.15",
					Title:    "Logging",
					Category: CategoryAudit,
					Evidence: []string{"audit-logging", "integrity-tags", "incident-tracking"},
					Status:   StatusNotAssessed,
				},
				{
					ID:       "A.8.10",
					Title:    "Information deletion",
					Category: CategoryRetention,
					Evidence: []string{"retention-policy", "deletion-scheduling", "deletion-audit"},
					Status:   StatusNotAssessed,
				},
			},
			Status: StatusNotAssessed,
		},
	}
}

// DefaultRetentionPolicies returns the static retention configuration.
// Periods are in days; the 2555-day categories cover seven-year evidence
// retention obligations.
func DefaultRetentionPolicies() []RetentionPolicy {
	return []RetentionPolicy{
		{DataCategory: "audit_logs", RetentionDays: 2555, EncryptionRequired: true, DeletionMethod: DeleteCryptoErase, AuditDeletion: true},
		{DataCategory: "security_events", RetentionDays: 1095, EncryptionRequired: true, DeletionMethod: DeleteSecure, AuditDeletion: true},
		{DataCategory: "agent_actions", RetentionDays: 2555, EncryptionRequired: true, DeletionMethod: DeleteCryptoErase, AuditDeletion: true},
		{DataCategory: "player_profiles", RetentionDays: 1825, EncryptionRequired: true, DeletionMethod: DeleteSecure, AuditDeletion: true},
		{DataCategory: "save_states", RetentionDays: 365, EncryptionRequired: false, DeletionMethod: DeleteOverwrite, AuditDeletion: false},
		{DataCategory: "session_data", RetentionDays: 90, EncryptionRequired: false, DeletionMethod: DeleteOverwrite, AuditDeletion: false},
	}
}
