// Package models defines the tamper-evident audit event and its
// classification tables. Field names and enumeration values are the
// persisted wire contract and must stay compatible with stored events.
package models

import (
	"time"

	"github.com/google/uuid"
)

// RetentionYears is how long audit events must be kept before they are
// eligible for physical deletion.
const RetentionYears = 7

// Severity grades an audit event. The numeric levels are persisted.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityLevels = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Level returns the numeric rank of a severity, 1 for unknown values.
func (s Severity) Level() int {
	if level, ok := severityLevels[s]; ok {
		return level
	}
	return 1
}

// Valid reports whether s is one of the defined severities.
func (s Severity) Valid() bool {
	_, ok := severityLevels[s]
	return ok
}

// Audit event types. The strings are persisted and must not change.
const (
	EventUserDataAccess     = "USER_DATA_ACCESS"
	EventUserCreated        = "USER_CREATED"
	EventUserUpdated        = "USER_UPDATED"
	EventUserDataExport     = "USER_DATA_EXPORT"
	EventUserAnonymization  = "USER_ANONYMIZATION"
	EventUserSearch         = "USER_SEARCH"
	EventConsentUpdated     = "CONSENT_UPDATED"
	EventAuditHistoryAccess = "AUDIT_HISTORY_ACCESSED"
	EventIntegrityCheck     = "AUDIT_INTEGRITY_CHECK"

	EventDataBreachDetected = "DATA_BREACH_DETECTED"
	EventUnauthorizedAccess = "UNAUTHORIZED_ACCESS"
	EventAdminLogin         = "ADMIN_LOGIN"
	EventSystemConfigChange = "SYSTEM_CONFIG_CHANGE"

	EventFailedLoginAttempts     = "FAILED_LOGIN_ATTEMPTS"
	EventSuspiciousActivity      = "SUSPICIOUS_ACTIVITY"
	EventPrivilegeEscalation     = "PRIVILEGE_ESCALATION"
	EventDataExfiltrationAttempt = "DATA_EXFILTRATION_ATTEMPT"
	EventMaliciousRequestPattern = "MALICIOUS_REQUEST_PATTERN"

	// EventSuspiciousActivityPattern is synthesized by the burst check.
	// It is deliberately absent from the security-event table so a burst
	// of bursts cannot recurse.
	EventSuspiciousActivityPattern = "SUSPICIOUS_ACTIVITY_PATTERN"
)

// criticalEvents always record at CRITICAL, whatever the caller asked.
var criticalEvents = map[string]struct{}{
	EventUserDataExport:     {},
	EventUserAnonymization:  {},
	EventDataBreachDetected: {},
	EventUnauthorizedAccess: {},
	EventAdminLogin:         {},
	EventSystemConfigChange: {},
}

// securityEvents participate in the windowed burst check.
var securityEvents = map[string]struct{}{
	EventFailedLoginAttempts:     {},
	EventSuspiciousActivity:      {},
	EventPrivilegeEscalation:     {},
	EventDataExfiltrationAttempt: {},
	EventMaliciousRequestPattern: {},
}

// IsCriticalType reports whether eventType is in the critical table.
func IsCriticalType(eventType string) bool {
	_, ok := criticalEvents[eventType]
	return ok
}

// IsSecurityType reports whether eventType is in the security table.
func IsSecurityType(eventType string) bool {
	_, ok := securityEvents[eventType]
	return ok
}

// Event is one append-only, tamper-evident audit record. Events are
// created exactly once and never mutated.
type Event struct {
	EventID          uuid.UUID      `json:"event_id"`
	EventType        string         `json:"event_type"`
	PrincipalRef     string         `json:"principal_reference,omitempty"`
	ResourceType     string         `json:"resource_type,omitempty"`
	ResourceID       string         `json:"resource_id,omitempty"`
	Action           string         `json:"action,omitempty"`
	Status           string         `json:"status,omitempty"`
	Severity         Severity       `json:"severity"`
	SeverityLevel    int            `json:"severity_level"`
	EncryptedPayload map[string]any `json:"encrypted_payload"`
	IntegrityHash    string         `json:"integrity_hash"`
	SourceAddress    string         `json:"source_address,omitempty"`
	UserAgent        string         `json:"user_agent,omitempty"`
	RequestID        string         `json:"request_id,omitempty"`
	IsCritical       bool           `json:"is_critical"`
	IsSecurityEvent  bool           `json:"is_security_event"`
	OccurredAt       time.Time      `json:"occurred_at"`
	RetentionUntil   time.Time      `json:"retention_until"`
}

// HistoryEntry is one decrypted audit record returned by history reads.
// Fields that failed to decrypt are reported by name, not dropped.
type HistoryEntry struct {
	EventID           uuid.UUID      `json:"event_id"`
	EventType         string         `json:"event_type"`
	Severity          Severity       `json:"severity"`
	Payload           map[string]any `json:"payload"`
	UnavailableFields []string       `json:"unavailable_fields,omitempty"`
	OccurredAt        time.Time      `json:"occurred_at"`
}

// VerificationReport summarizes a verifyRange pass.
type VerificationReport struct {
	Total          int         `json:"total"`
	Verified       int         `json:"verified"`
	Corrupted      int         `json:"corrupted"`
	IntegrityScore float64     `json:"integrity_score"`
	Violations     []uuid.UUID `json:"violations,omitempty"`
}
