// Package audit implements the tamper-evident audit ledger: field-level
// encryption of sensitive payload data, keyed integrity hashing,
// verification, severity and retention classification, and burst
// detection over security events.
package audit

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"veristat/internal/audit/integrity"
	"veristat/internal/audit/metrics"
	"veristat/internal/audit/models"
	"veristat/internal/audit/ports"
	dErrors "veristat/pkg/domain-errors"
	"veristat/pkg/platform/privacy"
	"veristat/pkg/requestcontext"
)

const (
	burstWindow    = 30 * time.Minute
	burstThreshold = 5

	encryptedSuffix = "_encrypted"

	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// sensitiveFields are encrypted individually before persistence. The set
// is part of the stored contract: widening it is safe, narrowing it would
// leave old events carrying envelopes the reader cannot name.
var sensitiveFields = []string{
	"user_id", "email", "phone_number", "personal_data",
	"biometric_data", "document_data", "location_data",
}

// Service is the audit ledger.
type Service struct {
	store       ports.Store
	encrypter   ports.Encrypter
	hasher      *integrity.Hasher
	alerts      ports.AlertSink
	environment string
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAlertSink wires real-time alerting for critical events. Publishing
// is best-effort: a sink failure never fails the record.
func WithAlertSink(sink ports.AlertSink) Option {
	return func(s *Service) { s.alerts = sink }
}

func WithEnvironment(env string) Option {
	return func(s *Service) { s.environment = env }
}

func NewService(store ports.Store, encrypter ports.Encrypter, hasher *integrity.Hasher, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "store is required")
	}
	if encrypter == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "encrypter is required")
	}
	if hasher == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "integrity hasher is required")
	}
	s := &Service{
		store:       store,
		encrypter:   encrypter,
		hasher:      hasher,
		environment: "production",
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

type recordParams struct {
	severity      models.Severity
	principalRef  string
	resourceType  string
	resourceID    string
	action        string
	status        string
	sourceAddress string
}

type RecordOption func(*recordParams)

func WithSeverity(severity models.Severity) RecordOption {
	return func(p *recordParams) { p.severity = severity }
}

func WithPrincipal(ref string) RecordOption {
	return func(p *recordParams) { p.principalRef = ref }
}

func WithResource(resourceType, resourceID string) RecordOption {
	return func(p *recordParams) {
		p.resourceType = resourceType
		p.resourceID = resourceID
	}
}

func WithAction(action string) RecordOption {
	return func(p *recordParams) { p.action = action }
}

func WithStatus(status string) RecordOption {
	return func(p *recordParams) { p.status = status }
}

// WithSource overrides the source address taken from the request context.
func WithSource(address string) RecordOption {
	return func(p *recordParams) { p.sourceAddress = address }
}

// Record appends one audit event: the payload is enriched with request
// context, sensitive fields are sealed into per-field envelopes, and the
// integrity hash is computed over the canonical encrypted payload.
//
// Critical event types always record at CRITICAL regardless of the
// caller-supplied severity. Security event types additionally run the
// burst check for their source address.
func (s *Service) Record(ctx context.Context, eventType string, payload map[string]any, opts ...RecordOption) (*models.Event, error) {
	if eventType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "event type is required")
	}

	params := recordParams{
		severity:      models.SeverityLow,
		principalRef:  requestcontext.Principal(ctx),
		sourceAddress: privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
	}
	for _, opt := range opts {
		opt(&params)
	}
	if !params.severity.Valid() {
		return nil, dErrors.Newf(dErrors.CodeValidation, "unknown severity %q", params.severity)
	}

	now := requestcontext.Now(ctx).UTC()
	enriched := s.enrich(ctx, payload, now)
	sealed, err := s.encryptSensitive(ctx, enriched)
	if err != nil {
		return nil, err
	}
	canonical, err := integrity.Canonicalize(sealed)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "canonicalize audit payload")
	}

	severity := params.severity
	if models.IsCriticalType(eventType) {
		severity = models.SeverityCritical
	}

	event := &models.Event{
		EventID:          uuid.New(),
		EventType:        eventType,
		PrincipalRef:     params.principalRef,
		ResourceType:     params.resourceType,
		ResourceID:       params.resourceID,
		Action:           params.action,
		Status:           params.status,
		Severity:         severity,
		SeverityLevel:    severity.Level(),
		EncryptedPayload: sealed,
		IntegrityHash:    s.hasher.Compute(eventType, canonical, now),
		SourceAddress:    params.sourceAddress,
		UserAgent:        requestcontext.UserAgent(ctx),
		RequestID:        requestcontext.RequestID(ctx),
		IsCritical:       models.IsCriticalType(eventType),
		IsSecurityEvent:  models.IsSecurityType(eventType),
		OccurredAt:       now,
		RetentionUntil:   now.AddDate(models.RetentionYears, 0, 0),
	}

	if err := s.store.Append(ctx, event); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "append audit event")
	}
	s.metrics.IncRecorded(string(severity))
	s.logger.InfoContext(ctx, "audit event recorded",
		"event_id", event.EventID, "event_type", eventType, "severity", severity)

	if event.IsCritical {
		s.publishAlert(ctx, event)
	}
	if event.IsSecurityEvent {
		s.checkBurst(ctx, event)
	}
	return event, nil
}

// enrich adds request-scoped context to a copy of the payload. The
// caller's map is never mutated.
func (s *Service) enrich(ctx context.Context, payload map[string]any, now time.Time) map[string]any {
	enriched := make(map[string]any, len(payload)+4)
	for k, v := range payload {
		enriched[k] = v
	}
	enriched["timestamp"] = now.Format(time.RFC3339Nano)
	enriched["environment"] = s.environment
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		enriched["request_id"] = requestID
	}
	if raw := requestcontext.UserAgent(ctx); raw != "" {
		ua := useragent.New(raw)
		browser, version := ua.Browser()
		enriched["client"] = map[string]any{
			"browser": browser,
			"version": version,
			"os":      ua.OS(),
			"mobile":  ua.Mobile(),
			"bot":     ua.Bot(),
		}
	}
	return enriched
}

// encryptSensitive replaces each configured sensitive field with a
// `<field>_encrypted` envelope holding the base64 ciphertext of the
// field's JSON encoding.
func (s *Service) encryptSensitive(ctx context.Context, payload map[string]any) (map[string]any, error) {
	sealed := make(map[string]any, len(payload))
	for k, v := range payload {
		sealed[k] = v
	}
	for _, field := range sensitiveFields {
		value, ok := sealed[field]
		if !ok {
			continue
		}
		plaintext, err := json.Marshal(value)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeEncryptionFailure, "encode sensitive field "+field)
		}
		ciphertext, err := s.encrypter.Encrypt(ctx, plaintext)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeEncryptionFailure, "encrypt sensitive field "+field)
		}
		sealed[field+encryptedSuffix] = base64.StdEncoding.EncodeToString(ciphertext)
		delete(sealed, field)
	}
	return sealed, nil
}

func (s *Service) publishAlert(ctx context.Context, event *models.Event) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "critical event alert failed",
			"event_id", event.EventID, "error", err)
	}
}

// checkBurst escalates when a source address produced more than the
// threshold of security events inside the window. Best-effort: a store
// failure here is logged, never surfaced.
func (s *Service) checkBurst(ctx context.Context, event *models.Event) {
	if event.SourceAddress == "" {
		return
	}
	since := event.OccurredAt.Add(-burstWindow)
	count, err := s.store.CountRecentSecurity(ctx, event.SourceAddress, since)
	if err != nil {
		s.logger.WarnContext(ctx, "burst check failed", "error", err)
		return
	}
	if count <= burstThreshold {
		return
	}
	s.metrics.IncBurst()
	// The synthesized pattern event is not itself a security type, so a
	// burst cannot trigger another burst.
	_, err = s.Record(ctx, models.EventSuspiciousActivityPattern, map[string]any{
		"source_address":      event.SourceAddress,
		"event_count":         count,
		"time_window_minutes": int(burstWindow.Minutes()),
		"pattern_type":        "HIGH_FREQUENCY",
	}, WithSeverity(models.SeverityCritical), WithSource(event.SourceAddress))
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record suspicious activity pattern", "error", err)
	}
}

// Verify recomputes the integrity hash of one event and compares it in
// constant time against the stored value.
func (s *Service) Verify(_ context.Context, event *models.Event) (bool, error) {
	if event == nil {
		return false, dErrors.New(dErrors.CodeValidation, "event is required")
	}
	canonical, err := integrity.Canonicalize(event.EncryptedPayload)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "canonicalize audit payload")
	}
	return s.hasher.Verify(event.EventType, canonical, event.OccurredAt, event.IntegrityHash), nil
}

// VerifyRange verifies every event in [start, end]. Corrupted events are
// preserved as evidence and reported, never repaired; a non-zero
// corrupted count is itself recorded as a CRITICAL event.
func (s *Service) VerifyRange(ctx context.Context, start, end time.Time) (*models.VerificationReport, error) {
	if end.Before(start) {
		return nil, dErrors.New(dErrors.CodeInvalidRange, "end must not be before start")
	}
	events, err := s.store.ListByRange(ctx, start, end)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list audit events")
	}

	report := &models.VerificationReport{Total: len(events), IntegrityScore: 100}
	for _, event := range events {
		ok, err := s.Verify(ctx, event)
		if err != nil {
			return nil, err
		}
		if ok {
			report.Verified++
			continue
		}
		report.Corrupted++
		report.Violations = append(report.Violations, event.EventID)
		s.logger.ErrorContext(ctx, "audit integrity violation",
			"event_id", event.EventID, "event_type", event.EventType)
	}
	if report.Total > 0 {
		report.IntegrityScore = float64(report.Verified) / float64(report.Total) * 100
	}

	if report.Corrupted > 0 {
		s.metrics.AddViolations(report.Corrupted)
		_, err := s.Record(ctx, models.EventIntegrityCheck, map[string]any{
			"range_start":     start.UTC().Format(time.RFC3339),
			"range_end":       end.UTC().Format(time.RFC3339),
			"total":           report.Total,
			"corrupted":       report.Corrupted,
			"integrity_score": report.IntegrityScore,
		}, WithSeverity(models.SeverityCritical))
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to record integrity check outcome", "error", err)
		}
	}
	return report, nil
}

// History returns the most recent events for a principal with sensitive
// envelopes opened. A field that fails to decrypt is listed as
// unavailable instead of failing the read, and the access itself is
// recorded.
func (s *Service) History(ctx context.Context, principalRef string, limit int) ([]models.HistoryEntry, error) {
	if principalRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "principal reference is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	events, err := s.store.ListByPrincipal(ctx, principalRef, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list audit events")
	}

	entries := make([]models.HistoryEntry, 0, len(events))
	for _, event := range events {
		entry := models.HistoryEntry{
			EventID:    event.EventID,
			EventType:  event.EventType,
			Severity:   event.Severity,
			Payload:    make(map[string]any, len(event.EncryptedPayload)),
			OccurredAt: event.OccurredAt,
		}
		for key, value := range event.EncryptedPayload {
			original, isEnvelope := stripEncryptedSuffix(key)
			if !isEnvelope {
				entry.Payload[key] = value
				continue
			}
			decrypted, err := s.openEnvelope(ctx, value)
			if err != nil {
				s.metrics.IncDecryptFailure()
				s.logger.WarnContext(ctx, "audit field unavailable",
					"event_id", event.EventID, "field", original, "error", err)
				entry.UnavailableFields = append(entry.UnavailableFields, original)
				continue
			}
			entry.Payload[original] = decrypted
		}
		entries = append(entries, entry)
	}

	_, err = s.Record(ctx, models.EventAuditHistoryAccess, map[string]any{
		"principal_reference": principalRef,
		"record_count":        len(entries),
	}, WithPrincipal(principalRef))
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record history access", "error", err)
	}
	return entries, nil
}

func stripEncryptedSuffix(key string) (string, bool) {
	if len(key) <= len(encryptedSuffix) || key[len(key)-len(encryptedSuffix):] != encryptedSuffix {
		return key, false
	}
	return key[:len(key)-len(encryptedSuffix)], true
}

func (s *Service) openEnvelope(ctx context.Context, value any) (any, error) {
	encoded, ok := value.(string)
	if !ok {
		return nil, dErrors.New(dErrors.CodeEncryptionFailure, "envelope is not a string")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncryptionFailure, "decode envelope")
	}
	plaintext, err := s.encrypter.Decrypt(ctx, ciphertext)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncryptionFailure, "open envelope")
	}
	var decrypted any
	if err := json.Unmarshal(plaintext, &decrypted); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncryptionFailure, "decode field")
	}
	return decrypted, nil
}

// RecordUserAccess notes that a principal's data was read.
func (s *Service) RecordUserAccess(ctx context.Context, principalRef string, accessedFields []string) (*models.Event, error) {
	return s.Record(ctx, models.EventUserDataAccess, map[string]any{
		"accessed_fields": accessedFields,
	}, WithPrincipal(principalRef), WithAction("read"))
}

// RecordDataExport notes a data export. The type is in the critical
// table, so the event records at CRITICAL.
func (s *Service) RecordDataExport(ctx context.Context, principalRef, format string, scope []string) (*models.Event, error) {
	return s.Record(ctx, models.EventUserDataExport, map[string]any{
		"export_format": format,
		"export_scope":  scope,
	}, WithPrincipal(principalRef), WithAction("export"))
}

// RecordUserAnonymization notes an irreversible anonymization.
func (s *Service) RecordUserAnonymization(ctx context.Context, principalRef, reason string) (*models.Event, error) {
	return s.Record(ctx, models.EventUserAnonymization, map[string]any{
		"reason": reason,
	}, WithPrincipal(principalRef), WithAction("anonymize"))
}

// RecordUserSearch notes a search over principal data. Sensitive
// criteria values are redacted before the event is written; only the
// fact that arguments were supplied for those keys is kept.
func (s *Service) RecordUserSearch(ctx context.Context, criteria map[string]any, resultCount int) (*models.Event, error) {
	sanitized := privacy.RedactFields(criteria,
		"email", "phone", "document_number", "biometric_data")
	return s.Record(ctx, models.EventUserSearch, map[string]any{
		"search_criteria": sanitized,
		"result_count":    resultCount,
	}, WithAction("search"))
}

// RecordSecurityEvent notes a security-relevant event; eventType must be
// one of the security table's types.
func (s *Service) RecordSecurityEvent(ctx context.Context, eventType string, details map[string]any, opts ...RecordOption) (*models.Event, error) {
	if !models.IsSecurityType(eventType) {
		return nil, dErrors.Newf(dErrors.CodeValidation, "%s is not a security event type", eventType)
	}
	opts = append([]RecordOption{WithSeverity(models.SeverityHigh)}, opts...)
	return s.Record(ctx, eventType, details, opts...)
}

// LastEventByType returns a principal's most recent event of the given
// type, or sentinel.ErrNotFound via the store.
func (s *Service) LastEventByType(ctx context.Context, principalRef, eventType string) (*models.Event, error) {
	if principalRef == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "principal reference is required")
	}
	if eventType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "event type is required")
	}
	return s.store.LastByType(ctx, principalRef, eventType)
}

// LastDataExport returns a principal's most recent export event.
func (s *Service) LastDataExport(ctx context.Context, principalRef string) (*models.Event, error) {
	return s.LastEventByType(ctx, principalRef, models.EventUserDataExport)
}

// PurgeExpired deletes events past their retention time and returns how
// many were removed.
func (s *Service) PurgeExpired(ctx context.Context) (int, error) {
	deleted, err := s.store.DeleteExpired(ctx, requestcontext.Now(ctx).UTC())
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "delete expired audit events")
	}
	if deleted > 0 {
		s.logger.InfoContext(ctx, "expired audit events purged", "count", deleted)
	}
	return deleted, nil
}
