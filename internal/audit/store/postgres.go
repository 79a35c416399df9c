package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"veristat/internal/audit/models"
	"veristat/pkg/platform/sentinel"
	"veristat/pkg/platform/tx"
)

// PostgresStore persists audit events in PostgreSQL. The payload is kept
// as JSONB exactly as hashed: re-marshaling must not change the bytes
// the integrity hash was computed over, which is why the canonical map
// (sorted keys via encoding/json) is stored, not a projection.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed audit store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q returns the context transaction when one is active so multi-event
// writes stay atomic, otherwise the pool.
func (s *PostgresStore) q(ctx context.Context) querier {
	if t, ok := tx.From(ctx); ok {
		return t
	}
	return s.db
}

// RunInTx executes fn with a transaction stamped into the context; every
// store call inside fn joins it. Rolls back when fn returns an error.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	if err := fn(tx.WithTx(ctx, t)); err != nil {
		if rbErr := t.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback audit tx: %w (after: %w)", rbErr, err)
		}
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit audit tx: %w", err)
	}
	return nil
}

const auditColumns = `
	event_id, event_type, principal_ref, resource_type, resource_id,
	action, status, severity, severity_level, encrypted_payload,
	integrity_hash, source_address, user_agent, request_id,
	is_critical, is_security_event, occurred_at, retention_until`

func (s *PostgresStore) Append(ctx context.Context, event *models.Event) error {
	payload, err := json.Marshal(event.EncryptedPayload)
	if err != nil {
		return fmt.Errorf("encode audit payload: %w", err)
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO audit_events (`+auditColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		event.EventID, event.EventType, event.PrincipalRef, event.ResourceType, event.ResourceID,
		event.Action, event.Status, event.Severity, event.SeverityLevel, payload,
		event.IntegrityHash, event.SourceAddress, event.UserAgent, event.RequestID,
		event.IsCritical, event.IsSecurityEvent, event.OccurredAt, event.RetentionUntil)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Event, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+auditColumns+`
		FROM audit_events WHERE event_id = $1`, id)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find audit event: %w", err)
	}
	return event, nil
}

func (s *PostgresStore) ListByPrincipal(ctx context.Context, principalRef string, limit int) ([]*models.Event, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+auditColumns+`
		FROM audit_events
		WHERE principal_ref = $1
		ORDER BY occurred_at DESC
		LIMIT $2`, principalRef, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit events by principal: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *PostgresStore) ListByRange(ctx context.Context, start, end time.Time) ([]*models.Event, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+auditColumns+`
		FROM audit_events
		WHERE occurred_at BETWEEN $1 AND $2
		ORDER BY occurred_at`, start, end)
	if err != nil {
		return nil, fmt.Errorf("list audit events by range: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *PostgresStore) CountRecentSecurity(ctx context.Context, sourceAddress string, since time.Time) (int, error) {
	var count int
	err := s.q(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM audit_events
		WHERE is_security_event AND source_address = $1 AND occurred_at >= $2`,
		sourceAddress, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count security events: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) LastByType(ctx context.Context, principalRef, eventType string) (*models.Event, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+auditColumns+`
		FROM audit_events
		WHERE principal_ref = $1 AND event_type = $2
		ORDER BY occurred_at DESC
		LIMIT 1`, principalRef, eventType)
	event, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find last audit event: %w", err)
	}
	return event, nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.q(ctx).ExecContext(ctx,
		`DELETE FROM audit_events WHERE retention_until < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired audit events: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count deleted audit events: %w", err)
	}
	return int(deleted), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var event models.Event
	var payload []byte
	err := row.Scan(
		&event.EventID, &event.EventType, &event.PrincipalRef, &event.ResourceType, &event.ResourceID,
		&event.Action, &event.Status, &event.Severity, &event.SeverityLevel, &payload,
		&event.IntegrityHash, &event.SourceAddress, &event.UserAgent, &event.RequestID,
		&event.IsCritical, &event.IsSecurityEvent, &event.OccurredAt, &event.RetentionUntil)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, &event.EncryptedPayload); err != nil {
		return nil, fmt.Errorf("decode audit payload: %w", err)
	}
	event.OccurredAt = event.OccurredAt.UTC()
	event.RetentionUntil = event.RetentionUntil.UTC()
	return &event, nil
}

func collectEvents(rows *sql.Rows) ([]*models.Event, error) {
	var out []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return out, nil
}
