//go:build integration

package store

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"veristat/internal/audit/models"
	"veristat/pkg/platform/sentinel"
	"veristat/pkg/testutil/containers"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS audit_events (
	event_id          UUID PRIMARY KEY,
	event_type        TEXT NOT NULL,
	principal_ref     TEXT NOT NULL DEFAULT '',
	resource_type     TEXT NOT NULL DEFAULT '',
	resource_id       TEXT NOT NULL DEFAULT '',
	action            TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT '',
	severity          TEXT NOT NULL,
	severity_level    INT NOT NULL,
	encrypted_payload JSONB NOT NULL DEFAULT '{}',
	integrity_hash    TEXT NOT NULL DEFAULT '',
	source_address    TEXT NOT NULL DEFAULT '',
	user_agent        TEXT NOT NULL DEFAULT '',
	request_id        TEXT NOT NULL DEFAULT '',
	is_critical       BOOLEAN NOT NULL DEFAULT FALSE,
	is_security_event BOOLEAN NOT NULL DEFAULT FALSE,
	occurred_at       TIMESTAMPTZ NOT NULL,
	retention_until   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_principal ON audit_events (principal_ref, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_occurred_at ON audit_events (occurred_at);`

type PostgresStoreSuite struct {
	suite.Suite
	db    *sql.DB
	store *PostgresStore
	now   time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.db = containers.NewPostgresDB(s.T())
	_, err := s.db.ExecContext(context.Background(), auditSchema)
	s.Require().NoError(err)
	s.store = NewPostgres(s.db)
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	_, err := s.db.ExecContext(context.Background(), `TRUNCATE audit_events`)
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) seed(principal, eventType string, at time.Time, mutate ...func(*models.Event)) *models.Event {
	event := &models.Event{
		EventID:       uuid.New(),
		EventType:     eventType,
		PrincipalRef:  principal,
		Severity:      models.SeverityLow,
		SeverityLevel: 1,
		EncryptedPayload: map[string]any{
			"note":            "ok",
			"email_encrypted": "c2VhbGVk",
		},
		IntegrityHash:  "deadbeef",
		OccurredAt:     at,
		RetentionUntil: at.AddDate(models.RetentionYears, 0, 0),
	}
	for _, m := range mutate {
		m(event)
	}
	s.Require().NoError(s.store.Append(context.Background(), event))
	return event
}

func (s *PostgresStoreSuite) TestAppendAndFindByID() {
	seeded := s.seed("user-1", models.EventUserDataAccess, s.now)

	found, err := s.store.FindByID(context.Background(), seeded.EventID)
	s.Require().NoError(err)
	s.Equal(seeded.EventID, found.EventID)
	s.Equal(models.EventUserDataAccess, found.EventType)
	s.Equal("deadbeef", found.IntegrityHash)
	s.Equal("ok", found.EncryptedPayload["note"])
	s.Equal("c2VhbGVk", found.EncryptedPayload["email_encrypted"])
	s.True(found.OccurredAt.Equal(s.now))

	_, err = s.store.FindByID(context.Background(), uuid.New())
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListByPrincipalNewestFirst() {
	for i := 0; i < 4; i++ {
		s.seed("user-1", models.EventUserUpdated, s.now.Add(time.Duration(i)*time.Minute))
	}
	s.seed("user-2", models.EventUserUpdated, s.now)

	events, err := s.store.ListByPrincipal(context.Background(), "user-1", 3)
	s.Require().NoError(err)
	s.Require().Len(events, 3)
	s.True(events[0].OccurredAt.Equal(s.now.Add(3 * time.Minute)))
	s.True(events[2].OccurredAt.Equal(s.now.Add(time.Minute)))
}

func (s *PostgresStoreSuite) TestListByRangeInclusive() {
	for _, offset := range []time.Duration{0, time.Hour, 2 * time.Hour} {
		s.seed("user-1", models.EventUserUpdated, s.now.Add(offset))
	}

	events, err := s.store.ListByRange(context.Background(), s.now, s.now.Add(time.Hour))
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.True(events[0].OccurredAt.Before(events[1].OccurredAt))
}

func (s *PostgresStoreSuite) TestCountRecentSecurity() {
	secure := func(source string) func(*models.Event) {
		return func(e *models.Event) {
			e.IsSecurityEvent = true
			e.SourceAddress = source
		}
	}
	s.seed("user-1", models.EventFailedLoginAttempts, s.now, secure("203.0.113.0/24"))
	s.seed("user-1", models.EventFailedLoginAttempts, s.now.Add(-time.Hour), secure("203.0.113.0/24"))
	s.seed("user-1", models.EventFailedLoginAttempts, s.now, secure("198.51.100.0/24"))
	s.seed("user-1", models.EventUserUpdated, s.now)

	count, err := s.store.CountRecentSecurity(context.Background(), "203.0.113.0/24", s.now.Add(-30*time.Minute))
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *PostgresStoreSuite) TestLastByType() {
	s.seed("user-1", models.EventUserDataExport, s.now)
	latest := s.seed("user-1", models.EventUserDataExport, s.now.Add(time.Hour))
	s.seed("user-1", models.EventUserUpdated, s.now.Add(2*time.Hour))

	found, err := s.store.LastByType(context.Background(), "user-1", models.EventUserDataExport)
	s.Require().NoError(err)
	s.Equal(latest.EventID, found.EventID)

	_, err = s.store.LastByType(context.Background(), "nobody", models.EventUserDataExport)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestRunInTxRollsBackOnError() {
	event := &models.Event{
		EventID:          uuid.New(),
		EventType:        models.EventUserUpdated,
		PrincipalRef:     "user-1",
		Severity:         models.SeverityLow,
		SeverityLevel:    1,
		EncryptedPayload: map[string]any{"note": "ok"},
		OccurredAt:       s.now,
		RetentionUntil:   s.now.AddDate(models.RetentionYears, 0, 0),
	}

	err := s.store.RunInTx(context.Background(), func(ctx context.Context) error {
		if err := s.store.Append(ctx, event); err != nil {
			return err
		}
		// Visible inside the transaction.
		if _, err := s.store.FindByID(ctx, event.EventID); err != nil {
			return err
		}
		return assert.AnError
	})
	s.Require().ErrorIs(err, assert.AnError)

	_, err = s.store.FindByID(context.Background(), event.EventID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestRunInTxCommits() {
	err := s.store.RunInTx(context.Background(), func(ctx context.Context) error {
		for i := 0; i < 2; i++ {
			event := &models.Event{
				EventID:          uuid.New(),
				EventType:        models.EventUserUpdated,
				PrincipalRef:     "user-1",
				Severity:         models.SeverityLow,
				SeverityLevel:    1,
				EncryptedPayload: map[string]any{"note": "ok"},
				OccurredAt:       s.now.Add(time.Duration(i) * time.Minute),
				RetentionUntil:   s.now.AddDate(models.RetentionYears, 0, 0),
			}
			if err := s.store.Append(ctx, event); err != nil {
				return err
			}
		}
		return nil
	})
	s.Require().NoError(err)

	events, err := s.store.ListByPrincipal(context.Background(), "user-1", 10)
	s.Require().NoError(err)
	s.Len(events, 2)
}

func (s *PostgresStoreSuite) TestDeleteExpired() {
	old := s.seed("user-1", models.EventUserUpdated, s.now.AddDate(-8, 0, 0))
	kept := s.seed("user-1", models.EventUserUpdated, s.now)

	deleted, err := s.store.DeleteExpired(context.Background(), s.now)
	s.Require().NoError(err)
	s.Equal(1, deleted)

	_, err = s.store.FindByID(context.Background(), old.EventID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
	_, err = s.store.FindByID(context.Background(), kept.EventID)
	s.Require().NoError(err)
}
