package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veristat/internal/audit/models"
	"veristat/pkg/platform/sentinel"
)

var base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func event(principal, eventType string, at time.Time) *models.Event {
	return &models.Event{
		EventID:          uuid.New(),
		EventType:        eventType,
		PrincipalRef:     principal,
		Severity:         models.SeverityLow,
		SeverityLevel:    1,
		EncryptedPayload: map[string]any{"note": "ok"},
		OccurredAt:       at,
		RetentionUntil:   at.AddDate(models.RetentionYears, 0, 0),
	}
}

func TestListByPrincipalNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Append(ctx, event("user-1", models.EventUserUpdated, base.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, s.Append(ctx, event("user-2", models.EventUserUpdated, base)))

	events, err := s.ListByPrincipal(ctx, "user-1", 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.True(t, events[0].OccurredAt.After(events[1].OccurredAt))
	assert.True(t, events[1].OccurredAt.After(events[2].OccurredAt))
	assert.True(t, events[0].OccurredAt.Equal(base.Add(3*time.Minute)))
}

func TestListByRangeInclusive(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	for _, offset := range []time.Duration{0, time.Hour, 2 * time.Hour} {
		require.NoError(t, s.Append(ctx, event("user-1", models.EventUserUpdated, base.Add(offset))))
	}

	events, err := s.ListByRange(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.True(t, events[0].OccurredAt.Before(events[1].OccurredAt))
}

func TestFindByIDReturnsClone(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	original := event("user-1", models.EventUserUpdated, base)
	require.NoError(t, s.Append(ctx, original))

	found, err := s.FindByID(ctx, original.EventID)
	require.NoError(t, err)
	found.PrincipalRef = "mutated"

	again, err := s.FindByID(ctx, original.EventID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", again.PrincipalRef)

	_, err = s.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestCountRecentSecurity(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	security := event("user-1", models.EventFailedLoginAttempts, base)
	security.IsSecurityEvent = true
	security.SourceAddress = "203.0.113.0/24"
	require.NoError(t, s.Append(ctx, security))

	older := event("user-1", models.EventFailedLoginAttempts, base.Add(-time.Hour))
	older.IsSecurityEvent = true
	older.SourceAddress = "203.0.113.0/24"
	require.NoError(t, s.Append(ctx, older))

	otherSource := event("user-1", models.EventFailedLoginAttempts, base)
	otherSource.IsSecurityEvent = true
	otherSource.SourceAddress = "198.51.100.0/24"
	require.NoError(t, s.Append(ctx, otherSource))

	require.NoError(t, s.Append(ctx, event("user-1", models.EventUserUpdated, base)))

	count, err := s.CountRecentSecurity(ctx, "203.0.113.0/24", base.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// The cutoff itself counts.
	count, err = s.CountRecentSecurity(ctx, "203.0.113.0/24", base)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDeleteExpiredBoundary(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	expiring := event("user-1", models.EventUserUpdated, base)
	require.NoError(t, s.Append(ctx, expiring))

	// RetentionUntil equal to now is still inside the window.
	deleted, err := s.DeleteExpired(ctx, expiring.RetentionUntil)
	require.NoError(t, err)
	assert.Equal(t, 0, deleted)

	deleted, err = s.DeleteExpired(ctx, expiring.RetentionUntil.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	events, err := s.ListByRange(ctx, base.Add(-time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestTamperUnknownID(t *testing.T) {
	s := NewMemory()
	assert.False(t, s.Tamper(uuid.New(), func(*models.Event) {}))
}
