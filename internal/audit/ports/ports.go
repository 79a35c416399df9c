// Package ports defines the collaborator interfaces of the audit ledger.
package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"veristat/internal/audit/models"
)

//go:generate mockgen -source=ports.go -destination=../mocks/mocks.go -package=mocks Encrypter,Store,AlertSink

// Encrypter seals and opens opaque byte payloads for field-level
// envelopes.
type Encrypter interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

// Store is the append-only audit event store. Events are never updated;
// deletion is only permitted past their retention time.
type Store interface {
	Append(ctx context.Context, event *models.Event) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Event, error)
	ListByPrincipal(ctx context.Context, principalRef string, limit int) ([]*models.Event, error)
	ListByRange(ctx context.Context, start, end time.Time) ([]*models.Event, error)

	// CountRecentSecurity counts security events from one source address
	// since the cutoff, for the burst check.
	CountRecentSecurity(ctx context.Context, sourceAddress string, since time.Time) (int, error)

	// LastByType returns the most recent event of the given type for a
	// principal, or sentinel.ErrNotFound.
	LastByType(ctx context.Context, principalRef, eventType string) (*models.Event, error)

	// DeleteExpired removes events whose retention has lapsed and
	// returns how many were deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// AlertSink receives critical audit events for real-time alerting.
type AlertSink interface {
	Publish(ctx context.Context, event *models.Event) error
}
