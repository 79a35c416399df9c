// Package store persists audit events. The store is append-only: no
// update path exists, and deletion is restricted to retention expiry.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"veristat/internal/audit/models"
	"veristat/pkg/platform/sentinel"
)

// MemoryStore keeps audit events in memory for tests and local
// development.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*models.Event
}

// NewMemory constructs an empty in-memory audit store.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, event *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *event
	s.events = append(s.events, &clone)
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, event := range s.events {
		if event.EventID == id {
			clone := *event
			return &clone, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *MemoryStore) ListByPrincipal(_ context.Context, principalRef string, limit int) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Event
	for _, event := range s.events {
		if event.PrincipalRef == principalRef {
			clone := *event
			out = append(out, &clone)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListByRange(_ context.Context, start, end time.Time) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Event
	for _, event := range s.events {
		if event.OccurredAt.Before(start) || event.OccurredAt.After(end) {
			continue
		}
		clone := *event
		out = append(out, &clone)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

func (s *MemoryStore) CountRecentSecurity(_ context.Context, sourceAddress string, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, event := range s.events {
		if event.IsSecurityEvent && event.SourceAddress == sourceAddress && !event.OccurredAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) LastByType(_ context.Context, principalRef, eventType string) (*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var last *models.Event
	for _, event := range s.events {
		if event.PrincipalRef != principalRef || event.EventType != eventType {
			continue
		}
		if last == nil || event.OccurredAt.After(last.OccurredAt) {
			last = event
		}
	}
	if last == nil {
		return nil, sentinel.ErrNotFound
	}
	clone := *last
	return &clone, nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	deleted := 0
	for _, event := range s.events {
		if event.RetentionUntil.Before(now) {
			deleted++
			continue
		}
		kept = append(kept, event)
	}
	s.events = kept
	return deleted, nil
}

// Tamper overwrites the stored payload of an event, bypassing the
// append-only API. Test helper for integrity verification scenarios.
func (s *MemoryStore) Tamper(id uuid.UUID, mutate func(*models.Event)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range s.events {
		if event.EventID == id {
			mutate(event)
			return true
		}
	}
	return false
}
