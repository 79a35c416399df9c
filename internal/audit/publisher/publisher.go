// Package publisher decouples audit recording from request latency: events
// are handed to a bounded inbox and appended by a background worker.
package publisher

import (
	"context"
	"log/slog"
	"sync"

	"veristat/internal/audit"
	"veristat/pkg/requestcontext"
)

const defaultBuffer = 256

type job struct {
	ctx       context.Context
	eventType string
	payload   map[string]any
	opts      []audit.RecordOption
}

// Async records audit events in the background. When the inbox is full
// the event is dropped and counted: audit latency must never stall the
// request path, and loss is visible in logs and metrics.
type Async struct {
	ledger *audit.Service
	inbox  chan job
	logger *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}

	// mu orders Submit against Close so a late Submit is rejected
	// instead of sending on a closed inbox.
	mu     sync.RWMutex
	closed bool
}

type Option func(*Async)

// WithBuffer sets the inbox capacity.
func WithBuffer(n int) Option {
	return func(a *Async) {
		if n > 0 {
			a.inbox = make(chan job, n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Async) { a.logger = logger }
}

// NewAsync constructs the async publisher around a ledger.
func NewAsync(ledger *audit.Service, opts ...Option) *Async {
	a := &Async{
		ledger: ledger,
		inbox:  make(chan job, defaultBuffer),
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches the background worker. Safe to call once.
func (a *Async) Start() {
	a.startOnce.Do(func() {
		go a.run()
	})
}

func (a *Async) run() {
	defer close(a.done)
	for j := range a.inbox {
		if _, err := a.ledger.Record(j.ctx, j.eventType, j.payload, j.opts...); err != nil {
			a.logger.Error("async audit record failed",
				"event_type", j.eventType, "error", err)
		}
	}
}

// Submit queues one audit event. The request context's metadata is
// detached so recording survives the request's cancellation. Returns
// false when the event was dropped, either because the inbox is full
// or because the publisher has been closed.
func (a *Async) Submit(ctx context.Context, eventType string, payload map[string]any, opts ...audit.RecordOption) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		a.logger.Warn("audit publisher closed, event dropped", "event_type", eventType)
		return false
	}
	j := job{
		ctx:       requestcontext.Detach(ctx),
		eventType: eventType,
		payload:   payload,
		opts:      opts,
	}
	select {
	case a.inbox <- j:
		return true
	default:
		a.logger.Warn("audit inbox full, event dropped", "event_type", eventType)
		return false
	}
}

// Close stops accepting events and drains the inbox. Events already
// queued are recorded before Close returns, or until ctx expires.
func (a *Async) Close(ctx context.Context) error {
	a.stopOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.inbox)
		a.mu.Unlock()
	})
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
