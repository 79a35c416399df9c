// Package budget tracks cumulative differential-privacy epsilon spend per
// statistic series and enforces a hard cap. Reservation is an atomic
// read-modify-write: two concurrent callers must never both succeed past
// the cap.
package budget

import (
	"context"
	"sync"

	dErrors "veristat/pkg/domain-errors"
)

// DefaultEpsilonCap bounds the total epsilon that may ever be spent on a
// single series.
const DefaultEpsilonCap = 1.0

// Ledger reserves and reports epsilon spend per series key.
type Ledger interface {
	// Reserve atomically adds epsilon to the series' cumulative spend.
	// It fails with CodeBudgetExceeded, leaving the spend unchanged, when
	// the reservation would push the series past the cap.
	Reserve(ctx context.Context, seriesKey string, epsilon float64) error
	// Spent returns the cumulative epsilon spend for the series.
	Spent(ctx context.Context, seriesKey string) (float64, error)
}

// InMemoryLedger is a mutex-guarded ledger for tests and single-process
// deployments.
type InMemoryLedger struct {
	mu    sync.Mutex
	cap   float64
	spent map[string]float64
}

func NewInMemoryLedger(epsilonCap float64) *InMemoryLedger {
	if epsilonCap <= 0 {
		epsilonCap = DefaultEpsilonCap
	}
	return &InMemoryLedger{cap: epsilonCap, spent: make(map[string]float64)}
}

func (l *InMemoryLedger) Reserve(_ context.Context, seriesKey string, epsilon float64) error {
	if epsilon <= 0 {
		return dErrors.New(dErrors.CodeValidation, "epsilon must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.spent[seriesKey]
	if current+epsilon > l.cap {
		return dErrors.Newf(dErrors.CodeBudgetExceeded,
			"series %q: spend %.4f + %.4f exceeds cap %.4f", seriesKey, current, epsilon, l.cap)
	}
	l.spent[seriesKey] = current + epsilon
	return nil
}

func (l *InMemoryLedger) Spent(_ context.Context, seriesKey string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.spent[seriesKey], nil
}
