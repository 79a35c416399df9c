// Package privacy implements the anonymization gate: k-anonymity
// suppression and Laplace noise applied to raw counts before they may be
// returned to any caller, with epsilon accounting against a shared budget
// ledger.
package privacy

import (
	"context"
	"log/slog"
	"math"

	"veristat/internal/privacy/budget"
	"veristat/internal/privacy/metrics"
	dErrors "veristat/pkg/domain-errors"
)

const (
	// DefaultKThreshold is the smallest group size that may be published.
	DefaultKThreshold = 5
	// DefaultEpsilon is the per-pass privacy cost when callers don't choose.
	DefaultEpsilon = 0.1

	// waldZ is the 95% normal quantile used for the Wald interval.
	waldZ = 1.96
)

// Gate applies statistical disclosure control to grouped counts.
type Gate struct {
	ledger     budget.Ledger
	noise      NoiseSource
	kThreshold int
	epsilon    float64
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// WithNoiseSource injects the randomness source. Tests pass a fixed-seed
// generator; production keeps the crypto-seeded default.
func WithNoiseSource(src NoiseSource) Option {
	return func(g *Gate) { g.noise = src }
}

func WithKThreshold(k int) Option {
	return func(g *Gate) { g.kThreshold = k }
}

func WithEpsilon(epsilon float64) Option {
	return func(g *Gate) { g.epsilon = epsilon }
}

func New(ledger budget.Ledger, opts ...Option) (*Gate, error) {
	if ledger == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "budget ledger is required")
	}
	g := &Gate{
		ledger:     ledger,
		noise:      NewCryptoSeededSource(),
		kThreshold: DefaultKThreshold,
		epsilon:    DefaultEpsilon,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.kThreshold < 1 {
		return nil, dErrors.New(dErrors.CodeValidation, "k threshold must be at least 1")
	}
	if g.epsilon <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "epsilon must be positive")
	}
	return g, nil
}

// KThreshold reports the configured minimum publishable group size.
func (g *Gate) KThreshold() int { return g.kThreshold }

// Epsilon reports the per-pass privacy cost.
func (g *Gate) Epsilon() float64 { return g.epsilon }

// SuppressAndNoise removes categories smaller than the k threshold, then
// perturbs the survivors with Laplace(0, 1/epsilon) noise and recomputes
// percentages and Wald confidence intervals against totalSampleSize.
//
// The epsilon for the pass is reserved from the budget ledger before any
// noise is drawn. When the series is out of budget the suppression-only
// result is returned together with a CodeBudgetExceeded error: callers get
// the suppressed count but no counts at all, never unnoised ones.
func (g *Gate) SuppressAndNoise(ctx context.Context, seriesKey string, groups []GroupCount, totalSampleSize int) (*Result, error) {
	if totalSampleSize < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "total sample size cannot be negative")
	}

	res := &Result{KThreshold: g.kThreshold}
	var retained []GroupCount
	for _, group := range groups {
		if group.Count < g.kThreshold {
			res.SuppressedCount += group.Count
			continue
		}
		retained = append(retained, group)
	}
	g.metrics.AddSuppressed(len(groups) - len(retained))

	if len(retained) == 0 {
		return res, nil
	}

	if err := g.ledger.Reserve(ctx, seriesKey, g.epsilon); err != nil {
		if dErrors.HasCode(err, dErrors.CodeBudgetExceeded) {
			g.logger.WarnContext(ctx, "privacy budget exhausted, returning suppression-only result",
				"series", seriesKey)
			g.metrics.IncBudgetExceeded()
			return res, err
		}
		return nil, err
	}
	res.BudgetConsumed = g.epsilon

	scale := 1 / g.epsilon
	for _, group := range retained {
		noise := laplaceDraw(g.noise, scale)
		noisy := int(math.Round(float64(group.Count) + noise))
		if noisy < 0 {
			noisy = 0
		}

		p := 0.0
		if totalSampleSize > 0 {
			p = float64(noisy) / float64(totalSampleSize)
		}
		p = clamp01(p)
		margin := waldMargin(p, totalSampleSize)
		g.metrics.ObserveNoise(math.Abs(noise))

		res.Groups = append(res.Groups, PublishableGroup{
			Category:       group.Category,
			Count:          noisy,
			Percentage:     p,
			ConfidenceLow:  clamp01(p - margin),
			ConfidenceHigh: clamp01(p + margin),
			NoiseMagnitude: math.Abs(noise),
			KGroupSize:     max(g.kThreshold, group.Count),
		})
	}
	return res, nil
}

// waldMargin is the half-width of the 95% Wald interval for proportion p
// over n samples.
func waldMargin(p float64, n int) float64 {
	if n <= 0 {
		return 0
	}
	return waldZ * math.Sqrt(p*(1-p)/float64(n))
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
