package privacy

import (
	"context"
	randv2 "math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veristat/internal/privacy/budget"
	dErrors "veristat/pkg/domain-errors"
)

func fixedSource() NoiseSource {
	return randv2.New(randv2.NewPCG(42, 1))
}

func newTestGate(t *testing.T, opts ...Option) *Gate {
	t.Helper()
	opts = append([]Option{WithNoiseSource(fixedSource())}, opts...)
	g, err := New(budget.NewInMemoryLedger(1.0), opts...)
	require.NoError(t, err)
	return g
}

func TestSuppression(t *testing.T) {
	g := newTestGate(t)
	groups := []GroupCount{
		{Category: "18-25", Count: 40},
		{Category: "26-35", Count: 3},
		{Category: "36-45", Count: 55},
		{Category: "65+", Count: 4},
	}

	res, err := g.SuppressAndNoise(context.Background(), "test:suppression", groups, 102)
	require.NoError(t, err)

	assert.Equal(t, 7, res.SuppressedCount, "suppressed count is the sum of removed raw counts")
	require.Len(t, res.Groups, 2)
	for _, pub := range res.Groups {
		assert.NotEqual(t, "26-35", pub.Category)
		assert.NotEqual(t, "65+", pub.Category)
	}
}

func TestNoisedGroupInvariants(t *testing.T) {
	g := newTestGate(t)
	groups := []GroupCount{
		{Category: "passport", Count: 120},
		{Category: "id_card", Count: 80},
		{Category: "driving_licence", Count: 25},
	}

	res, err := g.SuppressAndNoise(context.Background(), "test:invariants", groups, 225)
	require.NoError(t, err)
	require.Len(t, res.Groups, 3)

	for _, pub := range res.Groups {
		assert.GreaterOrEqual(t, pub.Count, 0)
		assert.GreaterOrEqual(t, pub.Percentage, 0.0)
		assert.LessOrEqual(t, pub.Percentage, 1.0)
		assert.LessOrEqual(t, pub.ConfidenceLow, pub.Percentage)
		assert.GreaterOrEqual(t, pub.ConfidenceHigh, pub.Percentage)
		assert.GreaterOrEqual(t, pub.ConfidenceLow, 0.0)
		assert.LessOrEqual(t, pub.ConfidenceHigh, 1.0)
		assert.GreaterOrEqual(t, pub.NoiseMagnitude, 0.0)
		assert.GreaterOrEqual(t, pub.KGroupSize, DefaultKThreshold)
	}
	assert.InDelta(t, DefaultEpsilon, res.BudgetConsumed, 1e-9)
}

func TestDeterministicWithInjectedSource(t *testing.T) {
	groups := []GroupCount{{Category: "a", Count: 50}, {Category: "b", Count: 60}}

	run := func() *Result {
		g := newTestGate(t)
		res, err := g.SuppressAndNoise(context.Background(), "test:determinism", groups, 110)
		require.NoError(t, err)
		return res
	}

	assert.Equal(t, run(), run(), "same seed must produce identical noise")
}

func TestBudgetExceeded_SuppressionOnly(t *testing.T) {
	ledger := budget.NewInMemoryLedger(0.1)
	g, err := New(ledger, WithNoiseSource(fixedSource()), WithEpsilon(0.1))
	require.NoError(t, err)

	ctx := context.Background()
	groups := []GroupCount{{Category: "a", Count: 50}, {Category: "tiny", Count: 2}}

	// First pass consumes the whole budget.
	_, err = g.SuppressAndNoise(ctx, "test:budget", groups, 52)
	require.NoError(t, err)

	// Second pass must fail with suppression-only output.
	res, err := g.SuppressAndNoise(ctx, "test:budget", groups, 52)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeBudgetExceeded))
	require.NotNil(t, res)
	assert.Empty(t, res.Groups, "no noised values may be returned when out of budget")
	assert.Equal(t, 2, res.SuppressedCount)
	assert.Zero(t, res.BudgetConsumed)

	// Spend is unchanged by the rejected call.
	spent, err := ledger.Spent(ctx, "test:budget")
	require.NoError(t, err)
	assert.InDelta(t, 0.1, spent, 1e-9)
}

func TestAllSuppressed_NoBudgetConsumed(t *testing.T) {
	ledger := budget.NewInMemoryLedger(1.0)
	g, err := New(ledger, WithNoiseSource(fixedSource()))
	require.NoError(t, err)

	res, err := g.SuppressAndNoise(context.Background(), "test:allsuppressed",
		[]GroupCount{{Category: "a", Count: 1}, {Category: "b", Count: 2}}, 3)
	require.NoError(t, err)
	assert.Empty(t, res.Groups)
	assert.Equal(t, 3, res.SuppressedCount)

	spent, err := ledger.Spent(context.Background(), "test:allsuppressed")
	require.NoError(t, err)
	assert.Zero(t, spent, "a fully suppressed pass draws no noise and spends no budget")
}

func TestKAnonymityFloor(t *testing.T) {
	g := newTestGate(t)
	// Boundary: count == k is retained, count == k-1 is not.
	res, err := g.SuppressAndNoise(context.Background(), "test:floor",
		[]GroupCount{{Category: "at-k", Count: 5}, {Category: "below-k", Count: 4}}, 9)
	require.NoError(t, err)

	require.Len(t, res.Groups, 1)
	assert.Equal(t, "at-k", res.Groups[0].Category)
	assert.GreaterOrEqual(t, res.Groups[0].KGroupSize, 5)
}

func TestLaplaceDraw_SignFollowsUniform(t *testing.T) {
	// u above 0.5 yields positive noise, below yields negative.
	pos := laplaceDraw(fixedFloat(0.9), 10)
	neg := laplaceDraw(fixedFloat(0.1), 10)
	assert.Positive(t, pos)
	assert.Negative(t, neg)
}

type fixedFloat float64

func (f fixedFloat) Float64() float64 { return float64(f) }
