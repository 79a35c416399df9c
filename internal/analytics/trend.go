package analytics

import (
	"math"

	"veristat/internal/analytics/models"
)

// Slope magnitudes inside this band classify as stable.
const trendStableBand = 0.1

// FitTrend runs an ordinary-least-squares fit over the session totals of
// a bucketed series, with the point index as the independent variable.
// Fewer than two points, or a degenerate denominator, yield a stable
// trend with zero slope.
func FitTrend(points []models.TimeSeriesPoint) models.Trend {
	n := len(points)
	if n < 2 {
		return models.Trend{Direction: models.TrendStable}
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, p := range points {
		x := float64(i)
		y := float64(p.TotalSessions)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return models.Trend{Direction: models.TrendStable}
	}
	slope := (fn*sumXY - sumX*sumY) / denom

	direction := models.TrendStable
	switch {
	case slope > trendStableBand:
		direction = models.TrendIncreasing
	case slope < -trendStableBand:
		direction = models.TrendDecreasing
	}

	return models.Trend{
		Direction:  direction,
		Slope:      slope,
		Confidence: math.Min(1, math.Abs(slope)/10),
	}
}
