package analytics

import (
	"math"

	"veristat/internal/analytics/models"
)

const (
	// anomalyMinPoints is the fewest daily totals z-scoring needs to be
	// meaningful. Shorter series return no anomalies rather than noise.
	anomalyMinPoints = 7

	anomalyThreshold    = 2.5
	anomalyHighAbove    = 3.0
	anomalyExpectedBand = 2.0
)

// DetectVolumeAnomalies flags days whose totals sit more than the
// z-score threshold away from the series mean. The expected band in each
// finding is mean plus or minus two standard deviations. A flat series
// (zero deviation) produces no findings.
func DetectVolumeAnomalies(days []models.DailyVolume) []models.Anomaly {
	if len(days) < anomalyMinPoints {
		return nil
	}

	var sum float64
	for _, d := range days {
		sum += float64(d.Total)
	}
	mean := sum / float64(len(days))

	var varSum float64
	for _, d := range days {
		diff := float64(d.Total) - mean
		varSum += diff * diff
	}
	stddev := math.Sqrt(varSum / float64(len(days)))
	if stddev == 0 {
		return nil
	}

	var anomalies []models.Anomaly
	for _, d := range days {
		z := (float64(d.Total) - mean) / stddev
		if math.Abs(z) <= anomalyThreshold {
			continue
		}
		severity := models.AnomalySeverityMedium
		if math.Abs(z) > anomalyHighAbove {
			severity = models.AnomalySeverityHigh
		}
		anomalies = append(anomalies, models.Anomaly{
			Type:         "volume_anomaly",
			Date:         d.Date,
			Value:        float64(d.Total),
			ExpectedLow:  mean - anomalyExpectedBand*stddev,
			ExpectedHigh: mean + anomalyExpectedBand*stddev,
			ZScore:       z,
			Severity:     severity,
		})
	}
	return anomalies
}
