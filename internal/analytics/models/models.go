// Package models defines the analytics data model. Field names and
// enumeration values are the persisted wire contract: they must match the
// stored statistic tables and the dashboard consumers.
package models

import (
	"time"

	dErrors "veristat/pkg/domain-errors"
)

// AggregationLevel names the time granularity of a bucketed series.
type AggregationLevel string

const (
	LevelMinute AggregationLevel = "minute"
	LevelHour   AggregationLevel = "hour"
	LevelDay    AggregationLevel = "day"
	LevelWeek   AggregationLevel = "week"
	LevelMonth  AggregationLevel = "month"
)

// MaxRangeDays bounds the span of any analytics query.
const MaxRangeDays = 365

// TimeRange is a half-inclusive [Start, End] query window.
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate rejects inverted or oversized ranges before any query runs.
// A zero-width range is permitted.
func (r TimeRange) Validate() error {
	return r.ValidateMaxSpan(MaxRangeDays)
}

func (r TimeRange) ValidateMaxSpan(maxSpanDays int) error {
	if r.End.Before(r.Start) {
		return dErrors.New(dErrors.CodeInvalidRange, "end date must not be before start date")
	}
	if r.End.Sub(r.Start) > time.Duration(maxSpanDays)*24*time.Hour {
		return dErrors.Newf(dErrors.CodeInvalidRange, "range must not exceed %d days", maxSpanDays)
	}
	return nil
}

// Days returns the span of the range in whole days, rounded up.
func (r TimeRange) Days() int {
	span := r.End.Sub(r.Start)
	days := int(span / (24 * time.Hour))
	if span%(24*time.Hour) != 0 {
		days++
	}
	return days
}

// VolumeMetrics summarizes session volume over a range.
type VolumeMetrics struct {
	TotalSessions     int     `json:"total_sessions"`
	CompletedSessions int     `json:"completed_sessions"`
	FailedSessions    int     `json:"failed_sessions"`
	CompletionRate    float64 `json:"completion_rate"`
}

// PerformanceMetrics summarizes processing durations over a range.
type PerformanceMetrics struct {
	AvgProcessingTime float64         `json:"avg_processing_time"`
	Percentiles       map[int]float64 `json:"processing_time_percentiles"`
	ThroughputPerHour float64         `json:"throughput_per_hour"`
}

// QualityMetrics are plain averages over completed sessions.
type QualityMetrics struct {
	DocumentAccuracy    float64 `json:"document_accuracy"`
	FaceMatchConfidence float64 `json:"face_match_confidence"`
	LivenessSuccessRate float64 `json:"liveness_success_rate"`
}

// TimeSeriesPoint is one bucketed rollup.
type TimeSeriesPoint struct {
	TimeBucket           time.Time `json:"time_bucket"`
	TotalSessions        int       `json:"total_sessions"`
	CompletedSessions    int       `json:"completed_sessions"`
	FailedSessions       int       `json:"failed_sessions"`
	AvgProcessingTime    float64   `json:"avg_processing_time"`
	MedianProcessingTime float64   `json:"median_processing_time"`
	P95ProcessingTime    float64   `json:"p95_processing_time"`
}

// TrendDirection is the sign classification of a fitted slope.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// Trend is an ordinary-least-squares fit over bucketed session totals.
// Confidence is the historical min(1, |slope|/10) scaling, preserved for
// output compatibility with stored dashboards; it is not a statistical
// confidence level.
type Trend struct {
	Direction  TrendDirection `json:"direction"`
	Slope      float64        `json:"slope"`
	Confidence float64        `json:"confidence"`
}

// TimeSeries is a bucketed rollup sequence with its fitted trend.
type TimeSeries struct {
	Bucket AggregationLevel  `json:"bucket"`
	Points []TimeSeriesPoint `json:"points"`
	Trend  Trend             `json:"trend"`
}

// AnomalySeverity grades how far outside the expected range a value lies.
type AnomalySeverity string

const (
	AnomalySeverityMedium AnomalySeverity = "medium"
	AnomalySeverityHigh   AnomalySeverity = "high"
)

// Anomaly flags a daily volume outside the expected band.
type Anomaly struct {
	Type          string          `json:"type"`
	Date          time.Time       `json:"date"`
	Value         float64         `json:"value"`
	ExpectedLow   float64         `json:"expected_low"`
	ExpectedHigh  float64         `json:"expected_high"`
	ZScore        float64         `json:"z_score"`
	Severity      AnomalySeverity `json:"severity"`
}

// DailyVolume is one day's session total, the anomaly detector's input.
type DailyVolume struct {
	Date  time.Time `json:"date"`
	Total int       `json:"total"`
}

// CategoryCount is a raw, pre-anonymization category tally. It must
// never leave the service layer without passing the anonymization gate.
type CategoryCount struct {
	Category string
	Count    int
}

// RegionRollup is a raw, pre-anonymization spatial aggregate.
type RegionRollup struct {
	CountryCode       string
	RegionCode        string
	Latitude          float64
	Longitude         float64
	SessionCount      int
	CompletedSessions int
	AvgProcessingTime float64
}

// DashboardMetrics is the composite overview response.
type DashboardMetrics struct {
	Volume      VolumeMetrics      `json:"volume"`
	Performance PerformanceMetrics `json:"performance"`
	Quality     QualityMetrics     `json:"quality"`
	Anomalies   []Anomaly          `json:"anomalies"`
	GeneratedAt time.Time          `json:"generated_at"`
	DataRange   TimeRange          `json:"data_range"`
}

// DemographicStat is one anonymized demographic data point. Records are
// immutable once created: a correction is a new record, never an edit.
type DemographicStat struct {
	Type               string    `json:"demographic_type"`
	DimensionName      string    `json:"dimension_name"`
	DimensionValue     string    `json:"dimension_value"`
	Count              int       `json:"count"`
	SampleSize         int       `json:"sample_size"`
	Percentage         float64   `json:"percentage"`
	ConfidenceLow      float64   `json:"confidence_interval_low"`
	ConfidenceHigh     float64   `json:"confidence_interval_high"`
	NoiseMagnitude     float64   `json:"anonymization_noise"`
	PrivacyBudgetUsed  float64   `json:"privacy_budget_used"`
	KGroupSize         int       `json:"k_anonymity_group_size"`
	QualityScore       float64   `json:"data_quality_score"`
	CollectionStart    time.Time `json:"collection_period_start"`
	CollectionEnd      time.Time `json:"collection_period_end"`
}

// DemographicBreakdown groups the anonymized distributions for a range.
type DemographicBreakdown struct {
	AgeDistribution      []DemographicStat `json:"age_distribution"`
	DocumentTypes        []DemographicStat `json:"document_type_distribution"`
	SuppressedCategories int               `json:"suppressed_categories"`
	BudgetExhausted      bool              `json:"budget_exhausted"`
	KAnonymityLevel      int               `json:"k_anonymity_level"`
	GeneratedAt          time.Time         `json:"generated_at"`
}

// GeographicStat is one anonymized spatial aggregate.
type GeographicStat struct {
	RegionLevel       string  `json:"region_level"`
	RegionCode        string  `json:"region_code"`
	CountryCode       string  `json:"country_code"`
	LatitudeCentroid  float64 `json:"latitude_centroid"`
	LongitudeCentroid float64 `json:"longitude_centroid"`
	SessionCount      int     `json:"session_count"`
	SuccessRate       float64 `json:"success_rate"`
	AvgProcessingTime float64 `json:"avg_processing_time"`
	GridSizeMeters    int     `json:"anonymization_grid_size"`
	KValue            int     `json:"k_anonymity_value"`
	Geohash           string  `json:"geohash"`
	GeohashLevel      int     `json:"geohash_level"`
	PrivacyLevel      string  `json:"privacy_level"`
	QualityScore      float64 `json:"data_quality_score"`

	// DistanceFromCountryKm is how far this region sits from its
	// country's session-weighted centroid.
	DistanceFromCountryKm float64 `json:"distance_from_country_centroid_km"`
}

// GeographicDistribution is the anonymized spatial response for a range.
type GeographicDistribution struct {
	Regions           []GeographicStat `json:"regions"`
	SuppressedRegions int              `json:"suppressed_regions"`
	GeneratedAt       time.Time        `json:"generated_at"`
}
