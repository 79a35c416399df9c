// Package store provides read access to the session fact table backing
// the statistics engine. All queries are raw aggregates: anonymization
// happens above this layer, never inside it.
package store

import (
	"context"
	"time"

	"veristat/internal/analytics/models"
	"veristat/pkg/platform/sentinel"
)

// Dimensions accepted by CategoryCounts.
const (
	DimensionAgeBand      = "age_band"
	DimensionDocumentType = "document_type"
)

// ErrNotFound is returned when a query matches no rows where one row is
// expected.
var ErrNotFound = sentinel.ErrNotFound

// Store reads session aggregates for a time range.
type Store interface {
	// VolumeCounts returns total, completed and failed session counts.
	VolumeCounts(ctx context.Context, r models.TimeRange) (total, completed, failed int, err error)

	// ProcessingDurations returns per-session processing times in
	// seconds for completed sessions, unordered.
	ProcessingDurations(ctx context.Context, r models.TimeRange) ([]float64, error)

	// QualityAverages returns mean quality scores over completed
	// sessions. Zero values when no completed sessions exist.
	QualityAverages(ctx context.Context, r models.TimeRange) (models.QualityMetrics, error)

	// DailyVolumes returns one total per UTC day, ordered by date.
	DailyVolumes(ctx context.Context, r models.TimeRange) ([]models.DailyVolume, error)

	// BucketedRollups returns per-bucket rollups ordered by bucket
	// start. Buckets are floored against the Unix epoch in UTC.
	BucketedRollups(ctx context.Context, r models.TimeRange, bucket time.Duration) ([]models.TimeSeriesPoint, error)

	// CategoryCounts tallies sessions by the given dimension.
	CategoryCounts(ctx context.Context, r models.TimeRange, dimension string) ([]models.CategoryCount, error)

	// RegionRollups returns raw spatial aggregates with centroid
	// coordinates, one per country/region pair.
	RegionRollups(ctx context.Context, r models.TimeRange) ([]models.RegionRollup, error)
}

// SessionRecord is one verification session fact row.
type SessionRecord struct {
	SessionID           string
	Status              string
	CreatedAt           time.Time
	ProcessingSeconds   float64
	DocumentType        string
	AgeBand             string
	CountryCode         string
	RegionCode          string
	Latitude            float64
	Longitude           float64
	DocumentAccuracy    float64
	FaceMatchConfidence float64
	LivenessPassed      bool
}

// Session statuses recognized by the aggregates.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusPending   = "pending"
)
