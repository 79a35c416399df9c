package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"veristat/internal/analytics/models"
)

// PostgresStore reads session aggregates from PostgreSQL. All
// aggregation is pushed into SQL so only rollups cross the wire.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs a PostgreSQL-backed session store.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) VolumeCounts(ctx context.Context, r models.TimeRange) (total, completed, failed int, err error) {
	const q = `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'failed')
		FROM verification_sessions
		WHERE created_at BETWEEN $1 AND $2`
	if err := s.pool.QueryRow(ctx, q, r.Start, r.End).Scan(&total, &completed, &failed); err != nil {
		return 0, 0, 0, fmt.Errorf("volume counts: %w", err)
	}
	return total, completed, failed, nil
}

func (s *PostgresStore) ProcessingDurations(ctx context.Context, r models.TimeRange) ([]float64, error) {
	const q = `
		SELECT processing_seconds
		FROM verification_sessions
		WHERE status = 'completed' AND created_at BETWEEN $1 AND $2`
	rows, err := s.pool.Query(ctx, q, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("processing durations: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var d float64
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan duration: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("processing durations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) QualityAverages(ctx context.Context, r models.TimeRange) (models.QualityMetrics, error) {
	const q = `
		SELECT COALESCE(AVG(document_accuracy), 0),
		       COALESCE(AVG(face_match_confidence), 0),
		       COALESCE(AVG(CASE WHEN liveness_passed THEN 1.0 ELSE 0.0 END), 0)
		FROM verification_sessions
		WHERE status = 'completed' AND created_at BETWEEN $1 AND $2`
	var qm models.QualityMetrics
	err := s.pool.QueryRow(ctx, q, r.Start, r.End).
		Scan(&qm.DocumentAccuracy, &qm.FaceMatchConfidence, &qm.LivenessSuccessRate)
	if err != nil {
		return models.QualityMetrics{}, fmt.Errorf("quality averages: %w", err)
	}
	return qm, nil
}

func (s *PostgresStore) DailyVolumes(ctx context.Context, r models.TimeRange) ([]models.DailyVolume, error) {
	const q = `
		SELECT date_trunc('day', created_at AT TIME ZONE 'UTC') AS day, COUNT(*)
		FROM verification_sessions
		WHERE created_at BETWEEN $1 AND $2
		GROUP BY day
		ORDER BY day`
	rows, err := s.pool.Query(ctx, q, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("daily volumes: %w", err)
	}
	defer rows.Close()

	var out []models.DailyVolume
	for rows.Next() {
		var d models.DailyVolume
		if err := rows.Scan(&d.Date, &d.Total); err != nil {
			return nil, fmt.Errorf("scan daily volume: %w", err)
		}
		d.Date = d.Date.UTC()
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("daily volumes: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) BucketedRollups(ctx context.Context, r models.TimeRange, bucket time.Duration) ([]models.TimeSeriesPoint, error) {
	// Buckets are floored against the Unix epoch to match the in-memory
	// store and keep bucket edges stable across queries.
	const q = `
		SELECT to_timestamp(floor(extract(epoch FROM created_at) / $3) * $3) AT TIME ZONE 'UTC' AS bucket,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COALESCE(AVG(processing_seconds) FILTER (WHERE status = 'completed'), 0),
		       COALESCE(percentile_disc(0.5) WITHIN GROUP (ORDER BY processing_seconds)
		                FILTER (WHERE status = 'completed'), 0),
		       COALESCE(percentile_disc(0.95) WITHIN GROUP (ORDER BY processing_seconds)
		                FILTER (WHERE status = 'completed'), 0)
		FROM verification_sessions
		WHERE created_at BETWEEN $1 AND $2
		GROUP BY bucket
		ORDER BY bucket`
	rows, err := s.pool.Query(ctx, q, r.Start, r.End, int64(bucket/time.Second))
	if err != nil {
		return nil, fmt.Errorf("bucketed rollups: %w", err)
	}
	defer rows.Close()

	var out []models.TimeSeriesPoint
	for rows.Next() {
		var p models.TimeSeriesPoint
		err := rows.Scan(&p.TimeBucket, &p.TotalSessions, &p.CompletedSessions, &p.FailedSessions,
			&p.AvgProcessingTime, &p.MedianProcessingTime, &p.P95ProcessingTime)
		if err != nil {
			return nil, fmt.Errorf("scan rollup: %w", err)
		}
		p.TimeBucket = p.TimeBucket.UTC()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bucketed rollups: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CategoryCounts(ctx context.Context, r models.TimeRange, dimension string) ([]models.CategoryCount, error) {
	var column string
	switch dimension {
	case DimensionAgeBand:
		column = "age_band"
	case DimensionDocumentType:
		column = "document_type"
	default:
		return nil, fmt.Errorf("unknown dimension %q", dimension)
	}
	q := fmt.Sprintf(`
		SELECT %s, COUNT(*)
		FROM verification_sessions
		WHERE created_at BETWEEN $1 AND $2 AND %s <> ''
		GROUP BY %s
		ORDER BY %s`, column, column, column, column)
	rows, err := s.pool.Query(ctx, q, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("category counts: %w", err)
	}
	defer rows.Close()

	var out []models.CategoryCount
	for rows.Next() {
		var c models.CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("scan category count: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("category counts: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) RegionRollups(ctx context.Context, r models.TimeRange) ([]models.RegionRollup, error) {
	const q = `
		SELECT country_code, region_code,
		       AVG(latitude), AVG(longitude),
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COALESCE(AVG(processing_seconds) FILTER (WHERE status = 'completed'), 0)
		FROM verification_sessions
		WHERE created_at BETWEEN $1 AND $2 AND country_code <> ''
		GROUP BY country_code, region_code
		ORDER BY country_code, region_code`
	rows, err := s.pool.Query(ctx, q, r.Start, r.End)
	if err != nil {
		return nil, fmt.Errorf("region rollups: %w", err)
	}
	defer rows.Close()

	var out []models.RegionRollup
	for rows.Next() {
		var rr models.RegionRollup
		err := rows.Scan(&rr.CountryCode, &rr.RegionCode, &rr.Latitude, &rr.Longitude,
			&rr.SessionCount, &rr.CompletedSessions, &rr.AvgProcessingTime)
		if err != nil {
			return nil, fmt.Errorf("scan region rollup: %w", err)
		}
		out = append(out, rr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("region rollups: %w", err)
	}
	return out, nil
}
