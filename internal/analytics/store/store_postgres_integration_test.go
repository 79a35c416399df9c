//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"

	"veristat/internal/analytics/models"
	"veristat/pkg/testutil/containers"
)

const sessionsSchema = `
CREATE TABLE IF NOT EXISTS verification_sessions (
	session_id            TEXT PRIMARY KEY,
	status                TEXT NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL,
	processing_seconds    DOUBLE PRECISION NOT NULL DEFAULT 0,
	document_type         TEXT NOT NULL DEFAULT '',
	age_band              TEXT NOT NULL DEFAULT '',
	country_code          TEXT NOT NULL DEFAULT '',
	region_code           TEXT NOT NULL DEFAULT '',
	latitude              DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude             DOUBLE PRECISION NOT NULL DEFAULT 0,
	document_accuracy     DOUBLE PRECISION NOT NULL DEFAULT 0,
	face_match_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	liveness_passed       BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_sessions_created_at ON verification_sessions (created_at);`

type PostgresStoreSuite struct {
	suite.Suite
	pool  *pgxpool.Pool
	store *PostgresStore
	r     models.TimeRange
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, containers.DSN(s.T()))
	s.Require().NoError(err)
	s.pool = pool

	_, err = pool.Exec(ctx, sessionsSchema)
	s.Require().NoError(err)
	s.store = NewPostgres(pool)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	_, err := s.pool.Exec(ctx, "TRUNCATE verification_sessions")
	s.Require().NoError(err)

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s.r = models.TimeRange{Start: start, End: start.AddDate(0, 0, 7)}

	records := []SessionRecord{
		{SessionID: "a", Status: StatusCompleted, CreatedAt: start.Add(1 * time.Hour), ProcessingSeconds: 10, DocumentType: "passport", AgeBand: "25-34", CountryCode: "FR", RegionCode: "IDF", Latitude: 48.85, Longitude: 2.35, DocumentAccuracy: 0.9, FaceMatchConfidence: 0.8, LivenessPassed: true},
		{SessionID: "b", Status: StatusCompleted, CreatedAt: start.Add(2 * time.Hour), ProcessingSeconds: 20, DocumentType: "passport", AgeBand: "25-34", CountryCode: "FR", RegionCode: "IDF", Latitude: 48.87, Longitude: 2.33, DocumentAccuracy: 0.7, FaceMatchConfidence: 0.6},
		{SessionID: "c", Status: StatusFailed, CreatedAt: start.Add(26 * time.Hour), DocumentType: "id_card", AgeBand: "35-44", CountryCode: "DE", RegionCode: "BE", Latitude: 52.52, Longitude: 13.40},
		{SessionID: "d", Status: StatusPending, CreatedAt: start.Add(27 * time.Hour), DocumentType: "id_card"},
		{SessionID: "e", Status: StatusCompleted, CreatedAt: start.AddDate(0, 0, 10), ProcessingSeconds: 99},
	}
	for _, rec := range records {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO verification_sessions
				(session_id, status, created_at, processing_seconds, document_type, age_band,
				 country_code, region_code, latitude, longitude,
				 document_accuracy, face_match_confidence, liveness_passed)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
			rec.SessionID, rec.Status, rec.CreatedAt, rec.ProcessingSeconds, rec.DocumentType,
			rec.AgeBand, rec.CountryCode, rec.RegionCode, rec.Latitude, rec.Longitude,
			rec.DocumentAccuracy, rec.FaceMatchConfidence, rec.LivenessPassed)
		s.Require().NoError(err)
	}
}

func (s *PostgresStoreSuite) TestVolumeCounts() {
	total, completed, failed, err := s.store.VolumeCounts(context.Background(), s.r)
	s.Require().NoError(err)
	s.Equal(4, total)
	s.Equal(2, completed)
	s.Equal(1, failed)
}

func (s *PostgresStoreSuite) TestProcessingDurations() {
	durations, err := s.store.ProcessingDurations(context.Background(), s.r)
	s.Require().NoError(err)
	s.ElementsMatch([]float64{10, 20}, durations)
}

func (s *PostgresStoreSuite) TestQualityAverages() {
	q, err := s.store.QualityAverages(context.Background(), s.r)
	s.Require().NoError(err)
	s.InDelta(0.8, q.DocumentAccuracy, 1e-9)
	s.InDelta(0.7, q.FaceMatchConfidence, 1e-9)
	s.InDelta(0.5, q.LivenessSuccessRate, 1e-9)
}

func (s *PostgresStoreSuite) TestDailyVolumes() {
	days, err := s.store.DailyVolumes(context.Background(), s.r)
	s.Require().NoError(err)
	s.Require().Len(days, 2)
	s.Equal(s.r.Start, days[0].Date)
	s.Equal(2, days[0].Total)
	s.Equal(2, days[1].Total)
}

func (s *PostgresStoreSuite) TestBucketedRollupsMatchesMemorySemantics() {
	points, err := s.store.BucketedRollups(context.Background(), s.r, 24*time.Hour)
	s.Require().NoError(err)
	s.Require().Len(points, 2)

	first := points[0]
	s.Equal(s.r.Start, first.TimeBucket)
	s.Equal(2, first.TotalSessions)
	s.Equal(2, first.CompletedSessions)
	s.InDelta(15.0, first.AvgProcessingTime, 1e-9)
	s.InDelta(10.0, first.MedianProcessingTime, 1e-9)
	s.InDelta(20.0, first.P95ProcessingTime, 1e-9)
}

func (s *PostgresStoreSuite) TestCategoryCounts() {
	byDoc, err := s.store.CategoryCounts(context.Background(), s.r, DimensionDocumentType)
	s.Require().NoError(err)
	s.Equal([]models.CategoryCount{{Category: "id_card", Count: 2}, {Category: "passport", Count: 2}}, byDoc)

	byAge, err := s.store.CategoryCounts(context.Background(), s.r, DimensionAgeBand)
	s.Require().NoError(err)
	s.Equal([]models.CategoryCount{{Category: "25-34", Count: 2}, {Category: "35-44", Count: 1}}, byAge)
}

func (s *PostgresStoreSuite) TestRegionRollups() {
	rollups, err := s.store.RegionRollups(context.Background(), s.r)
	s.Require().NoError(err)
	s.Require().Len(rollups, 2)

	paris := rollups[1]
	s.Equal("FR", paris.CountryCode)
	s.Equal(2, paris.SessionCount)
	s.Equal(2, paris.CompletedSessions)
	s.InDelta(48.86, paris.Latitude, 1e-6)
	s.InDelta(15.0, paris.AvgProcessingTime, 1e-9)
}
