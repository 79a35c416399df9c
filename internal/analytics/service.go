// Package analytics computes anonymized verification statistics: volume,
// performance and quality rollups, bucketed time series with trend fits,
// volume anomaly detection, and demographic and geographic breakdowns.
// Every grouped count crosses the anonymization gate before it is returned.
package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"veristat/internal/analytics/cache"
	"veristat/internal/analytics/metrics"
	"veristat/internal/analytics/models"
	"veristat/internal/analytics/store"
	"veristat/internal/privacy"
	"veristat/internal/privacy/geo"
	dErrors "veristat/pkg/domain-errors"
	"veristat/pkg/requestcontext"
)

// AnonymizationGate applies disclosure control to grouped counts before
// they may be published.
type AnonymizationGate interface {
	SuppressAndNoise(ctx context.Context, seriesKey string, groups []privacy.GroupCount, totalSampleSize int) (*privacy.Result, error)
	KThreshold() int
	Epsilon() float64
}

// Service is the statistics engine.
type Service struct {
	store    store.Store
	gate     AnonymizationGate
	cache    cache.Cache
	loader   *cache.Loader
	cacheTTL time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCache enables read-through response caching.
func WithCache(c cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) { s.cacheTTL = ttl }
}

// NewService constructs the statistics engine. The gate is mandatory:
// there is no code path that returns grouped counts without it.
func NewService(st store.Store, gate AnonymizationGate, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "store is required")
	}
	if gate == nil {
		return nil, dErrors.New(dErrors.CodeValidation, "anonymization gate is required")
	}
	s := &Service{
		store:    st,
		gate:     gate,
		cacheTTL: cache.DefaultTTL,
		logger:   slog.Default(),
		tracer:   otel.Tracer("veristat/analytics"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.loader = cache.NewLoader(s.cache, s.logger)
	return s, nil
}

// Dashboard assembles the composite overview for a range. The volume,
// performance, quality and anomaly legs run concurrently.
func (s *Service) Dashboard(ctx context.Context, r models.TimeRange) (*models.DashboardMetrics, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "analytics.Dashboard",
		trace.WithAttributes(attribute.Int("range.days", r.Days())))
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveQuery("dashboard", time.Since(start).Seconds()) }()

	var out models.DashboardMetrics
	missed := false
	err := s.loader.Load(ctx, cacheKey("dashboard", r), s.cacheTTL,
		[]string{cache.TagDashboard}, &out,
		func(ctx context.Context) (any, error) {
			missed = true
			return s.computeDashboard(ctx, r)
		})
	if err != nil {
		return nil, err
	}
	if !missed {
		s.metrics.IncCacheHit("dashboard")
	}
	return &out, nil
}

func (s *Service) computeDashboard(ctx context.Context, r models.TimeRange) (*models.DashboardMetrics, error) {
	s.metrics.IncCacheMiss("dashboard")
	out := &models.DashboardMetrics{
		GeneratedAt: requestcontext.Now(ctx).UTC(),
		DataRange:   r,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		volume, err := s.Volume(ctx, r)
		if err != nil {
			return err
		}
		out.Volume = volume
		return nil
	})
	g.Go(func() error {
		perf, err := s.Performance(ctx, r)
		if err != nil {
			return err
		}
		out.Performance = perf
		return nil
	})
	g.Go(func() error {
		quality, err := s.store.QualityAverages(ctx, r)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "load quality averages")
		}
		out.Quality = quality
		return nil
	})
	g.Go(func() error {
		anomalies, err := s.Anomalies(ctx, r)
		if err != nil {
			return err
		}
		out.Anomalies = anomalies
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Volume returns session totals and the completion rate for a range.
func (s *Service) Volume(ctx context.Context, r models.TimeRange) (models.VolumeMetrics, error) {
	if err := r.Validate(); err != nil {
		return models.VolumeMetrics{}, err
	}
	total, completed, failed, err := s.store.VolumeCounts(ctx, r)
	if err != nil {
		return models.VolumeMetrics{}, dErrors.Wrap(err, dErrors.CodeInternal, "load volume counts")
	}
	v := models.VolumeMetrics{
		TotalSessions:     total,
		CompletedSessions: completed,
		FailedSessions:    failed,
	}
	if total > 0 {
		v.CompletionRate = float64(completed) / float64(total)
	}
	return v, nil
}

// Performance returns duration statistics for completed sessions.
func (s *Service) Performance(ctx context.Context, r models.TimeRange) (models.PerformanceMetrics, error) {
	if err := r.Validate(); err != nil {
		return models.PerformanceMetrics{}, err
	}
	durations, err := s.store.ProcessingDurations(ctx, r)
	if err != nil {
		return models.PerformanceMetrics{}, dErrors.Wrap(err, dErrors.CodeInternal, "load processing durations")
	}
	perf := models.PerformanceMetrics{
		AvgProcessingTime: mean(durations),
		Percentiles: map[int]float64{
			50: percentile(durations, 50),
			75: percentile(durations, 75),
			90: percentile(durations, 90),
			95: percentile(durations, 95),
			99: percentile(durations, 99),
		},
	}
	if hours := r.End.Sub(r.Start).Hours(); hours > 0 {
		perf.ThroughputPerHour = float64(len(durations)) / hours
	}
	return perf, nil
}

// Anomalies flags days whose volume falls outside the expected band.
func (s *Service) Anomalies(ctx context.Context, r models.TimeRange) ([]models.Anomaly, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	days, err := s.store.DailyVolumes(ctx, r)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load daily volumes")
	}
	anomalies := DetectVolumeAnomalies(days)
	s.metrics.AddAnomalies(len(anomalies))
	if len(anomalies) > 0 {
		s.logger.InfoContext(ctx, "volume anomalies detected",
			"count", len(anomalies), "days", len(days))
	}
	return anomalies, nil
}

// TimeSeries returns bucketed rollups with a fitted trend. The bucket
// width follows the range span, so point counts stay bounded.
func (s *Service) TimeSeries(ctx context.Context, r models.TimeRange) (*models.TimeSeries, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "analytics.TimeSeries")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveQuery("timeseries", time.Since(start).Seconds()) }()

	var out models.TimeSeries
	missed := false
	err := s.loader.Load(ctx, cacheKey("timeseries", r), s.cacheTTL,
		[]string{cache.TagTimeSeries}, &out,
		func(ctx context.Context) (any, error) {
			missed = true
			s.metrics.IncCacheMiss("timeseries")
			bucket := BucketFor(r)
			points, err := s.store.BucketedRollups(ctx, r, bucket)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load bucketed rollups")
			}
			return &models.TimeSeries{
				Bucket: LevelFor(bucket),
				Points: points,
				Trend:  FitTrend(points),
			}, nil
		})
	if err != nil {
		return nil, err
	}
	if !missed {
		s.metrics.IncCacheHit("timeseries")
	}
	return &out, nil
}

// Demographics returns the anonymized age and document-type
// distributions for a range. When the privacy budget for the period is
// exhausted the response degrades to suppression-only with
// BudgetExhausted set, it never fails the request.
func (s *Service) Demographics(ctx context.Context, r models.TimeRange) (*models.DemographicBreakdown, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "analytics.Demographics")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveQuery("demographics", time.Since(start).Seconds()) }()

	var out models.DemographicBreakdown
	missed := false
	err := s.loader.Load(ctx, cacheKey("demographics", r), s.cacheTTL,
		[]string{cache.TagDemographics}, &out,
		func(ctx context.Context) (any, error) {
			missed = true
			return s.computeDemographics(ctx, r)
		})
	if err != nil {
		return nil, err
	}
	if !missed {
		s.metrics.IncCacheHit("demographics")
	}
	return &out, nil
}

func (s *Service) computeDemographics(ctx context.Context, r models.TimeRange) (*models.DemographicBreakdown, error) {
	s.metrics.IncCacheMiss("demographics")
	total, _, _, err := s.store.VolumeCounts(ctx, r)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load volume counts")
	}

	out := &models.DemographicBreakdown{
		KAnonymityLevel: s.gate.KThreshold(),
		GeneratedAt:     requestcontext.Now(ctx).UTC(),
	}

	ages, exhausted, err := s.anonymizedDimension(ctx, r, store.DimensionAgeBand, "age_distribution", total, out)
	if err != nil {
		return nil, err
	}
	out.AgeDistribution = ages
	out.BudgetExhausted = out.BudgetExhausted || exhausted

	docs, exhausted, err := s.anonymizedDimension(ctx, r, store.DimensionDocumentType, "document_type", total, out)
	if err != nil {
		return nil, err
	}
	out.DocumentTypes = docs
	out.BudgetExhausted = out.BudgetExhausted || exhausted

	return out, nil
}

// anonymizedDimension tallies one dimension, passes it through the gate,
// and shapes the survivors as demographic stats. It accumulates the
// suppressed category count on out.
func (s *Service) anonymizedDimension(ctx context.Context, r models.TimeRange, dimension, statType string, total int, out *models.DemographicBreakdown) ([]models.DemographicStat, bool, error) {
	counts, err := s.store.CategoryCounts(ctx, r, dimension)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "load category counts")
	}
	groups := make([]privacy.GroupCount, len(counts))
	for i, c := range counts {
		groups[i] = privacy.GroupCount{Category: c.Category, Count: c.Count}
	}

	res, err := s.gate.SuppressAndNoise(ctx, seriesKey(dimension, r), groups, total)
	exhausted := false
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeBudgetExceeded) {
			return nil, false, err
		}
		exhausted = true
	}

	suppressed := 0
	for _, g := range groups {
		if g.Count < s.gate.KThreshold() {
			suppressed++
		}
	}
	out.SuppressedCategories += suppressed
	quality := 0.0
	if len(groups) > 0 {
		quality = float64(len(groups)-suppressed) / float64(len(groups))
	}

	stats := make([]models.DemographicStat, 0, len(res.Groups))
	for _, g := range res.Groups {
		stats = append(stats, models.DemographicStat{
			Type:              statType,
			DimensionName:     dimension,
			DimensionValue:    g.Category,
			Count:             g.Count,
			SampleSize:        total,
			Percentage:        g.Percentage,
			ConfidenceLow:     g.ConfidenceLow,
			ConfidenceHigh:    g.ConfidenceHigh,
			NoiseMagnitude:    g.NoiseMagnitude,
			PrivacyBudgetUsed: res.BudgetConsumed,
			KGroupSize:        g.KGroupSize,
			QualityScore:      quality,
			CollectionStart:   r.Start,
			CollectionEnd:     r.End,
		})
	}
	return stats, exhausted, nil
}

// Geographic returns the anonymized spatial distribution for a range.
// Regions below the k value derived from the overall session count are
// suppressed and only counted.
func (s *Service) Geographic(ctx context.Context, r models.TimeRange) (*models.GeographicDistribution, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "analytics.Geographic")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveQuery("geographic", time.Since(start).Seconds()) }()

	var out models.GeographicDistribution
	missed := false
	err := s.loader.Load(ctx, cacheKey("geographic", r), s.cacheTTL,
		[]string{cache.TagGeographic}, &out,
		func(ctx context.Context) (any, error) {
			missed = true
			return s.computeGeographic(ctx, r)
		})
	if err != nil {
		return nil, err
	}
	if !missed {
		s.metrics.IncCacheHit("geographic")
	}
	return &out, nil
}

func (s *Service) computeGeographic(ctx context.Context, r models.TimeRange) (*models.GeographicDistribution, error) {
	s.metrics.IncCacheMiss("geographic")
	rollups, err := s.store.RegionRollups(ctx, r)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load region rollups")
	}

	// Session-weighted country centroids, over all traffic so suppressed
	// regions still pull the centroid.
	type centroid struct {
		lat, lng float64
		sessions int
	}
	countries := make(map[string]centroid)
	for _, rr := range rollups {
		c := countries[rr.CountryCode]
		c.lat += rr.Latitude * float64(rr.SessionCount)
		c.lng += rr.Longitude * float64(rr.SessionCount)
		c.sessions += rr.SessionCount
		countries[rr.CountryCode] = c
	}

	out := &models.GeographicDistribution{
		GeneratedAt: requestcontext.Now(ctx).UTC(),
	}
	for _, rr := range rollups {
		params := geo.ParamsFor(rr.SessionCount)
		if rr.SessionCount < params.KValue {
			out.SuppressedRegions++
			continue
		}
		var distance float64
		if c := countries[rr.CountryCode]; c.sessions > 0 {
			distance = geo.HaversineKm(rr.Latitude, rr.Longitude,
				c.lat/float64(c.sessions), c.lng/float64(c.sessions))
		}
		successRate := 0.0
		if rr.SessionCount > 0 {
			successRate = float64(rr.CompletedSessions) / float64(rr.SessionCount)
		}
		out.Regions = append(out.Regions, models.GeographicStat{
			RegionLevel:           "region",
			RegionCode:            rr.RegionCode,
			CountryCode:           rr.CountryCode,
			LatitudeCentroid:      rr.Latitude,
			LongitudeCentroid:     rr.Longitude,
			SessionCount:          rr.SessionCount,
			SuccessRate:           successRate,
			AvgProcessingTime:     rr.AvgProcessingTime,
			GridSizeMeters:        params.GridSizeMeters,
			KValue:                params.KValue,
			Geohash:               geo.Encode(rr.Latitude, rr.Longitude, params.GeohashLevel),
			GeohashLevel:          params.GeohashLevel,
			PrivacyLevel:          string(params.PrivacyLevel),
			QualityScore:          successRate,
			DistanceFromCountryKm: distance,
		})
	}
	if out.SuppressedRegions > 0 {
		s.logger.InfoContext(ctx, "suppressed low-volume regions",
			"suppressed", out.SuppressedRegions, "published", len(out.Regions))
	}
	return out, nil
}

// InvalidateCached drops every cached statistics response. Call after a
// bulk data load so dashboards pick up the new facts immediately.
func (s *Service) InvalidateCached(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateTags(ctx,
		cache.TagDashboard, cache.TagTimeSeries, cache.TagDemographics, cache.TagGeographic)
}

func cacheKey(surface string, r models.TimeRange) string {
	return fmt.Sprintf("%s:%d:%d", surface, r.Start.Unix(), r.End.Unix())
}

// seriesKey identifies one privacy budget series: a dimension over an
// exact period. Repeating the identical query draws from the same budget.
func seriesKey(dimension string, r models.TimeRange) string {
	return fmt.Sprintf("%s:%d:%d", dimension, r.Start.Unix(), r.End.Unix())
}
