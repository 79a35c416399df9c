package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"veristat/internal/analytics/models"
	dErrors "veristat/pkg/domain-errors"
)

// MemoryStore keeps session facts in memory. Used in tests and local
// development; the aggregate semantics mirror the SQL store exactly.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions []SessionRecord
}

// NewMemory constructs an empty in-memory session store.
func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

// Add appends session records.
func (s *MemoryStore) Add(records ...SessionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = append(s.sessions, records...)
}

func (s *MemoryStore) inRange(r models.TimeRange) []SessionRecord {
	var out []SessionRecord
	for _, rec := range s.sessions {
		if rec.CreatedAt.Before(r.Start) || rec.CreatedAt.After(r.End) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (s *MemoryStore) VolumeCounts(_ context.Context, r models.TimeRange) (total, completed, failed int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.inRange(r) {
		total++
		switch rec.Status {
		case StatusCompleted:
			completed++
		case StatusFailed:
			failed++
		}
	}
	return total, completed, failed, nil
}

func (s *MemoryStore) ProcessingDurations(_ context.Context, r models.TimeRange) ([]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []float64
	for _, rec := range s.inRange(r) {
		if rec.Status == StatusCompleted {
			out = append(out, rec.ProcessingSeconds)
		}
	}
	return out, nil
}

func (s *MemoryStore) QualityAverages(_ context.Context, r models.TimeRange) (models.QualityMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var q models.QualityMetrics
	var n, livenessPassed int
	for _, rec := range s.inRange(r) {
		if rec.Status != StatusCompleted {
			continue
		}
		n++
		q.DocumentAccuracy += rec.DocumentAccuracy
		q.FaceMatchConfidence += rec.FaceMatchConfidence
		if rec.LivenessPassed {
			livenessPassed++
		}
	}
	if n == 0 {
		return models.QualityMetrics{}, nil
	}
	q.DocumentAccuracy /= float64(n)
	q.FaceMatchConfidence /= float64(n)
	q.LivenessSuccessRate = float64(livenessPassed) / float64(n)
	return q, nil
}

func (s *MemoryStore) DailyVolumes(_ context.Context, r models.TimeRange) ([]models.DailyVolume, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byDay := make(map[time.Time]int)
	for _, rec := range s.inRange(r) {
		day := rec.CreatedAt.UTC().Truncate(24 * time.Hour)
		byDay[day]++
	}
	out := make([]models.DailyVolume, 0, len(byDay))
	for day, total := range byDay {
		out = append(out, models.DailyVolume{Date: day, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemoryStore) BucketedRollups(_ context.Context, r models.TimeRange, bucket time.Duration) ([]models.TimeSeriesPoint, error) {
	if bucket <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "bucket width must be positive")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type acc struct {
		point     models.TimeSeriesPoint
		durations []float64
	}
	buckets := make(map[time.Time]*acc)
	for _, rec := range s.inRange(r) {
		key := floorToBucket(rec.CreatedAt, bucket)
		a := buckets[key]
		if a == nil {
			a = &acc{point: models.TimeSeriesPoint{TimeBucket: key}}
			buckets[key] = a
		}
		a.point.TotalSessions++
		switch rec.Status {
		case StatusCompleted:
			a.point.CompletedSessions++
			a.durations = append(a.durations, rec.ProcessingSeconds)
		case StatusFailed:
			a.point.FailedSessions++
		}
	}

	out := make([]models.TimeSeriesPoint, 0, len(buckets))
	for _, a := range buckets {
		if len(a.durations) > 0 {
			sort.Float64s(a.durations)
			var sum float64
			for _, d := range a.durations {
				sum += d
			}
			a.point.AvgProcessingTime = sum / float64(len(a.durations))
			a.point.MedianProcessingTime = nearestRank(a.durations, 50)
			a.point.P95ProcessingTime = nearestRank(a.durations, 95)
		}
		out = append(out, a.point)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TimeBucket.Before(out[j].TimeBucket) })
	return out, nil
}

func (s *MemoryStore) CategoryCounts(_ context.Context, r models.TimeRange, dimension string) ([]models.CategoryCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[string]int)
	for _, rec := range s.inRange(r) {
		var category string
		switch dimension {
		case DimensionAgeBand:
			category = rec.AgeBand
		case DimensionDocumentType:
			category = rec.DocumentType
		default:
			return nil, dErrors.Newf(dErrors.CodeValidation, "unknown dimension %q", dimension)
		}
		if category == "" {
			continue
		}
		counts[category]++
	}
	out := make([]models.CategoryCount, 0, len(counts))
	for category, count := range counts {
		out = append(out, models.CategoryCount{Category: category, Count: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (s *MemoryStore) RegionRollups(_ context.Context, r models.TimeRange) ([]models.RegionRollup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type acc struct {
		rollup    models.RegionRollup
		latSum    float64
		lonSum    float64
		durSum    float64
		completed int
	}
	type key struct{ country, region string }
	regions := make(map[key]*acc)
	for _, rec := range s.inRange(r) {
		if rec.CountryCode == "" {
			continue
		}
		k := key{rec.CountryCode, rec.RegionCode}
		a := regions[k]
		if a == nil {
			a = &acc{rollup: models.RegionRollup{CountryCode: rec.CountryCode, RegionCode: rec.RegionCode}}
			regions[k] = a
		}
		a.rollup.SessionCount++
		a.latSum += rec.Latitude
		a.lonSum += rec.Longitude
		if rec.Status == StatusCompleted {
			a.completed++
			a.durSum += rec.ProcessingSeconds
		}
	}

	out := make([]models.RegionRollup, 0, len(regions))
	for _, a := range regions {
		n := float64(a.rollup.SessionCount)
		a.rollup.Latitude = a.latSum / n
		a.rollup.Longitude = a.lonSum / n
		a.rollup.CompletedSessions = a.completed
		if a.completed > 0 {
			a.rollup.AvgProcessingTime = a.durSum / float64(a.completed)
		}
		out = append(out, a.rollup)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CountryCode != out[j].CountryCode {
			return out[i].CountryCode < out[j].CountryCode
		}
		return out[i].RegionCode < out[j].RegionCode
	})
	return out, nil
}

func floorToBucket(t time.Time, bucket time.Duration) time.Time {
	secs := t.Unix()
	width := int64(bucket / time.Second)
	floored := secs - (secs%width+width)%width
	return time.Unix(floored, 0).UTC()
}

// nearestRank expects sorted input.
func nearestRank(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
