package analytics

import (
	"time"

	"veristat/internal/analytics/models"
)

// Bucket widths for time-series rollups. A month bucket is a fixed 30
// days so that epoch-aligned flooring stays stable across queries.
const (
	bucketHour  = time.Hour
	bucketFour  = 4 * time.Hour
	bucketDay   = 24 * time.Hour
	bucketWeek  = 7 * 24 * time.Hour
	bucketMonth = 30 * 24 * time.Hour
)

// BucketFor picks the rollup width for a query span. Short ranges get
// fine buckets, long ranges get coarse ones, keeping point counts bounded.
func BucketFor(r models.TimeRange) time.Duration {
	span := r.End.Sub(r.Start)
	switch {
	case span <= bucketDay:
		return bucketHour
	case span <= 7*bucketDay:
		return bucketFour
	case span <= 30*bucketDay:
		return bucketDay
	case span <= 90*bucketDay:
		return bucketWeek
	default:
		return bucketMonth
	}
}

// LevelFor names the aggregation level of a bucket width. Four-hour
// buckets report as hourly: the level is a label, not the exact width.
func LevelFor(bucket time.Duration) models.AggregationLevel {
	switch {
	case bucket < bucketHour:
		return models.LevelMinute
	case bucket < bucketDay:
		return models.LevelHour
	case bucket < bucketWeek:
		return models.LevelDay
	case bucket < bucketMonth:
		return models.LevelWeek
	default:
		return models.LevelMonth
	}
}

// FloorToBucket snaps t down to the start of its bucket, anchored at the
// Unix epoch in UTC.
func FloorToBucket(t time.Time, bucket time.Duration) time.Time {
	secs := t.Unix()
	width := int64(bucket / time.Second)
	floored := secs - (secs%width+width)%width
	return time.Unix(floored, 0).UTC()
}
