package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"veristat/internal/analytics/models"
)

func rangeOfDays(days int) models.TimeRange {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return models.TimeRange{Start: start, End: start.AddDate(0, 0, days)}
}

func TestBucketFor(t *testing.T) {
	cases := []struct {
		days int
		want time.Duration
	}{
		{0, bucketHour},
		{1, bucketHour},
		{2, bucketFour},
		{7, bucketFour},
		{8, bucketDay},
		{30, bucketDay},
		{31, bucketWeek},
		{90, bucketWeek},
		{91, bucketMonth},
		{365, bucketMonth},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, BucketFor(rangeOfDays(tc.days)), "span of %d days", tc.days)
	}
}

func TestLevelFor(t *testing.T) {
	assert.Equal(t, models.LevelHour, LevelFor(bucketHour))
	assert.Equal(t, models.LevelHour, LevelFor(bucketFour))
	assert.Equal(t, models.LevelDay, LevelFor(bucketDay))
	assert.Equal(t, models.LevelWeek, LevelFor(bucketWeek))
	assert.Equal(t, models.LevelMonth, LevelFor(bucketMonth))
	assert.Equal(t, models.LevelMinute, LevelFor(time.Minute))
}

func TestFloorToBucket(t *testing.T) {
	ts := time.Date(2024, 3, 15, 13, 47, 22, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 15, 13, 0, 0, 0, time.UTC), FloorToBucket(ts, bucketHour))
	assert.Equal(t, time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC), FloorToBucket(ts, bucketFour))
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), FloorToBucket(ts, bucketDay))

	// Bucket starts are stable: flooring a floored value is a no-op.
	floored := FloorToBucket(ts, bucketWeek)
	assert.Equal(t, floored, FloorToBucket(floored, bucketWeek))
}
