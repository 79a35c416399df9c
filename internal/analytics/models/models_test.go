package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "veristat/pkg/domain-errors"
)

func TestTimeRangeValidate(t *testing.T) {
	day := func(y, m, d int) time.Time {
		return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	}

	t.Run("inverted range is rejected", func(t *testing.T) {
		r := TimeRange{Start: day(2024, 2, 1), End: day(2024, 1, 1)}
		err := r.Validate()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidRange))
	})

	t.Run("span over a year is rejected", func(t *testing.T) {
		r := TimeRange{Start: day(2024, 1, 1), End: day(2024, 1, 1).AddDate(0, 0, 400)}
		err := r.Validate()
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidRange))
	})

	t.Run("exactly the max span is accepted", func(t *testing.T) {
		r := TimeRange{Start: day(2024, 1, 1), End: day(2024, 1, 1).AddDate(0, 0, MaxRangeDays)}
		assert.NoError(t, r.Validate())
	})

	t.Run("zero-width range is accepted", func(t *testing.T) {
		r := TimeRange{Start: day(2024, 6, 1), End: day(2024, 6, 1)}
		assert.NoError(t, r.Validate())
	})
}

func TestTimeRangeDays(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, TimeRange{Start: start, End: start}.Days())
	assert.Equal(t, 7, TimeRange{Start: start, End: start.AddDate(0, 0, 7)}.Days())
	// Partial days round up.
	assert.Equal(t, 2, TimeRange{Start: start, End: start.Add(25 * time.Hour)}.Days())
}
