package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParamsFor(t *testing.T) {
	small := ParamsFor(12)
	assert.Equal(t, MinGridSizeMeters, small.GridSizeMeters)
	assert.Equal(t, MinKValue, small.KValue)
	assert.Equal(t, 3, small.GeohashLevel)
	assert.Equal(t, PrivacyLevelMedium, small.PrivacyLevel)

	large := ParamsFor(2400)
	assert.Equal(t, 24000, large.GridSizeMeters)
	assert.Equal(t, 240, large.KValue)
	assert.Equal(t, 4, large.GeohashLevel)
	assert.Equal(t, PrivacyLevelPublic, large.PrivacyLevel)
}

// More sessions must never produce a finer geohash: the anonymity set per
// cell shrinks with precision.
func TestGeohashLevel_InverseToVolume(t *testing.T) {
	prev := OptimalGeohashLevel(101)
	for _, sessions := range []int{501, 1001, 5000} {
		level := OptimalGeohashLevel(sessions)
		assert.LessOrEqual(t, level, prev, "sessions=%d", sessions)
		prev = level
	}
}

func TestLevelForK(t *testing.T) {
	assert.Equal(t, PrivacyLevelPublic, LevelForK(20))
	assert.Equal(t, PrivacyLevelHigh, LevelForK(10))
	assert.Equal(t, PrivacyLevelMedium, LevelForK(5))
	assert.Equal(t, PrivacyLevelLow, LevelForK(4))
}

func TestHaversineKm(t *testing.T) {
	// Paris to Berlin, roughly 878 km.
	d := HaversineKm(48.8566, 2.3522, 52.5200, 13.4050)
	assert.InDelta(t, 878, d, 5)

	assert.Zero(t, HaversineKm(46.6, 1.88, 46.6, 1.88))
}

func TestEncode(t *testing.T) {
	// Known vector: 57.64911, 10.40744 encodes to "u4pruydqqvj".
	assert.Equal(t, "u4pruydqqvj", Encode(57.64911, 10.40744, 11))
	assert.Equal(t, "u4pr", Encode(57.64911, 10.40744, 4))
	assert.Len(t, Encode(46.6, 1.88, 5), 5)
}
