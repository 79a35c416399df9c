// Package geo derives the spatial anonymization parameters for geographic
// statistics. Precision moves inversely with session count so the anonymity
// set behind every geohash cell stays above the k threshold.
package geo

import (
	"math"
	"strings"
)

// PrivacyLevel classifies how freely a geographic statistic may be shared.
type PrivacyLevel string

const (
	PrivacyLevelPublic PrivacyLevel = "PUBLIC"
	PrivacyLevelHigh   PrivacyLevel = "HIGH"
	PrivacyLevelMedium PrivacyLevel = "MEDIUM"
	PrivacyLevelLow    PrivacyLevel = "LOW"
)

const (
	// MinGridSizeMeters is the floor for the anonymization grid.
	MinGridSizeMeters = 1000
	// MinKValue is the k-anonymity floor for spatial aggregates.
	MinKValue = 5

	earthRadiusKm = 6371.0
)

// Params are the disclosure-control parameters for one spatial aggregate.
type Params struct {
	GridSizeMeters int
	KValue         int
	GeohashLevel   int
	PrivacyLevel   PrivacyLevel
}

// ParamsFor computes grid size, k value, geohash precision, and privacy
// level from the number of sessions in the aggregate. More sessions widen
// the grid and coarsen the geohash.
func ParamsFor(sessionCount int) Params {
	grid := sessionCount * 10
	if grid < MinGridSizeMeters {
		grid = MinGridSizeMeters
	}
	k := sessionCount / 10
	if k < MinKValue {
		k = MinKValue
	}
	return Params{
		GridSizeMeters: grid,
		KValue:         k,
		GeohashLevel:   OptimalGeohashLevel(sessionCount),
		PrivacyLevel:   LevelForK(k),
	}
}

// OptimalGeohashLevel returns the geohash precision for an aggregate of the
// given size. Denser aggregates tolerate finer cells without shrinking the
// per-cell anonymity set.
func OptimalGeohashLevel(sessionCount int) int {
	switch {
	case sessionCount > 1000:
		return 4 // ~20km cells
	case sessionCount > 500:
		return 5 // ~5km cells
	case sessionCount > 100:
		return 6 // ~1km cells
	default:
		return 3 // ~150km cells
	}
}

// LevelForK maps a k value to a privacy classification.
func LevelForK(k int) PrivacyLevel {
	switch {
	case k >= 20:
		return PrivacyLevelPublic
	case k >= 10:
		return PrivacyLevelHigh
	case k >= 5:
		return PrivacyLevelMedium
	default:
		return PrivacyLevelLow
	}
}

// HaversineKm returns the great-circle distance between two coordinates in
// kilometers.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	latDiff := radians(lat2 - lat1)
	lngDiff := radians(lng2 - lng1)

	a := math.Sin(latDiff/2)*math.Sin(latDiff/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(lngDiff/2)*math.Sin(lngDiff/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

const geohashBase32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// Encode returns the geohash of a coordinate at the given precision.
// Precision here is the cell identifier for published aggregates, not a
// general-purpose geocoding facility.
func Encode(lat, lng float64, precision int) string {
	if precision < 1 {
		precision = 1
	}
	latLo, latHi := -90.0, 90.0
	lngLo, lngHi := -180.0, 180.0

	var sb strings.Builder
	var bit, idx int
	even := true

	for sb.Len() < precision {
		if even {
			mid := (lngLo + lngHi) / 2
			if lng >= mid {
				idx = idx<<1 | 1
				lngLo = mid
			} else {
				idx <<= 1
				lngHi = mid
			}
		} else {
			mid := (latLo + latHi) / 2
			if lat >= mid {
				idx = idx<<1 | 1
				latLo = mid
			} else {
				idx <<= 1
				latHi = mid
			}
		}
		even = !even
		if bit++; bit == 5 {
			sb.WriteByte(geohashBase32[idx])
			bit, idx = 0, 0
		}
	}
	return sb.String()
}
