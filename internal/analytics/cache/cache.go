// Package cache provides tagged response caching for computed
// statistics. Entries carry tags so a data refresh can invalidate every
// derived response at once.
package cache

import (
	"context"
	"time"
)

// DefaultTTL is how long a computed statistics response stays fresh.
const DefaultTTL = 15 * time.Minute

// Tags used to group cached analytics responses.
const (
	TagDashboard    = "analytics:dashboard"
	TagTimeSeries   = "analytics:timeseries"
	TagDemographics = "analytics:demographics"
	TagGeographic   = "analytics:geographic"
)

// Cache stores JSON-serializable values under string keys with a TTL
// and optional invalidation tags.
type Cache interface {
	// Get unmarshals the cached value into dest. The bool reports
	// whether the key was present and unexpired.
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Set stores value under key for ttl and registers it under tags.
	Set(ctx context.Context, key string, value any, ttl time.Duration, tags ...string) error

	// InvalidateTags removes every entry registered under any of tags.
	InvalidateTags(ctx context.Context, tags ...string) error
}
