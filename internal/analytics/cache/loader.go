package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader is a read-through front for a Cache. Concurrent misses on the
// same key are collapsed into one fill via singleflight, so an expensive
// aggregate is computed once per key per refresh.
type Loader struct {
	cache  Cache
	group  singleflight.Group
	logger *slog.Logger
}

// NewLoader constructs a read-through loader over cache.
func NewLoader(cache Cache, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{cache: cache, logger: logger}
}

// Load reads key into dest, filling the cache via fill on a miss. Cache
// failures degrade to a direct fill: statistics must stay available when
// the cache is not.
func (l *Loader) Load(ctx context.Context, key string, ttl time.Duration, tags []string, dest any, fill func(context.Context) (any, error)) error {
	if l.cache != nil {
		hit, err := l.cache.Get(ctx, key, dest)
		if err != nil {
			l.logger.Warn("cache read failed, computing directly", "key", key, "error", err)
		} else if hit {
			return nil
		}
	}

	value, err, _ := l.group.Do(key, func() (any, error) {
		value, err := fill(ctx)
		if err != nil {
			return nil, err
		}
		if l.cache != nil {
			if err := l.cache.Set(ctx, key, value, ttl, tags...); err != nil {
				l.logger.Warn("cache write failed", "key", key, "error", err)
			}
		}
		return value, nil
	})
	if err != nil {
		return err
	}

	// The fill result may be shared across collapsed callers; copy it
	// into dest through its JSON form.
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode computed value: %w", err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("decode computed value: %w", err)
	}
	return nil
}
