// Package cache keeps the most recent raw snapshot between refreshes so a
// failed or rate-limited fetch can fall back to the last good export.
package cache

import (
	"fmt"
	"time"

	"github.com/trial-progress-dashboard/internal/domain"
)

// SnapshotKey is the key the latest snapshot of a source is stored under.
func SnapshotKey(source string) string {
	return fmt.Sprintf("trialdash:snapshot:%s", source)
}

// cachedSnapshot is a snapshot with cache metadata.
type cachedSnapshot struct {
	Data      *domain.Snapshot `json:"data"`
	CachedAt  time.Time        `json:"cached_at"`
	ExpiresAt time.Time        `json:"expires_at"`
}

func (c *cachedSnapshot) expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// New creates the snapshot cache selected by the configuration. It returns
// nil with no error when caching is disabled.
func New(cfg domain.CacheConfig) (domain.SnapshotCache, error) {
	switch cfg.Kind {
	case domain.CacheNone, "":
		return nil, nil
	case domain.CacheMemory:
		return NewMemoryCache(cfg.MaxItems, cfg.DefaultTTL), nil
	case domain.CacheRedis:
		return NewRedisCache(cfg)
	default:
		return nil, fmt.Errorf("unknown cache kind %q", cfg.Kind)
	}
}
