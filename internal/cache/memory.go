package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/trial-progress-dashboard/internal/domain"
)

const defaultMaxItems = 8

// MemoryCache is an in-process snapshot cache. Entries expire after the
// cache-wide TTL or the per-entry TTL given to Set, whichever comes first.
type MemoryCache struct {
	lru        *expirable.LRU[string, *cachedSnapshot]
	defaultTTL time.Duration
	now        func() time.Time
}

// NewMemoryCache creates a memory cache holding at most maxItems snapshots.
func NewMemoryCache(maxItems int, defaultTTL time.Duration) *MemoryCache {
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	return &MemoryCache{
		lru:        expirable.NewLRU[string, *cachedSnapshot](maxItems, nil, defaultTTL),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Get returns the cached snapshot for key.
func (m *MemoryCache) Get(_ context.Context, key string) (*domain.Snapshot, bool, error) {
	entry, ok := m.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if entry.expired(m.now()) {
		m.lru.Remove(key)
		return nil, false, nil
	}
	return entry.Data, true, nil
}

// Set stores snap under key. A zero ttl uses the cache default.
func (m *MemoryCache) Set(_ context.Context, key string, snap *domain.Snapshot, ttl time.Duration) error {
	if ttl == 0 {
		ttl = m.defaultTTL
	}
	now := m.now()
	entry := &cachedSnapshot{Data: snap, CachedAt: now}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}
	m.lru.Add(key, entry)
	return nil
}

// Invalidate removes key.
func (m *MemoryCache) Invalidate(_ context.Context, key string) error {
	m.lru.Remove(key)
	return nil
}

// Len returns the number of cached snapshots.
func (m *MemoryCache) Len() int {
	return m.lru.Len()
}

// Close purges the cache.
func (m *MemoryCache) Close() error {
	m.lru.Purge()
	return nil
}

var _ domain.SnapshotCache = (*MemoryCache)(nil)
