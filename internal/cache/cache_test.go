package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trial-progress-dashboard/internal/domain"
)

func testSnapshot() *domain.Snapshot {
	return &domain.Snapshot{
		FetchedAt: time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC),
		Tables: map[string]*domain.RawRecords{
			domain.TableInHospital: {
				Fields: []string{"record_id", "enroll_dttm"},
				Rows:   []map[string]string{{"record_id": "101", "enroll_dttm": "2024-01-02 10:00"}},
			},
		},
	}
}

func TestNew(t *testing.T) {
	c, err := New(domain.CacheConfig{Kind: domain.CacheNone})
	require.NoError(t, err)
	assert.Nil(t, c)

	c, err = New(domain.CacheConfig{Kind: domain.CacheMemory, MaxItems: 2})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)

	_, err = New(domain.CacheConfig{Kind: "memcached"})
	assert.Error(t, err)
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, time.Hour)
	key := SnapshotKey("csv")

	_, found, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, key, testSnapshot(), 0))
	got, found, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "101", got.Table(domain.TableInHospital).Rows[0]["record_id"])

	require.NoError(t, c.Invalidate(ctx, key))
	_, found, _ = c.Get(ctx, key)
	assert.False(t, found)
}

func TestMemoryCache_PerEntryTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, time.Hour)
	now := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", testSnapshot(), time.Minute))
	_, found, _ := c.Get(ctx, "k")
	assert.True(t, found)

	now = now.Add(2 * time.Minute)
	_, found, _ = c.Get(ctx, "k")
	assert.False(t, found)
	assert.Zero(t, c.Len())
}

func TestMemoryCache_Eviction(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(1, time.Hour)

	require.NoError(t, c.Set(ctx, "a", testSnapshot(), 0))
	require.NoError(t, c.Set(ctx, "b", testSnapshot(), 0))

	_, found, _ := c.Get(ctx, "a")
	assert.False(t, found)
	_, found, _ = c.Get(ctx, "b")
	assert.True(t, found)
}

func setupRedisCache(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCacheFromClient(client, time.Hour)
	t.Cleanup(func() { c.Close() })
	return mr, c
}

func TestRedisCache(t *testing.T) {
	ctx := context.Background()
	mr, c := setupRedisCache(t)
	key := SnapshotKey("redcap")

	_, found, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, key, testSnapshot(), 0))
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))

	got, found, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.FetchedAt.Equal(testSnapshot().FetchedAt))
	assert.Equal(t, []string{"record_id", "enroll_dttm"}, got.Table(domain.TableInHospital).Fields)

	mr.FastForward(2 * time.Hour)
	_, found, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisCache_CorruptedEntry(t *testing.T) {
	ctx := context.Background()
	mr, c := setupRedisCache(t)

	require.NoError(t, mr.Set("bad", "{not json"))
	_, found, err := c.Get(ctx, "bad")
	require.NoError(t, err)
	assert.False(t, found)
	assert.False(t, mr.Exists("bad"), "corrupted entries are removed")
}

func TestRedisCache_Invalidate(t *testing.T) {
	ctx := context.Background()
	mr, c := setupRedisCache(t)

	require.NoError(t, c.Set(ctx, "k", testSnapshot(), -1))
	assert.Zero(t, mr.TTL("k"))
	require.NoError(t, c.Invalidate(ctx, "k"))
	assert.False(t, mr.Exists("k"))
}
