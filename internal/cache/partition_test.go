package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/telemetry-trainer/internal/config"
)

func TestDisabledCacheIsNoop(t *testing.T) {
	pc, err := NewPartitionCache(config.CacheConfig{Enabled: false})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, pc.SetListing(ctx, &Listing{Prefix: "TRUCK-001/2025-01-01/"}))

	_, hit, err := pc.GetListing(ctx, "TRUCK-001/2025-01-01/")
	require.NoError(t, err)
	assert.False(t, hit)

	assert.NoError(t, pc.InvalidateAll(ctx))
}

func TestBuildRedisOptionsFromURL(t *testing.T) {
	opts, err := buildRedisOptions(config.CacheConfig{
		RedisURL: "redis://:secret@cache.internal:6380/2",
	})
	require.NoError(t, err)

	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "secret", opts.Password)
	assert.Equal(t, 2, opts.DB)
}

func TestBuildRedisOptionsFromHostPort(t *testing.T) {
	opts, err := buildRedisOptions(config.CacheConfig{
		RedisHost:     "10.0.0.5",
		RedisPort:     "6379",
		RedisPassword: "hunter2",
		RedisDB:       1,
	})
	require.NoError(t, err)

	assert.Equal(t, "10.0.0.5:6379", opts.Addr)
	assert.Equal(t, "hunter2", opts.Password)
	assert.Equal(t, 1, opts.DB)
}

func TestBuildRedisOptionsDefaults(t *testing.T) {
	opts, err := buildRedisOptions(config.CacheConfig{})
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:6379", opts.Addr)
}

func TestBuildRedisOptionsRejectsBadURL(t *testing.T) {
	_, err := buildRedisOptions(config.CacheConfig{RedisURL: "://nope"})
	assert.Error(t, err)
}

func TestListingKey(t *testing.T) {
	assert.Equal(t, "partition:listing:TRUCK-001/2025-01-01/",
		listingKey("TRUCK-001/2025-01-01/"))
}
