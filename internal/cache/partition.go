package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fleetops/telemetry-trainer/internal/config"
)

const (
	listingKeyPrefix = "partition:listing:"
	scanBatchSize    = 100
)

// Listing is the cached result of one partition key listing.
type Listing struct {
	Prefix    string    `json:"prefix"`
	Keys      []string  `json:"keys"`
	Count     int       `json:"count"`
	FetchedAt time.Time `json:"fetched_at"`
}

// PartitionCache caches the most recent key listing per partition prefix.
type PartitionCache interface {
	GetListing(ctx context.Context, prefix string) (*Listing, bool, error)
	SetListing(ctx context.Context, listing *Listing) error
	InvalidateAll(ctx context.Context) error
}

type redisPartitionCache struct {
	client *redis.Client
	ttl    time.Duration
}

type noopPartitionCache struct{}

// NewPartitionCache returns a Redis-backed cache when caching is enabled,
// otherwise a noop that always misses.
func NewPartitionCache(cfg config.CacheConfig) (PartitionCache, error) {
	if !cfg.Enabled {
		return &noopPartitionCache{}, nil
	}

	client, ttl, err := newRedisClient(cfg)
	if err != nil {
		return nil, err
	}

	return &redisPartitionCache{
		client: client,
		ttl:    ttl,
	}, nil
}

func (c *redisPartitionCache) GetListing(ctx context.Context, prefix string) (*Listing, bool, error) {
	raw, err := c.client.Get(ctx, listingKey(prefix)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}

	listing := &Listing{}
	if err := json.Unmarshal(raw, listing); err != nil {
		// A corrupt entry is treated as a miss so the caller re-lists.
		return nil, false, nil
	}
	return listing, true, nil
}

func (c *redisPartitionCache) SetListing(ctx context.Context, listing *Listing) error {
	raw, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("marshal listing: %w", err)
	}
	if err := c.client.Set(ctx, listingKey(listing.Prefix), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *redisPartitionCache) InvalidateAll(ctx context.Context) error {
	return deleteKeysWithPrefix(ctx, c.client, listingKeyPrefix, scanBatchSize)
}

func (c *noopPartitionCache) GetListing(context.Context, string) (*Listing, bool, error) {
	return nil, false, nil
}

func (c *noopPartitionCache) SetListing(context.Context, *Listing) error {
	return nil
}

func (c *noopPartitionCache) InvalidateAll(context.Context) error {
	return nil
}

func listingKey(prefix string) string {
	return listingKeyPrefix + prefix
}
