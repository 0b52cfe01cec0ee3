package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/enterprise-access/access-api/internal/pkg/logger"
)

const (
	defaultCacheSize = 1024
	defaultCacheTTL  = 5 * time.Minute
	redisKeyPrefix   = "enterprise-access:content-metadata:"
)

// Source is what CachedClient wraps.
type Source interface {
	ContainsContentKey(ctx context.Context, catalogUUID uuid.UUID, contentKey string) (bool, error)
	GetContentMetadata(ctx context.Context, contentKey string) (*ContentMetadata, error)
}

// CacheConfig configures the content metadata cache.
type CacheConfig struct {
	Size int
	TTL  time.Duration
}

type cacheEntry struct {
	metadata ContentMetadata
	storedAt time.Time
}

// CachedClient caches content metadata in-process, then in Redis, before the catalog.
// Concurrent misses for the same key share one upstream call.
// Catalog membership is not cached.
type CachedClient struct {
	source Source
	local  *lru.Cache[string, cacheEntry]
	redis  *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	now    func() time.Time
}

// NewCachedClient wraps source. rdb may be nil.
func NewCachedClient(source Source, rdb *redis.Client, cfg CacheConfig) (*CachedClient, error) {
	if cfg.Size <= 0 {
		cfg.Size = defaultCacheSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultCacheTTL
	}
	local, err := lru.New[string, cacheEntry](cfg.Size)
	if err != nil {
		return nil, err
	}
	return &CachedClient{
		source: source,
		local:  local,
		redis:  rdb,
		ttl:    cfg.TTL,
		now:    time.Now,
	}, nil
}

func (c *CachedClient) ContainsContentKey(ctx context.Context, catalogUUID uuid.UUID, contentKey string) (bool, error) {
	return c.source.ContainsContentKey(ctx, catalogUUID, contentKey)
}

func (c *CachedClient) GetContentMetadata(ctx context.Context, contentKey string) (*ContentMetadata, error) {
	if entry, ok := c.local.Get(contentKey); ok {
		if c.now().Sub(entry.storedAt) < c.ttl {
			metadata := entry.metadata
			return &metadata, nil
		}
		c.local.Remove(contentKey)
	}

	v, err, _ := c.group.Do(contentKey, func() (interface{}, error) {
		if entry, ok := c.local.Peek(contentKey); ok && c.now().Sub(entry.storedAt) < c.ttl {
			metadata := entry.metadata
			return &metadata, nil
		}
		if metadata, ok := c.fromRedis(ctx, contentKey); ok {
			c.local.Add(contentKey, cacheEntry{metadata: *metadata, storedAt: c.now()})
			return metadata, nil
		}

		metadata, err := c.source.GetContentMetadata(ctx, contentKey)
		if err != nil {
			return nil, err
		}
		c.local.Add(contentKey, cacheEntry{metadata: *metadata, storedAt: c.now()})
		c.toRedis(ctx, contentKey, metadata)
		return metadata, nil
	})
	if err != nil {
		return nil, err
	}

	metadata := *v.(*ContentMetadata)
	return &metadata, nil
}

func (c *CachedClient) fromRedis(ctx context.Context, contentKey string) (*ContentMetadata, bool) {
	if c.redis == nil {
		return nil, false
	}
	raw, err := c.redis.Get(ctx, redisKeyPrefix+contentKey).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.FromContext(ctx).Warn().Err(err).Str("content_key", contentKey).Msg("content metadata cache read failed")
		}
		return nil, false
	}
	var metadata ContentMetadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return nil, false
	}
	return &metadata, true
}

func (c *CachedClient) toRedis(ctx context.Context, contentKey string, metadata *ContentMetadata) {
	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, redisKeyPrefix+contentKey, raw, c.ttl).Err(); err != nil {
		logger.FromContext(ctx).Warn().Err(err).Str("content_key", contentKey).Msg("content metadata cache write failed")
	}
}
