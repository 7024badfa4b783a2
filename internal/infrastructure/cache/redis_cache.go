package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/garyjia/record-workflow/internal/application/port"
	"github.com/garyjia/record-workflow/internal/domain/entity"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisCache is a shared item cache. Values live under <prefix>:item:<key>
// with a PX expiry. The <prefix>:index sorted set is scored by a counter
// from INCR <prefix>:seq, so the eviction order is the insertion order even
// when two puts share a clock reading. <prefix>:stamps holds the insertion
// time of each key and drives TTL purging of the index.
type RedisCache struct {
	client   redis.Cmdable
	prefix   string
	ttl      time.Duration
	capacity int
	timeout  time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

var _ port.ItemCache = (*RedisCache)(nil)

// RedisOption configures a RedisCache
type RedisOption func(*RedisCache)

// WithPrefix sets the key namespace
func WithPrefix(prefix string) RedisOption {
	return func(c *RedisCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithTTL sets the entry lifetime
func WithTTL(ttl time.Duration) RedisOption {
	return func(c *RedisCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCapacity sets the maximum number of indexed entries
func WithCapacity(n int) RedisOption {
	return func(c *RedisCache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) RedisOption {
	return func(c *RedisCache) {
		c.now = now
	}
}

// NewRedisCache creates a cache on an existing client
func NewRedisCache(client redis.Cmdable, logger *zap.Logger, opts ...RedisOption) *RedisCache {
	c := &RedisCache{
		client:   client,
		prefix:   "workflow",
		ttl:      5 * time.Minute,
		capacity: 1000,
		timeout:  2 * time.Second,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a decoded copy of the entry. Redis errors are logged and reported as misses.
func (c *RedisCache) Get(ctx context.Context, key string) (*entity.WorkflowItem, bool) {
	data, err := c.client.Get(ctx, c.itemKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		c.forget(ctx, key)
		return nil, false
	}
	if err != nil {
		c.logger.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	var item entity.WorkflowItem
	if err := json.Unmarshal(data, &item); err != nil {
		c.logger.Warn("Dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		c.Invalidate(ctx, key)
		return nil, false
	}
	return &item, true
}

// Put stores the item and moves it to the back of the eviction order
func (c *RedisCache) Put(ctx context.Context, key string, item *entity.WorkflowItem) {
	if item == nil {
		return
	}
	data, err := json.Marshal(item)
	if err != nil {
		c.logger.Warn("Cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}

	seq, err := c.client.Incr(ctx, c.seqKey()).Result()
	if err != nil {
		c.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
		return
	}

	stamp := float64(c.now().UnixMilli())
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.itemKey(key), data, c.ttl)
		pipe.ZAdd(ctx, c.indexKey(), redis.Z{Score: float64(seq), Member: key})
		pipe.ZAdd(ctx, c.stampKey(), redis.Z{Score: stamp, Member: key})
		return nil
	})
	if err != nil {
		c.logger.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
		return
	}

	c.evictOverflow(ctx)
}

// Invalidate removes one entry
func (c *RedisCache) Invalidate(ctx context.Context, key string) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, c.itemKey(key))
		pipe.ZRem(ctx, c.indexKey(), key)
		pipe.ZRem(ctx, c.stampKey(), key)
		return nil
	})
	if err != nil {
		c.logger.Warn("Cache invalidate failed", zap.String("key", key), zap.Error(err))
	}
}

// Clear removes every entry in the namespace
func (c *RedisCache) Clear(ctx context.Context) {
	keys, err := c.client.ZRange(ctx, c.indexKey(), 0, -1).Result()
	if err != nil {
		c.logger.Warn("Cache clear failed", zap.Error(err))
		return
	}

	toDelete := make([]string, 0, len(keys)+3)
	for _, k := range keys {
		toDelete = append(toDelete, c.itemKey(k))
	}
	toDelete = append(toDelete, c.indexKey(), c.stampKey(), c.seqKey())

	if err := c.client.Del(ctx, toDelete...).Err(); err != nil {
		c.logger.Warn("Cache clear failed", zap.Error(err))
	}
}

// Len counts live entries after dropping index members older than the TTL
func (c *RedisCache) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	if _, err := c.PurgeExpired(ctx); err != nil {
		c.logger.Warn("Cache purge failed", zap.Error(err))
	}
	n, err := c.client.ZCard(ctx, c.indexKey()).Result()
	if err != nil {
		c.logger.Warn("Cache size read failed", zap.Error(err))
		return 0
	}
	return int(n)
}

// PurgeExpired drops index members whose values have outlived the TTL.
// Redis already expired the values themselves.
func (c *RedisCache) PurgeExpired(ctx context.Context) (int, error) {
	cutoff := strconv.FormatInt(c.now().Add(-c.ttl).UnixMilli(), 10)
	expired, err := c.client.ZRangeByScore(ctx, c.stampKey(), &redis.ZRangeBy{Min: "-inf", Max: cutoff}).Result()
	if err != nil || len(expired) == 0 {
		return 0, err
	}

	members := make([]any, len(expired))
	for i, k := range expired {
		members[i] = k
	}
	var removed *redis.IntCmd
	_, err = c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.ZRem(ctx, c.indexKey(), members...)
		pipe.ZRem(ctx, c.stampKey(), members...)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(removed.Val()), nil
}

// Ping reports whether Redis is reachable
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) evictOverflow(ctx context.Context) {
	size, err := c.client.ZCard(ctx, c.indexKey()).Result()
	if err != nil || size <= int64(c.capacity) {
		return
	}

	evicted, err := c.client.ZPopMin(ctx, c.indexKey(), size-int64(c.capacity)).Result()
	if err != nil {
		c.logger.Warn("Cache eviction failed", zap.Error(err))
		return
	}
	keys := make([]string, 0, len(evicted))
	members := make([]any, 0, len(evicted))
	for _, z := range evicted {
		if member, ok := z.Member.(string); ok {
			keys = append(keys, c.itemKey(member))
			members = append(members, member)
		}
	}
	if len(keys) > 0 {
		c.client.Del(ctx, keys...)
		c.client.ZRem(ctx, c.stampKey(), members...)
	}
}

// forget drops a key from both indexes once its value is gone
func (c *RedisCache) forget(ctx context.Context, key string) {
	c.client.ZRem(ctx, c.indexKey(), key)
	c.client.ZRem(ctx, c.stampKey(), key)
}

func (c *RedisCache) itemKey(key string) string {
	return c.prefix + ":item:" + key
}

func (c *RedisCache) indexKey() string {
	return c.prefix + ":index"
}

func (c *RedisCache) stampKey() string {
	return c.prefix + ":stamps"
}

func (c *RedisCache) seqKey() string {
	return c.prefix + ":seq"
}
