package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/garyjia/record-workflow/internal/application/port"
	"github.com/garyjia/record-workflow/internal/domain/entity"
)

// Defaults used when options are not given
const (
	DefaultTTL      = 5 * time.Minute
	DefaultCapacity = 1000
)

type entry struct {
	key        string
	value      *entity.WorkflowItem
	insertedAt time.Time
}

// MemoryCache is a bounded TTL cache of item snapshots.
// Entries are visible while now-insertedAt < ttl. When the cache grows past
// capacity the entry inserted longest ago is evicted; reads do not refresh order.
type MemoryCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	now      func() time.Time
	order    *list.List
	entries  map[string]*list.Element
}

var _ port.ItemCache = (*MemoryCache)(nil)

// Option configures a MemoryCache
type Option func(*MemoryCache)

// WithTTL sets the entry lifetime
func WithTTL(ttl time.Duration) Option {
	return func(c *MemoryCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCapacity sets the maximum number of entries
func WithCapacity(n int) Option {
	return func(c *MemoryCache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(c *MemoryCache) {
		c.now = now
	}
}

// NewMemoryCache creates an empty cache
func NewMemoryCache(opts ...Option) *MemoryCache {
	c := &MemoryCache{
		ttl:      DefaultTTL,
		capacity: DefaultCapacity,
		now:      time.Now,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the cached value. Expired entries are removed on access.
func (c *MemoryCache) Get(_ context.Context, key string) (*entity.WorkflowItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if c.expired(e) {
		c.remove(el)
		return nil, false
	}
	return e.value.Clone(), true
}

// Put stores a copy of item. Overwriting restamps the entry and makes it the newest.
func (c *MemoryCache) Put(_ context.Context, key string, item *entity.WorkflowItem) {
	if item == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
	c.entries[key] = c.order.PushBack(&entry{
		key:        key,
		value:      item.Clone(),
		insertedAt: c.now(),
	})

	for c.order.Len() > c.capacity {
		c.remove(c.order.Front())
	}
}

// Invalidate drops one key
func (c *MemoryCache) Invalidate(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.remove(el)
	}
}

// Clear drops every entry
func (c *MemoryCache) Clear(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

// Len returns the number of stored entries, expired ones included until they are purged
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// PurgeExpired removes every expired entry and returns how many were removed
func (c *MemoryCache) PurgeExpired(_ context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	// Insertion order equals expiry order since every entry shares the same ttl
	for el := c.order.Front(); el != nil; {
		e := el.Value.(*entry)
		if !c.expired(e) {
			break
		}
		next := el.Next()
		c.remove(el)
		removed++
		el = next
	}
	return removed, nil
}

func (c *MemoryCache) expired(e *entry) bool {
	return c.now().Sub(e.insertedAt) >= c.ttl
}

func (c *MemoryCache) remove(el *list.Element) {
	e := c.order.Remove(el).(*entry)
	delete(c.entries, e.key)
}
