package port

import (
	"context"

	"github.com/garyjia/record-workflow/internal/domain/entity"
)

// ItemCache is the read-through cache of item snapshots.
// Implementations store and return copies; callers never share memory with the cache.
type ItemCache interface {
	Get(ctx context.Context, key string) (*entity.WorkflowItem, bool)
	Put(ctx context.Context, key string, item *entity.WorkflowItem)
	Invalidate(ctx context.Context, key string)
	Clear(ctx context.Context)
	Len() int
}

// CacheKey builds the cache key of an item
func CacheKey(kind, id string) string {
	return kind + "/" + id
}
