package warehouse

import (
	"context"

	"github.com/datalens-dev/datalens/internal/cache"
	"github.com/datalens-dev/datalens/internal/models"
)

// CachingExecutor wraps an Executor with the query result cache. The safety
// limit is applied before the cache key is computed, so the cached text is
// the exact text the warehouse ran.
type CachingExecutor struct {
	exec    Executor
	cache   *cache.ResultCache
	maxRows int
}

// NewCachingExecutor wraps exec with results cached through rc.
func NewCachingExecutor(exec Executor, rc *cache.ResultCache, maxRows int) *CachingExecutor {
	if maxRows <= 0 {
		maxRows = 1000
	}
	return &CachingExecutor{exec: exec, cache: rc, maxRows: maxRows}
}

// Execute returns a cached result when one is live, otherwise executes the
// query and stores the result. Empty results are not cached.
func (c *CachingExecutor) Execute(ctx context.Context, query string) (*models.Result, error) {
	prepared, err := Prepare(query, c.maxRows)
	if err != nil {
		return nil, err
	}

	if result, ok := c.cache.Get(ctx, prepared); ok {
		return result, nil
	}

	result, err := c.exec.Execute(ctx, prepared)
	if err != nil {
		return nil, err
	}

	if result.RowCount() > 0 {
		c.cache.Put(ctx, prepared, result)
	}
	return result, nil
}
