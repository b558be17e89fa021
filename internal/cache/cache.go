// Package cache provides a TTL and size bounded cache of executed query
// results, keyed by a content hash of the exact query text.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/datalens-dev/datalens/internal/metrics"
	"github.com/datalens-dev/datalens/internal/models"
	"github.com/datalens-dev/datalens/internal/storage"
)

// Config holds cache tuning parameters.
type Config struct {
	// TTL is how long an entry stays valid after a put.
	TTL time.Duration
	// MaxSize is the maximum number of entries kept after maintenance.
	MaxSize int64
	// EvictionSlack is the buffer evicted below MaxSize so a cache at
	// capacity does not evict on every single insert.
	EvictionSlack int64
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		TTL:           time.Hour,
		MaxSize:       1000,
		EvictionSlack: 10,
	}
}

// ResultCache caches warehouse query results in the persistent store.
// Read-path faults degrade to misses and write-path faults are logged;
// neither ever fails the caller.
type ResultCache struct {
	repo   storage.QueryCacheRepository
	config Config
}

// New creates a ResultCache over the given repository.
func New(repo storage.QueryCacheRepository, config Config) *ResultCache {
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}
	if config.MaxSize <= 0 {
		config.MaxSize = 1000
	}
	if config.EvictionSlack <= 0 {
		config.EvictionSlack = 10
	}
	return &ResultCache{repo: repo, config: config}
}

// Key returns the cache key for a query: the hex sha256 of its exact bytes.
// No normalization is applied; queries differing in whitespace or an
// appended LIMIT clause are distinct entries.
func Key(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached result for the query, if present and unexpired.
func (c *ResultCache) Get(ctx context.Context, query string) (*models.Result, bool) {
	return c.GetAt(ctx, query, time.Now())
}

// GetAt is Get evaluated at a specific time (useful for testing).
func (c *ResultCache) GetAt(ctx context.Context, query string, now time.Time) (*models.Result, bool) {
	hash := Key(query)

	entry, err := c.repo.Lookup(ctx, hash, now)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("cache: degraded lookup for %s: %v", hash[:12], err)
			metrics.CacheErrorsTotal.WithLabelValues("lookup").Inc()
		}
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}

	// LRU bookkeeping; a failed touch does not invalidate the hit.
	if err := c.repo.Touch(ctx, hash, now); err != nil {
		log.Printf("cache: touch %s: %v", hash[:12], err)
		metrics.CacheErrorsTotal.WithLabelValues("touch").Inc()
	}

	var result models.Result
	if err := json.Unmarshal([]byte(entry.ResultData), &result); err != nil {
		log.Printf("cache: corrupt entry %s: %v", hash[:12], err)
		metrics.CacheErrorsTotal.WithLabelValues("decode").Inc()
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}

	result.Cached = true
	metrics.CacheHitsTotal.Inc()
	return &result, true
}

// Put stores the result for the query, replacing any previous entry for the
// same key, then runs maintenance: expired rows are swept and, if the cache
// exceeds MaxSize, the least recently accessed entries are evicted in one
// batch down to MaxSize - EvictionSlack.
func (c *ResultCache) Put(ctx context.Context, query string, result *models.Result) {
	c.PutAt(ctx, query, result, time.Now())
}

// PutAt is Put evaluated at a specific time (useful for testing).
func (c *ResultCache) PutAt(ctx context.Context, query string, result *models.Result, now time.Time) {
	data, err := json.Marshal(result)
	if err != nil {
		log.Printf("cache: encode result: %v", err)
		metrics.CacheErrorsTotal.WithLabelValues("encode").Inc()
		return
	}

	entry := &models.CacheEntry{
		ID:           uuid.New().String(),
		QueryHash:    Key(query),
		Query:        query,
		ResultData:   string(data),
		CreatedAt:    now,
		ExpiresAt:    now.Add(c.config.TTL),
		AccessCount:  0,
		LastAccessed: now,
	}

	if err := c.repo.Upsert(ctx, entry); err != nil {
		log.Printf("cache: store result: %v", err)
		metrics.CacheErrorsTotal.WithLabelValues("upsert").Inc()
		return
	}

	c.maintain(ctx, now)
}

// maintain sweeps expired rows and enforces the size bound.
func (c *ResultCache) maintain(ctx context.Context, now time.Time) {
	swept, err := c.repo.DeleteExpired(ctx, now)
	if err != nil {
		log.Printf("cache: sweep expired: %v", err)
		metrics.CacheErrorsTotal.WithLabelValues("sweep").Inc()
	} else if swept > 0 {
		metrics.CacheEvictionsTotal.WithLabelValues("expired").Add(float64(swept))
	}

	count, err := c.repo.Count(ctx)
	if err != nil {
		log.Printf("cache: count entries: %v", err)
		metrics.CacheErrorsTotal.WithLabelValues("count").Inc()
		return
	}
	if count <= c.config.MaxSize {
		return
	}

	evicted, err := c.repo.EvictLRU(ctx, count-c.config.MaxSize+c.config.EvictionSlack)
	if err != nil {
		log.Printf("cache: evict: %v", err)
		metrics.CacheErrorsTotal.WithLabelValues("evict").Inc()
		return
	}
	metrics.CacheEvictionsTotal.WithLabelValues("lru").Add(float64(evicted))
}

// Stats returns aggregate cache counters.
func (c *ResultCache) Stats(ctx context.Context) (*storage.CacheStats, error) {
	return c.repo.Stats(ctx, time.Now())
}

// Clear purges every cache entry and returns the number removed.
func (c *ResultCache) Clear(ctx context.Context) (int64, error) {
	return c.repo.Clear(ctx)
}
