package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/datalens-dev/datalens/internal/models"
	"github.com/datalens-dev/datalens/internal/storage"
)

func setupCache(t *testing.T, config Config) (*ResultCache, storage.QueryCacheRepository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "datalens-cache-test-*")
	if err != nil {
		t.Fatalf("create temp dir: %v", err)
	}

	store := storage.NewSQLiteStorage(filepath.Join(tmpDir, "test.db"))
	if err := store.Open(); err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("open database: %v", err)
	}
	if err := store.Migrate(); err != nil {
		store.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("migrate database: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.RemoveAll(tmpDir)
	}
	return New(store.QueryCache(), config), store.QueryCache(), cleanup
}

func sampleResult(v float64) *models.Result {
	return &models.Result{
		Columns: []models.Column{
			{Name: "region", Type: models.ColumnTypeString},
			{Name: "total", Type: models.ColumnTypeNumeric},
		},
		Rows: [][]interface{}{{"emea", v}},
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	c, _, cleanup := setupCache(t, DefaultConfig())
	defer cleanup()
	ctx := context.Background()

	query := "SELECT region, SUM(amount) AS total FROM sales GROUP BY region LIMIT 1000"
	c.Put(ctx, query, sampleResult(42.5))

	got, ok := c.Get(ctx, query)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !got.Cached {
		t.Error("hit should be marked cached")
	}
	if len(got.Rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(got.Rows))
	}
	if v, ok := got.FirstNumeric(); !ok || v != 42.5 {
		t.Errorf("first numeric = %v (%v), want 42.5", v, ok)
	}
	if got.Columns[1].Type != models.ColumnTypeNumeric {
		t.Errorf("column type metadata lost: %v", got.Columns[1])
	}
}

func TestGetMissesOnAbsent(t *testing.T) {
	c, _, cleanup := setupCache(t, DefaultConfig())
	defer cleanup()

	if _, ok := c.Get(context.Background(), "SELECT 1"); ok {
		t.Error("expected miss for absent entry")
	}
}

func TestKeyIsExact(t *testing.T) {
	c, _, cleanup := setupCache(t, DefaultConfig())
	defer cleanup()
	ctx := context.Background()

	// Semantically identical, byte-different queries are distinct entries.
	c.Put(ctx, "SELECT 1", sampleResult(1))

	if _, ok := c.Get(ctx, "SELECT  1"); ok {
		t.Error("whitespace variant should miss")
	}
	if _, ok := c.Get(ctx, "SELECT 1 LIMIT 1000"); ok {
		t.Error("limit-suffixed variant should miss")
	}
	if _, ok := c.Get(ctx, "SELECT 1"); !ok {
		t.Error("exact query should hit")
	}
}

func TestTTLExpiry(t *testing.T) {
	c, repo, cleanup := setupCache(t, Config{TTL: time.Hour, MaxSize: 1000, EvictionSlack: 10})
	defer cleanup()
	ctx := context.Background()

	start := time.Now()
	c.PutAt(ctx, "SELECT 1", sampleResult(1), start)

	if _, ok := c.GetAt(ctx, "SELECT 1", start.Add(59*time.Minute)); !ok {
		t.Error("expected hit before TTL")
	}
	if _, ok := c.GetAt(ctx, "SELECT 1", start.Add(61*time.Minute)); ok {
		t.Error("expected miss after TTL")
	}

	// The row may remain physically stored until the next sweep.
	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 (row swept only on put maintenance)", count)
	}
}

func TestPutRefreshesExistingEntry(t *testing.T) {
	c, repo, cleanup := setupCache(t, DefaultConfig())
	defer cleanup()
	ctx := context.Background()

	start := time.Now()
	c.PutAt(ctx, "SELECT 1", sampleResult(1), start)
	c.PutAt(ctx, "SELECT 1", sampleResult(2), start.Add(30*time.Minute))

	count, _ := repo.Count(ctx)
	if count != 1 {
		t.Fatalf("count = %d, want 1 after re-put", count)
	}

	// The refresh extends the TTL from the second put.
	got, ok := c.GetAt(ctx, "SELECT 1", start.Add(80*time.Minute))
	if !ok {
		t.Fatal("expected hit after refresh")
	}
	if v, _ := got.FirstNumeric(); v != 2 {
		t.Errorf("metric = %v, want refreshed value 2", v)
	}
}

func TestSizeBoundEviction(t *testing.T) {
	config := Config{TTL: time.Hour, MaxSize: 20, EvictionSlack: 10}
	c, repo, cleanup := setupCache(t, config)
	defer cleanup()
	ctx := context.Background()

	now := time.Now()
	for i := 0; i < 50; i++ {
		q := fmt.Sprintf("SELECT %d", i)
		c.PutAt(ctx, q, sampleResult(float64(i)), now.Add(time.Duration(i)*time.Second))

		count, err := repo.Count(ctx)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if count > config.MaxSize+config.EvictionSlack-1 {
			t.Fatalf("after put %d: count = %d exceeds bound %d", i, count, config.MaxSize+config.EvictionSlack-1)
		}
	}

	// Eviction removes lowest last_accessed first; the most recent put
	// must survive.
	if _, ok := c.GetAt(ctx, "SELECT 49", now.Add(time.Minute)); !ok {
		t.Error("most recent entry evicted")
	}
	if _, ok := c.GetAt(ctx, "SELECT 0", now.Add(time.Minute)); ok {
		t.Error("oldest entry survived eviction")
	}
}

func TestHitUpdatesLRUBookkeeping(t *testing.T) {
	c, repo, cleanup := setupCache(t, DefaultConfig())
	defer cleanup()
	ctx := context.Background()

	now := time.Now()
	c.PutAt(ctx, "SELECT 1", sampleResult(1), now)
	c.GetAt(ctx, "SELECT 1", now.Add(time.Minute))
	c.GetAt(ctx, "SELECT 1", now.Add(2*time.Minute))

	stats, err := repo.Stats(ctx, now)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalAccesses != 2 {
		t.Errorf("total accesses = %d, want 2", stats.TotalAccesses)
	}
}

// failingRepo simulates a broken backing store.
type failingRepo struct{}

var errBroken = errors.New("storage offline")

func (f *failingRepo) Upsert(ctx context.Context, e *models.CacheEntry) error { return errBroken }
func (f *failingRepo) Lookup(ctx context.Context, hash string, now time.Time) (*models.CacheEntry, error) {
	return nil, errBroken
}
func (f *failingRepo) Touch(ctx context.Context, hash string, now time.Time) error { return errBroken }
func (f *failingRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, errBroken
}
func (f *failingRepo) Count(ctx context.Context) (int64, error) { return 0, errBroken }
func (f *failingRepo) EvictLRU(ctx context.Context, n int64) (int64, error) {
	return 0, errBroken
}
func (f *failingRepo) Stats(ctx context.Context, now time.Time) (*storage.CacheStats, error) {
	return nil, errBroken
}
func (f *failingRepo) Clear(ctx context.Context) (int64, error) { return 0, errBroken }

func TestStorageFaultsDegradeToMiss(t *testing.T) {
	c := New(&failingRepo{}, DefaultConfig())
	ctx := context.Background()

	// Neither path may panic or surface an error to the caller.
	c.Put(ctx, "SELECT 1", sampleResult(1))
	if _, ok := c.Get(ctx, "SELECT 1"); ok {
		t.Error("expected degraded miss")
	}
}
