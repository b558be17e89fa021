package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/datalens-dev/datalens/internal/models"
)

type sqliteQueryCacheRepo struct {
	db *sql.DB
}

// Upsert relies on the unique index on query_hash: SQLite's native upsert
// keeps at most one live entry per key even under concurrent writers.
func (r *sqliteQueryCacheRepo) Upsert(ctx context.Context, e *models.CacheEntry) error {
	query := `
		INSERT INTO query_cache (id, query_hash, query, result_data,
			created_at, expires_at, access_count, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(query_hash) DO UPDATE SET
			query = excluded.query,
			result_data = excluded.result_data,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			access_count = excluded.access_count,
			last_accessed = excluded.last_accessed
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.QueryHash, e.Query, e.ResultData,
		e.CreatedAt, e.ExpiresAt, e.AccessCount, e.LastAccessed,
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

func (r *sqliteQueryCacheRepo) Lookup(ctx context.Context, hash string, now time.Time) (*models.CacheEntry, error) {
	query := `
		SELECT id, query_hash, query, result_data, created_at, expires_at,
			access_count, last_accessed
		FROM query_cache WHERE query_hash = ? AND expires_at > ?
	`
	e := &models.CacheEntry{}
	err := r.db.QueryRowContext(ctx, query, hash, now).Scan(
		&e.ID, &e.QueryHash, &e.Query, &e.ResultData, &e.CreatedAt, &e.ExpiresAt,
		&e.AccessCount, &e.LastAccessed,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup cache entry: %w", err)
	}
	return e, nil
}

func (r *sqliteQueryCacheRepo) Touch(ctx context.Context, hash string, now time.Time) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE query_cache SET access_count = access_count + 1, last_accessed = ? WHERE query_hash = ?",
		now, hash,
	)
	if err != nil {
		return fmt.Errorf("touch cache entry: %w", err)
	}
	return nil
}

func (r *sqliteQueryCacheRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM query_cache WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("delete expired cache entries: %w", err)
	}
	return result.RowsAffected()
}

func (r *sqliteQueryCacheRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM query_cache").Scan(&count); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return count, nil
}

// EvictLRU removes the n least recently accessed entries in one batched
// delete rather than repeated single-row sweeps.
func (r *sqliteQueryCacheRepo) EvictLRU(ctx context.Context, n int64) (int64, error) {
	query := `
		DELETE FROM query_cache WHERE id IN (
			SELECT id FROM query_cache ORDER BY last_accessed ASC LIMIT ?
		)
	`
	result, err := r.db.ExecContext(ctx, query, n)
	if err != nil {
		return 0, fmt.Errorf("evict cache entries: %w", err)
	}
	return result.RowsAffected()
}

func (r *sqliteQueryCacheRepo) Stats(ctx context.Context, now time.Time) (*CacheStats, error) {
	stats := &CacheStats{}
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(access_count), 0)
		FROM query_cache
	`
	err := r.db.QueryRowContext(ctx, query, now).Scan(&stats.Entries, &stats.Expired, &stats.TotalAccesses)
	if err != nil {
		return nil, fmt.Errorf("cache stats: %w", err)
	}
	return stats, nil
}

func (r *sqliteQueryCacheRepo) Clear(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM query_cache")
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return result.RowsAffected()
}
