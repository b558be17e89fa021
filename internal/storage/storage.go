// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/datalens-dev/datalens/internal/models"
)

// ErrNotFound is returned when a requested row does not exist or is not
// visible to the requesting owner.
var ErrNotFound = errors.New("not found")

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	Alerts() AlertRepository
	AlertHistory() AlertHistoryRepository
	QueryCache() QueryCacheRepository
}

// AlertRepository defines operations for alert definitions. All reads and
// mutations except ListActive and StampChecked are scoped to the owning user.
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id, userID string) (*models.Alert, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Alert, error)
	ListActive(ctx context.Context) ([]*models.Alert, error)
	Update(ctx context.Context, alert *models.Alert) error
	Delete(ctx context.Context, id, userID string) error
	// StampChecked sets last_checked regardless of evaluation outcome.
	StampChecked(ctx context.Context, id string, at time.Time) error
}

// AlertHistoryRepository defines operations for the append-only trigger log.
type AlertHistoryRepository interface {
	// RecordTrigger inserts the history record and advances the parent
	// alert's last_triggered/trigger_count in a single transaction.
	RecordTrigger(ctx context.Context, h *models.AlertHistory) error
	ListByAlert(ctx context.Context, alertID string, limit int) ([]*models.AlertHistory, error)
	CountByAlert(ctx context.Context, alertID string) (int64, error)
}

// QueryCacheRepository defines operations for cached query results.
// Keys are content hashes of the exact query text; the backing store's
// unique index on query_hash guarantees at most one live entry per key.
type QueryCacheRepository interface {
	// Upsert replaces any existing entry for the same hash atomically.
	Upsert(ctx context.Context, e *models.CacheEntry) error
	// Lookup returns the entry for hash if it exists and has not expired
	// at the given time. Expired or absent entries return ErrNotFound.
	Lookup(ctx context.Context, hash string, now time.Time) (*models.CacheEntry, error)
	// Touch increments access_count and refreshes last_accessed.
	Touch(ctx context.Context, hash string, now time.Time) error
	// DeleteExpired removes all rows whose expires_at <= now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// Count returns the number of stored entries.
	Count(ctx context.Context) (int64, error)
	// EvictLRU deletes the n entries with the lowest last_accessed.
	EvictLRU(ctx context.Context, n int64) (int64, error)
	// Stats returns aggregate cache counters.
	Stats(ctx context.Context, now time.Time) (*CacheStats, error)
	// Clear removes all entries.
	Clear(ctx context.Context) (int64, error)
}

// CacheStats holds aggregate counts over the cache table.
type CacheStats struct {
	Entries       int64 `json:"entries"`
	Expired       int64 `json:"expired"`
	TotalAccesses int64 `json:"total_accesses"`
}
