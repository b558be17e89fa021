package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Alert definitions table
			CREATE TABLE IF NOT EXISTS alerts (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				name TEXT NOT NULL,
				metric TEXT NOT NULL,
				threshold REAL NOT NULL,
				comparator TEXT NOT NULL CHECK (comparator IN ('>', '<', '>=', '<=', '=', '!=')),
				channel TEXT NOT NULL CHECK (channel IN ('email', 'chat', 'both')),
				query TEXT NOT NULL,
				active INTEGER NOT NULL DEFAULT 1,
				last_checked DATETIME,
				last_triggered DATETIME,
				trigger_count INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL
			);

			-- Alert history table (append-only, removed only by cascade)
			CREATE TABLE IF NOT EXISTS alert_history (
				id TEXT PRIMARY KEY,
				alert_id TEXT NOT NULL,
				triggered_at DATETIME NOT NULL,
				metric_value REAL NOT NULL,
				threshold_value REAL NOT NULL,
				message TEXT,
				notification_sent INTEGER NOT NULL DEFAULT 0,
				FOREIGN KEY (alert_id) REFERENCES alerts(id) ON DELETE CASCADE
			);

			-- Query result cache table
			CREATE TABLE IF NOT EXISTS query_cache (
				id TEXT PRIMARY KEY,
				query_hash TEXT UNIQUE NOT NULL,
				query TEXT NOT NULL,
				result_data TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				access_count INTEGER NOT NULL DEFAULT 0,
				last_accessed DATETIME NOT NULL
			);

			-- Indexes
			CREATE INDEX IF NOT EXISTS idx_alerts_user ON alerts(user_id);
			CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts(active);
			CREATE INDEX IF NOT EXISTS idx_history_alert ON alert_history(alert_id);
			CREATE INDEX IF NOT EXISTS idx_cache_hash ON query_cache(query_hash);
			CREATE INDEX IF NOT EXISTS idx_cache_expires ON query_cache(expires_at);
			CREATE INDEX IF NOT EXISTS idx_cache_accessed ON query_cache(last_accessed);
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	// Apply pending migrations
	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		// Run migration in transaction
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		_, err = tx.Exec(m.Up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
