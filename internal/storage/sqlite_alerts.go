package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/datalens-dev/datalens/internal/models"
)

const alertColumns = `id, user_id, name, metric, threshold, comparator, channel,
	query, active, last_checked, last_triggered, trigger_count, created_at`

type sqliteAlertRepo struct {
	db *sql.DB
}

func (r *sqliteAlertRepo) Create(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT INTO alerts (id, user_id, name, metric, threshold, comparator, channel,
			query, active, last_checked, last_triggered, trigger_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		alert.ID, alert.UserID, alert.Name, alert.Metric, alert.Threshold,
		string(alert.Comparator), string(alert.Channel), alert.Query,
		boolToInt(alert.Active), nullTime(alert.LastChecked), nullTime(alert.LastTriggered),
		alert.TriggerCount, alert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (r *sqliteAlertRepo) GetByID(ctx context.Context, id, userID string) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = ? AND user_id = ?`
	alert, err := scanAlert(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		return nil, err
	}
	return alert, nil
}

func (r *sqliteAlertRepo) ListByUser(ctx context.Context, userID string) ([]*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE user_id = ? ORDER BY created_at DESC`
	return r.queryAlerts(ctx, query, userID)
}

func (r *sqliteAlertRepo) ListActive(ctx context.Context) ([]*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE active = 1 ORDER BY created_at`
	return r.queryAlerts(ctx, query)
}

func (r *sqliteAlertRepo) Update(ctx context.Context, alert *models.Alert) error {
	query := `
		UPDATE alerts SET name = ?, metric = ?, threshold = ?, comparator = ?,
			channel = ?, query = ?, active = ?
		WHERE id = ? AND user_id = ?
	`
	result, err := r.db.ExecContext(ctx, query,
		alert.Name, alert.Metric, alert.Threshold, string(alert.Comparator),
		string(alert.Channel), alert.Query, boolToInt(alert.Active),
		alert.ID, alert.UserID,
	)
	if err != nil {
		return fmt.Errorf("update alert: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteAlertRepo) Delete(ctx context.Context, id, userID string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM alerts WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteAlertRepo) StampChecked(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, "UPDATE alerts SET last_checked = ? WHERE id = ?", at, id)
	if err != nil {
		return fmt.Errorf("stamp last_checked: %w", err)
	}
	return nil
}

func (r *sqliteAlertRepo) queryAlerts(ctx context.Context, query string, args ...interface{}) ([]*models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAlert(row scanner) (*models.Alert, error) {
	alert := &models.Alert{}
	var comparator, channel string
	var active int
	var lastChecked, lastTriggered sql.NullTime

	err := row.Scan(
		&alert.ID, &alert.UserID, &alert.Name, &alert.Metric, &alert.Threshold,
		&comparator, &channel, &alert.Query, &active,
		&lastChecked, &lastTriggered, &alert.TriggerCount, &alert.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan alert: %w", err)
	}

	alert.Comparator = models.Comparator(comparator)
	alert.Channel = models.Channel(channel)
	alert.Active = active != 0
	if lastChecked.Valid {
		alert.LastChecked = &lastChecked.Time
	}
	if lastTriggered.Valid {
		alert.LastTriggered = &lastTriggered.Time
	}

	return alert, nil
}

// Helper functions

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
