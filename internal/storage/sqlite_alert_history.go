package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/datalens-dev/datalens/internal/models"
)

type sqliteAlertHistoryRepo struct {
	db *sql.DB
}

// RecordTrigger writes the history record and advances the parent alert's
// trigger bookkeeping in one transaction, so trigger_count cannot drift
// from the history log under partial failure.
func (r *sqliteAlertHistoryRepo) RecordTrigger(ctx context.Context, h *models.AlertHistory) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin trigger transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO alert_history (id, alert_id, triggered_at, metric_value,
			threshold_value, message, notification_sent)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		h.ID, h.AlertID, h.TriggeredAt, h.MetricValue,
		h.ThresholdValue, h.Message, boolToInt(h.NotificationSent),
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert alert history: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE alerts SET last_triggered = ?, trigger_count = trigger_count + 1
		WHERE id = ?
	`, h.TriggeredAt, h.AlertID)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("update trigger bookkeeping: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		tx.Rollback()
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trigger transaction: %w", err)
	}
	return nil
}

func (r *sqliteAlertHistoryRepo) ListByAlert(ctx context.Context, alertID string, limit int) ([]*models.AlertHistory, error) {
	query := `
		SELECT id, alert_id, triggered_at, metric_value, threshold_value,
			message, notification_sent
		FROM alert_history WHERE alert_id = ? ORDER BY triggered_at DESC LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, alertID, limit)
	if err != nil {
		return nil, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	var histories []*models.AlertHistory
	for rows.Next() {
		h := &models.AlertHistory{}
		var message sql.NullString
		var sent int
		err := rows.Scan(&h.ID, &h.AlertID, &h.TriggeredAt, &h.MetricValue,
			&h.ThresholdValue, &message, &sent)
		if err != nil {
			return nil, fmt.Errorf("scan alert history: %w", err)
		}
		h.Message = message.String
		h.NotificationSent = sent != 0
		histories = append(histories, h)
	}
	return histories, rows.Err()
}

func (r *sqliteAlertHistoryRepo) CountByAlert(ctx context.Context, alertID string) (int64, error) {
	var total int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM alert_history WHERE alert_id = ?", alertID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count alert history: %w", err)
	}
	return total, nil
}
