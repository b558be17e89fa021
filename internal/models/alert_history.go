package models

import "time"

// AlertHistory records a single trigger of an alert. Records are append-only
// and removed only by cascade when the parent alert is deleted.
type AlertHistory struct {
	ID               string    `json:"id"`
	AlertID          string    `json:"alert_id"`
	TriggeredAt      time.Time `json:"triggered_at"`
	MetricValue      float64   `json:"metric_value"`
	ThresholdValue   float64   `json:"threshold_value"`
	Message          string    `json:"message"`
	NotificationSent bool      `json:"notification_sent"`
}
