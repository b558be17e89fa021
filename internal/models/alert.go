// Package models defines domain models for DataLens.
package models

import "time"

// Comparator is a relational operator applied between an observed metric
// and a configured threshold.
type Comparator string

const (
	ComparatorGT Comparator = ">"
	ComparatorLT Comparator = "<"
	ComparatorGE Comparator = ">="
	ComparatorLE Comparator = "<="
	ComparatorEQ Comparator = "="
	ComparatorNE Comparator = "!="
)

// Valid reports whether the comparator is one of the six supported operators.
func (c Comparator) Valid() bool {
	switch c {
	case ComparatorGT, ComparatorLT, ComparatorGE, ComparatorLE, ComparatorEQ, ComparatorNE:
		return true
	}
	return false
}

// Compare applies the comparator between metric and threshold.
// Equality comparators are exact; no epsilon is applied.
func (c Comparator) Compare(metric, threshold float64) bool {
	switch c {
	case ComparatorGT:
		return metric > threshold
	case ComparatorLT:
		return metric < threshold
	case ComparatorGE:
		return metric >= threshold
	case ComparatorLE:
		return metric <= threshold
	case ComparatorEQ:
		return metric == threshold
	case ComparatorNE:
		return metric != threshold
	}
	return false
}

// Channel is a notification transport for triggered alerts.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelChat  Channel = "chat"
	ChannelBoth  Channel = "both"
)

// Valid reports whether the channel is a supported notification method.
func (ch Channel) Valid() bool {
	switch ch {
	case ChannelEmail, ChannelChat, ChannelBoth:
		return true
	}
	return false
}

// Includes reports whether the channel fans out to the given single transport.
func (ch Channel) Includes(single Channel) bool {
	return ch == single || ch == ChannelBoth
}

// Alert represents a persisted alert definition owned by a single user.
type Alert struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Name          string     `json:"name"`
	Metric        string     `json:"metric"`
	Threshold     float64    `json:"threshold"`
	Comparator    Comparator `json:"comparator"`
	Channel       Channel    `json:"channel"`
	Query         string     `json:"query"`
	Active        bool       `json:"active"`
	LastChecked   *time.Time `json:"last_checked,omitempty"`
	LastTriggered *time.Time `json:"last_triggered,omitempty"`
	TriggerCount  int64      `json:"trigger_count"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NewAlert creates a new active Alert with an initialized timestamp.
func NewAlert(userID, name string) *Alert {
	return &Alert{
		UserID:    userID,
		Name:      name,
		Active:    true,
		CreatedAt: time.Now(),
	}
}
