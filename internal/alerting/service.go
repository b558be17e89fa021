// Package alerting manages alert definitions and evaluates them against
// the analytics warehouse.
package alerting

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/datalens-dev/datalens/internal/models"
	"github.com/datalens-dev/datalens/internal/storage"
	"github.com/datalens-dev/datalens/internal/warehouse"
)

// ValidationError describes a rejected alert definition.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid alert %s: %s", e.Field, e.Reason)
}

// AlertUpdate carries the fields of an alert that may change after creation.
// Nil fields are left untouched.
type AlertUpdate struct {
	Name       *string
	Metric     *string
	Threshold  *float64
	Comparator *models.Comparator
	Channel    *models.Channel
	Query      *string
	Active     *bool
}

// Service manages alert definitions on top of the storage layer.
type Service struct {
	store storage.Storage
}

// NewService creates an alert definition service.
func NewService(store storage.Storage) *Service {
	return &Service{store: store}
}

// validateAlert checks an alert definition before it is persisted.
func validateAlert(alert *models.Alert) error {
	if strings.TrimSpace(alert.Name) == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if alert.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if !alert.Comparator.Valid() {
		return &ValidationError{Field: "comparator", Reason: fmt.Sprintf("unknown comparator %q", alert.Comparator)}
	}
	if !alert.Channel.Valid() {
		return &ValidationError{Field: "channel", Reason: fmt.Sprintf("unknown channel %q", alert.Channel)}
	}
	if strings.TrimSpace(alert.Query) == "" {
		return &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if err := warehouse.Validate(alert.Query); err != nil {
		return &ValidationError{Field: "query", Reason: err.Error()}
	}
	return nil
}

// Create validates and persists a new alert definition.
func (s *Service) Create(ctx context.Context, alert *models.Alert) error {
	if err := validateAlert(alert); err != nil {
		return err
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	return s.store.Alerts().Create(ctx, alert)
}

// Get returns an alert owned by the given user.
func (s *Service) Get(ctx context.Context, id, userID string) (*models.Alert, error) {
	return s.store.Alerts().GetByID(ctx, id, userID)
}

// List returns all alerts owned by the given user.
func (s *Service) List(ctx context.Context, userID string) ([]*models.Alert, error) {
	return s.store.Alerts().ListByUser(ctx, userID)
}

// Update applies a partial update to an alert owned by the given user.
// The merged definition is re-validated before it is persisted.
func (s *Service) Update(ctx context.Context, id, userID string, update AlertUpdate) (*models.Alert, error) {
	alert, err := s.store.Alerts().GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	if update.Name != nil {
		alert.Name = *update.Name
	}
	if update.Metric != nil {
		alert.Metric = *update.Metric
	}
	if update.Threshold != nil {
		alert.Threshold = *update.Threshold
	}
	if update.Comparator != nil {
		alert.Comparator = *update.Comparator
	}
	if update.Channel != nil {
		alert.Channel = *update.Channel
	}
	if update.Query != nil {
		alert.Query = *update.Query
	}
	if update.Active != nil {
		alert.Active = *update.Active
	}

	if err := validateAlert(alert); err != nil {
		return nil, err
	}
	if err := s.store.Alerts().Update(ctx, alert); err != nil {
		return nil, err
	}
	return alert, nil
}

// Delete removes an alert owned by the given user. Its history rows are
// removed with it.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	return s.store.Alerts().Delete(ctx, id, userID)
}

// History returns the most recent trigger records for an alert owned by
// the given user.
func (s *Service) History(ctx context.Context, id, userID string, limit int) ([]*models.AlertHistory, error) {
	// Ownership check before exposing history rows.
	if _, err := s.store.Alerts().GetByID(ctx, id, userID); err != nil {
		return nil, err
	}
	return s.store.AlertHistory().ListByAlert(ctx, id, limit)
}
