package alerting

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/datalens-dev/datalens/internal/metrics"
	"github.com/datalens-dev/datalens/internal/models"
	"github.com/datalens-dev/datalens/internal/notifier"
	"github.com/datalens-dev/datalens/internal/storage"
)

// DefaultConcurrency bounds how many alerts a batch run evaluates at once.
const DefaultConcurrency = 5

// Dispatcher sends a rendered notification over the channels an alert names.
// Satisfied by notifier.Dispatcher.
type Dispatcher interface {
	Send(ctx context.Context, channel models.Channel, msg *notifier.Message) bool
}

// BatchResult summarizes one run over all active alerts.
type BatchResult struct {
	CheckedCount   int
	TriggeredCount int
	ErrorCount     int
	Results        []Result
}

// Checker evaluates active alerts against the warehouse and dispatches
// notifications for the ones that trigger. It is driven by an external
// scheduler and holds no timer of its own.
type Checker struct {
	store       storage.Storage
	evaluator   *Evaluator
	dispatcher  Dispatcher
	concurrency int

	now func() time.Time
}

// NewChecker creates a batch alert checker.
func NewChecker(store storage.Storage, evaluator *Evaluator, dispatcher Dispatcher, concurrency int) *Checker {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Checker{
		store:       store,
		evaluator:   evaluator,
		dispatcher:  dispatcher,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// CheckAll evaluates every active alert with bounded concurrency.
// One alert failing never stops the others; its error lands in its Result.
func (c *Checker) CheckAll(ctx context.Context) (*BatchResult, error) {
	alerts, err := c.store.Alerts().ListActive(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(alerts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, alert := range alerts {
		i, alert := i, alert
		g.Go(func() error {
			results[i] = c.checkOne(ctx, alert)
			return nil
		})
	}
	g.Wait()

	batch := &BatchResult{Results: results}
	for i := range results {
		batch.CheckedCount++
		if results[i].Err != nil {
			batch.ErrorCount++
		}
		if results[i].Triggered {
			batch.TriggeredCount++
		}
	}
	return batch, nil
}

// CheckOne evaluates a single alert owned by the given user, regardless of
// its active flag. Used for on-demand testing of a definition.
func (c *Checker) CheckOne(ctx context.Context, id, userID string) (*Result, error) {
	alert, err := c.store.Alerts().GetByID(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	result := c.checkOne(ctx, alert)
	return &result, nil
}

// checkOne runs the full pipeline for one alert: stamp, evaluate, and on
// trigger notify and record.
func (c *Checker) checkOne(ctx context.Context, alert *models.Alert) Result {
	now := c.now()
	result := Result{
		AlertID:   alert.ID,
		AlertName: alert.Name,
		CheckedAt: now,
	}

	metrics.AlertsCheckedTotal.Inc()

	// The check happened whether or not the evaluation succeeds.
	if err := c.store.Alerts().StampChecked(ctx, alert.ID, now); err != nil {
		log.Printf("alerting: stamp last_checked for %s: %v", alert.ID, err)
	}

	outcome, err := c.evaluator.Evaluate(ctx, alert)
	if err != nil {
		log.Printf("alerting: evaluate %s (%s): %v", alert.ID, alert.Name, err)
		metrics.AlertErrorsTotal.Inc()
		result.Err = err
		return result
	}

	result.NoData = outcome.NoData
	result.MetricValue = outcome.MetricValue
	result.Triggered = outcome.Triggered

	if !outcome.Triggered {
		return result
	}

	metrics.AlertsTriggeredTotal.Inc()

	msg := renderMessage(alert, outcome.MetricValue, now)
	result.Sent = c.dispatcher.Send(ctx, alert.Channel, msg)

	history := &models.AlertHistory{
		ID:               uuid.NewString(),
		AlertID:          alert.ID,
		TriggeredAt:      now,
		MetricValue:      outcome.MetricValue,
		ThresholdValue:   alert.Threshold,
		Message:          msg.Body,
		NotificationSent: result.Sent,
	}
	if err := c.store.AlertHistory().RecordTrigger(ctx, history); err != nil {
		log.Printf("alerting: record trigger for %s: %v", alert.ID, err)
		metrics.AlertErrorsTotal.Inc()
		result.Err = err
	}

	return result
}
