package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/datalens-dev/datalens/internal/models"
	"github.com/datalens-dev/datalens/internal/warehouse"
)

// Outcome is the result of evaluating one alert's query against the warehouse.
type Outcome struct {
	// Triggered reports whether the comparison held.
	Triggered bool
	// MetricValue is the extracted metric. Zero when NoData is set.
	MetricValue float64
	// NoData is set when the query returned no rows or no numeric column,
	// which never triggers.
	NoData bool
}

// Evaluator runs a single alert's query and compares the extracted metric
// against the alert's threshold.
type Evaluator struct {
	exec warehouse.Executor
}

// NewEvaluator creates an evaluator on top of a warehouse executor.
func NewEvaluator(exec warehouse.Executor) *Evaluator {
	return &Evaluator{exec: exec}
}

// Evaluate runs the alert's query and compares the result.
// Query errors are returned as-is; a transient warehouse error is
// distinguishable via warehouse.IsTransient.
func (e *Evaluator) Evaluate(ctx context.Context, alert *models.Alert) (Outcome, error) {
	result, err := e.exec.Execute(ctx, alert.Query)
	if err != nil {
		return Outcome{}, fmt.Errorf("evaluate alert %s: %w", alert.ID, err)
	}

	metric, ok := result.FirstNumeric()
	if !ok {
		return Outcome{NoData: true}, nil
	}

	return Outcome{
		Triggered:   alert.Comparator.Compare(metric, alert.Threshold),
		MetricValue: metric,
	}, nil
}

// Result is the per-alert record produced by a batch check run.
type Result struct {
	AlertID     string
	AlertName   string
	Triggered   bool
	NoData      bool
	MetricValue float64
	Sent        bool
	CheckedAt   time.Time
	Err         error
}
