package alerting

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/datalens-dev/datalens/internal/models"
	"github.com/datalens-dev/datalens/internal/notifier"
	"github.com/datalens-dev/datalens/internal/storage"
)

func setupStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err := store.Open(); err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store
}

// fakeExec returns canned metric values (or errors) per query text.
type fakeExec struct {
	mu     sync.Mutex
	values map[string]float64
	errs   map[string]error
	calls  int
}

func newFakeExec() *fakeExec {
	return &fakeExec{
		values: make(map[string]float64),
		errs:   make(map[string]error),
	}
}

func (f *fakeExec) Execute(ctx context.Context, query string) (*models.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++

	if err, ok := f.errs[query]; ok {
		return nil, err
	}
	if v, ok := f.values[query]; ok {
		return &models.Result{
			Columns: []models.Column{{Name: "value", Type: models.ColumnTypeNumeric}},
			Rows:    [][]interface{}{{v}},
			Query:   query,
		}, nil
	}
	// Unknown query yields an empty result set.
	return &models.Result{
		Columns: []models.Column{{Name: "value", Type: models.ColumnTypeNumeric}},
		Query:   query,
	}, nil
}

// fakeDispatcher records sends and returns a configurable outcome.
type fakeDispatcher struct {
	mu       sync.Mutex
	sent     bool
	channels []models.Channel
	bodies   []string
}

func (f *fakeDispatcher) Send(ctx context.Context, channel models.Channel, msg *notifier.Message) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	f.bodies = append(f.bodies, msg.Body)
	return f.sent
}

func testAlert(userID, name, query string, threshold float64, cmp models.Comparator) *models.Alert {
	a := models.NewAlert(userID, name)
	a.ID = uuid.NewString()
	a.Metric = "value"
	a.Query = query
	a.Threshold = threshold
	a.Comparator = cmp
	a.Channel = models.ChannelEmail
	return a
}

func setupChecker(t *testing.T, exec *fakeExec, dispatcher *fakeDispatcher) (*Checker, *storage.SQLiteStorage) {
	t.Helper()
	store := setupStore(t)
	checker := NewChecker(store, NewEvaluator(exec), dispatcher, 3)
	return checker, store
}

func TestEvaluateComparators(t *testing.T) {
	tests := []struct {
		name      string
		cmp       models.Comparator
		metric    float64
		threshold float64
		want      bool
	}{
		{"gt above", models.ComparatorGT, 5, 3, true},
		{"gt equal", models.ComparatorGT, 3, 3, false},
		{"lt below", models.ComparatorLT, 1, 3, true},
		{"ge equal", models.ComparatorGE, 3, 3, true},
		{"le above", models.ComparatorLE, 4, 3, false},
		{"eq exact", models.ComparatorEQ, 3, 3, true},
		{"eq near miss", models.ComparatorEQ, 2.9999999, 3, false},
		{"ne exact", models.ComparatorNE, 3, 3, false},
		{"ne near miss", models.ComparatorNE, 2.9999999, 3, true},
	}

	exec := newFakeExec()
	evaluator := NewEvaluator(exec)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query := "SELECT " + tt.name
			exec.values[query] = tt.metric
			alert := testAlert("u1", tt.name, query, tt.threshold, tt.cmp)

			outcome, err := evaluator.Evaluate(context.Background(), alert)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if outcome.Triggered != tt.want {
				t.Errorf("Triggered = %v, want %v", outcome.Triggered, tt.want)
			}
			if outcome.MetricValue != tt.metric {
				t.Errorf("MetricValue = %v, want %v", outcome.MetricValue, tt.metric)
			}
		})
	}
}

func TestEvaluateNoData(t *testing.T) {
	exec := newFakeExec()
	evaluator := NewEvaluator(exec)
	alert := testAlert("u1", "empty", "SELECT nothing", 3, models.ComparatorGT)

	outcome, err := evaluator.Evaluate(context.Background(), alert)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !outcome.NoData {
		t.Error("expected NoData for empty result")
	}
	if outcome.Triggered {
		t.Error("no data must never trigger")
	}
	if outcome.MetricValue != 0 {
		t.Errorf("MetricValue = %v, want 0", outcome.MetricValue)
	}
}

func TestEvaluateNoNumericColumn(t *testing.T) {
	exec := &stringExec{}
	evaluator := NewEvaluator(exec)
	alert := testAlert("u1", "strings", "SELECT name", 3, models.ComparatorGT)

	outcome, err := evaluator.Evaluate(context.Background(), alert)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !outcome.NoData {
		t.Error("expected NoData when no numeric column exists")
	}
}

// stringExec returns a row with only string columns.
type stringExec struct{}

func (s *stringExec) Execute(ctx context.Context, query string) (*models.Result, error) {
	return &models.Result{
		Columns: []models.Column{{Name: "name", Type: models.ColumnTypeString}},
		Rows:    [][]interface{}{{"widgets"}},
		Query:   query,
	}, nil
}

func TestCheckAllIsolatesFailures(t *testing.T) {
	exec := newFakeExec()
	exec.values["SELECT a"] = 10
	exec.errs["SELECT b"] = errors.New("warehouse unreachable")
	exec.values["SELECT c"] = 1

	dispatcher := &fakeDispatcher{sent: true}
	checker, store := setupChecker(t, exec, dispatcher)

	ctx := context.Background()
	for _, a := range []*models.Alert{
		testAlert("u1", "a", "SELECT a", 5, models.ComparatorGT),
		testAlert("u1", "b", "SELECT b", 5, models.ComparatorGT),
		testAlert("u1", "c", "SELECT c", 5, models.ComparatorGT),
	} {
		if err := store.Alerts().Create(ctx, a); err != nil {
			t.Fatalf("create alert: %v", err)
		}
	}

	batch, err := checker.CheckAll(ctx)
	if err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}

	if batch.CheckedCount != 3 {
		t.Errorf("CheckedCount = %d, want 3", batch.CheckedCount)
	}
	if batch.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", batch.ErrorCount)
	}
	if batch.TriggeredCount != 1 {
		t.Errorf("TriggeredCount = %d, want 1", batch.TriggeredCount)
	}
}

func TestCheckAllStampsCheckedOnError(t *testing.T) {
	exec := newFakeExec()
	exec.errs["SELECT b"] = errors.New("warehouse unreachable")

	dispatcher := &fakeDispatcher{sent: true}
	checker, store := setupChecker(t, exec, dispatcher)

	ctx := context.Background()
	alert := testAlert("u1", "b", "SELECT b", 5, models.ComparatorGT)
	if err := store.Alerts().Create(ctx, alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}

	if _, err := checker.CheckAll(ctx); err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}

	got, err := store.Alerts().GetByID(ctx, alert.ID, "u1")
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if got.LastChecked == nil {
		t.Error("expected last_checked stamped even when evaluation fails")
	}
	if got.LastTriggered != nil {
		t.Error("failed evaluation must not set last_triggered")
	}
}

func TestCheckAllSkipsInactive(t *testing.T) {
	exec := newFakeExec()
	exec.values["SELECT a"] = 10

	dispatcher := &fakeDispatcher{sent: true}
	checker, store := setupChecker(t, exec, dispatcher)

	ctx := context.Background()
	alert := testAlert("u1", "a", "SELECT a", 5, models.ComparatorGT)
	alert.Active = false
	if err := store.Alerts().Create(ctx, alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}

	batch, err := checker.CheckAll(ctx)
	if err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}
	if batch.CheckedCount != 0 {
		t.Errorf("CheckedCount = %d, want 0", batch.CheckedCount)
	}
	if exec.calls != 0 {
		t.Errorf("executor calls = %d, want 0", exec.calls)
	}
}

func TestTriggerRecordsHistoryAndCount(t *testing.T) {
	exec := newFakeExec()
	exec.values["SELECT a"] = 10

	dispatcher := &fakeDispatcher{sent: true}
	checker, store := setupChecker(t, exec, dispatcher)

	ctx := context.Background()
	alert := testAlert("u1", "a", "SELECT a", 5, models.ComparatorGT)
	if err := store.Alerts().Create(ctx, alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}

	// Two runs, two triggers.
	for i := 0; i < 2; i++ {
		if _, err := checker.CheckAll(ctx); err != nil {
			t.Fatalf("CheckAll() error = %v", err)
		}
	}

	got, err := store.Alerts().GetByID(ctx, alert.ID, "u1")
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if got.TriggerCount != 2 {
		t.Errorf("TriggerCount = %d, want 2", got.TriggerCount)
	}
	if got.LastTriggered == nil {
		t.Error("expected last_triggered set")
	}

	history, err := store.AlertHistory().ListByAlert(ctx, alert.ID, 10)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("history rows = %d, want 2", len(history))
	}
	if history[0].MetricValue != 10 || history[0].ThresholdValue != 5 {
		t.Errorf("history values = (%v, %v), want (10, 5)", history[0].MetricValue, history[0].ThresholdValue)
	}
	if !history[0].NotificationSent {
		t.Error("expected notification_sent recorded as true")
	}
	if history[0].Message == "" {
		t.Error("expected rendered message stored in history")
	}
}

func TestTriggerRecordsFailedNotification(t *testing.T) {
	exec := newFakeExec()
	exec.values["SELECT a"] = 10

	dispatcher := &fakeDispatcher{sent: false}
	checker, store := setupChecker(t, exec, dispatcher)

	ctx := context.Background()
	alert := testAlert("u1", "a", "SELECT a", 5, models.ComparatorGT)
	alert.Channel = models.ChannelBoth
	if err := store.Alerts().Create(ctx, alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}

	batch, err := checker.CheckAll(ctx)
	if err != nil {
		t.Fatalf("CheckAll() error = %v", err)
	}
	// Notification failure never suppresses the trigger record.
	if batch.TriggeredCount != 1 {
		t.Errorf("TriggeredCount = %d, want 1", batch.TriggeredCount)
	}
	if batch.Results[0].Sent {
		t.Error("expected Sent=false when dispatch fails")
	}

	history, err := store.AlertHistory().ListByAlert(ctx, alert.ID, 10)
	if err != nil {
		t.Fatalf("list history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("history rows = %d, want 1", len(history))
	}
	if history[0].NotificationSent {
		t.Error("expected notification_sent recorded as false")
	}
	if len(dispatcher.channels) != 1 || dispatcher.channels[0] != models.ChannelBoth {
		t.Errorf("dispatched channels = %v, want [both]", dispatcher.channels)
	}
}

func TestCheckOneIgnoresActiveFlag(t *testing.T) {
	exec := newFakeExec()
	exec.values["SELECT a"] = 10

	dispatcher := &fakeDispatcher{sent: true}
	checker, store := setupChecker(t, exec, dispatcher)

	ctx := context.Background()
	alert := testAlert("u1", "a", "SELECT a", 5, models.ComparatorGT)
	alert.Active = false
	if err := store.Alerts().Create(ctx, alert); err != nil {
		t.Fatalf("create alert: %v", err)
	}

	result, err := checker.CheckOne(ctx, alert.ID, "u1")
	if err != nil {
		t.Fatalf("CheckOne() error = %v", err)
	}
	if !result.Triggered {
		t.Error("expected inactive alert to evaluate on demand")
	}
}

func TestCheckOneUnknownAlert(t *testing.T) {
	exec := newFakeExec()
	checker, _ := setupChecker(t, exec, &fakeDispatcher{})

	_, err := checker.CheckOne(context.Background(), uuid.NewString(), "u1")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestRenderMessage(t *testing.T) {
	alert := testAlert("u1", "weekly revenue", "SELECT sum(revenue) FROM orders WHERE created_at > now() - INTERVAL 7 DAY AND region = 'emea' GROUP BY region", 100000, models.ComparatorLT)
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

	msg := renderMessage(alert, 95000, now)

	if msg.Subject != "DataLens Alert: weekly revenue" {
		t.Errorf("subject = %q", msg.Subject)
	}
	for _, want := range []string{"weekly revenue", "95000", "below threshold 100000", "2026-03-14"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("body missing %q:\n%s", want, msg.Body)
		}
	}
	// Long queries are truncated in the notification body.
	if strings.Contains(msg.Body, "GROUP BY region") {
		t.Error("expected query preview truncated")
	}
	if !strings.Contains(msg.Body, "...") {
		t.Error("expected ellipsis on truncated query")
	}
}

func TestRenderMessageTruncatesOnRuneBoundary(t *testing.T) {
	// A query of multi-byte runes whose byte length crosses the preview
	// limit must not be cut mid-rune.
	query := "SELECT count(*) FROM orders WHERE city = '" + strings.Repeat("é", 40) + "'"
	alert := testAlert("u1", "city orders", query, 10, models.ComparatorGT)

	msg := renderMessage(alert, 12, time.Now())

	if !utf8.ValidString(msg.Body) {
		t.Error("expected valid UTF-8 after query truncation")
	}
	if !strings.Contains(msg.Body, "...") {
		t.Error("expected ellipsis on truncated query")
	}
}
