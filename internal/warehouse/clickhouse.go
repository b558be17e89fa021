package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/datalens-dev/datalens/internal/metrics"
	"github.com/datalens-dev/datalens/internal/models"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	// Addresses are the ClickHouse server addresses (host:port).
	Addresses []string

	// Database is the ClickHouse database name.
	Database string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// DialTimeout is the connection timeout.
	DialTimeout time.Duration

	// Compression enables LZ4 compression.
	Compression bool

	// QueryTimeout bounds a single query; exceeding it surfaces as a
	// transient error.
	QueryTimeout time.Duration

	// MaxRows is the safety row limit appended to unbounded SELECTs.
	MaxRows int
}

// ClickHouseExecutor implements Executor for ClickHouse.
type ClickHouseExecutor struct {
	config *ClickHouseConfig
	db     *sql.DB
}

// NewClickHouseExecutor creates a new ClickHouse executor.
func NewClickHouseExecutor(config *ClickHouseConfig) *ClickHouseExecutor {
	// Apply defaults
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 5
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.QueryTimeout == 0 {
		config.QueryTimeout = 300 * time.Second
	}
	if config.MaxRows == 0 {
		config.MaxRows = 1000
	}

	return &ClickHouseExecutor{config: config}
}

// Open initializes the ClickHouse connection.
func (e *ClickHouseExecutor) Open() error {
	opts := &clickhouse.Options{
		Addr: e.config.Addresses,
		Auth: clickhouse.Auth{
			Database: e.config.Database,
			Username: e.config.Username,
			Password: e.config.Password,
		},
		DialTimeout:  e.config.DialTimeout,
		MaxOpenConns: e.config.MaxOpenConns,
		MaxIdleConns: e.config.MaxIdleConns,
	}

	if e.config.Compression {
		opts.Compression = &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		}
	}

	db := clickhouse.OpenDB(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), e.config.DialTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return Transient(fmt.Errorf("ping clickhouse: %w", err))
	}

	e.db = db
	return nil
}

// Close closes the database connection.
func (e *ClickHouseExecutor) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

// Execute validates the query, applies the safety row limit, and runs it
// under the configured timeout budget.
func (e *ClickHouseExecutor) Execute(ctx context.Context, query string) (*models.Result, error) {
	prepared, err := Prepare(query, e.config.MaxRows)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.QueryTimeout)
	defer cancel()

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, prepared)
	if err != nil {
		metrics.WarehouseErrorsTotal.Inc()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, Transient(fmt.Errorf("query exceeded %s budget: %w", e.config.QueryTimeout, err))
		}
		return nil, Transient(fmt.Errorf("execute query: %w", err))
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		metrics.WarehouseErrorsTotal.Inc()
		return nil, err
	}

	result.Query = prepared
	result.Duration = time.Since(start)
	metrics.WarehouseQueryDuration.Observe(result.Duration.Seconds())
	return result, nil
}

// scanRows reads all rows and builds column metadata from driver types.
func scanRows(rows *sql.Rows) (*models.Result, error) {
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}

	columns := make([]models.Column, len(columnTypes))
	for i, ct := range columnTypes {
		columns[i] = models.Column{
			Name: ct.Name(),
			Type: classifyColumn(ct),
		}
	}

	result := &models.Result{Columns: columns}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		dests := make([]interface{}, len(columns))
		for i := range values {
			dests[i] = &values[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, Transient(fmt.Errorf("read rows: %w", err))
	}

	return result, nil
}

// classifyColumn maps a driver column type to the metric-extraction
// classification.
func classifyColumn(ct *sql.ColumnType) models.ColumnType {
	return classifyScanType(ct.ScanType())
}

func classifyScanType(scanType reflect.Type) models.ColumnType {
	if scanType == nil {
		return models.ColumnTypeOther
	}
	// Nullable columns scan as pointers; classify the element type.
	if scanType.Kind() == reflect.Ptr {
		scanType = scanType.Elem()
	}
	if scanType == reflect.TypeOf(time.Time{}) {
		return models.ColumnTypeTime
	}
	switch scanType.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return models.ColumnTypeNumeric
	case reflect.String:
		return models.ColumnTypeString
	case reflect.Bool:
		return models.ColumnTypeBool
	}
	return models.ColumnTypeOther
}
