package models

import (
	"reflect"
	"time"
)

// ColumnType classifies a result column for metric extraction.
type ColumnType string

const (
	ColumnTypeNumeric ColumnType = "numeric"
	ColumnTypeString  ColumnType = "string"
	ColumnTypeTime    ColumnType = "time"
	ColumnTypeBool    ColumnType = "bool"
	ColumnTypeOther   ColumnType = "other"
)

// Column describes a single result column with type metadata supplied
// by the warehouse.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Result holds the rows and column metadata of an executed warehouse query.
type Result struct {
	Columns  []Column        `json:"columns"`
	Rows     [][]interface{} `json:"rows"`
	Query    string          `json:"query"`
	Duration time.Duration   `json:"duration"`
	Cached   bool            `json:"cached"`
}

// RowCount returns the number of rows in the result.
func (r *Result) RowCount() int {
	return len(r.Rows)
}

// FirstNumeric scans the first row for the first numeric-typed field and
// returns its value. It reports false if the result has no rows or the
// first row carries no numeric field.
func (r *Result) FirstNumeric() (float64, bool) {
	if len(r.Rows) == 0 {
		return 0, false
	}
	row := r.Rows[0]
	for i, col := range r.Columns {
		if col.Type != ColumnTypeNumeric || i >= len(row) {
			continue
		}
		if v, ok := ToFloat(row[i]); ok {
			return v, true
		}
	}
	return 0, false
}

// ToFloat converts a scanned database value to float64 where possible.
// Values from nullable columns arrive as pointers; a non-nil pointer is
// dereferenced and a nil pointer converts to nothing.
func ToFloat(v interface{}) (float64, bool) {
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return 0, false
		}
		return ToFloat(rv.Elem().Interface())
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
