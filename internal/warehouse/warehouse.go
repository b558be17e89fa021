// Package warehouse provides the data warehouse query executor: read-only
// statement validation, safety row limits, and a ClickHouse implementation.
package warehouse

import (
	"context"
	"errors"
	"fmt"

	"github.com/datalens-dev/datalens/internal/models"
)

// Executor runs a SQL query against the warehouse and returns typed rows
// with column metadata.
type Executor interface {
	Execute(ctx context.Context, query string) (*models.Result, error)
}

// ErrInvalidQuery marks queries rejected by read-only validation.
var ErrInvalidQuery = errors.New("invalid query")

// TransientError marks warehouse failures (unreachable, slow, timed out)
// that may succeed when the external scheduler re-invokes the check.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient warehouse error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
