package store

import (
	"database/sql"
	"errors"
)

// ErrNotFound is returned when a voice job cannot be found. Not retryable:
// the row will not appear by asking again.
var ErrNotFound = errors.New("voice job not found")

// ConnectivityError wraps a transient database failure. Callers may retry
// with backoff.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string {
	return "store connectivity error: " + e.Err.Error()
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// classify maps a database error into the store's taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return &ConnectivityError{Err: err}
}

// IsRetryable reports whether the error is worth retrying.
func IsRetryable(err error) bool {
	var connErr *ConnectivityError
	return errors.As(err, &connErr)
}
