package storage

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// Common storage errors
var (
	ErrNotFound = errors.New("record not found")
	// ErrStatusConflict is returned when a job status transition loses a
	// compare-and-swap race (the row was not in the expected state).
	ErrStatusConflict = errors.New("job status transition conflict")
)

// TransientError wraps a storage fault that is worth retrying, such as
// lock contention. Callers must never mistake it for a budget denial.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient storage error during %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable storage fault.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// classify wraps lock-contention errors as transient so the service layer
// can retry them; everything else passes through wrapped with the op name.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked {
			return &TransientError{Op: op, Err: err}
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}
