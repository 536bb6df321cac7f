package catalog

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("catalog: record not found")

// StoreError reports an I/O failure on the persistent store. Store errors
// are fatal: a run that hits one stops instead of continuing against a
// catalog it cannot trust.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("catalog %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Fatal marks the error as run-aborting for the worker pool.
func (e *StoreError) Fatal() bool { return true }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}
