// File: internal/store/errors.go
package store

import "fmt"

// PersistenceError wraps a storage failure with the operation that hit it.
// Callers treat any PersistenceError as fatal for the current run.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}
