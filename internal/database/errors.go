package database

import (
	"errors"
	"fmt"
)

// ErrDuplicate is returned when a fingerprint is already stored.
var ErrDuplicate = errors.New("embedding already registered")

// PersistenceError wraps a storage failure. In-memory state is never updated
// when one is returned.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Wrap returns err as a *PersistenceError unless it is nil, ErrDuplicate or
// already a PersistenceError.
func Wrap(op string, err error) error {
	if err == nil || errors.Is(err, ErrDuplicate) {
		return err
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
