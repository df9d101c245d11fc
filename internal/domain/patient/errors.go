package patient

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no row matches a (name, id) search.
	ErrNotFound = errors.New("no patient found with the provided details")
	// ErrPositionOutOfRange is returned when an edit addresses a row outside
	// the loaded snapshot.
	ErrPositionOutOfRange = errors.New("row position out of range")
)

// PersistenceError reports a failed load or save against the backing store.
// It is terminal for the current action and is never retried.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("patient store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}
