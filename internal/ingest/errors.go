package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrJobInFlight rejects a trigger for a collection that already has a
	// queued or running job.
	ErrJobInFlight = errors.New("job already in flight")
	// ErrUnknownCollection rejects a trigger for a slug missing from the
	// catalog.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrQueueClosed is returned by Queue.Dequeue after shutdown.
	ErrQueueClosed = errors.New("queue closed")
	// ErrUnknownSource rejects a source mode other than auto, cdn or sunnah.
	ErrUnknownSource = errors.New("unknown source")

	errNoSections = errors.New("no sections retrieved")
)

// FatalError aborts a job. Everything below it is recovered locally and
// surfaces only as a warning.
type FatalError struct {
	Op  string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether err is (or wraps) a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

func fatal(op string, err error) error {
	return &FatalError{Op: op, Err: err}
}
