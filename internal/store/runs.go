package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RunStatus mirrors the ingest_runs status column.
type RunStatus string

// Run statuses persisted in ingest_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Valid reports whether s is a known status.
func (s RunStatus) Valid() bool {
	switch s {
	case RunRunning, RunSuccess, RunError:
		return true
	default:
		return false
	}
}

// RunCounters are the latest progress counters of a run.
type RunCounters struct {
	Phase    string
	Sections int
	Books    int
	Total    int
	Inserted int
	Updated  int
	Warnings int
}

// Run models one ingestion job execution.
type Run struct {
	// ID is a UUIDv7, so runs sort by start time.
	ID         uuid.UUID
	Collection string
	StartedAt  time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt   *time.Time
	Status       RunStatus
	Counters     RunCounters
	ErrorMessage *string
	UpdatedAt    time.Time
}

// RunFilter narrows ListRuns. Zero fields are ignored.
type RunFilter struct {
	Status     *RunStatus
	Collection string
}

// RunRepository persists run history.
type RunRepository interface {
	// StartRun inserts (or idempotently re-marks running) a run.
	StartRun(ctx context.Context, id uuid.UUID, collection string, startedAt time.Time) error
	// UpdateRunCounters overwrites the counters with the latest snapshot.
	UpdateRunCounters(ctx context.Context, id uuid.UUID, counters RunCounters, at time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, id uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context, filter RunFilter, limit, offset int) ([]Run, error)
}
