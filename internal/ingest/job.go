package ingest

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/hadith-ingest/internal/source"
)

// Job is one queued trigger. Collection is a catalog slug or "all".
type Job struct {
	Collection  string     `json:"collection"`
	Source      SourceMode `json:"source,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
}

// Queue hands jobs from the Manager to workers.
type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Dequeue(ctx context.Context) (Job, error)
}

// Enqueuer accepts jobs for asynchronous execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Clock supplies time and context-aware sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator mints run IDs.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}

// Archiver keeps a copy of fetched payloads.
type Archiver interface {
	Archive(ctx context.Context, p source.RawPayload) (string, error)
}

// Summary is the outcome of one collection run.
type Summary struct {
	Collection string        `json:"collection"`
	RunID      string        `json:"run_id"`
	Sections   int           `json:"sections"`
	Books      int           `json:"books"`
	Candidates int           `json:"candidates"`
	Inserted   int           `json:"inserted"`
	Updated    int           `json:"updated"`
	Backfilled int           `json:"backfilled"`
	Total      int           `json:"total_hadiths"`
	Warnings   int           `json:"warnings"`
	Duration   time.Duration `json:"duration"`
}
