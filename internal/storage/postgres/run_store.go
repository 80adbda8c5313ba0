package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/hadith-ingest/internal/store"
)

// RunStore implements store.RunRepository using Postgres.
type RunStore struct {
	db DB
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore wraps an open pool.
func NewRunStore(db DB) (*RunStore, error) {
	if db == nil {
		return nil, errors.New("pool is required")
	}
	return &RunStore{db: db}, nil
}

// StartRun inserts a run, or re-marks an existing one running.
func (s *RunStore) StartRun(ctx context.Context, id uuid.UUID, collection string, startedAt time.Time) error {
	query := `
		INSERT INTO ingest_runs (id, collection, started_at, status, updated_at)
		VALUES ($1, $2, $3, $4, $3)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status
		WHERE ingest_runs.status <> EXCLUDED.status;
	`
	if _, err := s.db.Exec(ctx, query, id, collection, startedAt, string(store.RunRunning)); err != nil {
		return fmt.Errorf("failed to start run: %w", err)
	}
	return nil
}

// UpdateRunCounters overwrites the counters with the latest snapshot.
func (s *RunStore) UpdateRunCounters(ctx context.Context, id uuid.UUID, c store.RunCounters, at time.Time) error {
	query := `
		UPDATE ingest_runs
		SET phase = $1, sections = $2, books = $3, total = $4, inserted = $5, updated = $6,
			warnings = $7, updated_at = $8
		WHERE id = $9 AND updated_at <= $8;
	`
	if _, err := s.db.Exec(ctx, query, c.Phase, c.Sections, c.Books, c.Total, c.Inserted, c.Updated, c.Warnings, at, id); err != nil {
		return fmt.Errorf("failed to update run counters: %w", err)
	}
	return nil
}

// CompleteRun marks a run finished with a status and optional error message.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	query := `
		UPDATE ingest_runs
		SET finished_at = $1, status = $2, error_message = $3, updated_at = $1
		WHERE id = $4;
	`
	res, err := s.db.Exec(ctx, query, finishedAt, string(status), errMsg, id)
	if err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const runColumns = `id, collection, started_at, finished_at, status, phase, sections, books, total,
	inserted, updated, warnings, error_message, updated_at`

func scanRun(row pgx.Row) (store.Run, error) {
	var (
		run    store.Run
		status string
	)
	err := row.Scan(
		&run.ID,
		&run.Collection,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.Counters.Phase,
		&run.Counters.Sections,
		&run.Counters.Books,
		&run.Counters.Total,
		&run.Counters.Inserted,
		&run.Counters.Updated,
		&run.Counters.Warnings,
		&run.ErrorMessage,
		&run.UpdatedAt,
	)
	run.Status = store.RunStatus(status)
	return run, err
}

// GetRun retrieves a single run by its ID.
func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (store.Run, error) {
	run, err := scanRun(s.db.QueryRow(ctx, `SELECT `+runColumns+` FROM ingest_runs WHERE id = $1;`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns retrieves runs newest first, with optional status and collection filters.
func (s *RunStore) ListRuns(ctx context.Context, filter store.RunFilter, limit, offset int) ([]store.Run, error) {
	var status *string
	if filter.Status != nil {
		v := string(*filter.Status)
		status = &v
	}
	query := `
		SELECT ` + runColumns + `
		FROM ingest_runs
		WHERE ($1::text IS NULL OR status = $1) AND ($2 = '' OR collection = $2)
		ORDER BY started_at DESC
		LIMIT $3 OFFSET $4;
	`
	rows, err := s.db.Query(ctx, query, status, filter.Collection, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}
