package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/hadith-ingest/internal/store"
)

// RunStore provides an in-memory store.RunRepository for development/testing.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]store.Run
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]store.Run)}
}

// StartRun inserts a run in running status, or re-marks an existing one.
func (s *RunStore) StartRun(_ context.Context, id uuid.UUID, collection string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		run = store.Run{ID: id, Collection: collection, StartedAt: startedAt.UTC()}
	}
	run.Status = store.RunRunning
	run.UpdatedAt = startedAt.UTC()
	s.runs[id] = run
	return nil
}

// UpdateRunCounters overwrites the counters of a known run.
func (s *RunStore) UpdateRunCounters(_ context.Context, id uuid.UUID, counters store.RunCounters, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	run.Counters = counters
	run.UpdatedAt = at.UTC()
	s.runs[id] = run
	return nil
}

// CompleteRun marks a run finished.
func (s *RunStore) CompleteRun(
	_ context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	run.Status = status
	run.FinishedAt = pointerTime(finishedAt.UTC())
	run.ErrorMessage = errMsg
	run.UpdatedAt = finishedAt.UTC()
	s.runs[id] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, id uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns matching runs newest first.
func (s *RunStore) ListRuns(_ context.Context, filter store.RunFilter, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Run
	for _, run := range s.runs {
		if filter.Status != nil && run.Status != *filter.Status {
			continue
		}
		if filter.Collection != "" && run.Collection != filter.Collection {
			continue
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if offset >= len(out) {
		return []store.Run{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
