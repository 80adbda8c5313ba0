package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/hadith-ingest/internal/progress"
	"github.com/JakeFAU/hadith-ingest/internal/store"
)

// StoreSink persists run history. Counter updates within a batch collapse to
// the latest snapshot per run, so a busy run costs one write per flush.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

type pendingCounters struct {
	counters store.RunCounters
	at       time.Time
}

// Consume writes run starts, the latest counters, and completions in event
// order. Repository errors are returned to the hub.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	pending := make(map[uuid.UUID]pendingCounters)
	var order []uuid.UUID

	for _, evt := range batch {
		if evt.Stage == progress.StageRunStart {
			if err := s.repo.StartRun(ctx, evt.RunID, evt.Collection, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		}
		if _, seen := pending[evt.RunID]; !seen {
			order = append(order, evt.RunID)
		}
		pending[evt.RunID] = pendingCounters{counters: runCounters(evt), at: evt.TS}

		if !evt.Terminal() {
			continue
		}
		if err := s.flushCounters(ctx, evt.RunID, pending[evt.RunID]); err != nil {
			return err
		}
		delete(pending, evt.RunID)

		status := store.RunSuccess
		var note *string
		if evt.Stage == progress.StageRunError {
			status = store.RunError
			if evt.Note != "" {
				msg := evt.Note
				note = &msg
			}
		}
		if err := s.repo.CompleteRun(ctx, evt.RunID, evt.TS, status, note); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	}

	for _, id := range order {
		p, ok := pending[id]
		if !ok {
			continue
		}
		if err := s.flushCounters(ctx, id, p); err != nil {
			return err
		}
	}
	return nil
}

func (s *StoreSink) flushCounters(ctx context.Context, id uuid.UUID, p pendingCounters) error {
	if err := s.repo.UpdateRunCounters(ctx, id, p.counters, p.at); err != nil {
		return fmt.Errorf("update run counters: %w", err)
	}
	return nil
}

func runCounters(evt progress.Event) store.RunCounters {
	return store.RunCounters{
		Phase:    string(evt.Phase),
		Sections: evt.Counters.Sections,
		Books:    evt.Counters.Books,
		Total:    evt.Counters.Total,
		Inserted: evt.Counters.Inserted,
		Updated:  evt.Counters.Updated,
		Warnings: evt.Counters.Warnings,
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
