package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/metrics"
	"github.com/JakeFAU/hadith-ingest/internal/reconcile"
	"github.com/JakeFAU/hadith-ingest/internal/store"
)

const (
	// DefaultBatchSize is the create chunk size.
	DefaultBatchSize = 100
	// MaxBatchSize bounds the create chunk size.
	MaxBatchSize = 100
	// DefaultBatchDelay is the pause after each create chunk.
	DefaultBatchDelay = 50 * time.Millisecond
)

// Warner collects non-fatal problems. *progress.Tracker implements it.
type Warner interface {
	Warn(message string)
}

type nopWarner struct{}

func (nopWarner) Warn(string) {}

// WriterConfig tunes the BatchWriter.
type WriterConfig struct {
	BatchSize  int
	BatchDelay time.Duration
}

// Placement is where newly linked records go: a collection, a book, and the
// book's chapters for range lookup.
type Placement struct {
	CollectionID int64
	BookID       int64
	Chapters     []corpus.Chapter
}

// WriteResult counts what a Write call changed.
type WriteResult struct {
	Created int
	Updated int
	Linked  int
	Skipped int
}

// BatchWriter applies reconcile decisions to the store. Creates go out in
// chunks with one bulk call each and fall back to single inserts when a chunk
// fails; updates are written one by one.
type BatchWriter struct {
	store  store.CorpusStore
	clock  Clock
	cfg    WriterConfig
	logger *zap.Logger
}

// NewBatchWriter applies WriterConfig defaults.
func NewBatchWriter(cfg WriterConfig, st store.CorpusStore, clock Clock, logger *zap.Logger) *BatchWriter {
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchWriter{store: st, clock: clock, cfg: cfg, logger: logger}
}

// Write persists decisions for one section. Created and updated records are
// merged into ix so later sections see them. It returns an error only when
// ctx ends; store failures become warnings.
func (w *BatchWriter) Write(
	ctx context.Context,
	ix *reconcile.Index,
	place Placement,
	slug string,
	decisions []reconcile.Decision,
	warn Warner,
) (WriteResult, error) {
	if warn == nil {
		warn = nopWarner{}
	}
	var (
		res     WriteResult
		creates []corpus.Record
		heal    []reconcile.Decision
	)
	for _, d := range decisions {
		switch {
		case d.Kind == reconcile.Create:
			creates = append(creates, d.Record)
		case d.NeedsLink:
			heal = append(heal, d)
		}
	}

	for start := 0; start < len(creates); start += w.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(start+w.cfg.BatchSize, len(creates))
		created := w.createChunk(ctx, creates[start:end], warn)
		res.Created += len(created)
		res.Skipped += (end - start) - len(created)
		for _, r := range created {
			ix.Put(reconcile.Entry{Record: r})
		}
		res.Linked += w.link(ctx, ix, place, created, warn)
		if err := w.clock.Sleep(ctx, w.cfg.BatchDelay); err != nil {
			return res, err
		}
	}

	for _, d := range decisions {
		if d.Kind != reconcile.Update {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := w.store.UpdateRecord(ctx, d.Record.ID, d.Patch); err != nil {
			w.logger.Warn("record update failed", zap.String("collection", slug), zap.Int("number", d.Number), zap.Error(err))
			warn.Warn(fmt.Sprintf("update record %d: %v", d.Number, err))
			res.Skipped++
			continue
		}
		prev, _ := ix.Get(d.Number)
		ix.Put(reconcile.Entry{Record: d.Record, Linked: prev.Linked})
		res.Updated++
	}

	if len(heal) > 0 {
		records := make([]corpus.Record, len(heal))
		for i, d := range heal {
			records[i] = d.Record
		}
		healed := w.link(ctx, ix, place, records, warn)
		if healed > 0 {
			w.logger.Info("restored missing hierarchy links", zap.String("collection", slug), zap.Int("count", healed))
		}
		res.Linked += healed
	}

	metrics.ObserveRecords(slug, "create", res.Created)
	metrics.ObserveRecords(slug, "update", res.Updated)
	metrics.ObserveRecords(slug, "skip", res.Skipped)
	return res, nil
}

// createChunk tries the bulk insert, then one insert per record.
func (w *BatchWriter) createChunk(ctx context.Context, chunk []corpus.Record, warn Warner) []corpus.Record {
	created, err := w.store.CreateRecords(ctx, chunk)
	if err == nil {
		return created
	}
	w.logger.Warn("bulk create failed, retrying records individually",
		zap.Int("records", len(chunk)), zap.Error(err))

	out := make([]corpus.Record, 0, len(chunk))
	for _, r := range chunk {
		one, err := w.store.CreateRecords(ctx, []corpus.Record{r})
		if err != nil {
			warn.Warn(fmt.Sprintf("create record %d: %v", r.Number, err))
			continue
		}
		out = append(out, one...)
	}
	return out
}

// link writes hierarchy links for records and marks them in ix. It returns
// how many links were written.
func (w *BatchWriter) link(ctx context.Context, ix *reconcile.Index, place Placement, records []corpus.Record, warn Warner) int {
	if len(records) == 0 {
		return 0
	}
	links := make([]corpus.Link, len(records))
	for i, r := range records {
		links[i] = corpus.Link{
			CollectionID: place.CollectionID,
			BookID:       place.BookID,
			RecordID:     r.ID,
			Sequence:     r.Number,
		}
		if ch := reconcile.ChapterFor(place.Chapters, r.Number); ch != nil {
			id := ch.ID
			links[i].ChapterID = &id
		}
	}
	if err := w.store.CreateLinks(ctx, links); err != nil {
		warn.Warn(fmt.Sprintf("link %d records: %v", len(links), err))
		return 0
	}
	for _, r := range records {
		ix.MarkLinked(r.Number)
	}
	return len(links)
}
