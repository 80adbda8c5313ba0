package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/progress"
	"github.com/JakeFAU/hadith-ingest/internal/reconcile"
	"github.com/JakeFAU/hadith-ingest/internal/source"
	"github.com/JakeFAU/hadith-ingest/internal/store"
)

// DefaultMaxSections bounds every section scan.
const DefaultMaxSections = 300

// RunnerConfig tunes a Runner.
type RunnerConfig struct {
	Writer WriterConfig
	// MaxSections is the highest section number probed.
	MaxSections int
	// MissThreshold ends an unstructured scan after this many consecutive
	// misses, and a structured scan after this many consecutive failures.
	MissThreshold int
}

// Runner executes one collection job through every phase.
type Runner struct {
	cfg          RunnerConfig
	store        store.CorpusStore
	structured   source.Adapter
	unstructured source.Adapter
	archiver     Archiver
	clock        Clock
	writer       *BatchWriter
	aggregator   *Aggregator
	logger       *zap.Logger
}

// NewRunner wires a Runner. At least one adapter is required; archiver may
// be nil.
func NewRunner(
	cfg RunnerConfig,
	st store.CorpusStore,
	structured source.Adapter,
	unstructured source.Adapter,
	archiver Archiver,
	clock Clock,
	logger *zap.Logger,
) (*Runner, error) {
	if st == nil {
		return nil, errors.New("corpus store is required")
	}
	if structured == nil && unstructured == nil {
		return nil, errors.New("at least one source adapter is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if cfg.MaxSections <= 0 {
		cfg.MaxSections = DefaultMaxSections
	}
	if cfg.MissThreshold <= 0 {
		cfg.MissThreshold = source.DefaultMissThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:          cfg,
		store:        st,
		structured:   structured,
		unstructured: unstructured,
		archiver:     archiver,
		clock:        clock,
		writer:       NewBatchWriter(cfg.Writer, st, clock, logger.Named("writer")),
		aggregator:   NewAggregator(st),
		logger:       logger,
	}, nil
}

// fetchedSection is one section after fetching, parsing and merging editions.
type fetchedSection struct {
	corpus.Section
	Bytes int64
	// SecondaryFailed marks sections whose original-language edition could
	// not be fetched; backfill retries them.
	SecondaryFailed bool
}

// Run drives the job to done or error. Only a FatalError or cancellation
// ends in error; everything else is recorded as a warning on tr. An empty
// mode means SourceAuto.
func (r *Runner) Run(ctx context.Context, entry corpus.Entry, mode SourceMode, tr *progress.Tracker) (Summary, error) {
	start := r.clock.Now()
	mode = mode.orDefault(SourceAuto)
	sum := Summary{Collection: entry.Slug, RunID: tr.RunID().String()}
	logger := r.logger.With(zap.String("collection", entry.Slug), zap.String("run_id", sum.RunID))
	logger.Info("ingestion started", zap.String("source", string(mode)))

	err := r.run(ctx, entry, mode, tr, &sum, logger)
	sum.Warnings = tr.Snapshot().WarningCount
	sum.Duration = r.clock.Now().Sub(start)
	if err != nil {
		if !IsFatal(err) && ctx.Err() != nil {
			err = fmt.Errorf("job cancelled: %w", err)
		}
		if ferr := tr.Fail(err); ferr != nil {
			logger.Warn("could not mark job failed", zap.Error(ferr))
		}
		logger.Error("ingestion failed", zap.Error(err), zap.Int("inserted", sum.Inserted), zap.Int("updated", sum.Updated))
		return sum, err
	}

	msg := fmt.Sprintf("Completed %s: %d inserted, %d updated", entry.NameEnglish, sum.Inserted, sum.Updated)
	if err := tr.Done(msg); err != nil {
		return sum, fmt.Errorf("finish job: %w", err)
	}
	logger.Info("ingestion finished",
		zap.Int("inserted", sum.Inserted),
		zap.Int("updated", sum.Updated),
		zap.Int("total", sum.Total),
		zap.Int("warnings", sum.Warnings),
		zap.Duration("duration", sum.Duration),
	)
	return sum, nil
}

func (r *Runner) run(
	ctx context.Context,
	entry corpus.Entry,
	mode SourceMode,
	tr *progress.Tracker,
	sum *Summary,
	logger *zap.Logger,
) error {
	col, err := r.store.EnsureCollection(ctx, entry.Collection())
	if err != nil {
		return fatal("ensure collection", err)
	}

	// fetching
	sections, err := r.fetch(ctx, entry, mode, tr, logger)
	if err != nil {
		return err
	}
	sum.Sections = len(sections)
	tr.SetSections(len(sections))

	// books
	if err := tr.Advance(progress.PhaseBooks, fmt.Sprintf("Creating %d books...", len(sections))); err != nil {
		return err
	}
	tr.SetBooks(len(sections))
	places := make(map[int]Placement, len(sections))
	for _, sec := range sections {
		if err := ctx.Err(); err != nil {
			return err
		}
		place, err := r.ensureBook(ctx, col.ID, sec.Section, tr)
		if err != nil {
			tr.Warnf("book %d: %v", sec.Number, err)
			continue
		}
		places[sec.Number] = place
		tr.BookProcessed()
		sum.Books++
	}

	// hadiths
	if err := tr.Advance(progress.PhaseHadiths, fmt.Sprintf("Reconciling %d sections...", len(sections))); err != nil {
		return err
	}
	stored, err := r.store.LoadIndex(ctx, col.ID, entry.Slug)
	if err != nil {
		return fatal("load existing records", err)
	}
	ix := reconcile.NewIndex(indexEntries(stored))
	target := reconcile.Target{Slug: entry.Slug, Display: entry.Display}

	for _, sec := range sections {
		if err := ctx.Err(); err != nil {
			return err
		}
		place, ok := places[sec.Number]
		if !ok {
			continue
		}
		started := r.clock.Now()
		decisions := decideAll(ix, target, sec.Records)
		tr.AddCandidates(len(sec.Records))
		sum.Candidates += len(sec.Records)

		res, err := r.writer.Write(ctx, ix, place, entry.Slug, decisions, tr)
		tr.AddInserted(res.Created)
		tr.AddUpdated(res.Updated)
		sum.Inserted += res.Created
		sum.Updated += res.Updated
		if err != nil {
			return err
		}
		tr.SectionDone(sec.Number, sec.Bytes, r.clock.Now().Sub(started))
		logger.Debug("section reconciled",
			zap.Int("section", sec.Number),
			zap.Int("created", res.Created),
			zap.Int("updated", res.Updated),
			zap.Int("linked", res.Linked),
		)
	}

	// backfill
	if err := tr.Advance(progress.PhaseBackfill, "Backfilling missing Arabic text..."); err != nil {
		return err
	}
	backfilled, err := r.backfill(ctx, entry, ix, sections, places, tr)
	sum.Backfilled = backfilled
	sum.Updated += backfilled
	if err != nil {
		return err
	}

	// totals
	if err := tr.Advance(progress.PhaseTotals, "Updating collection totals..."); err != nil {
		return err
	}
	totals, err := r.aggregator.Recompute(ctx, col.ID)
	if err != nil {
		return fatal("recompute totals", err)
	}
	sum.Total = totals.TotalHadiths
	return nil
}

func indexEntries(stored []store.IndexedRecord) []reconcile.Entry {
	out := make([]reconcile.Entry, len(stored))
	for i, s := range stored {
		out[i] = reconcile.Entry{Record: s.Record, Linked: s.Linked}
	}
	return out
}

func decideAll(ix *reconcile.Index, target reconcile.Target, candidates []corpus.Candidate) []reconcile.Decision {
	out := make([]reconcile.Decision, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, reconcile.Decide(ix, target, c))
	}
	return out
}

// ensureBook creates the section's book if needed, upgrades placeholder
// names, and syncs its chapters.
func (r *Runner) ensureBook(ctx context.Context, collectionID int64, sec corpus.Section, tr *progress.Tracker) (Placement, error) {
	book, err := r.store.GetBook(ctx, collectionID, sec.Number)
	switch {
	case errors.Is(err, store.ErrNotFound):
		name := strings.TrimSpace(sec.NameEnglish)
		if name == "" {
			name = fmt.Sprintf("Book %d", sec.Number)
		}
		book, err = r.store.CreateBook(ctx, corpus.Book{
			CollectionID: collectionID,
			Number:       sec.Number,
			NameEnglish:  name,
			NameArabic:   sec.NameArabic,
		})
		if err != nil {
			return Placement{}, fmt.Errorf("create book: %w", err)
		}
	case err != nil:
		return Placement{}, fmt.Errorf("get book: %w", err)
	default:
		en, renameEn := reconcile.UpgradeName(book.NameEnglish, sec.NameEnglish)
		ar, renameAr := reconcile.UpgradeName(book.NameArabic, sec.NameArabic)
		if renameEn || renameAr {
			if err := r.store.RenameBook(ctx, book.ID, en, ar); err != nil {
				return Placement{}, fmt.Errorf("rename book: %w", err)
			}
		}
	}

	chapters, err := r.ensureChapters(ctx, book.ID, sec.Chapters, tr)
	if err != nil {
		return Placement{}, err
	}
	return Placement{CollectionID: collectionID, BookID: book.ID, Chapters: chapters}, nil
}

func (r *Runner) ensureChapters(
	ctx context.Context,
	bookID int64,
	candidates []corpus.CandidateChapter,
	tr *progress.Tracker,
) ([]corpus.Chapter, error) {
	existing, err := r.store.ListChapters(ctx, bookID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	byNumber := make(map[int]corpus.Chapter, len(existing)+len(candidates))
	for _, ch := range existing {
		byNumber[ch.Number] = ch
	}

	for _, cand := range candidates {
		cur, ok := byNumber[cand.Number]
		if !ok {
			name := strings.TrimSpace(cand.NameEnglish)
			if name == "" {
				name = fmt.Sprintf("Chapter %d", cand.Number)
			}
			created, err := r.store.CreateChapter(ctx, corpus.Chapter{
				BookID:      bookID,
				Number:      cand.Number,
				NameEnglish: name,
				NameArabic:  cand.NameArabic,
				FirstRecord: cand.FirstRecord,
				LastRecord:  cand.LastRecord,
			})
			if err != nil {
				tr.Warnf("chapter %d of book %d: %v", cand.Number, bookID, err)
				continue
			}
			byNumber[cand.Number] = created
			continue
		}

		changed := false
		if name, ok := reconcile.UpgradeName(cur.NameEnglish, cand.NameEnglish); ok {
			cur.NameEnglish = name
			changed = true
		}
		if name, ok := reconcile.UpgradeName(cur.NameArabic, cand.NameArabic); ok {
			cur.NameArabic = name
			changed = true
		}
		if !cur.HasRange() && cand.FirstRecord > 0 && cand.LastRecord >= cand.FirstRecord {
			cur.FirstRecord, cur.LastRecord = cand.FirstRecord, cand.LastRecord
			changed = true
		}
		if changed {
			if err := r.store.UpdateChapter(ctx, cur); err != nil {
				tr.Warnf("update chapter %d of book %d: %v", cand.Number, bookID, err)
				continue
			}
		}
		byNumber[cand.Number] = cur
	}

	out := make([]corpus.Chapter, 0, len(byNumber))
	for _, ch := range byNumber {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}
