package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/parser"
	"github.com/JakeFAU/hadith-ingest/internal/progress"
	"github.com/JakeFAU/hadith-ingest/internal/reconcile"
	"github.com/JakeFAU/hadith-ingest/internal/source"
)

// fetch retrieves and parses every section of the collection from the
// source that mode selects. Auto prefers the structured edition and falls back to
// HTML pages when that edition yields no sections.
func (r *Runner) fetch(
	ctx context.Context,
	entry corpus.Entry,
	mode SourceMode,
	tr *progress.Tracker,
	logger *zap.Logger,
) ([]fetchedSection, error) {
	canStructured := entry.PrimaryEdition != "" && r.structured != nil
	canUnstructured := entry.SunnahSlug != "" && r.unstructured != nil

	switch mode {
	case SourceCDN:
		if !canStructured {
			return nil, fatal("select source", fmt.Errorf("no cdn edition configured for %s", entry.Slug))
		}
		return r.fetchStructured(ctx, entry, tr, logger)
	case SourceSunnah:
		if !canUnstructured {
			return nil, fatal("select source", fmt.Errorf("no sunnah.com source configured for %s", entry.Slug))
		}
		return r.fetchUnstructured(ctx, entry, tr, logger)
	}

	switch {
	case canStructured:
		out, err := r.fetchStructured(ctx, entry, tr, logger)
		if err == nil || !canUnstructured || !errors.Is(err, errNoSections) {
			return out, err
		}
		tr.Warnf("%v; falling back to sunnah.com", err)
		logger.Warn("primary edition empty, falling back to html source",
			zap.String("edition", entry.PrimaryEdition), zap.String("sunnah", entry.SunnahSlug))
		return r.fetchUnstructured(ctx, entry, tr, logger)
	case canUnstructured:
		return r.fetchUnstructured(ctx, entry, tr, logger)
	default:
		return nil, fatal("select source", fmt.Errorf("no configured source serves %s", entry.Slug))
	}
}

func (r *Runner) fetchStructured(ctx context.Context, entry corpus.Entry, tr *progress.Tracker, logger *zap.Logger) ([]fetchedSection, error) {
	bank, err := parser.ForKind(source.KindStructured)
	if err != nil {
		return nil, fatal("select parser", err)
	}
	primary := source.Ref{Kind: source.KindStructured, Name: entry.PrimaryEdition, Display: entry.Display}
	tr.Message(fmt.Sprintf("Fetching %s...", primary.Name))

	var (
		out         []fetchedSection
		consecutive int
	)
	outcome, err := source.Enumerate(ctx, source.EnumerateOptions{Start: 1, Max: r.cfg.MaxSections, Dense: true},
		func(ctx context.Context, n int) error {
			sec, size, err := r.fetchSection(ctx, r.structured, bank, primary, n, entry, false, tr)
			if err != nil {
				consecutive++
				// Persistent failures end the scan like a missing section.
				if consecutive >= r.cfg.MissThreshold && !errors.Is(err, source.ErrNotFound) {
					return fmt.Errorf("%w: %d consecutive failures: %w", source.ErrNotFound, consecutive, err)
				}
				return err
			}
			consecutive = 0
			out = append(out, fetchedSection{Section: sec, Bytes: size})
			tr.Message(fmt.Sprintf("Fetched %s section %d", primary.Name, n))
			return nil
		})
	if err != nil {
		return nil, err
	}
	warnFailures(tr, primary, outcome.Failed)
	logger.Info("primary edition scanned",
		zap.String("edition", primary.Name),
		zap.Int("found", len(outcome.Found)),
		zap.Int("failed", len(outcome.Failed)),
		zap.String("stop", string(outcome.Stop)),
	)
	if len(out) == 0 {
		return nil, fatal("fetch primary edition", fmt.Errorf("%s: %w (%s)", primary.Name, errNoSections, outcome.Stop))
	}

	if entry.SecondaryEdition == "" {
		return out, nil
	}
	secondary := source.Ref{Kind: source.KindStructured, Name: entry.SecondaryEdition, Display: entry.Display}
	for i := range out {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := out[i].Number
		original, size, err := r.fetchSection(ctx, r.structured, bank, secondary, n, entry, true, tr)
		switch {
		case err == nil:
			out[i].Section = mergeEditions(out[i].Section, original)
			out[i].Bytes += size
		case errors.Is(err, source.ErrNotFound):
			logger.Debug("secondary edition lacks section", zap.String("edition", secondary.Name), zap.Int("section", n))
		default:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			out[i].SecondaryFailed = true
			tr.Warnf("%s section %d: %v", secondary.Name, n, err)
		}
	}
	return out, nil
}

func (r *Runner) fetchUnstructured(ctx context.Context, entry corpus.Entry, tr *progress.Tracker, logger *zap.Logger) ([]fetchedSection, error) {
	bank, err := parser.ForKind(source.KindUnstructured)
	if err != nil {
		return nil, fatal("select parser", err)
	}
	ref := source.Ref{Kind: source.KindUnstructured, Name: entry.SunnahSlug, Display: entry.Display}
	tr.Message(fmt.Sprintf("Fetching %s pages...", ref.Name))

	var out []fetchedSection
	outcome, err := source.Enumerate(ctx, source.EnumerateOptions{
		Start:         1,
		Max:           r.cfg.MaxSections,
		MissThreshold: r.cfg.MissThreshold,
	}, func(ctx context.Context, n int) error {
		sec, size, err := r.fetchSection(ctx, r.unstructured, bank, ref, n, entry, false, tr)
		if err != nil {
			return err
		}
		out = append(out, fetchedSection{Section: sec, Bytes: size})
		tr.Message(fmt.Sprintf("Fetched %s page %d", ref.Name, n))
		return nil
	})
	if err != nil {
		return nil, err
	}
	warnFailures(tr, ref, outcome.Failed)
	logger.Info("pages scanned",
		zap.String("source", ref.Name),
		zap.Int("found", len(outcome.Found)),
		zap.Int("last", outcome.Last),
		zap.String("stop", string(outcome.Stop)),
	)
	if len(out) == 0 {
		return nil, fatal("fetch pages", fmt.Errorf("%s: %w (%s)", ref.Name, errNoSections, outcome.Stop))
	}
	return out, nil
}

// fetchSection fetches, archives and parses one section. Parse failures are
// reported as ErrEmpty so enumeration treats them as misses.
func (r *Runner) fetchSection(
	ctx context.Context,
	adapter source.Adapter,
	bank *parser.Bank,
	ref source.Ref,
	n int,
	entry corpus.Entry,
	original bool,
	tr *progress.Tracker,
) (corpus.Section, int64, error) {
	payload, err := adapter.FetchSection(ctx, ref, n)
	if err != nil {
		return corpus.Section{}, 0, err
	}
	if r.archiver != nil {
		if _, err := r.archiver.Archive(ctx, payload); err != nil {
			tr.Warnf("archive %s section %d: %v", ref.Name, n, err)
		}
	}
	res, err := bank.Parse(parser.Input{
		Payload:      payload,
		Display:      entry.Display,
		DefaultGrade: entry.DefaultGrade,
		Original:     original,
	})
	if err != nil {
		return corpus.Section{}, 0, fmt.Errorf("%w: %w", source.ErrEmpty, err)
	}
	if res.Discarded > 0 {
		r.logger.Debug("discarded short candidates",
			zap.String("source", ref.String()),
			zap.Int("section", n),
			zap.Int("discarded", res.Discarded),
			zap.String("strategy", res.Strategy),
		)
	}
	sec := res.Section
	sec.Number = n
	return sec, int64(len(payload.Body)), nil
}

func warnFailures(tr *progress.Tracker, ref source.Ref, failed map[int]error) {
	numbers := make([]int, 0, len(failed))
	for n := range failed {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	for _, n := range numbers {
		tr.Warnf("%s section %d: %v", ref.Name, n, failed[n])
	}
}

// mergeEditions folds the original-language edition into the primary one.
// Records only present in the original become candidates of their own.
func mergeEditions(primary, original corpus.Section) corpus.Section {
	at := make(map[int]int, len(primary.Records))
	for i, c := range primary.Records {
		at[c.Number] = i
	}
	for _, c := range original.Records {
		if i, ok := at[c.Number]; ok {
			if primary.Records[i].ArabicText == "" {
				primary.Records[i].ArabicText = c.ArabicText
			}
			continue
		}
		at[c.Number] = len(primary.Records)
		primary.Records = append(primary.Records, c)
	}
	sort.SliceStable(primary.Records, func(i, j int) bool {
		return primary.Records[i].Number < primary.Records[j].Number
	})

	if primary.NameArabic == "" {
		primary.NameArabic = original.NameArabic
	}
	chapters := make(map[int]int, len(primary.Chapters))
	for i, ch := range primary.Chapters {
		chapters[ch.Number] = i
	}
	for _, ch := range original.Chapters {
		if i, ok := chapters[ch.Number]; ok {
			if primary.Chapters[i].NameArabic == "" {
				primary.Chapters[i].NameArabic = ch.NameArabic
			}
			continue
		}
		primary.Chapters = append(primary.Chapters, ch)
	}
	return primary
}

// backfill re-fetches original-language sections that failed earlier and
// fills Arabic text on stored records still missing it.
func (r *Runner) backfill(
	ctx context.Context,
	entry corpus.Entry,
	ix *reconcile.Index,
	sections []fetchedSection,
	places map[int]Placement,
	tr *progress.Tracker,
) (int, error) {
	if entry.SecondaryEdition == "" || r.structured == nil {
		return 0, nil
	}
	missing := ix.MissingArabic()
	if len(missing) == 0 {
		return 0, nil
	}
	wanted := make(map[int]map[int]bool)
	for _, rec := range missing {
		if wanted[rec.BookNumber] == nil {
			wanted[rec.BookNumber] = map[int]bool{}
		}
		wanted[rec.BookNumber][rec.Number] = true
	}

	bank, err := parser.ForKind(source.KindStructured)
	if err != nil {
		return 0, fatal("select parser", err)
	}
	ref := source.Ref{Kind: source.KindStructured, Name: entry.SecondaryEdition, Display: entry.Display}
	target := reconcile.Target{Slug: entry.Slug, Display: entry.Display}

	filled := 0
	for _, sec := range sections {
		if !sec.SecondaryFailed || len(wanted[sec.Number]) == 0 {
			continue
		}
		place, ok := places[sec.Number]
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return filled, err
		}
		tr.Message(fmt.Sprintf("Backfilling %s section %d...", ref.Name, sec.Number))
		original, _, err := r.fetchSection(ctx, r.structured, bank, ref, sec.Number, entry, true, tr)
		if err != nil {
			if ctx.Err() != nil {
				return filled, ctx.Err()
			}
			tr.Warnf("backfill %s section %d: %v", ref.Name, sec.Number, err)
			continue
		}

		var decisions []reconcile.Decision
		for _, c := range original.Records {
			if !wanted[sec.Number][c.Number] {
				continue
			}
			d := reconcile.Decide(ix, target, c)
			if d.Kind == reconcile.Update {
				decisions = append(decisions, d)
			}
		}
		res, err := r.writer.Write(ctx, ix, place, entry.Slug, decisions, tr)
		filled += res.Updated
		tr.AddUpdated(res.Updated)
		if err != nil {
			return filled, err
		}
	}
	return filled, nil
}
