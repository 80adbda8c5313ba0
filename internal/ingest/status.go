package ingest

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/reconcile"
	"github.com/JakeFAU/hadith-ingest/internal/store"
)

// CompletePercent is the stored share of the expected count at which a
// collection counts as complete.
const CompletePercent = 95

// BookStatus describes one stored book.
type BookStatus struct {
	Number  int    `json:"number" yaml:"number"`
	Name    string `json:"name" yaml:"name"`
	Hadiths int    `json:"hadiths" yaml:"hadiths"`
	// Seeded means the first linked record carries real translated text.
	Seeded bool `json:"seeded" yaml:"seeded"`
}

// CollectionStatus compares what is stored against the catalog expectation.
type CollectionStatus struct {
	Slug     string       `json:"slug" yaml:"slug"`
	Name     string       `json:"name" yaml:"name"`
	Present  bool         `json:"present" yaml:"present"`
	Expected int          `json:"expected" yaml:"expected"`
	Stored   int          `json:"stored" yaml:"stored"`
	Percent  float64      `json:"percent" yaml:"percent"`
	Complete bool         `json:"complete" yaml:"complete"`
	Books    []BookStatus `json:"books,omitempty" yaml:"books,omitempty"`
}

// StatusReporter reads completeness from the store.
type StatusReporter struct {
	catalog *corpus.Catalog
	store   store.CorpusStore
}

// NewStatusReporter builds a StatusReporter.
func NewStatusReporter(catalog *corpus.Catalog, st store.CorpusStore) *StatusReporter {
	return &StatusReporter{catalog: catalog, store: st}
}

// Report returns the status of every catalog collection in catalog order.
func (s *StatusReporter) Report(ctx context.Context) ([]CollectionStatus, error) {
	entries := s.catalog.All()
	out := make([]CollectionStatus, 0, len(entries))
	for _, e := range entries {
		st, err := s.Collection(ctx, e)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// Collection returns the status of one catalog entry.
func (s *StatusReporter) Collection(ctx context.Context, e corpus.Entry) (CollectionStatus, error) {
	out := CollectionStatus{Slug: e.Slug, Name: e.NameEnglish, Expected: e.Expected}
	col, err := s.store.GetCollection(ctx, e.Slug)
	if errors.Is(err, store.ErrNotFound) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("status %s: %w", e.Slug, err)
	}
	out.Present = true

	out.Stored, err = s.store.CountLinks(ctx, store.LinkFilter{CollectionID: col.ID})
	if err != nil {
		return out, fmt.Errorf("status %s: %w", e.Slug, err)
	}
	if e.Expected > 0 {
		out.Percent = float64(out.Stored) / float64(e.Expected) * 100
		out.Complete = out.Stored*100 >= CompletePercent*e.Expected
	}

	books, err := s.store.ListBooks(ctx, col.ID)
	if err != nil {
		return out, fmt.Errorf("status %s: %w", e.Slug, err)
	}
	for _, b := range books {
		bs := BookStatus{Number: b.Number, Name: b.NameEnglish}
		bs.Hadiths, err = s.store.CountLinks(ctx, store.LinkFilter{CollectionID: col.ID, BookID: b.ID})
		if err != nil {
			return out, fmt.Errorf("status %s book %d: %w", e.Slug, b.Number, err)
		}
		sample, err := s.store.SampleRecord(ctx, b.ID)
		switch {
		case err == nil:
			bs.Seeded = seeded(sample)
		case !errors.Is(err, store.ErrNotFound):
			return out, fmt.Errorf("status %s book %d: %w", e.Slug, b.Number, err)
		}
		out.Books = append(out.Books, bs)
	}
	return out, nil
}

func seeded(r corpus.Record) bool {
	return utf8.RuneCountInString(r.EnglishText) > reconcile.MinEnglishLength && !reconcile.IsPlaceholder(r.EnglishText)
}
