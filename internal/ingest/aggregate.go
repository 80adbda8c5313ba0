package ingest

import (
	"context"
	"fmt"

	"github.com/JakeFAU/hadith-ingest/internal/store"
)

// Aggregator recomputes derived totals from hierarchy links, never from the
// counters a run accumulated.
type Aggregator struct {
	store store.CorpusStore
}

// NewAggregator wraps the corpus store.
func NewAggregator(st store.CorpusStore) *Aggregator {
	return &Aggregator{store: st}
}

// Recompute writes collection and per-book totals and returns the collection
// totals.
func (a *Aggregator) Recompute(ctx context.Context, collectionID int64) (store.CollectionTotals, error) {
	books, err := a.store.ListBooks(ctx, collectionID)
	if err != nil {
		return store.CollectionTotals{}, fmt.Errorf("list books: %w", err)
	}
	for _, b := range books {
		hadiths, err := a.store.CountLinks(ctx, store.LinkFilter{CollectionID: collectionID, BookID: b.ID})
		if err != nil {
			return store.CollectionTotals{}, fmt.Errorf("count links for book %d: %w", b.Number, err)
		}
		chapters, err := a.store.CountChapters(ctx, b.ID)
		if err != nil {
			return store.CollectionTotals{}, fmt.Errorf("count chapters for book %d: %w", b.Number, err)
		}
		if err := a.store.UpdateBookTotals(ctx, b.ID, hadiths, chapters); err != nil {
			return store.CollectionTotals{}, fmt.Errorf("update book %d totals: %w", b.Number, err)
		}
	}

	total, err := a.store.CountLinks(ctx, store.LinkFilter{CollectionID: collectionID})
	if err != nil {
		return store.CollectionTotals{}, fmt.Errorf("count links: %w", err)
	}
	grades, err := a.store.GradeCounts(ctx, collectionID)
	if err != nil {
		return store.CollectionTotals{}, fmt.Errorf("grade counts: %w", err)
	}
	totals := store.CollectionTotals{
		TotalHadiths:      total,
		TotalBooks:        len(books),
		GradeDistribution: grades,
	}
	if err := a.store.UpdateCollectionTotals(ctx, collectionID, totals); err != nil {
		return store.CollectionTotals{}, fmt.Errorf("update collection totals: %w", err)
	}
	return totals, nil
}
