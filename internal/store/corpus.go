package store

import (
	"context"
	"errors"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
)

// ErrNotFound signals that the requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// IndexedRecord is a stored record plus whether a hierarchy link exists for it.
type IndexedRecord struct {
	Record corpus.Record
	Linked bool
}

// LinkFilter scopes CountLinks. Zero fields are ignored.
type LinkFilter struct {
	CollectionID int64
	BookID       int64
}

// CollectionTotals are the derived columns written by the aggregator.
type CollectionTotals struct {
	TotalHadiths      int
	TotalBooks        int
	GradeDistribution map[corpus.Grade]int
}

// CorpusStore is the natural-key persistence boundary for the pipeline. No
// cross-call transactions are assumed; single-row writes are atomic and bulk
// creates are all-or-nothing per call.
type CorpusStore interface {
	// EnsureCollection creates the collection by slug if absent and returns
	// the stored row. Existing rows are not modified.
	EnsureCollection(ctx context.Context, c corpus.Collection) (corpus.Collection, error)
	// GetCollection loads a collection by slug or returns ErrNotFound.
	GetCollection(ctx context.Context, slug string) (corpus.Collection, error)

	ListBooks(ctx context.Context, collectionID int64) ([]corpus.Book, error)
	// GetBook loads a book by natural key or returns ErrNotFound.
	GetBook(ctx context.Context, collectionID int64, number int) (corpus.Book, error)
	CreateBook(ctx context.Context, b corpus.Book) (corpus.Book, error)
	RenameBook(ctx context.Context, bookID int64, nameEnglish, nameArabic string) error

	ListChapters(ctx context.Context, bookID int64) ([]corpus.Chapter, error)
	CreateChapter(ctx context.Context, ch corpus.Chapter) (corpus.Chapter, error)
	// UpdateChapter rewrites names and range for an existing chapter ID.
	UpdateChapter(ctx context.Context, ch corpus.Chapter) error

	// LoadIndex returns every record of the collection with its link state.
	LoadIndex(ctx context.Context, collectionID int64, slug string) ([]IndexedRecord, error)
	// CreateRecords inserts records and returns them with IDs assigned.
	CreateRecords(ctx context.Context, records []corpus.Record) ([]corpus.Record, error)
	UpdateRecord(ctx context.Context, id int64, patch corpus.RecordPatch) error
	// CreateLinks inserts hierarchy links, ignoring records already linked
	// in the same collection.
	CreateLinks(ctx context.Context, links []corpus.Link) error

	CountLinks(ctx context.Context, filter LinkFilter) (int, error)
	CountChapters(ctx context.Context, bookID int64) (int, error)
	// GradeCounts tallies grades of records linked into the collection.
	GradeCounts(ctx context.Context, collectionID int64) (map[corpus.Grade]int, error)
	UpdateCollectionTotals(ctx context.Context, collectionID int64, totals CollectionTotals) error
	UpdateBookTotals(ctx context.Context, bookID int64, hadiths, chapters int) error
	// SampleRecord returns the lowest-sequence record linked to the book.
	SampleRecord(ctx context.Context, bookID int64) (corpus.Record, error)
}
