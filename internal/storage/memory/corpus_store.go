package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/store"
)

// CorpusStore is an in-memory store.CorpusStore for development and tests.
// It enforces the same natural-key uniqueness as the relational schemas.
type CorpusStore struct {
	mu sync.RWMutex

	nextID      int64
	collections map[string]corpus.Collection
	books       map[int64]corpus.Book
	chapters    map[int64]corpus.Chapter
	records     map[int64]corpus.Record
	recordKeys  map[recordKey]int64
	links       map[linkKey]corpus.Link

	// FailCreate, when set, is consulted for every record in CreateRecords.
	// Returning an error fails the whole call.
	FailCreate func(corpus.Record) error
}

type recordKey struct {
	slug   string
	number int
}

type linkKey struct {
	collectionID int64
	recordID     int64
}

var _ store.CorpusStore = (*CorpusStore)(nil)

// NewCorpusStore constructs an empty store.
func NewCorpusStore() *CorpusStore {
	return &CorpusStore{
		collections: make(map[string]corpus.Collection),
		books:       make(map[int64]corpus.Book),
		chapters:    make(map[int64]corpus.Chapter),
		records:     make(map[int64]corpus.Record),
		recordKeys:  make(map[recordKey]int64),
		links:       make(map[linkKey]corpus.Link),
	}
}

func (s *CorpusStore) id() int64 {
	s.nextID++
	return s.nextID
}

// EnsureCollection creates the collection by slug if absent.
func (s *CorpusStore) EnsureCollection(_ context.Context, c corpus.Collection) (corpus.Collection, error) {
	if c.Slug == "" {
		return corpus.Collection{}, errors.New("collection slug is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.collections[c.Slug]; ok {
		return cloneCollection(existing), nil
	}
	c.ID = s.id()
	s.collections[c.Slug] = cloneCollection(c)
	return c, nil
}

// GetCollection loads a collection by slug.
func (s *CorpusStore) GetCollection(_ context.Context, slug string) (corpus.Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[slug]
	if !ok {
		return corpus.Collection{}, store.ErrNotFound
	}
	return cloneCollection(c), nil
}

// ListBooks returns the collection's books ordered by number.
func (s *CorpusStore) ListBooks(_ context.Context, collectionID int64) ([]corpus.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []corpus.Book
	for _, b := range s.books {
		if b.CollectionID == collectionID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

// GetBook loads a book by natural key.
func (s *CorpusStore) GetBook(_ context.Context, collectionID int64, number int) (corpus.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.books {
		if b.CollectionID == collectionID && b.Number == number {
			return b, nil
		}
	}
	return corpus.Book{}, store.ErrNotFound
}

// CreateBook inserts a book, rejecting natural-key duplicates.
func (s *CorpusStore) CreateBook(_ context.Context, b corpus.Book) (corpus.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.books {
		if existing.CollectionID == b.CollectionID && existing.Number == b.Number {
			return corpus.Book{}, fmt.Errorf("book %d already exists in collection %d", b.Number, b.CollectionID)
		}
	}
	b.ID = s.id()
	s.books[b.ID] = b
	return b, nil
}

// RenameBook replaces both names of a book.
func (s *CorpusStore) RenameBook(_ context.Context, bookID int64, nameEnglish, nameArabic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[bookID]
	if !ok {
		return store.ErrNotFound
	}
	b.NameEnglish = nameEnglish
	b.NameArabic = nameArabic
	s.books[bookID] = b
	return nil
}

// ListChapters returns the book's chapters ordered by number.
func (s *CorpusStore) ListChapters(_ context.Context, bookID int64) ([]corpus.Chapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chaptersOf(bookID), nil
}

func (s *CorpusStore) chaptersOf(bookID int64) []corpus.Chapter {
	var out []corpus.Chapter
	for _, ch := range s.chapters {
		if ch.BookID == bookID {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// CreateChapter inserts a chapter, rejecting natural-key duplicates.
func (s *CorpusStore) CreateChapter(_ context.Context, ch corpus.Chapter) (corpus.Chapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.chapters {
		if existing.BookID == ch.BookID && existing.Number == ch.Number {
			return corpus.Chapter{}, fmt.Errorf("chapter %d already exists in book %d", ch.Number, ch.BookID)
		}
	}
	ch.ID = s.id()
	s.chapters[ch.ID] = ch
	return ch, nil
}

// UpdateChapter rewrites names and range.
func (s *CorpusStore) UpdateChapter(_ context.Context, ch corpus.Chapter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.chapters[ch.ID]
	if !ok {
		return store.ErrNotFound
	}
	existing.NameEnglish = ch.NameEnglish
	existing.NameArabic = ch.NameArabic
	existing.FirstRecord = ch.FirstRecord
	existing.LastRecord = ch.LastRecord
	s.chapters[ch.ID] = existing
	return nil
}

// LoadIndex returns every record of the collection with its link state.
func (s *CorpusStore) LoadIndex(_ context.Context, collectionID int64, slug string) ([]store.IndexedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.IndexedRecord
	for _, r := range s.records {
		if r.CollectionSlug != slug {
			continue
		}
		_, linked := s.links[linkKey{collectionID: collectionID, recordID: r.ID}]
		out = append(out, store.IndexedRecord{Record: r, Linked: linked})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Record.Number < out[j].Record.Number })
	return out, nil
}

// CreateRecords inserts all records or none.
func (s *CorpusStore) CreateRecords(_ context.Context, records []corpus.Record) ([]corpus.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[recordKey]struct{}, len(records))
	for _, r := range records {
		key := recordKey{slug: r.CollectionSlug, number: r.Number}
		if _, dup := s.recordKeys[key]; dup {
			return nil, fmt.Errorf("record %s/%d already exists", r.CollectionSlug, r.Number)
		}
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("record %s/%d repeated in batch", r.CollectionSlug, r.Number)
		}
		seen[key] = struct{}{}
		if s.FailCreate != nil {
			if err := s.FailCreate(r); err != nil {
				return nil, err
			}
		}
	}
	out := make([]corpus.Record, len(records))
	for i, r := range records {
		r.ID = s.id()
		s.records[r.ID] = r
		s.recordKeys[recordKey{slug: r.CollectionSlug, number: r.Number}] = r.ID
		out[i] = r
	}
	return out, nil
}

// UpdateRecord applies the patch to one record.
func (s *CorpusStore) UpdateRecord(_ context.Context, id int64, patch corpus.RecordPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok {
		return store.ErrNotFound
	}
	s.records[id] = patch.Apply(r)
	return nil
}

// CreateLinks inserts links, skipping records already linked in the collection.
func (s *CorpusStore) CreateLinks(_ context.Context, links []corpus.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range links {
		if _, ok := s.records[l.RecordID]; !ok {
			return fmt.Errorf("link references unknown record %d", l.RecordID)
		}
		key := linkKey{collectionID: l.CollectionID, recordID: l.RecordID}
		if _, exists := s.links[key]; exists {
			continue
		}
		s.links[key] = l
	}
	return nil
}

// CountLinks counts links matching the filter.
func (s *CorpusStore) CountLinks(_ context.Context, filter store.LinkFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, l := range s.links {
		if filter.CollectionID != 0 && l.CollectionID != filter.CollectionID {
			continue
		}
		if filter.BookID != 0 && l.BookID != filter.BookID {
			continue
		}
		n++
	}
	return n, nil
}

// CountChapters counts chapters of a book.
func (s *CorpusStore) CountChapters(_ context.Context, bookID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chaptersOf(bookID)), nil
}

// GradeCounts tallies grades of linked records.
func (s *CorpusStore) GradeCounts(_ context.Context, collectionID int64) (map[corpus.Grade]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[corpus.Grade]int)
	for key := range s.links {
		if key.collectionID != collectionID {
			continue
		}
		out[corpus.ParseGrade(string(s.records[key.recordID].Grade))]++
	}
	return out, nil
}

// UpdateCollectionTotals writes derived collection columns.
func (s *CorpusStore) UpdateCollectionTotals(_ context.Context, collectionID int64, totals store.CollectionTotals) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for slug, c := range s.collections {
		if c.ID != collectionID {
			continue
		}
		c.TotalHadiths = totals.TotalHadiths
		c.TotalBooks = totals.TotalBooks
		c.GradeDistribution = copyDistribution(totals.GradeDistribution)
		s.collections[slug] = c
		return nil
	}
	return store.ErrNotFound
}

// UpdateBookTotals writes derived book columns.
func (s *CorpusStore) UpdateBookTotals(_ context.Context, bookID int64, hadiths, chapters int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[bookID]
	if !ok {
		return store.ErrNotFound
	}
	b.HadithCount = hadiths
	b.ChapterCount = chapters
	s.books[bookID] = b
	return nil
}

// SampleRecord returns the lowest-sequence record linked to the book.
func (s *CorpusStore) SampleRecord(_ context.Context, bookID int64) (corpus.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *corpus.Link
	for _, l := range s.links {
		if l.BookID != bookID {
			continue
		}
		if best == nil || l.Sequence < best.Sequence {
			l := l
			best = &l
		}
	}
	if best == nil {
		return corpus.Record{}, store.ErrNotFound
	}
	return s.records[best.RecordID], nil
}

// Links returns a copy of every link, ordered by sequence. Test helper.
func (s *CorpusStore) Links() []corpus.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]corpus.Link, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// Record looks up a record by natural key. Test helper.
func (s *CorpusStore) Record(slug string, number int) (corpus.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.recordKeys[recordKey{slug: slug, number: number}]
	if !ok {
		return corpus.Record{}, false
	}
	return s.records[id], true
}

// DeleteLink removes a link so self-healing can be exercised. Test helper.
func (s *CorpusStore) DeleteLink(collectionID, recordID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.links, linkKey{collectionID: collectionID, recordID: recordID})
}

func cloneCollection(c corpus.Collection) corpus.Collection {
	c.GradeDistribution = copyDistribution(c.GradeDistribution)
	return c
}

func copyDistribution(in map[corpus.Grade]int) map[corpus.Grade]int {
	if in == nil {
		return nil
	}
	out := make(map[corpus.Grade]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
