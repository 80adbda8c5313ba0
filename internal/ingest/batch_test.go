package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/ingest"
	"github.com/JakeFAU/hadith-ingest/internal/reconcile"
	"github.com/JakeFAU/hadith-ingest/internal/storage/memory"
)

type countingStore struct {
	*memory.CorpusStore
	mu          sync.Mutex
	createCalls []int
}

func (s *countingStore) CreateRecords(ctx context.Context, records []corpus.Record) ([]corpus.Record, error) {
	s.mu.Lock()
	s.createCalls = append(s.createCalls, len(records))
	s.mu.Unlock()
	return s.CorpusStore.CreateRecords(ctx, records)
}

type warnings struct {
	mu   sync.Mutex
	msgs []string
}

func (w *warnings) Warn(msg string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msg)
}

type writerFixture struct {
	store *countingStore
	clock *fakeClock
	place ingest.Placement
}

func newWriterFixture(t *testing.T) *writerFixture {
	t.Helper()
	ctx := context.Background()
	st := &countingStore{CorpusStore: memory.NewCorpusStore()}
	col, err := st.EnsureCollection(ctx, corpus.Collection{Slug: "alpha", NameEnglish: "Alpha"})
	require.NoError(t, err)
	book, err := st.CreateBook(ctx, corpus.Book{CollectionID: col.ID, Number: 1, NameEnglish: "Revelation"})
	require.NoError(t, err)
	first, err := st.CreateChapter(ctx, corpus.Chapter{BookID: book.ID, Number: 1, NameEnglish: "Opening", FirstRecord: 1, LastRecord: 3})
	require.NoError(t, err)
	second, err := st.CreateChapter(ctx, corpus.Chapter{BookID: book.ID, Number: 2, NameEnglish: "Closing", FirstRecord: 4, LastRecord: 6})
	require.NoError(t, err)
	return &writerFixture{
		store: st,
		clock: newFakeClock(),
		place: ingest.Placement{CollectionID: col.ID, BookID: book.ID, Chapters: []corpus.Chapter{second, first}},
	}
}

func candidates(from, to int) []corpus.Candidate {
	out := make([]corpus.Candidate, 0, to-from+1)
	for n := from; n <= to; n++ {
		out = append(out, corpus.Candidate{Number: n, EnglishText: englishText(n), Grade: corpus.GradeHigh, GradeExplicit: true, BookNumber: 1})
	}
	return out
}

func decide(ix *reconcile.Index, cands []corpus.Candidate) []reconcile.Decision {
	out := make([]reconcile.Decision, 0, len(cands))
	for _, c := range cands {
		out = append(out, reconcile.Decide(ix, reconcile.Target{Slug: "alpha", Display: "Alpha"}, c))
	}
	return out
}

func TestBatchWriterChunksCreates(t *testing.T) {
	t.Parallel()

	f := newWriterFixture(t)
	w := ingest.NewBatchWriter(ingest.WriterConfig{BatchSize: 3, BatchDelay: 20 * time.Millisecond}, f.store, f.clock, zaptest.NewLogger(t))
	ix := reconcile.NewIndex(nil)

	res, err := w.Write(context.Background(), ix, f.place, "alpha", decide(ix, candidates(1, 7)), nil)
	require.NoError(t, err)
	require.Equal(t, ingest.WriteResult{Created: 7, Linked: 7}, res)
	require.Equal(t, []int{3, 3, 1}, f.store.createCalls)
	require.Equal(t, []time.Duration{20 * time.Millisecond, 20 * time.Millisecond, 20 * time.Millisecond}, f.clock.Sleeps())
	require.Equal(t, 7, ix.Len())

	entry, ok := ix.Get(7)
	require.True(t, ok)
	require.True(t, entry.Linked)
	require.NotZero(t, entry.Record.ID)
}

func TestBatchWriterAssignsChaptersByRange(t *testing.T) {
	t.Parallel()

	f := newWriterFixture(t)
	w := ingest.NewBatchWriter(ingest.WriterConfig{}, f.store, f.clock, nil)
	ix := reconcile.NewIndex(nil)

	_, err := w.Write(context.Background(), ix, f.place, "alpha", decide(ix, candidates(2, 8)), nil)
	require.NoError(t, err)

	byNumber := map[int]int64{}
	for _, l := range f.store.Links() {
		require.NotNil(t, l.ChapterID)
		byNumber[l.Sequence] = *l.ChapterID
	}
	opening, closing := f.place.Chapters[1].ID, f.place.Chapters[0].ID
	assert.Equal(t, opening, byNumber[2])
	assert.Equal(t, closing, byNumber[5])
	// Outside every range: first chapter.
	assert.Equal(t, opening, byNumber[8])
}

func TestBatchWriterFallsBackToSingleCreates(t *testing.T) {
	t.Parallel()

	f := newWriterFixture(t)
	f.store.FailCreate = func(r corpus.Record) error {
		if r.Number == 2 {
			return errors.New("constraint violation")
		}
		return nil
	}
	w := ingest.NewBatchWriter(ingest.WriterConfig{}, f.store, f.clock, zaptest.NewLogger(t))
	ix := reconcile.NewIndex(nil)
	warn := &warnings{}

	res, err := w.Write(context.Background(), ix, f.place, "alpha", decide(ix, candidates(1, 3)), warn)
	require.NoError(t, err)
	require.Equal(t, 2, res.Created)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, 2, res.Linked)
	require.Equal(t, []int{3, 1, 1, 1}, f.store.createCalls)
	require.Len(t, warn.msgs, 1)
	require.Contains(t, warn.msgs[0], "create record 2")

	_, ok := ix.Get(2)
	require.False(t, ok)
}

func TestBatchWriterUpdatesIndividually(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newWriterFixture(t)
	created, err := f.store.CreateRecords(ctx, []corpus.Record{
		{CollectionSlug: "alpha", Number: 1, EnglishText: "[Content pending]", Grade: corpus.GradeUnknown, Reference: "Alpha 1", BookNumber: 1},
	})
	require.NoError(t, err)
	f.store.createCalls = nil

	ix := reconcile.NewIndex([]reconcile.Entry{{Record: created[0], Linked: true}})
	w := ingest.NewBatchWriter(ingest.WriterConfig{}, f.store, f.clock, nil)

	res, err := w.Write(ctx, ix, f.place, "alpha", decide(ix, candidates(1, 1)), nil)
	require.NoError(t, err)
	require.Equal(t, ingest.WriteResult{Updated: 1}, res)
	require.Empty(t, f.store.createCalls)

	rec, ok := f.store.Record("alpha", 1)
	require.True(t, ok)
	require.Equal(t, englishText(1), rec.EnglishText)
	require.Equal(t, corpus.GradeHigh, rec.Grade)

	entry, _ := ix.Get(1)
	require.True(t, entry.Linked)
	require.Equal(t, englishText(1), entry.Record.EnglishText)
}

func TestBatchWriterHealsMissingLinks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newWriterFixture(t)
	created, err := f.store.CreateRecords(ctx, []corpus.Record{
		{CollectionSlug: "alpha", Number: 4, EnglishText: englishText(4), Grade: corpus.GradeHigh, Reference: "Alpha 4", BookNumber: 1},
	})
	require.NoError(t, err)

	ix := reconcile.NewIndex([]reconcile.Entry{{Record: created[0]}})
	w := ingest.NewBatchWriter(ingest.WriterConfig{}, f.store, f.clock, nil)

	res, err := w.Write(ctx, ix, f.place, "alpha", decide(ix, candidates(4, 4)), nil)
	require.NoError(t, err)
	require.Equal(t, ingest.WriteResult{Linked: 1}, res)
	require.Len(t, f.store.Links(), 1)

	entry, _ := ix.Get(4)
	require.True(t, entry.Linked)
}

func TestBatchWriterStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newWriterFixture(t)
	w := ingest.NewBatchWriter(ingest.WriterConfig{BatchSize: 2}, f.store, f.clock, nil)
	ix := reconcile.NewIndex(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.Write(ctx, ix, f.place, "alpha", decide(ix, candidates(1, 4)), nil)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, f.store.Links())
}

func TestBatchWriterClampsBatchSize(t *testing.T) {
	t.Parallel()

	f := newWriterFixture(t)
	w := ingest.NewBatchWriter(ingest.WriterConfig{BatchSize: 500}, f.store, f.clock, nil)
	ix := reconcile.NewIndex(nil)

	cands := candidates(1, ingest.MaxBatchSize+1)
	res, err := w.Write(context.Background(), ix, f.place, "alpha", decide(ix, cands), nil)
	require.NoError(t, err)
	require.Equal(t, ingest.MaxBatchSize+1, res.Created)
	require.Equal(t, []int{ingest.DefaultBatchSize, 1}, f.store.createCalls, fmt.Sprint(f.store.createCalls))
}
