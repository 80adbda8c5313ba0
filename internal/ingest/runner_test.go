package ingest_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/ingest"
	"github.com/JakeFAU/hadith-ingest/internal/progress"
	"github.com/JakeFAU/hadith-ingest/internal/storage/memory"
)

type runnerFixture struct {
	store    *memory.CorpusStore
	adapter  *fakeAdapter
	pages    *fakeAdapter
	clock    *fakeClock
	registry *progress.Registry
	runner   *ingest.Runner
}

func newRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	f := &runnerFixture{
		store:    memory.NewCorpusStore(),
		adapter:  newFakeAdapter(),
		clock:    newFakeClock(),
		registry: progress.NewRegistry(progress.RegistryConfig{}),
	}
	runner, err := ingest.NewRunner(
		ingest.RunnerConfig{Writer: ingest.WriterConfig{BatchSize: 50}},
		f.store, f.adapter, nil, nil, f.clock, zaptest.NewLogger(t),
	)
	require.NoError(t, err)
	f.runner = runner
	return f
}

// newDualRunnerFixture wires both a CDN adapter and an HTML page adapter.
func newDualRunnerFixture(t *testing.T) *runnerFixture {
	t.Helper()
	f := &runnerFixture{
		store:    memory.NewCorpusStore(),
		adapter:  newFakeAdapter(),
		pages:    newFakeAdapter(),
		clock:    newFakeClock(),
		registry: progress.NewRegistry(progress.RegistryConfig{}),
	}
	runner, err := ingest.NewRunner(
		ingest.RunnerConfig{Writer: ingest.WriterConfig{BatchSize: 50}, MissThreshold: 2},
		f.store, f.adapter, f.pages, nil, f.clock, zaptest.NewLogger(t),
	)
	require.NoError(t, err)
	f.runner = runner
	return f
}

func (f *runnerFixture) run(t *testing.T, ctx context.Context, entry corpus.Entry) (ingest.Summary, progress.Snapshot, error) {
	t.Helper()
	return f.runFrom(t, ctx, entry, "")
}

func (f *runnerFixture) runFrom(
	t *testing.T,
	ctx context.Context,
	entry corpus.Entry,
	mode ingest.SourceMode,
) (ingest.Summary, progress.Snapshot, error) {
	t.Helper()
	tr := f.registry.Begin(entry.Slug, uuid.Must(uuid.NewV7()))
	sum, err := f.runner.Run(ctx, entry, mode, tr)
	return sum, tr.Snapshot(), err
}

func (f *runnerFixture) collection(t *testing.T, slug string) corpus.Collection {
	t.Helper()
	col, err := f.store.GetCollection(context.Background(), slug)
	require.NoError(t, err)
	return col
}

func TestRunnerAlphaScenario(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newRunnerFixture(t)
	seedAlpha(f.adapter, false)

	sum, snap, err := f.run(t, ctx, alphaEntry)
	require.NoError(t, err)
	require.Equal(t, progress.PhaseDone, snap.Phase)
	require.Equal(t, 9, snap.HadithsInserted)
	require.Equal(t, 0, snap.HadithsUpdated)
	require.Equal(t, 9, sum.Inserted)
	require.Equal(t, 0, sum.Updated)
	require.Equal(t, 9, sum.Total)
	require.Equal(t, 2, sum.Sections)
	require.Equal(t, "Completed Alpha: 9 inserted, 0 updated", snap.Message)

	col := f.collection(t, "alpha")
	require.Equal(t, 9, col.TotalHadiths)
	require.Equal(t, 2, col.TotalBooks)
	books, err := f.store.ListBooks(ctx, col.ID)
	require.NoError(t, err)
	require.Len(t, books, 2)
	require.Equal(t, "Revelation", books[0].NameEnglish)
	require.Equal(t, "كتاب الإيمان", books[1].NameArabic)
	require.Equal(t, 5, books[0].HadithCount)
	require.Equal(t, 4, books[1].HadithCount)
	require.Equal(t, 1, books[1].ChapterCount)

	nine, ok := f.store.Record("alpha", 9)
	require.True(t, ok)
	require.Empty(t, nine.EnglishText)
	require.Equal(t, arabicText(9), nine.ArabicText)
	require.Equal(t, "Alpha 9", nine.Reference)

	// The translation for record 9 appears upstream.
	seedAlpha(f.adapter, true)
	sum, snap, err = f.run(t, ctx, alphaEntry)
	require.NoError(t, err)
	require.Equal(t, progress.PhaseDone, snap.Phase)
	require.Equal(t, 0, sum.Inserted)
	require.Equal(t, 1, sum.Updated)
	require.Equal(t, 9, sum.Total)

	nine, _ = f.store.Record("alpha", 9)
	require.Equal(t, englishText(9), nine.EnglishText)
	require.Equal(t, arabicText(9), nine.ArabicText)
	require.Equal(t, "Anas", nine.Narrator)

	// Nothing left to change.
	sum, _, err = f.run(t, ctx, alphaEntry)
	require.NoError(t, err)
	require.Equal(t, 0, sum.Inserted)
	require.Equal(t, 0, sum.Updated)
	require.Len(t, f.store.Links(), 9)
}

func TestRunnerPrimaryEditionMissingIsFatal(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t)
	_, snap, err := f.run(t, context.Background(), alphaEntry)
	require.Error(t, err)
	require.True(t, ingest.IsFatal(err))
	require.Equal(t, progress.PhaseError, snap.Phase)
	require.Contains(t, snap.Error, "fetch primary edition")
	require.NotNil(t, snap.FinishedAt)
}

func TestRunnerSkipsFailedSectionWithWarning(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t)
	seedAlpha(f.adapter, true)
	f.adapter.set("eng-alpha", 2, `{"hadiths": "not-a-list"}`)

	sum, snap, err := f.run(t, context.Background(), alphaEntry)
	require.NoError(t, err)
	require.Equal(t, progress.PhaseDone, snap.Phase)
	require.Equal(t, 5, sum.Inserted)
	require.Equal(t, 1, sum.Sections)
	require.GreaterOrEqual(t, snap.WarningCount, 1)
	require.Contains(t, snap.Errors[0], "eng-alpha section 2")
}

func TestRunnerBackfillsFailedSecondaryEdition(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t)
	seedAlpha(f.adapter, true)
	f.adapter.failNext("ara-alpha", 2, 1)

	sum, snap, err := f.run(t, context.Background(), alphaEntry)
	require.NoError(t, err)
	require.Equal(t, progress.PhaseDone, snap.Phase)
	require.Equal(t, 9, sum.Inserted)
	require.Equal(t, 4, sum.Backfilled)
	require.Equal(t, 4, sum.Updated)
	require.Equal(t, 1, snap.WarningCount)
	require.Equal(t, 2, f.adapter.Calls("ara-alpha", 2))

	six, _ := f.store.Record("alpha", 6)
	require.Equal(t, arabicText(6), six.ArabicText)
	require.Equal(t, englishText(6), six.EnglishText)
}

func TestRunnerRestoresMissingLinks(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newRunnerFixture(t)
	seedAlpha(f.adapter, true)
	_, _, err := f.run(t, ctx, alphaEntry)
	require.NoError(t, err)

	col := f.collection(t, "alpha")
	three, ok := f.store.Record("alpha", 3)
	require.True(t, ok)
	f.store.DeleteLink(col.ID, three.ID)
	require.Len(t, f.store.Links(), 8)

	sum, _, err := f.run(t, ctx, alphaEntry)
	require.NoError(t, err)
	require.Equal(t, 0, sum.Inserted)
	require.Equal(t, 9, sum.Total)
	require.Len(t, f.store.Links(), 9)
}

func TestRunnerUpgradesPlaceholderBookNames(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newRunnerFixture(t)
	seedAlpha(f.adapter, true)

	col, err := f.store.EnsureCollection(ctx, alphaEntry.Collection())
	require.NoError(t, err)
	_, err = f.store.CreateBook(ctx, corpus.Book{CollectionID: col.ID, Number: 1, NameEnglish: "Book 1"})
	require.NoError(t, err)

	_, _, err = f.run(t, ctx, alphaEntry)
	require.NoError(t, err)

	book, err := f.store.GetBook(ctx, col.ID, 1)
	require.NoError(t, err)
	require.Equal(t, "Revelation", book.NameEnglish)
	require.Equal(t, "كتاب بدء الوحي", book.NameArabic)

	chapters, err := f.store.ListChapters(ctx, book.ID)
	require.NoError(t, err)
	require.Len(t, chapters, 1)
	require.Equal(t, 1, chapters[0].FirstRecord)
	require.Equal(t, 5, chapters[0].LastRecord)
}

func TestRunnerCancelled(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t)
	seedAlpha(f.adapter, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, snap, err := f.run(t, ctx, alphaEntry)
	require.ErrorIs(t, err, context.Canceled)
	require.Contains(t, err.Error(), "job cancelled")
	require.Equal(t, progress.PhaseError, snap.Phase)
	require.Empty(t, f.store.Links())
}

func TestNewRunnerValidates(t *testing.T) {
	t.Parallel()

	_, err := ingest.NewRunner(ingest.RunnerConfig{}, nil, newFakeAdapter(), nil, nil, newFakeClock(), nil)
	require.Error(t, err)
	_, err = ingest.NewRunner(ingest.RunnerConfig{}, memory.NewCorpusStore(), nil, nil, nil, newFakeClock(), nil)
	require.Error(t, err)
	_, err = ingest.NewRunner(ingest.RunnerConfig{}, memory.NewCorpusStore(), newFakeAdapter(), nil, nil, nil, nil)
	require.Error(t, err)
}

func TestRunnerWithoutUsableSource(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t)
	entry := corpus.Entry{Slug: "beta", NameEnglish: "Beta", SunnahSlug: "beta", Display: "Beta"}
	_, snap, err := f.run(t, context.Background(), entry)
	require.True(t, ingest.IsFatal(err))
	require.Equal(t, progress.PhaseError, snap.Phase)

	_, err = f.store.GetCollection(context.Background(), "beta")
	require.NoError(t, err)
}

func TestRunnerFallsBackToPagesWhenEditionEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newDualRunnerFixture(t)
	seedAlphaPages(f.pages)

	sum, snap, err := f.run(t, ctx, alphaPagesEntry)
	require.NoError(t, err)
	require.Equal(t, progress.PhaseDone, snap.Phase, snap.Error)
	require.Equal(t, 5, sum.Inserted)
	require.Equal(t, 2, sum.Sections)
	require.Equal(t, 5, sum.Total)
	require.Positive(t, f.adapter.Calls("eng-alpha", 1))
	require.Equal(t, 1, f.pages.Calls("alpha", 1))
	require.Contains(t, strings.Join(snap.Errors, "\n"), "falling back to sunnah.com")

	books, err := f.store.ListBooks(ctx, f.collection(t, "alpha").ID)
	require.NoError(t, err)
	require.Len(t, books, 2)
	require.Equal(t, "Revelation", books[0].NameEnglish)
	require.Equal(t, 3, books[0].HadithCount)

	four, ok := f.store.Record("alpha", 4)
	require.True(t, ok)
	require.Equal(t, englishText(4), four.EnglishText)
	require.NotEmpty(t, four.ArabicText)
	require.Equal(t, "Alpha 4", four.Reference)

	// A rerun over the same pages changes nothing.
	sum, _, err = f.run(t, ctx, alphaPagesEntry)
	require.NoError(t, err)
	require.Equal(t, 0, sum.Inserted)
	require.Equal(t, 0, sum.Updated)
}

func TestRunnerSunnahSourceSkipsEdition(t *testing.T) {
	t.Parallel()

	f := newDualRunnerFixture(t)
	seedAlpha(f.adapter, true)
	seedAlphaPages(f.pages)

	sum, snap, err := f.runFrom(t, context.Background(), alphaPagesEntry, ingest.SourceSunnah)
	require.NoError(t, err)
	require.Equal(t, progress.PhaseDone, snap.Phase)
	require.Equal(t, 5, sum.Inserted)
	require.Zero(t, f.adapter.Calls("eng-alpha", 1))
	require.Equal(t, 1, f.pages.Calls("alpha", 2))
}

func TestRunnerCDNSourceDoesNotFallBack(t *testing.T) {
	t.Parallel()

	f := newDualRunnerFixture(t)
	seedAlphaPages(f.pages)

	_, snap, err := f.runFrom(t, context.Background(), alphaPagesEntry, ingest.SourceCDN)
	require.True(t, ingest.IsFatal(err))
	require.Contains(t, snap.Error, "fetch primary edition")
	require.Zero(t, f.pages.Calls("alpha", 1))
}

func TestRunnerSunnahSourceNeedsSlug(t *testing.T) {
	t.Parallel()

	f := newDualRunnerFixture(t)
	seedAlpha(f.adapter, true)

	_, snap, err := f.runFrom(t, context.Background(), alphaEntry, ingest.SourceSunnah)
	require.True(t, ingest.IsFatal(err))
	require.Contains(t, snap.Error, "select source")
	require.Zero(t, f.adapter.Calls("eng-alpha", 1))
}
