package ingest_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/ingest"
	"github.com/JakeFAU/hadith-ingest/internal/storage/memory"
)

func TestStatusReport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := memory.NewCorpusStore()
	cat, err := corpus.NewCatalog(
		corpus.Entry{Slug: "alpha", NameEnglish: "Alpha", Expected: 20},
		corpus.Entry{Slug: "beta", NameEnglish: "Beta", Expected: 3},
	)
	require.NoError(t, err)

	col, err := st.EnsureCollection(ctx, corpus.Collection{Slug: "alpha", NameEnglish: "Alpha"})
	require.NoError(t, err)
	revelation, err := st.CreateBook(ctx, corpus.Book{CollectionID: col.ID, Number: 1, NameEnglish: "Revelation"})
	require.NoError(t, err)
	filler, err := st.CreateBook(ctx, corpus.Book{CollectionID: col.ID, Number: 2, NameEnglish: "Belief"})
	require.NoError(t, err)
	_, err = st.CreateBook(ctx, corpus.Book{CollectionID: col.ID, Number: 3, NameEnglish: "Empty"})
	require.NoError(t, err)

	var records []corpus.Record
	for n := 1; n <= 19; n++ {
		text := englishText(n)
		if n == 11 {
			text = "[Content pending] " + strings.Repeat("x", 100)
		}
		records = append(records, corpus.Record{CollectionSlug: "alpha", Number: n, EnglishText: text})
	}
	created, err := st.CreateRecords(ctx, records)
	require.NoError(t, err)
	var links []corpus.Link
	for _, r := range created {
		book := revelation.ID
		if r.Number > 10 {
			book = filler.ID
		}
		links = append(links, corpus.Link{CollectionID: col.ID, BookID: book, RecordID: r.ID, Sequence: r.Number})
	}
	require.NoError(t, st.CreateLinks(ctx, links))

	report, err := ingest.NewStatusReporter(cat, st).Report(ctx)
	require.NoError(t, err)
	require.Len(t, report, 2)

	alpha := report[0]
	require.True(t, alpha.Present)
	require.Equal(t, 19, alpha.Stored)
	require.InDelta(t, 95.0, alpha.Percent, 0.001)
	require.True(t, alpha.Complete)
	require.Len(t, alpha.Books, 3)
	require.Equal(t, ingest.BookStatus{Number: 1, Name: "Revelation", Hadiths: 10, Seeded: true}, alpha.Books[0])
	require.Equal(t, ingest.BookStatus{Number: 2, Name: "Belief", Hadiths: 9, Seeded: false}, alpha.Books[1])
	require.Equal(t, ingest.BookStatus{Number: 3, Name: "Empty"}, alpha.Books[2])

	beta := report[1]
	require.False(t, beta.Present)
	require.False(t, beta.Complete)
	require.Equal(t, 3, beta.Expected)
}
