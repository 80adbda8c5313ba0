package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/ingest"
	"github.com/JakeFAU/hadith-ingest/internal/progress"
)

type fakeApp struct {
	catalog  *corpus.Catalog
	ingested []string
	modes    []ingest.SourceMode
	ingErr   error
	snaps    map[string]progress.Snapshot
	report   []ingest.CollectionStatus
	ran      bool
	closed   int
}

func (f *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func (f *fakeApp) Catalog() *corpus.Catalog { return f.catalog }

func (f *fakeApp) Progress() map[string]progress.Snapshot { return f.snaps }

func (f *fakeApp) Run(context.Context) error {
	f.ran = true
	return nil
}

func (f *fakeApp) Close(context.Context) error {
	f.closed++
	return nil
}

func (f *fakeApp) Ingest(_ context.Context, slug string, mode ingest.SourceMode) error {
	f.ingested = append(f.ingested, slug)
	f.modes = append(f.modes, mode)
	return f.ingErr
}

func (f *fakeApp) Report(context.Context) ([]ingest.CollectionStatus, error) {
	return f.report, nil
}

func newFakeApp(t *testing.T) *fakeApp {
	t.Helper()
	catalog, err := corpus.NewCatalog(
		corpus.Entry{Slug: "alpha", NameEnglish: "Alpha", PrimaryEdition: "eng-alpha", Display: "Alpha", Expected: 9},
	)
	require.NoError(t, err)
	return &fakeApp{
		catalog: catalog,
		snaps: map[string]progress.Snapshot{
			"alpha": {Collection: "alpha", Phase: progress.PhaseDone, SectionsDone: 2, HadithsTotal: 9, HadithsInserted: 9},
		},
		report: []ingest.CollectionStatus{{
			Slug: "alpha", Name: "Alpha", Present: true, Expected: 9, Stored: 9, Percent: 100, Complete: true,
			Books: []ingest.BookStatus{{Number: 1, Name: "Revelation", Hadiths: 9, Seeded: true}},
		}},
	}
}

// execute runs the root command against app and returns stdout.
func execute(t *testing.T, app *fakeApp, args ...string) (string, error) {
	t.Helper()
	prev := newApp
	newApp = func(context.Context, string) (App, error) { return app, nil }
	t.Cleanup(func() { newApp = prev })

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestIngestCommandRunsCollection(t *testing.T) {
	app := newFakeApp(t)
	out, err := execute(t, app, "ingest", "alpha")
	require.NoError(t, err)
	require.Equal(t, []string{"alpha"}, app.ingested)
	require.Contains(t, out, "alpha")
	require.Contains(t, out, "inserted=9")
	require.Equal(t, 1, app.closed)
	require.Equal(t, []ingest.SourceMode{""}, app.modes)
}

func TestIngestCommandSelectsSource(t *testing.T) {
	app := newFakeApp(t)
	_, err := execute(t, app, "ingest", "alpha", "--source", "sunnah")
	require.NoError(t, err)
	require.Equal(t, []ingest.SourceMode{ingest.SourceSunnah}, app.modes)

	app = newFakeApp(t)
	_, err = execute(t, app, "ingest", "alpha", "--source", "rss")
	require.ErrorIs(t, err, ingest.ErrUnknownSource)
	require.Empty(t, app.ingested)
}

func TestIngestCommandAcceptsAll(t *testing.T) {
	app := newFakeApp(t)
	_, err := execute(t, app, "ingest", "all")
	require.NoError(t, err)
	require.Equal(t, []string{corpus.AllCollections}, app.ingested)
}

func TestIngestCommandRejectsUnknownSlug(t *testing.T) {
	app := newFakeApp(t)
	_, err := execute(t, app, "ingest", "gamma")
	require.ErrorContains(t, err, "unknown collection")
	require.Empty(t, app.ingested)
}

func TestIngestCommandReportsFailure(t *testing.T) {
	app := newFakeApp(t)
	app.ingErr = errors.New("fetch primary edition: no sections retrieved")
	app.snaps["alpha"] = progress.Snapshot{Collection: "alpha", Phase: progress.PhaseError, Error: "no sections retrieved"}

	out, err := execute(t, app, "ingest", "alpha")
	require.Error(t, err)
	require.Contains(t, out, "error: no sections retrieved")
}

func TestServeCommandRunsApp(t *testing.T) {
	app := newFakeApp(t)
	_, err := execute(t, app, "serve")
	require.NoError(t, err)
	require.True(t, app.ran)
}

func TestStatusCommandFormats(t *testing.T) {
	out, err := execute(t, newFakeApp(t), "status")
	require.NoError(t, err)
	require.Contains(t, out, "SLUG")
	require.Contains(t, out, "100.0%")
	require.NotContains(t, out, "Revelation")

	out, err = execute(t, newFakeApp(t), "status", "--books")
	require.NoError(t, err)
	require.Contains(t, out, "book 1 Revelation")

	out, err = execute(t, newFakeApp(t), "status", "-o", "json")
	require.NoError(t, err)
	var decoded []ingest.CollectionStatus
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 1)
	require.True(t, decoded[0].Complete)
	require.Empty(t, decoded[0].Books)

	out, err = execute(t, newFakeApp(t), "status", "-o", "yaml", "--books")
	require.NoError(t, err)
	var fromYAML []ingest.CollectionStatus
	require.NoError(t, yaml.Unmarshal([]byte(out), &fromYAML))
	require.Equal(t, "alpha", fromYAML[0].Slug)
	require.Len(t, fromYAML[0].Books, 1)

	_, err = execute(t, newFakeApp(t), "status", "-o", "xml")
	require.ErrorContains(t, err, "unknown output format")
}

func TestCollectionsCommandListsCatalog(t *testing.T) {
	out, err := execute(t, newFakeApp(t), "collections")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "eng-alpha")
}

func TestRootFailsWhenAppCannotBuild(t *testing.T) {
	prev := newApp
	newApp = func(context.Context, string) (App, error) { return nil, errors.New("dsn missing") }
	t.Cleanup(func() { newApp = prev })

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"collections"})
	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "dsn missing")
}
