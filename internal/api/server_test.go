package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/hadith-ingest/internal/config"
	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/ingest"
	"github.com/JakeFAU/hadith-ingest/internal/progress"
	"github.com/JakeFAU/hadith-ingest/internal/storage/memory"
)

func TestServer_StartIngest_Accepted(t *testing.T) {
	t.Parallel()

	starter := &fakeStarter{}
	server := newTestServer(t, func(d *Deps) { d.Jobs = starter })

	req := httptest.NewRequest(http.MethodPost, "/v1/ingest/alpha", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "alpha", body["job_id"])
	require.Equal(t, []string{"alpha"}, starter.calls())
	require.Equal(t, []ingest.SourceMode{""}, starter.sources())
}

func TestServer_StartIngest_SourceParam(t *testing.T) {
	t.Parallel()

	starter := &fakeStarter{}
	server := newTestServer(t, func(d *Deps) { d.Jobs = starter })

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/ingest/alpha?source=Sunnah", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []ingest.SourceMode{ingest.SourceSunnah}, starter.sources())

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/ingest/alpha?source=ftp", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "unknown source")
	require.Len(t, starter.calls(), 1)
}

func TestServer_StartIngest_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "unknown", err: fmt.Errorf("%w: gamma", ingest.ErrUnknownCollection), want: http.StatusNotFound},
		{name: "in flight", err: fmt.Errorf("%w: alpha", ingest.ErrJobInFlight), want: http.StatusConflict},
		{name: "queue full", err: fmt.Errorf("enqueue alpha: %w", context.DeadlineExceeded), want: http.StatusServiceUnavailable},
		{name: "other", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			server := newTestServer(t, func(d *Deps) { d.Jobs = &fakeStarter{err: tc.err} })
			rec := httptest.NewRecorder()
			server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/ingest/alpha", nil))
			require.Equal(t, tc.want, rec.Code)
			require.Contains(t, rec.Body.String(), "error")
		})
	}
}

func TestServer_ListCollections(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/collections", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Collections []collectionDTO `json:"collections"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Collections, 2)
	require.Equal(t, "alpha", body.Collections[0].Slug)
	require.Equal(t, 9, body.Collections[0].Expected)
}

func TestServer_Status(t *testing.T) {
	t.Parallel()

	reporter := &fakeReporter{report: []ingest.CollectionStatus{{
		Slug: "alpha", Name: "Alpha", Present: true, Expected: 9, Stored: 9, Percent: 100, Complete: true,
	}}}
	server := newTestServer(t, func(d *Deps) { d.Status = reporter })

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"complete":true`)

	reporter.err = errors.New("db down")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_StatusUnavailable(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(d *Deps) { d.Status = nil })
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/status", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(d *Deps) {
		d.Ready = func(context.Context) error { return errors.New("pool closed") }
	})
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	newTestServer(t, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	newTestServer(t, nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Auth = config.AuthConfig{Enabled: true, APIKey: "secret"}
	server, err := NewServer(testDeps(t), cfg)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/progress", nil))
	require.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/progress", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/progress?api_key=secret", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestNewServerRequiresDeps(t *testing.T) {
	t.Parallel()

	deps := testDeps(t)
	deps.Jobs = nil
	_, err := NewServer(deps, testConfig())
	require.Error(t, err)

	deps = testDeps(t)
	deps.Progress = nil
	_, err = NewServer(deps, testConfig())
	require.Error(t, err)

	deps = testDeps(t)
	deps.Catalog = nil
	_, err = NewServer(deps, testConfig())
	require.Error(t, err)
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	newTestServer(t, nil).Handler().ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

// --- helpers/fakes ---

type fakeStarter struct {
	mu    sync.Mutex
	slugs []string
	modes []ingest.SourceMode
	err   error
}

func (f *fakeStarter) Start(_ context.Context, slug string, mode ingest.SourceMode) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.slugs = append(f.slugs, slug)
	f.modes = append(f.modes, mode)
	return slug, nil
}

func (f *fakeStarter) sources() []ingest.SourceMode {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ingest.SourceMode(nil), f.modes...)
}

func (f *fakeStarter) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.slugs...)
}

type fakeReporter struct {
	report []ingest.CollectionStatus
	err    error
}

func (f *fakeReporter) Report(context.Context) ([]ingest.CollectionStatus, error) {
	return f.report, f.err
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}

func testCatalog(t *testing.T) *corpus.Catalog {
	t.Helper()
	catalog, err := corpus.NewCatalog(
		corpus.Entry{Slug: "alpha", NameEnglish: "Alpha", PrimaryEdition: "eng-alpha", Display: "Alpha", Expected: 9},
		corpus.Entry{Slug: "beta", NameEnglish: "Beta", SunnahSlug: "beta", Display: "Beta", Expected: 4},
	)
	require.NoError(t, err)
	return catalog
}

func testConfig() config.Config {
	return config.Config{
		Progress: config.ProgressConfig{StreamIntervalMs: 10, StreamMaxMinutes: 1},
	}
}

func testDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{
		Jobs:     &fakeStarter{},
		Progress: progress.NewRegistry(progress.RegistryConfig{}),
		Status:   &fakeReporter{},
		Catalog:  testCatalog(t),
		Runs:     memory.NewRunStore(),
		Logger:   zap.NewNop(),
	}
}

func newTestServer(t *testing.T, mutate func(*Deps)) *Server {
	t.Helper()
	deps := testDeps(t)
	if mutate != nil {
		mutate(&deps)
	}
	server, err := NewServer(deps, testConfig())
	require.NoError(t, err)
	return server
}
