package source

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hadith-ingest/internal/fetcher"
)

type scriptedFetcher struct {
	mu        sync.Mutex
	responses []fetcher.Response
	errs      []error
	calls     int
}

func (s *scriptedFetcher) Fetch(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return fetcher.Response{}, s.errs[i]
	}
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	resp := s.responses[i]
	resp.URL = req.URL
	return resp, nil
}

type promoteAll bool

func (p promoteAll) ShouldPromote(fetcher.Response) bool { return bool(p) }

type countingWaiter struct{ n int }

func (w *countingWaiter) Wait(context.Context, string) error {
	w.n++
	return nil
}

func TestHTTPClientRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{responses: []fetcher.Response{
		{StatusCode: http.StatusBadGateway},
		{StatusCode: http.StatusOK, Body: []byte("ok"), Headers: http.Header{"Content-Type": {"application/json"}}},
	}}
	w := &countingWaiter{}
	c := &HTTPClient{Fetcher: f, Limiter: w, Retry: fastPolicy(3), Now: func() time.Time { return time.Unix(10, 0) }}

	resp, err := c.Get(context.Background(), "https://cdn.example/eng-alpha/1.min.json")
	require.NoError(t, err)
	require.Equal(t, "ok", string(resp.Body))
	require.Equal(t, 2, f.calls)
	require.Equal(t, 2, w.n)

	payload := c.Payload(Ref{Kind: KindStructured, Name: "eng-alpha"}, 1, resp)
	require.Equal(t, "application/json", payload.ContentType)
	require.Equal(t, time.Unix(10, 0), payload.FetchedAt)
}

func TestHTTPClientNotFoundIsNotRetried(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{responses: []fetcher.Response{{StatusCode: http.StatusNotFound}}}
	c := &HTTPClient{Fetcher: f, Retry: fastPolicy(3)}

	_, err := c.Get(context.Background(), "https://cdn.example/eng-alpha/99.min.json")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, 1, f.calls)
}

func TestHTTPClientTransportErrorIsTransient(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{
		errs:      []error{errors.New("connection reset"), errors.New("connection reset")},
		responses: []fetcher.Response{{}, {}, {StatusCode: http.StatusOK}},
	}
	c := &HTTPClient{Fetcher: f, Retry: fastPolicy(2)}

	_, err := c.Get(context.Background(), "https://cdn.example/x")
	require.True(t, IsTransient(err))
	require.Equal(t, 2, f.calls)
}

func TestHTTPClientPromotesToHeadless(t *testing.T) {
	t.Parallel()

	plain := &scriptedFetcher{responses: []fetcher.Response{{StatusCode: http.StatusForbidden, Body: []byte("Just a moment...")}}}
	browser := &scriptedFetcher{responses: []fetcher.Response{{StatusCode: http.StatusOK, Body: []byte("<html>rendered</html>"), UsedHeadless: true}}}
	c := &HTTPClient{Fetcher: plain, Headless: browser, Detector: promoteAll(true), Retry: fastPolicy(1)}

	resp, err := c.Get(context.Background(), "https://sunnah.com/alpha/1")
	require.NoError(t, err)
	require.True(t, resp.UsedHeadless)
	require.Equal(t, 1, browser.calls)
}

type unavailable struct{}

func (unavailable) Fetch(context.Context, fetcher.Request) (fetcher.Response, error) {
	return fetcher.Response{}, fetcher.ErrUnavailable
}

func TestHTTPClientKeepsPlainResponseWhenHeadlessDisabled(t *testing.T) {
	t.Parallel()

	plain := &scriptedFetcher{responses: []fetcher.Response{{StatusCode: http.StatusOK, Body: []byte("")}}}
	c := &HTTPClient{Fetcher: plain, Headless: unavailable{}, Detector: promoteAll(true), Retry: fastPolicy(1)}

	resp, err := c.Get(context.Background(), "https://sunnah.com/alpha/1")
	require.NoError(t, err)
	require.False(t, resp.UsedHeadless)
}
