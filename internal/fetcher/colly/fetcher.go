// Package collyfetcher implements fetcher.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/hadith-ingest/internal/fetcher"
)

// DefaultTimeout bounds a single upstream request.
const DefaultTimeout = 30 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements fetcher.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. Revisits are allowed because retries and reruns hit
// the same section URLs.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit(), colly.IgnoreRobotsTxt())
	c.ParseHTTPErrorResponse = true
	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET. Error statuses come back in the response.
func (f *Fetcher) Fetch(ctx context.Context, request fetcher.Request) (fetcher.Response, error) {
	var (
		result   fetcher.Response
		fetchErr error
	)
	collector := f.buildCollector(request, time.Now(), &result, &fetchErr)
	if err := f.runCollector(ctx, collector, request.URL, &result, &fetchErr); err != nil {
		return fetcher.Response{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	request fetcher.Request,
	start time.Time,
	result *fetcher.Response,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)
	transport := f.transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	collector.WithTransport(transport)

	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request fetcher.Request,
	start time.Time,
	result *fetcher.Response,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		copyHeaders(request.Headers, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = toResponse(r, start)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*result = toResponse(r, start)
			return
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	url string,
	result *fetcher.Response,
	fetchErr *error,
) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		// Visit reports error statuses that were already captured as responses.
		if err != nil && result.StatusCode == 0 {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func toResponse(r *colly.Response, start time.Time) fetcher.Response {
	resp := fetcher.Response{
		StatusCode: r.StatusCode,
		Body:       append([]byte(nil), r.Body...),
		Duration:   time.Since(start),
	}
	if r.Request != nil && r.Request.URL != nil {
		resp.URL = r.Request.URL.String()
	}
	if r.Headers != nil {
		resp.Headers = r.Headers.Clone()
	}
	return resp
}

func copyHeaders(headers http.Header, r *colly.Request) {
	if headers == nil {
		return
	}
	for key, values := range headers {
		// Request headers replace collector defaults such as User-Agent.
		r.Headers.Del(key)
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
}
