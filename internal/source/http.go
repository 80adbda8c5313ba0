package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/hadith-ingest/internal/fetcher"
	"github.com/JakeFAU/hadith-ingest/internal/metrics"
)

// DefaultTimeout bounds each upstream attempt.
const DefaultTimeout = 30 * time.Second

// Waiter paces requests per host.
type Waiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// HTTPClient performs one logical GET with pacing, retries, per-attempt
// timeouts, and optional headless promotion. Adapters share it.
type HTTPClient struct {
	Fetcher  fetcher.Fetcher
	Headless fetcher.Fetcher
	Detector fetcher.Detector
	Limiter  Waiter
	Retry    *RetryPolicy
	Timeout  time.Duration
	Headers  http.Header
	Logger   *zap.Logger
	Now      func() time.Time
}

// Get fetches rawURL and classifies the outcome. Non-2xx statuses become
// ErrNotFound or TransientError.
func (c *HTTPClient) Get(ctx context.Context, rawURL string) (fetcher.Response, error) {
	if c.Fetcher == nil {
		return fetcher.Response{}, errors.New("source http client has no fetcher")
	}
	policy := c.Retry
	if policy == nil {
		policy = NewRetryPolicy(RetryConfig{Logger: c.logger()})
	}

	var resp fetcher.Response
	err := policy.Do(ctx, func(ctx context.Context) error {
		r, err := c.attempt(ctx, rawURL)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		metrics.ObserveFetch(rawURL, outcomeLabel(err), 0)
		return fetcher.Response{}, err
	}
	metrics.ObserveFetch(rawURL, "ok", len(resp.Body))
	return resp, nil
}

func (c *HTTPClient) attempt(ctx context.Context, rawURL string) (fetcher.Response, error) {
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx, rawURL); err != nil {
			return fetcher.Response{}, err
		}
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := fetcher.Request{URL: rawURL, Headers: c.Headers}
	resp, err := c.Fetcher.Fetch(attemptCtx, req)
	if err != nil {
		if ctx.Err() != nil {
			return fetcher.Response{}, fmt.Errorf("fetch %s: %w", rawURL, ctx.Err())
		}
		return fetcher.Response{}, &TransientError{URL: rawURL, Err: err}
	}

	if c.Headless != nil && c.Detector != nil && c.Detector.ShouldPromote(resp) {
		metrics.ObserveHeadlessPromotion(rawURL)
		rendered, herr := c.Headless.Fetch(attemptCtx, req)
		switch {
		case herr == nil:
			resp = rendered
		case errors.Is(herr, fetcher.ErrUnavailable):
		default:
			c.logger().Warn("headless promotion failed", zap.String("url", rawURL), zap.Error(herr))
			if ctx.Err() == nil {
				return fetcher.Response{}, &TransientError{URL: rawURL, Err: herr}
			}
			return fetcher.Response{}, fmt.Errorf("headless fetch %s: %w", rawURL, ctx.Err())
		}
	}

	if err := ClassifyStatus(rawURL, resp.StatusCode); err != nil {
		return fetcher.Response{}, err
	}
	return resp, nil
}

func (c *HTTPClient) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

func (c *HTTPClient) now() time.Time {
	if c.Now == nil {
		return time.Now().UTC()
	}
	return c.Now()
}

// Payload wraps a successful response as a RawPayload.
func (c *HTTPClient) Payload(ref Ref, section int, resp fetcher.Response) RawPayload {
	return RawPayload{
		Ref:         ref,
		Section:     section,
		URL:         resp.URL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Headers.Get("Content-Type"),
		Body:        resp.Body,
		FetchedAt:   c.now(),
		Headless:    resp.UsedHeadless,
	}
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case IsTransient(err):
		return "transient"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "error"
	}
}
