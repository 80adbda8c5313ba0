// Package fetcher defines the HTTP retrieval contract shared by the colly and
// headless implementations.
package fetcher

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// ErrUnavailable is returned by fetchers that are disabled in this build or
// configuration.
var ErrUnavailable = errors.New("fetcher not configured")

// Request captures everything needed to fetch a URL.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is the result of a fetch. Non-2xx statuses are returned as
// responses, not errors; transport failures are errors.
type Response struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Fetcher retrieves a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, request Request) (Response, error)
}

// Detector decides whether a plain response should be retried through a
// browser.
type Detector interface {
	ShouldPromote(probe Response) bool
}
