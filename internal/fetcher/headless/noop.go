package headless

import (
	"context"
	"fmt"

	"github.com/JakeFAU/hadith-ingest/internal/fetcher"
)

// Noop stands in when headless rendering is disabled. Every fetch fails with
// fetcher.ErrUnavailable so callers keep the plain response.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails.
func (Noop) Fetch(_ context.Context, request fetcher.Request) (fetcher.Response, error) {
	return fetcher.Response{}, fmt.Errorf("headless fetch %s: %w", request.URL, fetcher.ErrUnavailable)
}
