// Package sunnah fetches rendered book pages from sunnah.com.
package sunnah

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/JakeFAU/hadith-ingest/internal/source"
)

// DefaultBaseURL is the public site root.
const DefaultBaseURL = "https://sunnah.com"

// BrowserUserAgent is sent on plain requests; the site serves a challenge to
// obvious bots.
const BrowserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Adapter implements source.Adapter for sunnah.com book pages.
type Adapter struct {
	baseURL string
	client  *source.HTTPClient
}

// New builds an Adapter. An empty baseURL selects DefaultBaseURL.
func New(baseURL string, client *source.HTTPClient) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client.Headers == nil {
		client.Headers = http.Header{
			"User-Agent":      {BrowserUserAgent},
			"Accept":          {"text/html,application/xhtml+xml"},
			"Accept-Language": {"en-US,en;q=0.9"},
		}
	}
	return &Adapter{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Kind reports source.KindUnstructured.
func (a *Adapter) Kind() source.Kind {
	return source.KindUnstructured
}

// SectionURL returns the book page URL.
func (a *Adapter) SectionURL(slug string, section int) string {
	return fmt.Sprintf("%s/%s/%d", a.baseURL, slug, section)
}

// FetchSection retrieves one book page.
func (a *Adapter) FetchSection(ctx context.Context, ref source.Ref, section int) (source.RawPayload, error) {
	if ref.Name == "" {
		return source.RawPayload{}, fmt.Errorf("sunnah fetch: empty collection")
	}
	resp, err := a.client.Get(ctx, a.SectionURL(ref.Name, section))
	if err != nil {
		return source.RawPayload{}, fmt.Errorf("sunnah %s book %d: %w", ref.Name, section, err)
	}
	return a.client.Payload(ref, section, resp), nil
}
