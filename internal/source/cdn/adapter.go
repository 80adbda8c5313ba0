// Package cdn fetches structured edition sections from the hadith-api CDN.
package cdn

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/JakeFAU/hadith-ingest/internal/source"
)

// DefaultBaseURL serves every edition as one JSON document per section.
const DefaultBaseURL = "https://cdn.jsdelivr.net/gh/fawazahmed0/hadith-api@1/editions"

// Adapter implements source.Adapter for the structured CDN.
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
		client.Headers = http.Header{"Accept": {"application/json"}}
	}
	return &Adapter{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Kind reports source.KindStructured.
func (a *Adapter) Kind() source.Kind {
	return source.KindStructured
}

// SectionURL returns the document URL for one section of an edition.
func (a *Adapter) SectionURL(edition string, section int) string {
	return fmt.Sprintf("%s/%s/%d.min.json", a.baseURL, edition, section)
}

// FetchSection retrieves one section document. 404 and 403 map to
// source.ErrNotFound.
func (a *Adapter) FetchSection(ctx context.Context, ref source.Ref, section int) (source.RawPayload, error) {
	if ref.Name == "" {
		return source.RawPayload{}, fmt.Errorf("cdn fetch: empty edition")
	}
	resp, err := a.client.Get(ctx, a.SectionURL(ref.Name, section))
	if err != nil {
		return source.RawPayload{}, fmt.Errorf("cdn %s section %d: %w", ref.Name, section, err)
	}
	return a.client.Payload(ref, section, resp), nil
}
