// Package detector decides when a plain fetch should be retried in a browser.
package detector

import (
	"bytes"
	"net/http"

	"github.com/JakeFAU/hadith-ingest/internal/fetcher"
)

// Heuristic promotes empty, script-heavy, and bot-challenge responses.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector. A zero threshold defaults to 2048 bytes.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var challengeMarkers = [][]byte{
	[]byte("cf-challenge"),
	[]byte("challenge-platform"),
	[]byte("cf_chl_opt"),
	[]byte("just a moment..."),
	[]byte("enable javascript and cookies to continue"),
	[]byte("g-recaptcha"),
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte("id=\"root\""),
	[]byte("id=\"app\""),
	[]byte("data-reactroot"),
}

// ShouldPromote reports whether the response looks like a page that only a
// browser can get past.
func (h *Heuristic) ShouldPromote(resp fetcher.Response) bool {
	lower := bytes.ToLower(resp.Body)
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return containsAny(lower, challengeMarkers)
	default:
		return false
	}
	if len(lower) == 0 {
		return true
	}
	if containsAny(lower, challengeMarkers) {
		return true
	}
	if len(lower) < h.BodyLengthThreshold && scriptDensityHigh(lower) {
		return true
	}
	return containsAny(lower, spaMarkers)
}

func containsAny(body []byte, markers [][]byte) bool {
	for _, marker := range markers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh expects a lowercased body.
func scriptDensityHigh(lower []byte) bool {
	total := len(lower)
	if total == 0 {
		return false
	}

	openTag := []byte("<script")
	closeTag := []byte("</script>")
	covered := 0
	pos := 0
	for {
		rel := bytes.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagClose := bytes.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			covered += total - start
			break
		}
		contentStart := start + tagClose + 1
		end := total
		if relEnd := bytes.Index(lower[contentStart:], closeTag); relEnd != -1 {
			end = contentStart + relEnd + len(closeTag)
		}
		covered += end - start
		pos = end
	}
	return covered*100/total >= 25
}
