// Package source defines the upstream adapter contract, its error taxonomy,
// retry policy, and section enumeration.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNotFound means the requested section does not exist upstream. It is a
// termination signal for enumeration, not a failure.
var ErrNotFound = errors.New("section not found")

// ErrEmpty means the section exists but yielded no usable records.
var ErrEmpty = errors.New("section has no records")

// TransientError wraps a failure that may succeed on retry: network errors,
// 5xx responses, and explicit rate limiting.
type TransientError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient failure fetching %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("transient failure fetching %s: %v", e.URL, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ClassifyStatus maps an HTTP status to the source error taxonomy. It returns
// nil for 2xx.
func ClassifyStatus(url string, status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return &TransientError{URL: url, StatusCode: status}
	default:
		return fmt.Errorf("%s: status %d: %w", url, status, ErrNotFound)
	}
}

// Kind distinguishes the two upstream shapes.
type Kind string

// Supported source kinds.
const (
	KindStructured   Kind = "structured"
	KindUnstructured Kind = "unstructured"
)

// Ref addresses a document set upstream: an edition for the structured
// source, or a collection slug for the unstructured one.
type Ref struct {
	Kind Kind
	Name string
	// Display is the "{Display} {n}" anchor text used by unstructured parsers.
	Display string
}

func (r Ref) String() string {
	return string(r.Kind) + ":" + r.Name
}

// RawPayload is the unparsed body of one fetched section.
type RawPayload struct {
	Ref         Ref
	Section     int
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
	FetchedAt   time.Time
	Headless    bool
}

// Adapter fetches one section of one document set.
type Adapter interface {
	Kind() Kind
	FetchSection(ctx context.Context, ref Ref, section int) (RawPayload, error)
}
