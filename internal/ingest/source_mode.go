package ingest

import (
	"fmt"
	"strings"
)

// SourceMode selects which upstream a job reads from.
type SourceMode string

const (
	// SourceAuto reads the CDN edition and falls back to sunnah.com pages
	// when the primary edition yields no sections.
	SourceAuto SourceMode = "auto"
	// SourceCDN reads only the structured CDN editions.
	SourceCDN SourceMode = "cdn"
	// SourceSunnah reads only sunnah.com pages.
	SourceSunnah SourceMode = "sunnah"
)

// ParseSourceMode accepts auto, cdn or sunnah in any case. An empty string
// parses to the empty mode, which callers resolve to their default.
func ParseSourceMode(s string) (SourceMode, error) {
	switch mode := SourceMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case "", SourceAuto, SourceCDN, SourceSunnah:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q (want auto, cdn or sunnah)", ErrUnknownSource, s)
	}
}

func (m SourceMode) orDefault(def SourceMode) SourceMode {
	if m != "" {
		return m
	}
	if def != "" {
		return def
	}
	return SourceAuto
}
