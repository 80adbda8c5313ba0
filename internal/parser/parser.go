// Package parser turns raw upstream payloads into candidate records using an
// ordered bank of extraction strategies. The first strategy that yields at
// least one accepted candidate wins; results are never merged.
package parser

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/normalize"
	"github.com/JakeFAU/hadith-ingest/internal/source"
)

// MinTextLength is the rune count a candidate's English or Arabic text must
// exceed to be kept.
const MinTextLength = 10

// ErrNoCandidates means every strategy came back empty.
var ErrNoCandidates = errors.New("no candidate records")

// Input is one payload plus the collection context strategies need.
type Input struct {
	Payload source.RawPayload
	// Display is the "{Display} {n}" anchor text for the collection.
	Display      string
	DefaultGrade corpus.Grade
	// Original marks structured payloads whose text is the original
	// (Arabic) language rather than the translation.
	Original bool
}

// ParseFunc extracts raw candidates. It may return an error to signal that
// the payload is not in a shape it understands; the bank moves on either way.
type ParseFunc func(in Input) (corpus.Section, error)

// Strategy is a named extraction heuristic.
type Strategy struct {
	Name  string
	Parse ParseFunc
}

// Result is the winning strategy's output after acceptance filtering.
type Result struct {
	Strategy  string
	Section   corpus.Section
	Discarded int
}

// Bank tries strategies in priority order.
type Bank struct {
	strategies []Strategy
	// chapters runs once on the payload when set, independent of which
	// strategy won.
	chapters func(in Input) []corpus.CandidateChapter
}

// Chain builds a first-success-wins bank.
func Chain(strategies ...Strategy) *Bank {
	return &Bank{strategies: strategies}
}

// ForKind returns the bank for a source kind.
func ForKind(kind source.Kind) (*Bank, error) {
	switch kind {
	case source.KindStructured:
		return Chain(Structured()), nil
	case source.KindUnstructured:
		b := Chain(Boundary(), Anchor(), Footer())
		b.chapters = HTMLChapters
		return b, nil
	default:
		return nil, fmt.Errorf("no parser bank for source kind %q", kind)
	}
}

// Strategies returns the strategy names in priority order.
func (b *Bank) Strategies() []string {
	names := make([]string, len(b.strategies))
	for i, s := range b.strategies {
		names[i] = s.Name
	}
	return names
}

// Parse runs the chain. It returns ErrNoCandidates, joined with any strategy
// errors, when nothing was accepted.
func (b *Bank) Parse(in Input) (Result, error) {
	var errs []error
	for _, s := range b.strategies {
		sec, err := s.Parse(in)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
			continue
		}
		accepted, discarded := accept(in, sec.Records)
		if len(accepted) == 0 {
			continue
		}
		sec.Records = accepted
		sec.Number = in.Payload.Section
		if b.chapters != nil && len(sec.Chapters) == 0 {
			sec.Chapters = b.chapters(in)
		}
		return Result{Strategy: s.Name, Section: sec, Discarded: discarded}, nil
	}
	if len(errs) > 0 {
		return Result{}, fmt.Errorf("section %d: %w: %w", in.Payload.Section, ErrNoCandidates, errors.Join(errs...))
	}
	return Result{}, fmt.Errorf("section %d: %w", in.Payload.Section, ErrNoCandidates)
}

// accept cleans candidates, drops unnumbered, duplicate, and too-short ones,
// and fills derived fields. The first accepted candidate for a number wins.
func accept(in Input, raw []corpus.Candidate) ([]corpus.Candidate, int) {
	out := make([]corpus.Candidate, 0, len(raw))
	seen := make(map[int]bool, len(raw))
	discarded := 0
	for _, c := range raw {
		if c.Number <= 0 || seen[c.Number] {
			discarded++
			continue
		}
		c.EnglishText = normalize.CleanText(c.EnglishText)
		c.ArabicText = normalize.CleanText(c.ArabicText)
		if utf8.RuneCountInString(c.EnglishText) <= MinTextLength &&
			utf8.RuneCountInString(c.ArabicText) <= MinTextLength {
			discarded++
			continue
		}
		seen[c.Number] = true
		if c.Narrator == "" {
			c.Narrator = normalize.Narrator(c.EnglishText)
		}
		if c.Grade == "" {
			c.Grade, c.GradeExplicit = normalize.ClassifyGrade(nil, in.DefaultGrade)
		}
		if c.BookNumber == 0 {
			c.BookNumber = in.Payload.Section
		}
		out = append(out, c)
	}
	return out, discarded
}
