// Package reconcile decides, per candidate record, whether to create, update,
// or leave alone the stored record with the same natural key.
package reconcile

import (
	"sort"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
)

// Entry is one stored record as seen by the reconciler.
type Entry struct {
	Record corpus.Record
	// Linked is true when a hierarchy link row exists for the record.
	Linked bool
}

// Index maps record number to the stored state for one collection. It is
// loaded once per job and updated in place as the job writes; it is not safe
// for concurrent use.
type Index struct {
	entries map[int]Entry
}

// NewIndex builds an index from stored entries.
func NewIndex(entries []Entry) *Index {
	ix := &Index{entries: make(map[int]Entry, len(entries))}
	for _, e := range entries {
		ix.entries[e.Record.Number] = e
	}
	return ix
}

// Get looks up a record by number.
func (ix *Index) Get(number int) (Entry, bool) {
	e, ok := ix.entries[number]
	return e, ok
}

// Put records the stored state for a number, replacing any previous entry.
func (ix *Index) Put(e Entry) {
	ix.entries[e.Record.Number] = e
}

// MarkLinked flags the record as having a hierarchy link.
func (ix *Index) MarkLinked(number int) {
	if e, ok := ix.entries[number]; ok {
		e.Linked = true
		ix.entries[number] = e
	}
}

// Len is the number of indexed records.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// MissingArabic returns records without original-language text, ordered by
// number.
func (ix *Index) MissingArabic() []corpus.Record {
	var out []corpus.Record
	for _, e := range ix.entries {
		if e.Record.ArabicText == "" {
			out = append(out, e.Record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}
