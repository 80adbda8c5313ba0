package reconcile

import (
	"sort"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/normalize"
)

// Kind is the reconciliation outcome for one candidate.
type Kind int

// Outcomes.
const (
	NoOp Kind = iota
	Create
	Update
)

func (k Kind) String() string {
	switch k {
	case Create:
		return "create"
	case Update:
		return "update"
	default:
		return "noop"
	}
}

// Decision is what the writer must do for one candidate.
type Decision struct {
	Kind   Kind
	Number int
	// Record is the full row to insert for Create, or the stored row with
	// Patch applied for Update and NoOp.
	Record corpus.Record
	Patch  corpus.RecordPatch
	// NeedsLink is set for new records and for stored records that lost
	// their hierarchy link.
	NeedsLink bool
}

// Target identifies the collection a candidate belongs to.
type Target struct {
	Slug    string
	Display string
}

// Decide applies the quality-monotonic merge for one candidate.
func Decide(ix *Index, target Target, c corpus.Candidate) Decision {
	reference := normalize.Reference(target.Display, c.Number)
	existing, ok := ix.Get(c.Number)
	if !ok {
		grade := c.Grade
		if grade == "" {
			grade = corpus.GradeUnknown
		}
		return Decision{
			Kind:   Create,
			Number: c.Number,
			Record: corpus.Record{
				CollectionSlug: target.Slug,
				Number:         c.Number,
				ArabicText:     c.ArabicText,
				EnglishText:    c.EnglishText,
				Narrator:       c.Narrator,
				Grade:          grade,
				Reference:      reference,
				BookNumber:     c.BookNumber,
			},
			NeedsLink: true,
		}
	}

	cur := existing.Record
	var patch corpus.RecordPatch
	if Improves(cur.EnglishText, c.EnglishText, MinEnglishLength) {
		patch.EnglishText = ptr(c.EnglishText)
	}
	if Improves(cur.ArabicText, c.ArabicText, MinArabicLength) {
		patch.ArabicText = ptr(c.ArabicText)
	}
	if cur.Narrator == "" && c.Narrator != "" {
		patch.Narrator = ptr(c.Narrator)
	}
	if gradeImproves(cur.Grade, c) {
		patch.Grade = ptr(c.Grade)
	}
	if cur.Reference == "" {
		patch.Reference = ptr(reference)
	}
	if cur.BookNumber == 0 && c.BookNumber > 0 {
		patch.BookNumber = ptr(c.BookNumber)
	}

	d := Decision{
		Kind:      NoOp,
		Number:    c.Number,
		Record:    patch.Apply(cur),
		Patch:     patch,
		NeedsLink: !existing.Linked,
	}
	if !patch.Empty() {
		d.Kind = Update
	}
	return d
}

// gradeImproves never lets unknown overwrite a grade. A collection default
// only fills an unknown grade; an explicit grading replaces any other value.
func gradeImproves(current corpus.Grade, c corpus.Candidate) bool {
	if c.Grade == "" || c.Grade == corpus.GradeUnknown || c.Grade == current {
		return false
	}
	if current == "" || current == corpus.GradeUnknown {
		return true
	}
	return c.GradeExplicit
}

// ChapterFor picks the chapter whose declared range contains number, else
// the lowest-numbered chapter, else nil. The fallback can misattribute
// records when ranges are missing.
func ChapterFor(chapters []corpus.Chapter, number int) *corpus.Chapter {
	if len(chapters) == 0 {
		return nil
	}
	sorted := make([]corpus.Chapter, len(chapters))
	copy(sorted, chapters)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })
	for i := range sorted {
		if sorted[i].Contains(number) {
			return &sorted[i]
		}
	}
	return &sorted[0]
}

func ptr[T any](v T) *T {
	return &v
}
