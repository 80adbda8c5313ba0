// Package corpus defines the normalized collection/book/chapter/record model
// shared by parsers, the reconciler, and the storage backends.
package corpus

import "strings"

// Grade is the normalized authenticity classification of a record.
type Grade string

// Supported grades. The string values are what the stores persist.
const (
	GradeHigh    Grade = "sahih"
	GradeMedium  Grade = "hasan"
	GradeLow     Grade = "daif"
	GradeUnknown Grade = "unknown"
)

// AllGrades lists grades in reporting order.
var AllGrades = []Grade{GradeHigh, GradeMedium, GradeLow, GradeUnknown}

// ParseGrade maps a persisted value back to a Grade, defaulting to unknown.
func ParseGrade(raw string) Grade {
	switch Grade(strings.ToLower(strings.TrimSpace(raw))) {
	case GradeHigh:
		return GradeHigh
	case GradeMedium:
		return GradeMedium
	case GradeLow:
		return GradeLow
	default:
		return GradeUnknown
	}
}

// Collection is a named corpus partition such as one compiled work.
type Collection struct {
	ID                int64
	Slug              string
	NameEnglish       string
	NameArabic        string
	Compiler          string
	Lifespan          string
	Featured          bool
	TotalHadiths      int
	TotalBooks        int
	GradeDistribution map[Grade]int
}

// Book is a numbered subdivision of a collection. One upstream section maps to one book.
type Book struct {
	ID           int64
	CollectionID int64
	Number       int
	NameEnglish  string
	NameArabic   string
	HadithCount  int
	ChapterCount int
}

// Chapter is a numbered subdivision of a book. FirstRecord/LastRecord are zero
// when the source declares no range.
type Chapter struct {
	ID          int64
	BookID      int64
	Number      int
	NameEnglish string
	NameArabic  string
	FirstRecord int
	LastRecord  int
}

// HasRange reports whether the chapter carries a declared record range.
func (c Chapter) HasRange() bool {
	return c.FirstRecord > 0 && c.LastRecord >= c.FirstRecord
}

// Contains reports whether number falls inside the declared range.
func (c Chapter) Contains(number int) bool {
	return c.HasRange() && number >= c.FirstRecord && number <= c.LastRecord
}

// Record is the canonical text unit. Its natural key is (CollectionSlug, Number).
type Record struct {
	ID             int64
	CollectionSlug string
	Number         int
	ArabicText     string
	EnglishText    string
	Narrator       string
	Grade          Grade
	Reference      string
	// BookNumber is advisory; Link rows are authoritative for membership.
	BookNumber int
}

// Link associates a record with its collection, book and optional chapter.
type Link struct {
	CollectionID int64
	BookID       int64
	ChapterID    *int64
	RecordID     int64
	Sequence     int
}

// Candidate is a record extracted from one upstream section before reconciliation.
type Candidate struct {
	Number      int
	ArabicText  string
	EnglishText string
	Narrator    string
	Grade       Grade
	// GradeExplicit is true when Grade came from grading tokens rather than a
	// collection default.
	GradeExplicit bool
	BookNumber    int
}

// CandidateChapter is a chapter heading extracted from one upstream section.
type CandidateChapter struct {
	Number      int
	NameEnglish string
	NameArabic  string
	FirstRecord int
	LastRecord  int
}

// Section is the parsed content of one upstream section (one book).
type Section struct {
	Number      int
	NameEnglish string
	NameArabic  string
	Records     []Candidate
	Chapters    []CandidateChapter
}

// RecordPatch is a field-level update. Nil fields are left untouched.
type RecordPatch struct {
	ArabicText  *string
	EnglishText *string
	Narrator    *string
	Grade       *Grade
	Reference   *string
	BookNumber  *int
}

// Empty reports whether the patch changes nothing.
func (p RecordPatch) Empty() bool {
	return p.ArabicText == nil && p.EnglishText == nil && p.Narrator == nil &&
		p.Grade == nil && p.Reference == nil && p.BookNumber == nil
}

// Fields lists the column names the patch touches, in a stable order.
func (p RecordPatch) Fields() []string {
	var fields []string
	if p.ArabicText != nil {
		fields = append(fields, "arabic_text")
	}
	if p.EnglishText != nil {
		fields = append(fields, "english_text")
	}
	if p.Narrator != nil {
		fields = append(fields, "narrator")
	}
	if p.Grade != nil {
		fields = append(fields, "grade")
	}
	if p.Reference != nil {
		fields = append(fields, "reference")
	}
	if p.BookNumber != nil {
		fields = append(fields, "book_number")
	}
	return fields
}

// Apply returns r with the patch applied.
func (p RecordPatch) Apply(r Record) Record {
	if p.ArabicText != nil {
		r.ArabicText = *p.ArabicText
	}
	if p.EnglishText != nil {
		r.EnglishText = *p.EnglishText
	}
	if p.Narrator != nil {
		r.Narrator = *p.Narrator
	}
	if p.Grade != nil {
		r.Grade = *p.Grade
	}
	if p.Reference != nil {
		r.Reference = *p.Reference
	}
	if p.BookNumber != nil {
		r.BookNumber = *p.BookNumber
	}
	return r
}
