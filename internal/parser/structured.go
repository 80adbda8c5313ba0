package parser

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/normalize"
)

// StrategyStructured is the name of the JSON edition strategy.
const StrategyStructured = "structured"

//go:embed schema/edition_section.json
var editionSchemaJSON []byte

var (
	editionSchemaOnce sync.Once
	editionSchema     *jsonschema.Schema
	editionSchemaErr  error
)

func compiledEditionSchema() (*jsonschema.Schema, error) {
	editionSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("edition_section.json", bytes.NewReader(editionSchemaJSON)); err != nil {
			editionSchemaErr = fmt.Errorf("add edition schema: %w", err)
			return
		}
		editionSchema, editionSchemaErr = compiler.Compile("edition_section.json")
	})
	return editionSchema, editionSchemaErr
}

type editionSection struct {
	Metadata *editionMetadata `json:"metadata,omitempty"`
	Hadiths  []editionHadith  `json:"hadiths"`
}

type editionMetadata struct {
	Name          string                  `json:"name,omitempty"`
	Section       map[string]string       `json:"section,omitempty"`
	SectionDetail map[string]sectionRange `json:"section_detail,omitempty"`
}

type sectionRange struct {
	First float64 `json:"hadithnumber_first"`
	Last  float64 `json:"hadithnumber_last"`
}

type editionHadith struct {
	Number    float64          `json:"hadithnumber"`
	Text      string           `json:"text"`
	Grades    []editionGrade   `json:"grades,omitempty"`
	Reference *editionLocation `json:"reference,omitempty"`
}

type editionGrade struct {
	Name  string `json:"name"`
	Grade string `json:"grade"`
}

type editionLocation struct {
	Book   float64 `json:"book"`
	Hadith float64 `json:"hadith"`
}

// Structured maps a JSON edition section directly onto candidates. The
// payload is validated against the embedded schema before decoding.
func Structured() Strategy {
	return Strategy{Name: StrategyStructured, Parse: parseStructured}
}

func parseStructured(in Input) (corpus.Section, error) {
	doc, err := decodeEditionSection(in.Payload.Body)
	if err != nil {
		return corpus.Section{}, err
	}

	sec := corpus.Section{Number: in.Payload.Section}
	key := strconv.Itoa(in.Payload.Section)
	if doc.Metadata != nil {
		name := normalize.CleanText(doc.Metadata.Section[key])
		if in.Original {
			sec.NameArabic = name
		} else {
			sec.NameEnglish = name
		}
		sec.Chapters = structuredChapters(doc.Metadata, in.Original)
	}

	for _, h := range doc.Hadiths {
		number, ok := wholeNumber(h.Number)
		if !ok {
			continue
		}
		c := corpus.Candidate{Number: number, BookNumber: in.Payload.Section}
		if h.Reference != nil {
			if book, ok := wholeNumber(h.Reference.Book); ok {
				c.BookNumber = book
			}
		}
		if in.Original {
			c.ArabicText = h.Text
		} else {
			c.EnglishText = h.Text
			c.Narrator = normalize.Narrator(normalize.CleanText(h.Text))
		}
		tokens := make([]normalize.GradeToken, 0, len(h.Grades))
		for _, g := range h.Grades {
			tokens = append(tokens, normalize.GradeToken{Grader: g.Name, Value: g.Grade})
		}
		var graded []string
		if pref := normalize.PreferredGrade(tokens); pref != "" {
			graded = []string{pref}
		}
		c.Grade, c.GradeExplicit = normalize.ClassifyGrade(graded, in.DefaultGrade)
		sec.Records = append(sec.Records, c)
	}
	return sec, nil
}

// decodeEditionSection validates body against the schema and decodes it.
func decodeEditionSection(body []byte) (editionSection, error) {
	schema, err := compiledEditionSchema()
	if err != nil {
		return editionSection{}, err
	}
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return editionSection{}, fmt.Errorf("decode edition json: %w", err)
	}
	if err := schema.Validate(raw); err != nil {
		return editionSection{}, fmt.Errorf("edition schema: %w", err)
	}
	var doc editionSection
	if err := json.Unmarshal(body, &doc); err != nil {
		return editionSection{}, fmt.Errorf("decode edition section: %w", err)
	}
	return doc, nil
}

// structuredChapters turns declared section ranges into ranged chapters,
// numbered in key order.
func structuredChapters(meta *editionMetadata, original bool) []corpus.CandidateChapter {
	if len(meta.SectionDetail) == 0 {
		return nil
	}
	keys := make([]int, 0, len(meta.SectionDetail))
	for k := range meta.SectionDetail {
		if n, err := strconv.Atoi(k); err == nil {
			keys = append(keys, n)
		}
	}
	sort.Ints(keys)

	chapters := make([]corpus.CandidateChapter, 0, len(keys))
	for _, k := range keys {
		key := strconv.Itoa(k)
		r := meta.SectionDetail[key]
		first, okFirst := wholeNumber(r.First)
		last, okLast := wholeNumber(r.Last)
		if !okFirst || !okLast || last < first {
			continue
		}
		ch := corpus.CandidateChapter{
			Number:      len(chapters) + 1,
			FirstRecord: first,
			LastRecord:  last,
		}
		name := normalize.CleanText(meta.Section[key])
		if original {
			ch.NameArabic = name
		} else {
			ch.NameEnglish = name
		}
		chapters = append(chapters, ch)
	}
	return chapters
}

// wholeNumber truncates positive values. Fractional numbers mark sub-records;
// they collapse onto the integral record, where the first one wins.
func wholeNumber(f float64) (int, bool) {
	if f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	n := math.Floor(f)
	return int(n), true
}
