package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/normalize"
)

// Unstructured strategy names, in priority order.
const (
	StrategyBoundary = "boundary_marker"
	StrategyAnchor   = "reference_anchor"
	StrategyFooter   = "footer_split"
)

const (
	containerSelector = ".actualHadithContainer"
	englishSelector   = ".english_hadith_full, .text_details, .hadithText"
	narratedSelector  = ".hadith_narrated, .hadithNarrated"
	arabicSelector    = ".arabic_hadith_full, .arabictext"
	gradeSelector     = ".english_grade, .hadith_grade, .gradetable"
)

var inBookReference = regexp.MustCompile(`(?i)In-book reference[^:]*:[^\n]*?Hadith\s+(\d+)`)

// Boundary splits the document on per-record containers and reads fields
// from their known classes.
func Boundary() Strategy {
	return Strategy{Name: StrategyBoundary, Parse: parseBoundary}
}

func parseBoundary(in Input) (corpus.Section, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(in.Payload.Body))
	if err != nil {
		return corpus.Section{}, fmt.Errorf("parse html: %w", err)
	}
	display := displayNumber(in.Display)
	sec := bookNames(doc)

	doc.Find(containerSelector).Each(func(_ int, container *goquery.Selection) {
		text := container.Text()
		number := 0
		if display != nil {
			number = firstNumber(display, text)
		}
		if number == 0 {
			number = firstNumber(inBookReference, text)
		}
		if number == 0 {
			return
		}

		english := selectionText(container.Find(englishSelector).First())
		if narrated := normalize.CleanText(selectionText(container.Find(narratedSelector).First())); narrated != "" &&
			!strings.HasPrefix(normalize.CleanText(english), narrated) {
			english = narrated + " " + english
		}
		c := corpus.Candidate{
			Number:      number,
			EnglishText: english,
			ArabicText:  selectionText(container.Find(arabicSelector).First()),
		}

		var grades []string
		container.Find(gradeSelector).Each(func(_ int, g *goquery.Selection) {
			grades = append(grades, normalize.CleanText(g.Text()))
		})
		c.Grade, c.GradeExplicit = normalize.ClassifyGrade(grades, in.DefaultGrade)
		sec.Records = append(sec.Records, c)
	})
	return sec, nil
}

// displayNumber matches "{Display} {n}" anywhere, case-insensitively.
func displayNumber(display string) *regexp.Regexp {
	display = strings.TrimSpace(display)
	if display == "" {
		return nil
	}
	return regexp.MustCompile(`(?i)` + displayPattern(display) + `\s+(\d+)`)
}

// displayPattern quotes the display name and lets its spaces match any run
// of whitespace.
func displayPattern(display string) string {
	parts := strings.Fields(display)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, `\s+`)
}

func firstNumber(re *regexp.Regexp, text string) int {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

// selectionText returns the element's markup so CleanText can render block
// boundaries as spaces rather than gluing words together.
func selectionText(sel *goquery.Selection) string {
	if sel.Length() == 0 {
		return ""
	}
	html, err := sel.Html()
	if err != nil {
		return sel.Text()
	}
	return html
}

func bookNames(doc *goquery.Document) corpus.Section {
	return corpus.Section{
		NameEnglish: normalize.CleanText(doc.Find(".book_page_english_name").First().Text()),
		NameArabic:  normalize.CleanText(doc.Find(".book_page_arabic_name").First().Text()),
	}
}
