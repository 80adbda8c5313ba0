package parser

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/normalize"
)

var inlineGrade = regexp.MustCompile(`(?i)Grade\s*:\s*(Sahih|Hasan|Da['’]?if|Maudu)`)

// Lines that are page furniture rather than record text.
var furniturePrefixes = []string{"Report Error", "In-book reference", "USC-MSA", "Share", "Grade"}

// Anchor treats every line that starts with "{Display} {n}" as the start of
// a record and reads the window up to the next anchor.
func Anchor() Strategy {
	return Strategy{Name: StrategyAnchor, Parse: parseAnchor}
}

type anchorHit struct {
	number int
	start  int
	end    int
}

func parseAnchor(in Input) (corpus.Section, error) {
	if strings.TrimSpace(in.Display) == "" {
		return corpus.Section{}, errors.New("collection display name required")
	}
	text := documentText(in.Payload.Body)
	re := regexp.MustCompile(`(?mi)^` + displayPattern(in.Display) + `\s+(\d+)(?:\s?[a-z])?[ \t]*$`)

	var hits []anchorHit
	for _, loc := range re.FindAllStringSubmatchIndex(text, -1) {
		n, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil {
			continue
		}
		hits = append(hits, anchorHit{number: n, start: loc[0], end: loc[1]})
	}

	sec := corpus.Section{}
	for i, hit := range hits {
		windowEnd := len(text)
		if i+1 < len(hits) {
			windowEnd = hits[i+1].start
		}
		window := text[hit.end:windowEnd]

		body := window
		if idx := referenceFooterIndex(window); idx >= 0 {
			body = window[:idx]
		}
		english, arabic := splitLanguages(body, true)

		c := corpus.Candidate{Number: hit.number, EnglishText: english, ArabicText: arabic}
		var grades []string
		if m := inlineGrade.FindStringSubmatch(window); m != nil {
			grades = []string{m[1]}
		}
		c.Grade, c.GradeExplicit = normalize.ClassifyGrade(grades, in.DefaultGrade)
		sec.Records = append(sec.Records, c)
	}
	return sec, nil
}

var footerLine = regexp.MustCompile(`(?m)^\**Reference\**`)

func referenceFooterIndex(window string) int {
	loc := footerLine.FindStringIndex(window)
	if loc == nil {
		return -1
	}
	return loc[0]
}

// splitLanguages separates Arabic lines from translated lines. With
// stopAtArabic, translated lines after the first Arabic line are dropped; the
// translation precedes the original on the page.
func splitLanguages(block string, stopAtArabic bool) (string, string) {
	var english, arabic []string
	foundArabic := false
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isFurniture(line) {
			continue
		}
		if normalize.IsArabicLine(line) {
			foundArabic = true
			arabic = append(arabic, line)
			continue
		}
		if stopAtArabic && foundArabic {
			continue
		}
		english = append(english, line)
	}
	return strings.Join(english, " "), strings.Join(arabic, " ")
}

func isFurniture(line string) bool {
	for _, p := range furniturePrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

// documentText renders markup to lines, passing plain text through.
func documentText(body []byte) string {
	s := string(body)
	if strings.ContainsRune(s, '<') {
		return normalize.RenderText(s)
	}
	return strings.ReplaceAll(s, "\r\n", "\n")
}
