package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/normalize"
)

// footerNumber reads the trailing record number of a reference line such as
// ": Sahih al-Bukhari 12" or "|:[Sahih Muslim 8 a]".
var footerNumber = regexp.MustCompile(`(\d+)(?:\s?[a-z])?\s*\]?\s*$`)

// Footer splits on "Reference" footers. Each block is the text of the record
// whose number appears at the start of the following block.
func Footer() Strategy {
	return Strategy{Name: StrategyFooter, Parse: parseFooter}
}

func parseFooter(in Input) (corpus.Section, error) {
	text := documentText(in.Payload.Body)
	blocks := footerLine.Split(text, -1)

	var anchor *regexp.Regexp
	if strings.TrimSpace(in.Display) != "" {
		anchor = regexp.MustCompile(`(?i)^` + displayPattern(in.Display) + `\s+\d+`)
	}

	sec := corpus.Section{}
	for i := 0; i < len(blocks)-1; i++ {
		number := footerRecordNumber(blocks[i+1])
		if number == 0 {
			continue
		}
		var english, arabic []string
		for _, line := range strings.Split(blocks[i], "\n") {
			line = strings.TrimSpace(line)
			switch {
			case line == "", isFurniture(line), strings.HasPrefix(line, ":"):
			case anchor != nil && anchor.MatchString(line):
			case normalize.IsArabicLine(line):
				arabic = append(arabic, line)
			case len(line) > 5 && !strings.HasPrefix(line, "(") && !strings.HasPrefix(line, "*"):
				english = append(english, line)
			}
		}
		c := corpus.Candidate{
			Number:      number,
			EnglishText: strings.Join(english, " "),
			ArabicText:  strings.Join(arabic, " "),
		}
		var grades []string
		if m := inlineGrade.FindStringSubmatch(blocks[i]); m != nil {
			grades = []string{m[1]}
		}
		c.Grade, c.GradeExplicit = normalize.ClassifyGrade(grades, in.DefaultGrade)
		sec.Records = append(sec.Records, c)
	}
	return sec, nil
}

// footerRecordNumber reads the number from the first non-empty line of the
// block following a footer marker.
func footerRecordNumber(block string) int {
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := footerNumber.FindStringSubmatch(line)
		if m == nil {
			return 0
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}
