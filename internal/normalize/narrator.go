package normalize

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxNarratorLength caps narrator attributions, in runes.
const MaxNarratorLength = 60

// First match wins.
var narratorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^Narrated\s+([^:\n]{2,120}?)\s*:`),
	regexp.MustCompile(`(?i)^It was narrated (?:from|that)\s+([^:\n]{2,120}?)(?:\s*:|\s+that\b|\s+said\b)`),
	regexp.MustCompile(`(?i)^It is narrated on the authority of\s+([^:\n]{2,120}?)(?:\s*:|\s+that\b)`),
	regexp.MustCompile(`(?i)^It is reported on the authority of\s+([^:\n]{2,120}?)(?:\s*:|\s+that\b)`),
}

var parenthesised = regexp.MustCompile(`\([^)]*\)`)

// Narrator extracts the attribution from the opening of a translated text.
// It returns "" when no pattern matches.
func Narrator(text string) string {
	text = strings.TrimSpace(text)
	for _, re := range narratorPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		name := parenthesised.ReplaceAllString(m[1], "")
		name = strings.Join(strings.Fields(name), " ")
		name = strings.TrimRightFunc(name, func(r rune) bool {
			return unicode.IsPunct(r) && r != '\'' && r != ')'
		})
		return Truncate(name, MaxNarratorLength)
	}
	return ""
}

// IsArabicLine reports whether more than half of the line's non-space runes
// fall inside the Arabic Unicode blocks.
func IsArabicLine(line string) bool {
	total, arabic := 0, 0
	for _, r := range line {
		if unicode.IsSpace(r) {
			continue
		}
		total++
		if isArabicRune(r) {
			arabic++
		}
	}
	return total > 0 && arabic*2 > total
}

func isArabicRune(r rune) bool {
	switch {
	case r >= 0x0600 && r <= 0x06FF,
		r >= 0x0750 && r <= 0x077F,
		r >= 0x08A0 && r <= 0x08FF,
		r >= 0xFB50 && r <= 0xFDFF,
		r >= 0xFE70 && r <= 0xFEFF:
		return true
	}
	return false
}
