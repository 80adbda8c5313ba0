package reconcile

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Minimum rune lengths below which stored text is treated as filler.
const (
	MinEnglishLength = 80
	MinArabicLength  = 20
	MinNameLength    = 5
)

var placeholderMarkers = []string{
	"[Content pending",
	"This is hadith number",
	"narrated a hadith.",
}

var (
	templateRecord = regexp.MustCompile(`(?i)^hadith\s+\d+$`)
	templateBook   = regexp.MustCompile(`(?i)^book\s+\d+$`)
)

// IsPlaceholder reports whether stored text is recognisable filler rather
// than extracted content. Length is judged separately by Improves.
func IsPlaceholder(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return true
	}
	for _, m := range placeholderMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return templateRecord.MatchString(text)
}

// Improves reports whether candidate should replace existing under the
// quality-monotonic rule: the candidate must be real content, and the
// existing value must be empty, filler, or shorter than minLength while the
// candidate is longer.
func Improves(existing, candidate string, minLength int) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || candidate == strings.TrimSpace(existing) || IsPlaceholder(candidate) {
		return false
	}
	if IsPlaceholder(existing) {
		return true
	}
	existingLen := utf8.RuneCountInString(strings.TrimSpace(existing))
	return existingLen < minLength && utf8.RuneCountInString(candidate) > existingLen
}

// IsPlaceholderName reports whether a book or chapter name looks generated.
func IsPlaceholderName(name string) bool {
	name = strings.TrimSpace(name)
	return utf8.RuneCountInString(name) < MinNameLength ||
		templateBook.MatchString(name) ||
		strings.HasPrefix(name, "Chapter ")
}

// UpgradeName returns the name to store and whether it changed. A current
// name is only replaced when it is a placeholder and the candidate is not.
func UpgradeName(current, candidate string) (string, bool) {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || candidate == current || IsPlaceholderName(candidate) {
		return current, false
	}
	if !IsPlaceholderName(current) {
		return current, false
	}
	return candidate, true
}
