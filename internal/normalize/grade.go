package normalize

import (
	"strings"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
)

// GradeToken is one grader's verdict as published by the structured source.
type GradeToken struct {
	Grader string
	Value  string
}

var graderPriority = []string{"darussalam", "al-albani", "albani"}

var (
	lowKeywords    = []string{"da'if", "da’if", "da`if", "daif", "dhaif", "da'eef", "weak", "maudu", "mawdu", "fabricated", "munkar"}
	highKeywords   = []string{"sahih", "saheeh"}
	mediumKeywords = []string{"hasan"}
)

// PreferredGrade picks the verdict of the highest-priority grader, falling back
// to the first token. It returns "" when no token carries a value.
func PreferredGrade(tokens []GradeToken) string {
	for _, grader := range graderPriority {
		for _, tok := range tokens {
			if strings.Contains(strings.ToLower(tok.Grader), grader) && strings.TrimSpace(tok.Value) != "" {
				return tok.Value
			}
		}
	}
	for _, tok := range tokens {
		if strings.TrimSpace(tok.Value) != "" {
			return tok.Value
		}
	}
	return ""
}

// ClassifyGrade maps free-text grading tokens onto a Grade. Low-authenticity
// keywords take precedence over high, and high over medium. When nothing
// matches the fallback is returned with explicit=false; an empty fallback maps
// to unknown.
func ClassifyGrade(tokens []string, fallback corpus.Grade) (corpus.Grade, bool) {
	lowered := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	switch {
	case anyContains(lowered, lowKeywords):
		return corpus.GradeLow, true
	case anyContains(lowered, highKeywords):
		return corpus.GradeHigh, true
	case anyContains(lowered, mediumKeywords):
		return corpus.GradeMedium, true
	}
	if fallback == "" {
		return corpus.GradeUnknown, false
	}
	return fallback, false
}

func anyContains(tokens, keywords []string) bool {
	for _, t := range tokens {
		for _, k := range keywords {
			if strings.Contains(t, k) {
				return true
			}
		}
	}
	return false
}
