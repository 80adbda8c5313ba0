package parser

import (
	"bytes"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/normalize"
)

var (
	chapterNumber  = regexp.MustCompile(`\d+`)
	chapterPrefix  = regexp.MustCompile(`(?i)^chapter\s*:\s*`)
	textualChapter = regexp.MustCompile(`\((\d+)\)\s*\nChapter:\s*([^\n]+)(?:\s*\n\(\d+\)\s*\n(باب[^\n]*))?`)
)

// HTMLChapters extracts chapter headings from a rendered book page. Headings
// carry no record range. Markup containers are tried first, then bare
// heading classes, then the "(N)\nChapter: name" text layout.
func HTMLChapters(in Input) []corpus.CandidateChapter {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(in.Payload.Body))
	if err != nil {
		return nil
	}

	var chapters []corpus.CandidateChapter
	doc.Find(".chapter").Each(func(_ int, sel *goquery.Selection) {
		ch := corpus.CandidateChapter{
			NameEnglish: chapterName(sel.Find(".englishchapter").First().Text()),
			NameArabic:  normalize.CleanText(sel.Find(".arabicchapter, .achaptertitle").First().Text()),
		}
		if n := chapterNumber.FindString(sel.Find(".echapno").First().Text()); n != "" {
			ch.Number, _ = strconv.Atoi(n)
		}
		chapters = appendChapter(chapters, ch)
	})
	if len(chapters) > 0 {
		return chapters
	}

	doc.Find(".englishchapter").Each(func(_ int, sel *goquery.Selection) {
		chapters = appendChapter(chapters, corpus.CandidateChapter{NameEnglish: chapterName(sel.Text())})
	})
	if len(chapters) > 0 {
		return chapters
	}
	doc.Find(".achaptertitle").Each(func(_ int, sel *goquery.Selection) {
		chapters = appendChapter(chapters, corpus.CandidateChapter{NameArabic: normalize.CleanText(sel.Text())})
	})
	if len(chapters) > 0 {
		return chapters
	}

	for _, m := range textualChapter.FindAllStringSubmatch(documentText(in.Payload.Body), -1) {
		n, _ := strconv.Atoi(m[1])
		chapters = appendChapter(chapters, corpus.CandidateChapter{
			Number:      n,
			NameEnglish: normalize.CleanText(m[2]),
			NameArabic:  normalize.CleanText(m[3]),
		})
	}
	return chapters
}

// appendChapter numbers unnumbered headings sequentially and skips nameless
// or duplicate ones.
func appendChapter(chapters []corpus.CandidateChapter, ch corpus.CandidateChapter) []corpus.CandidateChapter {
	if len([]rune(ch.NameEnglish)) <= 2 && len([]rune(ch.NameArabic)) <= 2 {
		return chapters
	}
	if ch.Number <= 0 {
		ch.Number = 1
		if len(chapters) > 0 {
			ch.Number = chapters[len(chapters)-1].Number + 1
		}
	}
	for _, existing := range chapters {
		if existing.Number == ch.Number {
			return chapters
		}
	}
	return append(chapters, ch)
}

func chapterName(raw string) string {
	return chapterPrefix.ReplaceAllString(normalize.CleanText(raw), "")
}
