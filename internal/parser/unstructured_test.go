package parser

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/source"
)

const boundaryPage = `<html><body>
<div class="book_page_english_name">Revelation</div>
<div class="book_page_arabic_name">كتاب بدء الوحى</div>
<div class="chapter">
  <div class="echapno">(1)</div>
  <div class="englishchapter">Chapter: How the Divine Revelation started</div>
  <div class="arabicchapter">باب كيف كان بدء الوحى</div>
</div>
<div class="actualHadithContainer">
  <div class="hadith_narrated">Narrated 'Umar bin Al-Khattab:</div>
  <div class="text_details">I heard Allah's Messenger saying, "The reward of deeds depends upon the intentions."</div>
  <div class="arabic_hadith_full">حَدَّثَنَا الْحُمَيْدِيُّ عَبْدُ اللَّهِ بْنُ الزُّبَيْرِ</div>
  <table class="hadith_reference"><tr><td>Reference</td><td>: Alpha Collection 1</td></tr></table>
</div>
<div class="actualHadithContainer">
  <div class="english_hadith_full">Narrated Aisha: The first revelation was a good dream.</div>
  <div class="english_grade">Grade: Hasan (Darussalam)</div>
  <table class="hadith_reference"><tr><td>In-book reference</td><td>: Book 1, Hadith 2</td></tr></table>
</div>
<div class="actualHadithContainer">
  <div class="text_details">A sub narration that repeats number one</div>
  <table><tr><td>: Alpha Collection 1 b</td></tr></table>
</div>
</body></html>`

func TestBoundaryStrategy(t *testing.T) {
	t.Parallel()

	bank, err := ForKind(source.KindUnstructured)
	require.NoError(t, err)

	res, err := bank.Parse(htmlInput(boundaryPage, corpus.GradeHigh))
	require.NoError(t, err)
	require.Equal(t, StrategyBoundary, res.Strategy)
	require.Equal(t, "Revelation", res.Section.NameEnglish)
	require.Equal(t, "كتاب بدء الوحى", res.Section.NameArabic)
	require.Len(t, res.Section.Records, 2)
	require.Equal(t, 1, res.Discarded)

	first := res.Section.Records[0]
	require.Equal(t, 1, first.Number)
	require.Equal(t, `Narrated 'Umar bin Al-Khattab: I heard Allah's Messenger saying, "The reward of deeds depends upon the intentions."`, first.EnglishText)
	require.Equal(t, "'Umar bin Al-Khattab", first.Narrator)
	require.Equal(t, "حَدَّثَنَا الْحُمَيْدِيُّ عَبْدُ اللَّهِ بْنُ الزُّبَيْرِ", first.ArabicText)
	require.Equal(t, corpus.GradeHigh, first.Grade)
	require.False(t, first.GradeExplicit)

	second := res.Section.Records[1]
	require.Equal(t, 2, second.Number)
	require.Equal(t, corpus.GradeMedium, second.Grade)
	require.True(t, second.GradeExplicit)

	require.Equal(t, []corpus.CandidateChapter{{
		Number:      1,
		NameEnglish: "How the Divine Revelation started",
		NameArabic:  "باب كيف كان بدء الوحى",
	}}, res.Section.Chapters)
}

const anchorPage = `<html><body>
<div>Alpha Collection 1</div>
<div>Narrated Abu Hurairah: The Prophet said, faith has over sixty branches.</div>
<div>حَدَّثَنَا عَبْدُ اللَّهِ بْنُ مُحَمَّدٍ الْجُعْفِيُّ</div>
<div>Grade: Sahih (Darussalam)</div>
<table><tr><td>Reference</td><td>: Alpha Collection 1</td></tr></table>
<div>Alpha Collection 2 a</div>
<div>It was narrated from Anas that the Prophet said: none of you believes.</div>
<table><tr><td>Reference</td><td>: Alpha Collection 2</td></tr></table>
</body></html>`

func TestAnchorFallbackWhenNoContainers(t *testing.T) {
	t.Parallel()

	bank, err := ForKind(source.KindUnstructured)
	require.NoError(t, err)

	res, err := bank.Parse(htmlInput(anchorPage, corpus.GradeUnknown))
	require.NoError(t, err)
	require.Equal(t, StrategyAnchor, res.Strategy)
	require.Len(t, res.Section.Records, 2)

	first := res.Section.Records[0]
	require.Equal(t, "Narrated Abu Hurairah: The Prophet said, faith has over sixty branches.", first.EnglishText)
	require.Equal(t, "حَدَّثَنَا عَبْدُ اللَّهِ بْنُ مُحَمَّدٍ الْجُعْفِيُّ", first.ArabicText)
	require.Equal(t, corpus.GradeHigh, first.Grade)
	require.Equal(t, "Abu Hurairah", first.Narrator)

	second := res.Section.Records[1]
	require.Equal(t, 2, second.Number)
	require.Equal(t, "Anas", second.Narrator)
	require.Equal(t, corpus.GradeUnknown, second.Grade)
	require.Empty(t, second.ArabicText)
}

const footerText = `Narrated Ibn Umar: Islam is built upon five pillars of faith.
بُنِيَ الإِسْلاَمُ عَلَى خَمْسٍ
Reference
: Alpha 7
In-book reference : Book 2, Hadith 1
Narrated Talha: A man came asking about Islam and its duties.
Reference
: Alpha 8
`

func TestFooterFallback(t *testing.T) {
	t.Parallel()

	bank, err := ForKind(source.KindUnstructured)
	require.NoError(t, err)

	res, err := bank.Parse(htmlInput(footerText, corpus.GradeUnknown))
	require.NoError(t, err)
	require.Equal(t, StrategyFooter, res.Strategy)
	require.Len(t, res.Section.Records, 2)
	require.Equal(t, 7, res.Section.Records[0].Number)
	require.Equal(t, "Narrated Ibn Umar: Islam is built upon five pillars of faith.", res.Section.Records[0].EnglishText)
	require.Equal(t, "بُنِيَ الإِسْلاَمُ عَلَى خَمْسٍ", res.Section.Records[0].ArabicText)
	require.Equal(t, 8, res.Section.Records[1].Number)
	require.Equal(t, "Narrated Talha: A man came asking about Islam and its duties.", res.Section.Records[1].EnglishText)
}

func TestUnstructuredNothingFound(t *testing.T) {
	t.Parallel()

	bank, err := ForKind(source.KindUnstructured)
	require.NoError(t, err)

	_, err = bank.Parse(htmlInput(`<html><body><p>Nothing here</p></body></html>`, corpus.GradeHigh))
	require.ErrorIs(t, err, ErrNoCandidates)
}

func TestFooterRecordNumber(t *testing.T) {
	t.Parallel()

	require.Equal(t, 12, footerRecordNumber("\n : Sahih al-Bukhari 12\n"))
	require.Equal(t, 8, footerRecordNumber("|:[Sahih Muslim 8 a]"))
	require.Equal(t, 0, footerRecordNumber(": no number here"))
	require.Equal(t, 0, footerRecordNumber("\n\n"))
}

func TestHTMLChaptersFallbacks(t *testing.T) {
	t.Parallel()

	headings := HTMLChapters(htmlInput(`<div class="englishchapter">Chapter: Faith</div><div class="englishchapter">Chapter: Prayer</div><div class="englishchapter">x</div>`, ""))
	require.Equal(t, []corpus.CandidateChapter{
		{Number: 1, NameEnglish: "Faith"},
		{Number: 2, NameEnglish: "Prayer"},
	}, headings)

	textual := HTMLChapters(htmlInput("(1)\nChapter: Beginning\n(1)\nباب الوحي\n(2)\nChapter: Faith\n", ""))
	require.Equal(t, []corpus.CandidateChapter{
		{Number: 1, NameEnglish: "Beginning", NameArabic: "باب الوحي"},
		{Number: 2, NameEnglish: "Faith"},
	}, textual)
}
