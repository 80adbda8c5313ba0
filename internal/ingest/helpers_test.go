package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/source"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type seqIDs struct{}

func (seqIDs) NewRunID() (uuid.UUID, error) {
	return uuid.NewV7()
}

type failingIDs struct{}

func (failingIDs) NewRunID() (uuid.UUID, error) {
	return uuid.Nil, errors.New("entropy exhausted")
}

// fakeAdapter serves edition pages from memory. fail holds how many
// transient failures a "edition/section" key returns before succeeding.
type fakeAdapter struct {
	mu    sync.Mutex
	pages map[string]map[int]string
	fail  map[string]int
	calls map[string]int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		pages: map[string]map[int]string{},
		fail:  map[string]int{},
		calls: map[string]int{},
	}
}

func (f *fakeAdapter) Kind() source.Kind { return source.KindStructured }

func (f *fakeAdapter) set(edition string, section int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pages[edition] == nil {
		f.pages[edition] = map[int]string{}
	}
	f.pages[edition][section] = body
}

func (f *fakeAdapter) failNext(edition string, section, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[fmt.Sprintf("%s/%d", edition, section)] = times
}

func (f *fakeAdapter) Calls(edition string, section int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[fmt.Sprintf("%s/%d", edition, section)]
}

func (f *fakeAdapter) FetchSection(ctx context.Context, ref source.Ref, section int) (source.RawPayload, error) {
	if err := ctx.Err(); err != nil {
		return source.RawPayload{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%s/%d", ref.Name, section)
	f.calls[key]++
	if f.fail[key] > 0 {
		f.fail[key]--
		return source.RawPayload{}, &source.TransientError{URL: key, StatusCode: 503}
	}
	body, ok := f.pages[ref.Name][section]
	if !ok {
		return source.RawPayload{}, fmt.Errorf("%s: %w", key, source.ErrNotFound)
	}
	return source.RawPayload{
		Ref:         ref,
		Section:     section,
		URL:         "https://cdn.example/" + key + ".min.json",
		StatusCode:  200,
		ContentType: "application/json",
		Body:        []byte(body),
	}, nil
}

// edition renders one structured section with a single ranged chapter.
func edition(section int, name string, texts map[int]string) string {
	numbers := make([]int, 0, len(texts))
	for n := range texts {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	hadiths := make([]map[string]any, 0, len(numbers))
	for _, n := range numbers {
		hadiths = append(hadiths, map[string]any{
			"hadithnumber": n,
			"text":         texts[n],
			"grades":       []any{},
			"reference":    map[string]any{"book": section, "hadith": n},
		})
	}
	key := strconv.Itoa(section)
	doc := map[string]any{
		"metadata": map[string]any{
			"name":    "Alpha",
			"section": map[string]string{key: name},
			"section_detail": map[string]any{
				key: map[string]any{"hadithnumber_first": numbers[0], "hadithnumber_last": numbers[len(numbers)-1]},
			},
		},
		"hadiths": hadiths,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return string(body)
}

func englishText(n int) string {
	return fmt.Sprintf("Narrated Anas: The Prophet said something worth remembering, and this is narration %d.", n)
}

func arabicText(n int) string {
	return fmt.Sprintf("حَدَّثَنَا عَبْدُ اللَّهِ بْنُ يُوسُفَ قَالَ أَخْبَرَنَا مَالِكٌ %d", n)
}

func texts(from, to int, text func(int) string) map[int]string {
	out := make(map[int]string, to-from+1)
	for n := from; n <= to; n++ {
		out[n] = text(n)
	}
	return out
}

var alphaEntry = corpus.Entry{
	Slug:             "alpha",
	NameEnglish:      "Alpha",
	PrimaryEdition:   "eng-alpha",
	SecondaryEdition: "ara-alpha",
	Display:          "Alpha",
	Expected:         9,
}

// seedAlpha serves two sections holding records 1-5 and 6-9. Record 9 has no
// translation until withTranslation9 is set.
func seedAlpha(f *fakeAdapter, withTranslation9 bool) {
	eng2 := texts(6, 9, englishText)
	if !withTranslation9 {
		eng2[9] = ""
	}
	f.set("eng-alpha", 1, edition(1, "Revelation", texts(1, 5, englishText)))
	f.set("eng-alpha", 2, edition(2, "Belief and Faith", eng2))
	f.set("ara-alpha", 1, edition(1, "كتاب بدء الوحي", texts(1, 5, arabicText)))
	f.set("ara-alpha", 2, edition(2, "كتاب الإيمان", texts(6, 9, arabicText)))
}

var alphaPagesEntry = corpus.Entry{
	Slug:           "alpha",
	NameEnglish:    "Alpha",
	PrimaryEdition: "eng-alpha",
	SunnahSlug:     "alpha",
	Display:        "Alpha",
	Expected:       5,
}

// sunnahPage renders one sunnah.com book page with a container per record.
func sunnahPage(name string, numbers ...int) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<html><body><div class="book_page_english_name">%s</div>`, name)
	for _, n := range numbers {
		fmt.Fprintf(&b, `<div class="actualHadithContainer">`+
			`<div class="english_hadith_full">%s</div>`+
			`<div class="arabic_hadith_full">%s</div>`+
			`<table class="hadith_reference"><tr><td>Reference</td><td>: Alpha %d</td></tr></table>`+
			`</div>`, englishText(n), arabicText(n), n)
	}
	b.WriteString(`</body></html>`)
	return b.String()
}

// seedAlphaPages serves two pages holding records 1-3 and 4-5.
func seedAlphaPages(f *fakeAdapter) {
	f.set("alpha", 1, sunnahPage("Revelation", 1, 2, 3))
	f.set("alpha", 2, sunnahPage("Belief", 4, 5))
}
