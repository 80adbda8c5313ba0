package corpus

import (
	"errors"
	"fmt"
	"strings"
)

// AllCollections is the trigger keyword that fans out across the catalog.
const AllCollections = "all"

// Entry describes one known collection and where its upstream data lives.
type Entry struct {
	Slug        string
	NameEnglish string
	NameArabic  string
	Compiler    string
	Lifespan    string
	Featured    bool
	// PrimaryEdition is the translated (English) edition; required for a job.
	PrimaryEdition string
	// SecondaryEdition is the original-language (Arabic) edition; optional.
	SecondaryEdition string
	// SunnahSlug addresses the HTML source (sunnah.com/{slug}/{n}).
	SunnahSlug string
	// Display is the name used in "{Display} {n}" references and anchors.
	Display      string
	Expected     int
	DefaultGrade Grade
}

// Collection converts the entry into a fresh Collection row.
func (e Entry) Collection() Collection {
	return Collection{
		Slug:        e.Slug,
		NameEnglish: e.NameEnglish,
		NameArabic:  e.NameArabic,
		Compiler:    e.Compiler,
		Lifespan:    e.Lifespan,
		Featured:    e.Featured,
	}
}

// Catalog is an ordered, slug-indexed set of entries.
type Catalog struct {
	entries []Entry
	bySlug  map[string]int
}

// NewCatalog validates and indexes entries. Slugs must be unique and non-empty.
func NewCatalog(entries ...Entry) (*Catalog, error) {
	c := &Catalog{
		entries: make([]Entry, 0, len(entries)),
		bySlug:  make(map[string]int, len(entries)),
	}
	for _, e := range entries {
		slug := strings.TrimSpace(e.Slug)
		if slug == "" {
			return nil, errors.New("catalog entry slug is required")
		}
		if slug == AllCollections {
			return nil, fmt.Errorf("catalog slug %q is reserved", slug)
		}
		if _, dup := c.bySlug[slug]; dup {
			return nil, fmt.Errorf("duplicate catalog slug %q", slug)
		}
		if e.Display == "" {
			e.Display = e.NameEnglish
		}
		if e.DefaultGrade == "" {
			e.DefaultGrade = GradeUnknown
		}
		e.Slug = slug
		c.bySlug[slug] = len(c.entries)
		c.entries = append(c.entries, e)
	}
	return c, nil
}

// Lookup returns the entry for slug.
func (c *Catalog) Lookup(slug string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	idx, ok := c.bySlug[slug]
	if !ok {
		return Entry{}, false
	}
	return c.entries[idx], true
}

// All returns a copy of the entries in catalog order.
func (c *Catalog) All() []Entry {
	if c == nil {
		return nil
	}
	return append([]Entry(nil), c.entries...)
}

// Slugs returns the slugs in catalog order.
func (c *Catalog) Slugs() []string {
	out := make([]string, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Slug)
	}
	return out
}

// DefaultCatalog returns the eight canonical collections.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultEntries...)
	if err != nil {
		panic(fmt.Sprintf("default catalog: %v", err))
	}
	return c
}

var defaultEntries = []Entry{
	{
		Slug:             "sahih-bukhari",
		NameEnglish:      "Sahih al-Bukhari",
		NameArabic:       "صحيح البخاري",
		Compiler:         "Imam Muhammad al-Bukhari",
		Lifespan:         "810–870 CE",
		Featured:         true,
		PrimaryEdition:   "eng-bukhari",
		SecondaryEdition: "ara-bukhari",
		SunnahSlug:       "bukhari",
		Display:          "Sahih al-Bukhari",
		Expected:         7563,
		DefaultGrade:     GradeHigh,
	},
	{
		Slug:             "sahih-muslim",
		NameEnglish:      "Sahih Muslim",
		NameArabic:       "صحيح مسلم",
		Compiler:         "Imam Muslim ibn al-Hajjaj",
		Lifespan:         "815–875 CE",
		Featured:         true,
		PrimaryEdition:   "eng-muslim",
		SecondaryEdition: "ara-muslim",
		SunnahSlug:       "muslim",
		Display:          "Sahih Muslim",
		Expected:         7470,
		DefaultGrade:     GradeHigh,
	},
	{
		Slug:             "jami-tirmidhi",
		NameEnglish:      "Jami at-Tirmidhi",
		NameArabic:       "جامع الترمذي",
		Compiler:         "Imam Abu Isa at-Tirmidhi",
		Lifespan:         "824–892 CE",
		Featured:         true,
		PrimaryEdition:   "eng-tirmidhi",
		SecondaryEdition: "ara-tirmidhi",
		SunnahSlug:       "tirmidhi",
		Display:          "Jami` at-Tirmidhi",
		Expected:         3956,
	},
	{
		Slug:             "sunan-abu-dawud",
		NameEnglish:      "Sunan Abu Dawud",
		NameArabic:       "سنن أبي داود",
		Compiler:         "Imam Abu Dawud as-Sijistani",
		Lifespan:         "817–889 CE",
		Featured:         true,
		PrimaryEdition:   "eng-abudawud",
		SecondaryEdition: "ara-abudawud",
		SunnahSlug:       "abudawud",
		Display:          "Sunan Abi Dawud",
		Expected:         5274,
	},
	{
		Slug:             "sunan-nasai",
		NameEnglish:      "Sunan an-Nasai",
		NameArabic:       "سنن النسائي",
		Compiler:         "Imam Ahmad an-Nasai",
		Lifespan:         "829–915 CE",
		Featured:         true,
		PrimaryEdition:   "eng-nasai",
		SecondaryEdition: "ara-nasai",
		SunnahSlug:       "nasai",
		Display:          "Sunan an-Nasa'i",
		Expected:         5758,
	},
	{
		Slug:             "sunan-ibn-majah",
		NameEnglish:      "Sunan Ibn Majah",
		NameArabic:       "سنن ابن ماجه",
		Compiler:         "Imam Ibn Majah al-Qazwini",
		Lifespan:         "824–887 CE",
		Featured:         true,
		PrimaryEdition:   "eng-ibnmajah",
		SecondaryEdition: "ara-ibnmajah",
		SunnahSlug:       "ibnmajah",
		Display:          "Sunan Ibn Majah",
		Expected:         4341,
	},
	{
		Slug:             "muwatta-malik",
		NameEnglish:      "Muwatta Malik",
		NameArabic:       "موطأ مالك",
		Compiler:         "Imam Malik ibn Anas",
		Lifespan:         "711–795 CE",
		PrimaryEdition:   "eng-malik",
		SecondaryEdition: "ara-malik",
		SunnahSlug:       "malik",
		Display:          "Muwatta Malik",
		Expected:         1858,
	},
	{
		Slug:             "musnad-ahmad",
		NameEnglish:      "Musnad Ahmad",
		NameArabic:       "مسند أحمد",
		Compiler:         "Imam Ahmad ibn Hanbal",
		Lifespan:         "780–855 CE",
		PrimaryEdition:   "eng-ahmad",
		SecondaryEdition: "ara-musnadahmad",
		SunnahSlug:       "ahmad",
		Display:          "Musnad Ahmad",
		Expected:         26363,
	},
}
