package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/store"
)

// CorpusStore implements store.CorpusStore on Postgres.
type CorpusStore struct {
	db DB
}

var _ store.CorpusStore = (*CorpusStore)(nil)

// NewCorpusStore wraps an open pool.
func NewCorpusStore(db DB) (*CorpusStore, error) {
	if db == nil {
		return nil, errors.New("pool is required")
	}
	return &CorpusStore{db: db}, nil
}

// Close releases the underlying pool.
func (s *CorpusStore) Close() {
	s.db.Close()
}

const collectionColumns = `id, slug, name_english, name_arabic, compiler, lifespan, featured,
	total_hadiths, total_books, grade_distribution`

// EnsureCollection inserts by slug, leaving an existing row untouched.
func (s *CorpusStore) EnsureCollection(ctx context.Context, c corpus.Collection) (corpus.Collection, error) {
	query := `
		INSERT INTO collections (slug, name_english, name_arabic, compiler, lifespan, featured)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
		RETURNING ` + collectionColumns
	row := s.db.QueryRow(ctx, query, c.Slug, c.NameEnglish, c.NameArabic, c.Compiler, c.Lifespan, c.Featured)
	out, err := scanCollection(row)
	if err != nil {
		return corpus.Collection{}, fmt.Errorf("ensure collection %s: %w", c.Slug, err)
	}
	return out, nil
}

// GetCollection loads a collection by slug.
func (s *CorpusStore) GetCollection(ctx context.Context, slug string) (corpus.Collection, error) {
	row := s.db.QueryRow(ctx, `SELECT `+collectionColumns+` FROM collections WHERE slug = $1`, slug)
	out, err := scanCollection(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return corpus.Collection{}, store.ErrNotFound
		}
		return corpus.Collection{}, fmt.Errorf("get collection %s: %w", slug, err)
	}
	return out, nil
}

func scanCollection(row pgx.Row) (corpus.Collection, error) {
	var (
		c    corpus.Collection
		dist []byte
	)
	if err := row.Scan(
		&c.ID, &c.Slug, &c.NameEnglish, &c.NameArabic, &c.Compiler, &c.Lifespan, &c.Featured,
		&c.TotalHadiths, &c.TotalBooks, &dist,
	); err != nil {
		return corpus.Collection{}, err
	}
	if len(dist) > 0 {
		raw := map[string]int{}
		if err := json.Unmarshal(dist, &raw); err != nil {
			return corpus.Collection{}, fmt.Errorf("decode grade distribution: %w", err)
		}
		c.GradeDistribution = make(map[corpus.Grade]int, len(raw))
		for k, v := range raw {
			c.GradeDistribution[corpus.ParseGrade(k)] += v
		}
	}
	return c, nil
}

const bookColumns = `id, collection_id, number, name_english, name_arabic, hadith_count, chapter_count`

func scanBook(row pgx.Row) (corpus.Book, error) {
	var b corpus.Book
	err := row.Scan(&b.ID, &b.CollectionID, &b.Number, &b.NameEnglish, &b.NameArabic, &b.HadithCount, &b.ChapterCount)
	return b, err
}

// ListBooks returns the collection's books ordered by number.
func (s *CorpusStore) ListBooks(ctx context.Context, collectionID int64) ([]corpus.Book, error) {
	rows, err := s.db.Query(ctx, `SELECT `+bookColumns+` FROM books WHERE collection_id = $1 ORDER BY number`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	defer rows.Close()
	var out []corpus.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, fmt.Errorf("scan book row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return out, nil
}

// GetBook loads a book by natural key.
func (s *CorpusStore) GetBook(ctx context.Context, collectionID int64, number int) (corpus.Book, error) {
	row := s.db.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE collection_id = $1 AND number = $2`, collectionID, number)
	b, err := scanBook(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return corpus.Book{}, store.ErrNotFound
		}
		return corpus.Book{}, fmt.Errorf("get book %d: %w", number, err)
	}
	return b, nil
}

// CreateBook inserts a book.
func (s *CorpusStore) CreateBook(ctx context.Context, b corpus.Book) (corpus.Book, error) {
	query := `
		INSERT INTO books (collection_id, number, name_english, name_arabic)
		VALUES ($1, $2, $3, $4)
		RETURNING id`
	if err := s.db.QueryRow(ctx, query, b.CollectionID, b.Number, b.NameEnglish, b.NameArabic).Scan(&b.ID); err != nil {
		return corpus.Book{}, fmt.Errorf("create book %d: %w", b.Number, err)
	}
	return b, nil
}

// RenameBook replaces both names of a book.
func (s *CorpusStore) RenameBook(ctx context.Context, bookID int64, nameEnglish, nameArabic string) error {
	res, err := s.db.Exec(ctx, `UPDATE books SET name_english = $1, name_arabic = $2 WHERE id = $3`, nameEnglish, nameArabic, bookID)
	if err != nil {
		return fmt.Errorf("rename book: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListChapters returns the book's chapters ordered by number.
func (s *CorpusStore) ListChapters(ctx context.Context, bookID int64) ([]corpus.Chapter, error) {
	query := `
		SELECT id, book_id, number, name_english, name_arabic, first_record, last_record
		FROM chapters
		WHERE book_id = $1
		ORDER BY number`
	rows, err := s.db.Query(ctx, query, bookID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()
	var out []corpus.Chapter
	for rows.Next() {
		var ch corpus.Chapter
		if err := rows.Scan(&ch.ID, &ch.BookID, &ch.Number, &ch.NameEnglish, &ch.NameArabic, &ch.FirstRecord, &ch.LastRecord); err != nil {
			return nil, fmt.Errorf("scan chapter row: %w", err)
		}
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	return out, nil
}

// CreateChapter inserts a chapter.
func (s *CorpusStore) CreateChapter(ctx context.Context, ch corpus.Chapter) (corpus.Chapter, error) {
	query := `
		INSERT INTO chapters (book_id, number, name_english, name_arabic, first_record, last_record)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`
	err := s.db.QueryRow(ctx, query, ch.BookID, ch.Number, ch.NameEnglish, ch.NameArabic, ch.FirstRecord, ch.LastRecord).Scan(&ch.ID)
	if err != nil {
		return corpus.Chapter{}, fmt.Errorf("create chapter %d: %w", ch.Number, err)
	}
	return ch, nil
}

// UpdateChapter rewrites names and range.
func (s *CorpusStore) UpdateChapter(ctx context.Context, ch corpus.Chapter) error {
	query := `
		UPDATE chapters
		SET name_english = $1, name_arabic = $2, first_record = $3, last_record = $4
		WHERE id = $5`
	res, err := s.db.Exec(ctx, query, ch.NameEnglish, ch.NameArabic, ch.FirstRecord, ch.LastRecord, ch.ID)
	if err != nil {
		return fmt.Errorf("update chapter: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const recordColumns = `h.id, h.collection_slug, h.number, h.arabic_text, h.english_text, h.narrator,
	h.grade, h.reference, h.book_number`

func scanRecord(row pgx.Row, extra ...any) (corpus.Record, error) {
	var (
		r     corpus.Record
		grade string
	)
	dest := append([]any{
		&r.ID, &r.CollectionSlug, &r.Number, &r.ArabicText, &r.EnglishText, &r.Narrator,
		&grade, &r.Reference, &r.BookNumber,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return corpus.Record{}, err
	}
	r.Grade = corpus.ParseGrade(grade)
	return r, nil
}

// LoadIndex returns every record of the collection with its link state.
func (s *CorpusStore) LoadIndex(ctx context.Context, collectionID int64, slug string) ([]store.IndexedRecord, error) {
	query := `
		SELECT ` + recordColumns + `, ch.hadith_id IS NOT NULL
		FROM hadiths h
		LEFT JOIN collection_hadiths ch ON ch.hadith_id = h.id AND ch.collection_id = $1
		WHERE h.collection_slug = $2
		ORDER BY h.number`
	rows, err := s.db.Query(ctx, query, collectionID, slug)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	defer rows.Close()
	var out []store.IndexedRecord
	for rows.Next() {
		var linked bool
		r, err := scanRecord(rows, &linked)
		if err != nil {
			return nil, fmt.Errorf("scan record row: %w", err)
		}
		out = append(out, store.IndexedRecord{Record: r, Linked: linked})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	return out, nil
}

// CreateRecords inserts the batch in one statement.
func (s *CorpusStore) CreateRecords(ctx context.Context, records []corpus.Record) ([]corpus.Record, error) {
	if len(records) == 0 {
		return nil, nil
	}
	const cols = 8
	args := make([]any, 0, len(records)*cols)
	for _, r := range records {
		args = append(args, r.CollectionSlug, r.Number, r.ArabicText, r.EnglishText, r.Narrator, string(r.Grade), r.Reference, r.BookNumber)
	}
	query := `
		INSERT INTO hadiths (collection_slug, number, arabic_text, english_text, narrator, grade, reference, book_number)
		VALUES ` + placeholders(len(records), cols) + `
		RETURNING id, number`
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("create records: %w", err)
	}
	defer rows.Close()
	ids := make(map[int]int64, len(records))
	for rows.Next() {
		var (
			id     int64
			number int
		)
		if err := rows.Scan(&id, &number); err != nil {
			return nil, fmt.Errorf("scan created id: %w", err)
		}
		ids[number] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("create records: %w", err)
	}
	out := make([]corpus.Record, len(records))
	for i, r := range records {
		id, ok := ids[r.Number]
		if !ok {
			return nil, fmt.Errorf("create records: no id returned for %d", r.Number)
		}
		r.ID = id
		out[i] = r
	}
	return out, nil
}

// UpdateRecord writes the patched columns of one record.
func (s *CorpusStore) UpdateRecord(ctx context.Context, id int64, patch corpus.RecordPatch) error {
	fields := patch.Fields()
	if len(fields) == 0 {
		return nil
	}
	sets := make([]string, len(fields))
	args := make([]any, 0, len(fields)+1)
	for i, f := range fields {
		sets[i] = fmt.Sprintf("%s = $%d", f, i+1)
	}
	args = append(args, patchValues(patch)...)
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE hadiths SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(fields)+1)
	res, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update record %d: %w", id, err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// patchValues returns values in RecordPatch.Fields order.
func patchValues(p corpus.RecordPatch) []any {
	var out []any
	if p.ArabicText != nil {
		out = append(out, *p.ArabicText)
	}
	if p.EnglishText != nil {
		out = append(out, *p.EnglishText)
	}
	if p.Narrator != nil {
		out = append(out, *p.Narrator)
	}
	if p.Grade != nil {
		out = append(out, string(*p.Grade))
	}
	if p.Reference != nil {
		out = append(out, *p.Reference)
	}
	if p.BookNumber != nil {
		out = append(out, *p.BookNumber)
	}
	return out
}

// CreateLinks inserts links, ignoring records already linked.
func (s *CorpusStore) CreateLinks(ctx context.Context, links []corpus.Link) error {
	if len(links) == 0 {
		return nil
	}
	const cols = 5
	args := make([]any, 0, len(links)*cols)
	for _, l := range links {
		args = append(args, l.CollectionID, l.BookID, l.ChapterID, l.RecordID, l.Sequence)
	}
	query := `
		INSERT INTO collection_hadiths (collection_id, book_id, chapter_id, hadith_id, sequence_number)
		VALUES ` + placeholders(len(links), cols) + `
		ON CONFLICT (collection_id, hadith_id) DO NOTHING`
	if _, err := s.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("create links: %w", err)
	}
	return nil
}

// CountLinks counts links matching the filter.
func (s *CorpusStore) CountLinks(ctx context.Context, filter store.LinkFilter) (int, error) {
	query := `
		SELECT COUNT(*) FROM collection_hadiths
		WHERE ($1::bigint = 0 OR collection_id = $1) AND ($2::bigint = 0 OR book_id = $2)`
	var n int
	if err := s.db.QueryRow(ctx, query, filter.CollectionID, filter.BookID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count links: %w", err)
	}
	return n, nil
}

// CountChapters counts chapters of a book.
func (s *CorpusStore) CountChapters(ctx context.Context, bookID int64) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM chapters WHERE book_id = $1`, bookID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chapters: %w", err)
	}
	return n, nil
}

// GradeCounts tallies grades of linked records.
func (s *CorpusStore) GradeCounts(ctx context.Context, collectionID int64) (map[corpus.Grade]int, error) {
	query := `
		SELECT h.grade, COUNT(*)
		FROM collection_hadiths ch
		JOIN hadiths h ON h.id = ch.hadith_id
		WHERE ch.collection_id = $1
		GROUP BY h.grade`
	rows, err := s.db.Query(ctx, query, collectionID)
	if err != nil {
		return nil, fmt.Errorf("grade counts: %w", err)
	}
	defer rows.Close()
	out := make(map[corpus.Grade]int)
	for rows.Next() {
		var (
			grade string
			n     int
		)
		if err := rows.Scan(&grade, &n); err != nil {
			return nil, fmt.Errorf("scan grade row: %w", err)
		}
		out[corpus.ParseGrade(grade)] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("grade counts: %w", err)
	}
	return out, nil
}

// UpdateCollectionTotals writes derived collection columns.
func (s *CorpusStore) UpdateCollectionTotals(ctx context.Context, collectionID int64, totals store.CollectionTotals) error {
	dist, err := encodeDistribution(totals.GradeDistribution)
	if err != nil {
		return err
	}
	query := `
		UPDATE collections
		SET total_hadiths = $1, total_books = $2, grade_distribution = $3
		WHERE id = $4`
	res, err := s.db.Exec(ctx, query, totals.TotalHadiths, totals.TotalBooks, dist, collectionID)
	if err != nil {
		return fmt.Errorf("update collection totals: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func encodeDistribution(in map[corpus.Grade]int) ([]byte, error) {
	raw := make(map[string]int, len(in))
	for k, v := range in {
		raw[string(k)] = v
	}
	out, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode grade distribution: %w", err)
	}
	return out, nil
}

// UpdateBookTotals writes derived book columns.
func (s *CorpusStore) UpdateBookTotals(ctx context.Context, bookID int64, hadiths, chapters int) error {
	res, err := s.db.Exec(ctx, `UPDATE books SET hadith_count = $1, chapter_count = $2 WHERE id = $3`, hadiths, chapters, bookID)
	if err != nil {
		return fmt.Errorf("update book totals: %w", err)
	}
	if res.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// SampleRecord returns the lowest-sequence record linked to the book.
func (s *CorpusStore) SampleRecord(ctx context.Context, bookID int64) (corpus.Record, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM collection_hadiths ch
		JOIN hadiths h ON h.id = ch.hadith_id
		WHERE ch.book_id = $1
		ORDER BY ch.sequence_number
		LIMIT 1`
	r, err := scanRecord(s.db.QueryRow(ctx, query, bookID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return corpus.Record{}, store.ErrNotFound
		}
		return corpus.Record{}, fmt.Errorf("sample record: %w", err)
	}
	return r, nil
}

// placeholders renders "($1,$2),($3,$4)" for rows x cols parameters.
func placeholders(rows, cols int) string {
	var b strings.Builder
	n := 1
	for r := 0; r < rows; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", n)
			n++
		}
		b.WriteByte(')')
	}
	return b.String()
}
