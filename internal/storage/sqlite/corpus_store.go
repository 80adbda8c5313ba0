// Package sqlite provides an embedded store.CorpusStore backed by SQLite
// through sqlx, for single-node runs without a Postgres server.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/JakeFAU/hadith-ingest/internal/corpus"
	"github.com/JakeFAU/hadith-ingest/internal/store"
)

//go:embed schema.sql
var schema string

// CorpusStore implements store.CorpusStore on SQLite.
type CorpusStore struct {
	db *sqlx.DB
}

var _ store.CorpusStore = (*CorpusStore)(nil)

// Open connects to the database file at path, creating its directory and
// applying the schema.
func Open(ctx context.Context, path string) (*CorpusStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("database.dsn is required")
	}
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open handle.
func New(db *sqlx.DB) *CorpusStore {
	return &CorpusStore{db: db}
}

// Migrate creates the tables when they do not exist.
func (s *CorpusStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the handle.
func (s *CorpusStore) Close() error {
	return s.db.Close()
}

type collectionRow struct {
	ID                int64  `db:"id"`
	Slug              string `db:"slug"`
	NameEnglish       string `db:"name_english"`
	NameArabic        string `db:"name_arabic"`
	Compiler          string `db:"compiler"`
	Lifespan          string `db:"lifespan"`
	Featured          bool   `db:"featured"`
	TotalHadiths      int    `db:"total_hadiths"`
	TotalBooks        int    `db:"total_books"`
	GradeDistribution string `db:"grade_distribution"`
}

func (r collectionRow) model() (corpus.Collection, error) {
	c := corpus.Collection{
		ID:           r.ID,
		Slug:         r.Slug,
		NameEnglish:  r.NameEnglish,
		NameArabic:   r.NameArabic,
		Compiler:     r.Compiler,
		Lifespan:     r.Lifespan,
		Featured:     r.Featured,
		TotalHadiths: r.TotalHadiths,
		TotalBooks:   r.TotalBooks,
	}
	if r.GradeDistribution != "" {
		raw := map[string]int{}
		if err := json.Unmarshal([]byte(r.GradeDistribution), &raw); err != nil {
			return corpus.Collection{}, fmt.Errorf("decode grade distribution: %w", err)
		}
		c.GradeDistribution = make(map[corpus.Grade]int, len(raw))
		for k, v := range raw {
			c.GradeDistribution[corpus.ParseGrade(k)] += v
		}
	}
	return c, nil
}

type bookRow struct {
	ID           int64  `db:"id"`
	CollectionID int64  `db:"collection_id"`
	Number       int    `db:"number"`
	NameEnglish  string `db:"name_english"`
	NameArabic   string `db:"name_arabic"`
	HadithCount  int    `db:"hadith_count"`
	ChapterCount int    `db:"chapter_count"`
}

func (r bookRow) model() corpus.Book {
	return corpus.Book(r)
}

type chapterRow struct {
	ID          int64  `db:"id"`
	BookID      int64  `db:"book_id"`
	Number      int    `db:"number"`
	NameEnglish string `db:"name_english"`
	NameArabic  string `db:"name_arabic"`
	FirstRecord int    `db:"first_record"`
	LastRecord  int    `db:"last_record"`
}

type recordRow struct {
	ID             int64  `db:"id"`
	CollectionSlug string `db:"collection_slug"`
	Number         int    `db:"number"`
	ArabicText     string `db:"arabic_text"`
	EnglishText    string `db:"english_text"`
	Narrator       string `db:"narrator"`
	Grade          string `db:"grade"`
	Reference      string `db:"reference"`
	BookNumber     int    `db:"book_number"`
}

func (r recordRow) model() corpus.Record {
	return corpus.Record{
		ID:             r.ID,
		CollectionSlug: r.CollectionSlug,
		Number:         r.Number,
		ArabicText:     r.ArabicText,
		EnglishText:    r.EnglishText,
		Narrator:       r.Narrator,
		Grade:          corpus.ParseGrade(r.Grade),
		Reference:      r.Reference,
		BookNumber:     r.BookNumber,
	}
}

type indexRow struct {
	recordRow
	Linked bool `db:"linked"`
}

const (
	collectionSelect = `SELECT id, slug, name_english, name_arabic, compiler, lifespan, featured,
		total_hadiths, total_books, grade_distribution FROM collections`
	bookSelect   = `SELECT id, collection_id, number, name_english, name_arabic, hadith_count, chapter_count FROM books`
	recordFields = `h.id, h.collection_slug, h.number, h.arabic_text, h.english_text, h.narrator,
		h.grade, h.reference, h.book_number`
)

// EnsureCollection inserts by slug, leaving an existing row untouched.
func (s *CorpusStore) EnsureCollection(ctx context.Context, c corpus.Collection) (corpus.Collection, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO collections (slug, name_english, name_arabic, compiler, lifespan, featured)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.Slug, c.NameEnglish, c.NameArabic, c.Compiler, c.Lifespan, c.Featured)
	if err != nil {
		return corpus.Collection{}, fmt.Errorf("ensure collection %s: %w", c.Slug, err)
	}
	return s.GetCollection(ctx, c.Slug)
}

// GetCollection loads a collection by slug.
func (s *CorpusStore) GetCollection(ctx context.Context, slug string) (corpus.Collection, error) {
	var row collectionRow
	if err := s.db.GetContext(ctx, &row, collectionSelect+` WHERE slug = ?`, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return corpus.Collection{}, store.ErrNotFound
		}
		return corpus.Collection{}, fmt.Errorf("get collection %s: %w", slug, err)
	}
	return row.model()
}

// ListBooks returns the collection's books ordered by number.
func (s *CorpusStore) ListBooks(ctx context.Context, collectionID int64) ([]corpus.Book, error) {
	var rows []bookRow
	if err := s.db.SelectContext(ctx, &rows, bookSelect+` WHERE collection_id = ? ORDER BY number`, collectionID); err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	out := make([]corpus.Book, len(rows))
	for i, r := range rows {
		out[i] = r.model()
	}
	return out, nil
}

// GetBook loads a book by natural key.
func (s *CorpusStore) GetBook(ctx context.Context, collectionID int64, number int) (corpus.Book, error) {
	var row bookRow
	if err := s.db.GetContext(ctx, &row, bookSelect+` WHERE collection_id = ? AND number = ?`, collectionID, number); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return corpus.Book{}, store.ErrNotFound
		}
		return corpus.Book{}, fmt.Errorf("get book %d: %w", number, err)
	}
	return row.model(), nil
}

// CreateBook inserts a book.
func (s *CorpusStore) CreateBook(ctx context.Context, b corpus.Book) (corpus.Book, error) {
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO books (collection_id, number, name_english, name_arabic)
		VALUES (:collection_id, :number, :name_english, :name_arabic)`,
		bookRow{CollectionID: b.CollectionID, Number: b.Number, NameEnglish: b.NameEnglish, NameArabic: b.NameArabic})
	if err != nil {
		return corpus.Book{}, fmt.Errorf("create book %d: %w", b.Number, err)
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return corpus.Book{}, fmt.Errorf("create book %d: %w", b.Number, err)
	}
	return b, nil
}

// RenameBook replaces both names of a book.
func (s *CorpusStore) RenameBook(ctx context.Context, bookID int64, nameEnglish, nameArabic string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE books SET name_english = ?, name_arabic = ? WHERE id = ?`, nameEnglish, nameArabic, bookID)
	return affected(res, err, "rename book")
}

// ListChapters returns the book's chapters ordered by number.
func (s *CorpusStore) ListChapters(ctx context.Context, bookID int64) ([]corpus.Chapter, error) {
	var rows []chapterRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, book_id, number, name_english, name_arabic, first_record, last_record
		FROM chapters WHERE book_id = ? ORDER BY number`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	out := make([]corpus.Chapter, len(rows))
	for i, r := range rows {
		out[i] = corpus.Chapter(r)
	}
	return out, nil
}

// CreateChapter inserts a chapter.
func (s *CorpusStore) CreateChapter(ctx context.Context, ch corpus.Chapter) (corpus.Chapter, error) {
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO chapters (book_id, number, name_english, name_arabic, first_record, last_record)
		VALUES (:book_id, :number, :name_english, :name_arabic, :first_record, :last_record)`,
		chapterRow(ch))
	if err != nil {
		return corpus.Chapter{}, fmt.Errorf("create chapter %d: %w", ch.Number, err)
	}
	if ch.ID, err = res.LastInsertId(); err != nil {
		return corpus.Chapter{}, fmt.Errorf("create chapter %d: %w", ch.Number, err)
	}
	return ch, nil
}

// UpdateChapter rewrites names and range.
func (s *CorpusStore) UpdateChapter(ctx context.Context, ch corpus.Chapter) error {
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE chapters
		SET name_english = :name_english, name_arabic = :name_arabic,
			first_record = :first_record, last_record = :last_record
		WHERE id = :id`, chapterRow(ch))
	return affected(res, err, "update chapter")
}

// LoadIndex returns every record of the collection with its link state.
func (s *CorpusStore) LoadIndex(ctx context.Context, collectionID int64, slug string) ([]store.IndexedRecord, error) {
	var rows []indexRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+recordFields+`, ch.hadith_id IS NOT NULL AS linked
		FROM hadiths h
		LEFT JOIN collection_hadiths ch ON ch.hadith_id = h.id AND ch.collection_id = ?
		WHERE h.collection_slug = ?
		ORDER BY h.number`, collectionID, slug)
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	out := make([]store.IndexedRecord, len(rows))
	for i, r := range rows {
		out[i] = store.IndexedRecord{Record: r.model(), Linked: r.Linked}
	}
	return out, nil
}

// CreateRecords inserts the batch inside one transaction.
func (s *CorpusStore) CreateRecords(ctx context.Context, records []corpus.Record) (out []corpus.Record, err error) {
	if len(records) == 0 {
		return nil, nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create records: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	out = make([]corpus.Record, len(records))
	for i, r := range records {
		res, execErr := tx.ExecContext(ctx, `
			INSERT INTO hadiths (collection_slug, number, arabic_text, english_text, narrator, grade, reference, book_number)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			r.CollectionSlug, r.Number, r.ArabicText, r.EnglishText, r.Narrator, string(r.Grade), r.Reference, r.BookNumber)
		if execErr != nil {
			return nil, fmt.Errorf("create record %d: %w", r.Number, execErr)
		}
		if r.ID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("create record %d: %w", r.Number, err)
		}
		out[i] = r
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create records: %w", err)
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
	for i, f := range fields {
		sets[i] = f + " = ?"
	}
	args := append(patchValues(patch), id)
	res, err := s.db.ExecContext(ctx, `UPDATE hadiths SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	return affected(res, err, fmt.Sprintf("update record %d", id))
}

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
	values := make([]string, len(links))
	args := make([]any, 0, len(links)*5)
	for i, l := range links {
		values[i] = "(?, ?, ?, ?, ?)"
		args = append(args, l.CollectionID, l.BookID, l.ChapterID, l.RecordID, l.Sequence)
	}
	query := `INSERT OR IGNORE INTO collection_hadiths (collection_id, book_id, chapter_id, hadith_id, sequence_number) VALUES ` +
		strings.Join(values, ", ")
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create links: %w", err)
	}
	return nil
}

// CountLinks counts links matching the filter.
func (s *CorpusStore) CountLinks(ctx context.Context, filter store.LinkFilter) (int, error) {
	query, args, err := sqlx.Named(`
		SELECT COUNT(*) FROM collection_hadiths
		WHERE (:collection_id = 0 OR collection_id = :collection_id)
		AND (:book_id = 0 OR book_id = :book_id)`,
		map[string]any{"collection_id": filter.CollectionID, "book_id": filter.BookID})
	if err != nil {
		return 0, fmt.Errorf("count links: %w", err)
	}
	var n int
	if err := s.db.GetContext(ctx, &n, s.db.Rebind(query), args...); err != nil {
		return 0, fmt.Errorf("count links: %w", err)
	}
	return n, nil
}

// CountChapters counts chapters of a book.
func (s *CorpusStore) CountChapters(ctx context.Context, bookID int64) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM chapters WHERE book_id = ?`, bookID); err != nil {
		return 0, fmt.Errorf("count chapters: %w", err)
	}
	return n, nil
}

// GradeCounts tallies grades of linked records.
func (s *CorpusStore) GradeCounts(ctx context.Context, collectionID int64) (map[corpus.Grade]int, error) {
	var rows []struct {
		Grade string `db:"grade"`
		N     int    `db:"n"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT h.grade AS grade, COUNT(*) AS n
		FROM collection_hadiths ch
		JOIN hadiths h ON h.id = ch.hadith_id
		WHERE ch.collection_id = ?
		GROUP BY h.grade`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("grade counts: %w", err)
	}
	out := make(map[corpus.Grade]int, len(rows))
	for _, r := range rows {
		out[corpus.ParseGrade(r.Grade)] += r.N
	}
	return out, nil
}

// UpdateCollectionTotals writes derived collection columns.
func (s *CorpusStore) UpdateCollectionTotals(ctx context.Context, collectionID int64, totals store.CollectionTotals) error {
	raw := make(map[string]int, len(totals.GradeDistribution))
	for k, v := range totals.GradeDistribution {
		raw[string(k)] = v
	}
	dist, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode grade distribution: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE collections SET total_hadiths = ?, total_books = ?, grade_distribution = ? WHERE id = ?`,
		totals.TotalHadiths, totals.TotalBooks, string(dist), collectionID)
	return affected(res, err, "update collection totals")
}

// UpdateBookTotals writes derived book columns.
func (s *CorpusStore) UpdateBookTotals(ctx context.Context, bookID int64, hadiths, chapters int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE books SET hadith_count = ?, chapter_count = ? WHERE id = ?`, hadiths, chapters, bookID)
	return affected(res, err, "update book totals")
}

// SampleRecord returns the lowest-sequence record linked to the book.
func (s *CorpusStore) SampleRecord(ctx context.Context, bookID int64) (corpus.Record, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+recordFields+`
		FROM collection_hadiths ch
		JOIN hadiths h ON h.id = ch.hadith_id
		WHERE ch.book_id = ?
		ORDER BY ch.sequence_number
		LIMIT 1`, bookID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return corpus.Record{}, store.ErrNotFound
		}
		return corpus.Record{}, fmt.Errorf("sample record: %w", err)
	}
	return row.model(), nil
}

func affected(res sql.Result, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
