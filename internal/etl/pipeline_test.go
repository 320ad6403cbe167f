package etl

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/BartekS5/reviewseed/pkg/database"
	"github.com/BartekS5/reviewseed/pkg/logger"
	"github.com/BartekS5/reviewseed/pkg/models"
)

func newSQLiteLoader(t *testing.T, table models.Table, policy models.Policy) (*SQLLoader, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	loader := NewSQLLoader(db, database.SQLite, table, policy)
	if err := loader.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return loader, db
}

func runBooksCSV(t *testing.T, loader Loader, content string, batchSize int) (*Summary, error) {
	t.Helper()
	ext, err := NewCSVExtractor(writeTemp(t, "books.csv", content), BookColumns)
	if err != nil {
		t.Fatal(err)
	}
	defer ext.Close()
	return NewPipeline("books", ext, BookNormalizer{}, loader, models.PolicyReplace, batchSize).Run(context.Background())
}

func bookTitle(t *testing.T, db *sql.DB, isbn string) string {
	t.Helper()
	var title string
	if err := db.QueryRow("SELECT title FROM books WHERE isbn = ?", isbn).Scan(&title); err != nil {
		t.Fatalf("book %s: %v", isbn, err)
	}
	return title
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

const threeBooks = "isbn,title,author,year\n" +
	"0001,Book A,Author A,2001\n" +
	"0002,Book B,Author B,bad-year\n" +
	"0003,Book C,Author C,2003\n"

func TestPipelineSkipsInvalidRows(t *testing.T) {
	loader, db := newSQLiteLoader(t, models.BooksTable, models.PolicyReplace)

	s, err := runBooksCSV(t, loader, threeBooks, 50)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Read != 3 || s.Valid != 2 || s.Skipped != 1 || s.Written != 2 {
		t.Errorf("unexpected counters: %+v", s)
	}
	if s.Outcome != OutcomeSuccess || !s.Succeeded() {
		t.Errorf("Outcome = %q", s.Outcome)
	}
	if n := countRows(t, db, "books"); n != 2 {
		t.Errorf("books has %d rows, want 2", n)
	}
	bookTitle(t, db, "0001")
	bookTitle(t, db, "0003")
}

func TestPipelineIsIdempotentAndReplaces(t *testing.T) {
	loader, db := newSQLiteLoader(t, models.BooksTable, models.PolicyReplace)

	for i := 0; i < 2; i++ {
		if _, err := runBooksCSV(t, loader, threeBooks, 1); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}
	if n := countRows(t, db, "books"); n != 2 {
		t.Errorf("books has %d rows after re-import, want 2", n)
	}

	changed := strings.Replace(threeBooks, "Book A,", "Book A Revised,", 1)
	if _, err := runBooksCSV(t, loader, changed, 50); err != nil {
		t.Fatal(err)
	}
	if got := bookTitle(t, db, "0001"); got != "Book A Revised" {
		t.Errorf("title = %q, want updated title", got)
	}
}

func TestPipelineIgnorePolicyKeepsExisting(t *testing.T) {
	loader, db := newSQLiteLoader(t, models.FacilitiesTable, models.PolicyIgnore)
	if _, err := db.Exec("INSERT INTO hospitals_clinics (comm_code, name) VALUES ('C1', 'Original')"); err != nil {
		t.Fatal(err)
	}

	ext := &sliceExtractor{records: []RawRecord{
		{Position: 1, Fields: map[string]any{"comm_code": "C1", "name": "Renamed"}},
		{Position: 2, Fields: map[string]any{"comm_code": "C2", "name": "New", "latitude": 51.0, "longitude": -114.0}},
	}}
	p := NewPipeline("facilities", ext, FacilityNormalizer{}, loader, models.PolicyIgnore, 50)
	p.RequireWrites = true
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var name string
	db.QueryRow("SELECT name FROM hospitals_clinics WHERE comm_code = 'C1'").Scan(&name)
	if name != "Original" {
		t.Errorf("existing facility overwritten: %q", name)
	}
	if n := countRows(t, db, "hospitals_clinics"); n != 2 {
		t.Errorf("hospitals_clinics has %d rows, want 2", n)
	}
}

func TestPipelineCollapsesDuplicateKeys(t *testing.T) {
	loader, db := newSQLiteLoader(t, models.BooksTable, models.PolicyReplace)
	content := "isbn,title,author,year\n0001,First,A,2000\n0001,Second,A,2000\n0002,Other,B,2001\n"

	s, err := runBooksCSV(t, loader, content, 50)
	if err != nil {
		t.Fatal(err)
	}
	if s.Valid != 3 || s.Duplicates != 1 || s.Written != 2 {
		t.Errorf("unexpected counters: %+v", s)
	}
	if got := bookTitle(t, db, "0001"); got != "Second" {
		t.Errorf("replace should keep the last occurrence, got %q", got)
	}
}

func TestCollapseDuplicatesIgnoreKeepsFirst(t *testing.T) {
	batch := []models.Record{
		models.Book{ISBN: "1", Title: "first"},
		models.Book{ISBN: "2", Title: "other"},
		models.Book{ISBN: "1", Title: "second"},
	}
	out, dups := collapseDuplicates(batch, models.PolicyIgnore)
	if dups != 1 || len(out) != 2 {
		t.Fatalf("got %d records, %d duplicates", len(out), dups)
	}
	if out[0].(models.Book).Title != "first" || out[1].NaturalKey() != "2" {
		t.Errorf("unexpected order or winner: %+v", out)
	}
}

// failingLoader fails the batches whose 1-based number is in fail.
type failingLoader struct {
	fail    map[int]bool
	calls   int
	written []models.Record
}

func (l *failingLoader) Bootstrap(context.Context) error { return nil }

func (l *failingLoader) Load(_ context.Context, batch []models.Record) error {
	l.calls++
	if l.fail[l.calls] {
		return errors.New("constraint violated")
	}
	l.written = append(l.written, batch...)
	return nil
}

type sliceExtractor struct {
	records []RawRecord
	err     error
}

func (e *sliceExtractor) Extract(_ context.Context, pageSize int) ([]RawRecord, error) {
	if len(e.records) == 0 {
		if e.err != nil {
			return nil, e.err
		}
		return nil, io.EOF
	}
	n := min(pageSize, len(e.records))
	page := e.records[:n]
	e.records = e.records[n:]
	return page, nil
}

func (e *sliceExtractor) Close() error { return nil }

func bookRecords(n int) []RawRecord {
	out := make([]RawRecord, n)
	for i := range out {
		out[i] = RawRecord{Position: i + 1, Fields: map[string]any{
			"isbn": fmt.Sprintf("isbn-%05d", i), "title": "T", "author": "A", "year": "2000",
		}}
	}
	return out
}

func TestPipelineContainsBatchFailure(t *testing.T) {
	var logs bytes.Buffer
	logger.SetOutput(&logs, "info")
	defer logger.SetOutput(&bytes.Buffer{}, "info")

	loader := &failingLoader{fail: map[int]bool{2: true}}
	p := NewPipeline("books", &sliceExtractor{records: bookRecords(5)}, BookNormalizer{}, loader, models.PolicyReplace, 2)

	s, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("a failed batch must not fail the run: %v", err)
	}
	if s.Written != 3 || s.Failed != 2 || s.BatchesCommitted != 2 || s.BatchesFailed != 1 {
		t.Errorf("unexpected counters: %+v", s)
	}
	if s.Valid != s.Written+s.Failed+s.Duplicates {
		t.Errorf("valid %d != written %d + failed %d + duplicates %d", s.Valid, s.Written, s.Failed, s.Duplicates)
	}
	if !strings.Contains(logs.String(), "batch upsert failed") {
		t.Errorf("failure not logged: %s", logs.String())
	}
}

func TestPipelineNothingWrittenFailsWhenRequired(t *testing.T) {
	loader := &failingLoader{fail: map[int]bool{1: true}}
	p := NewPipeline("facilities", &sliceExtractor{records: []RawRecord{
		{Position: 1, Fields: map[string]any{"comm_code": "C1", "name": "N"}},
	}}, FacilityNormalizer{}, loader, models.PolicyIgnore, 50)
	p.RequireWrites = true

	s, err := p.Run(context.Background())
	if !errors.Is(err, ErrNothingWritten) {
		t.Fatalf("expected ErrNothingWritten, got %v", err)
	}
	if s.Outcome != OutcomeFailure || s.Err() == nil {
		t.Errorf("summary not marked failed: %+v", s)
	}
}

func TestPipelineNoValidRecords(t *testing.T) {
	loader := &failingLoader{}
	s, err := runBooksCSV(t, loader, "isbn,title,author,year\n,,,\n", 50)
	if !errors.Is(err, ErrNoValidRecords) {
		t.Fatalf("expected ErrNoValidRecords, got %v", err)
	}
	if s.Skipped != 1 || loader.calls != 0 {
		t.Errorf("skipped %d, loader calls %d", s.Skipped, loader.calls)
	}
}

func TestPipelineEmptySourceFails(t *testing.T) {
	_, err := runBooksCSV(t, &failingLoader{}, "isbn,title,author,year\n", 50)
	if !errors.Is(err, ErrNoValidRecords) {
		t.Fatalf("expected ErrNoValidRecords, got %v", err)
	}
}

func TestPipelineSourceErrorAborts(t *testing.T) {
	ext := &sliceExtractor{records: bookRecords(2), err: sourceError("connection reset")}
	loader := &failingLoader{}
	s, err := NewPipeline("books", ext, BookNormalizer{}, loader, models.PolicyReplace, 1).Run(context.Background())
	if !errors.Is(err, ErrSource) {
		t.Fatalf("expected ErrSource, got %v", err)
	}
	if s.Written != 2 {
		t.Errorf("batches before the failure stay committed, written = %d", s.Written)
	}
}

func TestPipelineDryRunWritesNothing(t *testing.T) {
	loader := &failingLoader{}
	var previewed []models.Record
	p := NewPipeline("books", &sliceExtractor{records: bookRecords(3)}, BookNormalizer{}, loader, models.PolicyReplace, 2)
	p.DryRun = true
	p.Preview = func(batch []models.Record) { previewed = append(previewed, batch...) }

	s, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if loader.calls != 0 || s.Written != 0 || !s.DryRun {
		t.Errorf("dry run touched the sink: calls %d, %+v", loader.calls, s)
	}
	if len(previewed) != 3 {
		t.Errorf("previewed %d records, want 3", len(previewed))
	}
}

func TestPipelineCancelledDuringLoad(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	loader := &cancellingLoader{cancel: cancel}
	p := NewPipeline("books", &sliceExtractor{records: bookRecords(4)}, BookNormalizer{}, loader, models.PolicyReplace, 2)

	_, err := p.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if loader.calls != 1 {
		t.Errorf("run continued after cancellation: %d calls", loader.calls)
	}
}

type cancellingLoader struct {
	cancel context.CancelFunc
	calls  int
}

func (l *cancellingLoader) Bootstrap(context.Context) error { return nil }

func (l *cancellingLoader) Load(ctx context.Context, _ []models.Record) error {
	l.calls++
	l.cancel()
	return ctx.Err()
}

func TestPipelineSkipsRecordWiderThanColumn(t *testing.T) {
	loader, db := newSQLiteLoader(t, models.BooksTable, models.PolicyReplace)
	records := bookRecords(3)
	records[1].Fields["isbn"] = strings.Repeat("9", MaxKeyLength+1)

	p := NewPipeline("books", &sliceExtractor{records: records}, BookNormalizer{}, loader, models.PolicyReplace, 50)
	s, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Skipped != 1 || s.Written != 2 || s.Failed != 0 {
		t.Errorf("unexpected counters: %+v", s)
	}
	if n := countRows(t, db, "books"); n != 2 {
		t.Errorf("got %d rows, want 2", n)
	}
}

type partialLoader struct{ applied int }

func (partialLoader) Bootstrap(context.Context) error { return nil }

func (l partialLoader) Load(context.Context, []models.Record) error {
	return &PartialWriteError{Applied: l.applied, Err: errors.New("document failed validation")}
}

func TestPipelineCountsPartiallyAppliedBatch(t *testing.T) {
	logger.SetOutput(&bytes.Buffer{}, "info")
	defer logger.SetOutput(&bytes.Buffer{}, "info")

	p := NewPipeline("books", &sliceExtractor{records: bookRecords(4)}, BookNormalizer{}, partialLoader{applied: 3}, models.PolicyReplace, 10)
	s, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if s.Written != 3 || s.Failed != 1 || s.BatchesFailed != 1 {
		t.Errorf("unexpected counters: %+v", s)
	}
	if s.Valid != s.Written+s.Failed+s.Duplicates {
		t.Errorf("counters do not add up: %+v", s)
	}
}
