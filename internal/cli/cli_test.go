package cli

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/BartekS5/reviewseed/internal/config"
	"github.com/BartekS5/reviewseed/internal/etl"
)

const booksCSV = "isbn,title,author,year\n" +
	"0001,Dune,Frank Herbert,1965\n" +
	"0002,Emma,Jane Austen,bad-year\n" +
	"0003,Ulysses,James Joyce,1922\n"

// testEnv points the importer at a fresh SQLite file and returns its path.
func testEnv(t *testing.T) string {
	t.Helper()
	for _, key := range []string{"DB_DRIVER", "MONGO_URL", "RABBITMQ_URL", "PUSHGATEWAY_URL", "LOG_FILE", "FACILITY_FEED_URL", "IMPORT_BATCH_SIZE"} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("DB_CONNECT_ATTEMPTS", "1")
	t.Setenv("DB_CONNECT_DELAY", "1ms")

	dbPath := filepath.Join(t.TempDir(), "reviews.db")
	t.Setenv("DATABASE_URL", dbPath)
	return dbPath
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func count(t *testing.T, dbPath, query string) int {
	t.Helper()
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(query).Scan(&n); err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	return n
}

func TestImportBooks(t *testing.T) {
	dbPath := testEnv(t)
	csvPath := writeFile(t, "books.csv", booksCSV)

	for i := 0; i < 2; i++ {
		if _, err := execute(t, "import", "books", "--file", csvPath, "-b", "1"); err != nil {
			t.Fatalf("run %d: %v", i+1, err)
		}
	}
	if n := count(t, dbPath, "SELECT COUNT(*) FROM books"); n != 2 {
		t.Errorf("books has %d rows, want 2", n)
	}
}

func TestImportBooksDryRun(t *testing.T) {
	dbPath := testEnv(t)
	csvPath := writeFile(t, "books.csv", booksCSV)

	out, err := execute(t, "import", "books", "--file", csvPath, "--dry-run")
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if !strings.Contains(out, "Ulysses") || !strings.Contains(out, "isbn") {
		t.Errorf("preview missing: %q", out)
	}
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Errorf("dry run touched the database file: %v", err)
	}
}

func TestImportBooksMissingFile(t *testing.T) {
	testEnv(t)
	_, err := execute(t, "import", "books", "--file", filepath.Join(t.TempDir(), "missing.csv"))
	if !errors.Is(err, etl.ErrSource) {
		t.Fatalf("expected ErrSource, got %v", err)
	}
}

func TestImportRequiresDatabaseURL(t *testing.T) {
	testEnv(t)
	t.Setenv("DATABASE_URL", "")
	_, err := execute(t, "import", "books", "--file", writeFile(t, "books.csv", booksCSV))
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestImportRejectsUnknownSink(t *testing.T) {
	testEnv(t)
	_, err := execute(t, "import", "books", "--sink", "redis")
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func facilityFeed(t *testing.T, features int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		list := []map[string]any{}
		if r.URL.Query().Get("$offset") == "0" {
			for i := 0; i < features; i++ {
				list = append(list, map[string]any{
					"properties": map[string]any{"comm_code": fmt.Sprintf("C%d", i), "name": fmt.Sprintf("Clinic %d", i)},
					"geometry":   map[string]any{"coordinates": []float64{-114.0, 51.0}},
				})
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"features": list})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestImportFacilities(t *testing.T) {
	dbPath := testEnv(t)
	srv := facilityFeed(t, 3)

	if _, err := execute(t, "import", "facilities", "--url", srv.URL, "--page-size", "2"); err != nil {
		t.Fatalf("import facilities: %v", err)
	}
	if n := count(t, dbPath, "SELECT COUNT(*) FROM hospitals_clinics WHERE latitude IS NOT NULL"); n != 3 {
		t.Errorf("hospitals_clinics has %d rows, want 3", n)
	}
}

func TestImportFacilitiesEmptyFeedFails(t *testing.T) {
	testEnv(t)
	srv := facilityFeed(t, 0)

	_, err := execute(t, "import", "facilities", "--url", srv.URL)
	if !errors.Is(err, etl.ErrNoValidRecords) {
		t.Fatalf("expected ErrNoValidRecords, got %v", err)
	}
}

func TestImportRunJobFile(t *testing.T) {
	dbPath := testEnv(t)
	srv := facilityFeed(t, 2)
	csvPath := writeFile(t, "books.csv", booksCSV)
	jobs := writeFile(t, "jobs.yaml", fmt.Sprintf(`jobs:
  - name: catalog
    kind: books
    source:
      path: %s
  - name: clinics
    kind: facilities
    source:
      url: %s
`, csvPath, srv.URL))

	if _, err := execute(t, "import", "run", "--jobs", jobs, "--job", "catalog"); err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if _, err := execute(t, "import", "run", "--jobs", jobs, "--job", "clinics"); err != nil {
		t.Fatalf("clinics: %v", err)
	}
	if n := count(t, dbPath, "SELECT COUNT(*) FROM books"); n != 2 {
		t.Errorf("books has %d rows", n)
	}
	if n := count(t, dbPath, "SELECT COUNT(*) FROM hospitals_clinics"); n != 2 {
		t.Errorf("hospitals_clinics has %d rows", n)
	}

	_, err := execute(t, "import", "run", "--jobs", jobs, "--job", "nope")
	if !errors.Is(err, config.ErrConfiguration) {
		t.Errorf("unknown job: expected ErrConfiguration, got %v", err)
	}
}

func TestBootstrapCommand(t *testing.T) {
	dbPath := testEnv(t)
	if _, err := execute(t, "bootstrap"); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if n := count(t, dbPath, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'hospital_clinic_reviews'"); n != 1 {
		t.Error("review table not created")
	}
}

func TestBatchSizePrecedence(t *testing.T) {
	cfg := &config.Config{BatchSize: 50}
	job := config.BooksJob("")
	if got := batchSize(&ImportOptions{}, job, cfg); got != 50 {
		t.Errorf("env default: %d", got)
	}
	job.BatchSize = 20
	if got := batchSize(&ImportOptions{}, job, cfg); got != 20 {
		t.Errorf("job file: %d", got)
	}
	if got := batchSize(&ImportOptions{BatchSize: 5}, job, cfg); got != 5 {
		t.Errorf("flag: %d", got)
	}
}

func TestFeedTimeoutPrecedence(t *testing.T) {
	job := config.FacilitiesJob("http://feed.invalid", "")
	job.Source.TimeoutSec = 0
	if got := feedTimeout(&ImportOptions{}, job); got != 30*time.Second {
		t.Errorf("default: %v", got)
	}
	job.Source.TimeoutSec = 5
	if got := feedTimeout(&ImportOptions{}, job); got != 5*time.Second {
		t.Errorf("job file: %v", got)
	}
	if got := feedTimeout(&ImportOptions{FeedTimeout: time.Second}, job); got != time.Second {
		t.Errorf("flag: %v", got)
	}
}

func TestImportFacilitiesFeedTimeout(t *testing.T) {
	testEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	_, err := execute(t, "import", "facilities", "--url", srv.URL, "--feed-timeout", "50ms")
	if !errors.Is(err, etl.ErrFetch) {
		t.Fatalf("expected ErrFetch, got %v", err)
	}
}

func TestImportRejectsNegativeFeedTimeout(t *testing.T) {
	testEnv(t)
	_, err := execute(t, "import", "facilities", "--feed-timeout", "-1s")
	if !errors.Is(err, config.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
