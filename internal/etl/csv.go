package etl

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

// BookColumns is the fixed column order of the books CSV.
var BookColumns = []string{"isbn", "title", "author", "year"}

// CSVExtractor reads a UTF-8, comma-delimited file with a header row and
// maps cells to Columns by position.
type CSVExtractor struct {
	Path    string
	Columns []string

	file   *os.File
	reader *csv.Reader
	row    int
	done   bool
}

// NewCSVExtractor opens path and consumes its header row.
func NewCSVExtractor(path string, columns []string) (*CSVExtractor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening csv %s: %w", ErrSource, path, err)
	}

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		f.Close()
		if errors.Is(err, io.EOF) {
			return nil, sourceError("csv %s is empty", path)
		}
		return nil, fmt.Errorf("%w: reading csv header of %s: %w", ErrSource, path, err)
	}
	if !validUTF8(header) {
		f.Close()
		return nil, sourceError("csv %s: header is not valid UTF-8", path)
	}

	return &CSVExtractor{Path: path, Columns: columns, file: f, reader: r}, nil
}

func (e *CSVExtractor) Extract(ctx context.Context, pageSize int) ([]RawRecord, error) {
	if e.done {
		return nil, io.EOF
	}
	if pageSize < 1 {
		pageSize = 1
	}

	page := make([]RawRecord, 0, pageSize)
	for len(page) < pageSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := e.reader.Read()
		if errors.Is(err, io.EOF) {
			e.done = true
			break
		}
		e.row++

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			page = append(page, RawRecord{Position: e.row, Fields: map[string]any{}, Defect: parseErr.Err})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading csv %s: %w", ErrSource, e.Path, err)
		}
		if !validUTF8(row) {
			line, _ := e.reader.FieldPos(0)
			return nil, sourceError("csv %s line %d is not valid UTF-8", e.Path, line)
		}

		page = append(page, e.toRecord(row))
	}

	if len(page) == 0 {
		return nil, io.EOF
	}
	return page, nil
}

func (e *CSVExtractor) toRecord(row []string) RawRecord {
	rec := RawRecord{Position: e.row, Fields: make(map[string]any, len(e.Columns))}
	for i, col := range e.Columns {
		if i < len(row) {
			rec.Fields[col] = strings.TrimSpace(row[i])
		}
	}
	if len(row) != len(e.Columns) {
		rec.Defect = fmt.Errorf("expected %d columns, got %d", len(e.Columns), len(row))
	}
	return rec
}

func (e *CSVExtractor) Close() error {
	if e.file != nil {
		err := e.file.Close()
		e.file = nil
		return err
	}
	return nil
}

func validUTF8(cells []string) bool {
	for _, c := range cells {
		if !utf8.ValidString(c) {
			return false
		}
	}
	return true
}
