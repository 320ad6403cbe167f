package etl

import (
	"errors"
	"fmt"

	"github.com/BartekS5/reviewseed/pkg/database"
)

// Run-level error kinds. Everything except *ValidationError and
// *BatchWriteError aborts the run.
var (
	ErrSource         = errors.New("source error")
	ErrFetch          = errors.New("fetch error")
	ErrBatchWrite     = errors.New("batch write failed")
	ErrNoValidRecords = errors.New("no valid records found")
	ErrNothingWritten = errors.New("no records were imported")
	ErrConnection     = database.ErrConnection
	ErrSchema         = database.ErrSchema
)

func sourceError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSource, fmt.Sprintf(format, args...))
}

// ValidationError rejects a single record.
type ValidationError struct {
	Position int
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("record %d: %s", e.Position, e.Reason)
	}
	return fmt.Sprintf("record %d: %s: %s", e.Position, e.Field, e.Reason)
}

func invalid(raw RawRecord, field, format string, args ...any) *ValidationError {
	return &ValidationError{Position: raw.Position, Field: field, Reason: fmt.Sprintf(format, args...)}
}

// FetchError reports a failed page request. Status is 0 for transport failures.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// BatchWriteError reports a batch whose upsert was rolled back.
type BatchWriteError struct {
	Batch int
	Size  int
	Err   error
}

func (e *BatchWriteError) Error() string {
	return fmt.Sprintf("batch %d (%d records): %v", e.Batch, e.Size, e.Err)
}

func (e *BatchWriteError) Unwrap() error { return e.Err }

func (e *BatchWriteError) Is(target error) bool { return target == ErrBatchWrite }

// PartialWriteError is returned by a loader whose failed batch still applied
// Applied of its records.
type PartialWriteError struct {
	Applied int
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%d records applied before failure: %v", e.Applied, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }
