package etl

import (
	"context"

	"github.com/BartekS5/reviewseed/pkg/models"
)

// RawRecord is one untyped record as received from a source.
// Defect is set when the source already knows the record is malformed.
type RawRecord struct {
	Position int
	Fields   map[string]any
	Defect   error
}

// Extractor produces a finite sequence of pages. It returns io.EOF once the
// source is exhausted and cannot be rewound.
type Extractor interface {
	Extract(ctx context.Context, pageSize int) ([]RawRecord, error)
	Close() error
}

// Normalizer turns a raw record into a normalized one. Any error it returns
// is a *ValidationError and only skips that record.
type Normalizer interface {
	Normalize(raw RawRecord) (models.Record, error)
}

// Loader upserts batches into a sink keyed on the table's natural key.
type Loader interface {
	Bootstrap(ctx context.Context) error
	Load(ctx context.Context, batch []models.Record) error
}
