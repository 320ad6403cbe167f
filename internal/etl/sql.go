package etl

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/BartekS5/reviewseed/pkg/database"
	"github.com/BartekS5/reviewseed/pkg/models"
)

// SQLLoader upserts batches into a relational table, one transaction per batch.
type SQLLoader struct {
	DB        *sql.DB
	Dialect   database.Dialect
	Table     models.Table
	Policy    models.Policy
	// Timeout bounds a single batch transaction. Zero disables it.
	Timeout   time.Duration
	// MaxParams caps the bind parameters of one statement; larger batches
	// are split into several statements inside the same transaction.
	MaxParams int
}

func NewSQLLoader(db *sql.DB, dialect database.Dialect, table models.Table, policy models.Policy) *SQLLoader {
	return &SQLLoader{
		DB:        db,
		Dialect:   dialect,
		Table:     table,
		Policy:    policy,
		Timeout:   30 * time.Second,
		MaxParams: dialect.MaxParams(),
	}
}

func (l *SQLLoader) Bootstrap(ctx context.Context) error {
	return database.Bootstrap(ctx, l.DB, l.Dialect)
}

// Load writes the whole batch or nothing.
func (l *SQLLoader) Load(ctx context.Context, batch []models.Record) (err error) {
	if len(batch) == 0 {
		return nil
	}
	width := len(l.Table.Columns)
	args := make([]any, 0, len(batch)*width)
	for _, rec := range batch {
		vals := rec.Values()
		if len(vals) != width {
			return fmt.Errorf("record %q has %d values, table %s has %d columns", rec.NaturalKey(), len(vals), l.Table.Name, width)
		}
		args = append(args, vals...)
	}

	rowsPerStmt := l.rowsPerStatement(width)
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for start := 0; start < len(batch); start += rowsPerStmt {
		end := min(start+rowsPerStmt, len(batch))
		var query string
		query, err = l.Dialect.UpsertSQL(l.Table, l.Policy, end-start)
		if err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, query, args[start*width:end*width]...); err != nil {
			return fmt.Errorf("upsert into %s: %w", l.Table.Name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (l *SQLLoader) rowsPerStatement(width int) int {
	if l.MaxParams <= 0 {
		return l.Dialect.MaxRows(width)
	}
	return max(1, l.MaxParams/width)
}
