package etl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/BartekS5/reviewseed/pkg/logger"
	"github.com/BartekS5/reviewseed/pkg/models"
)

const DefaultBatchSize = 50

type Pipeline struct {
	Job        string
	Extractor  Extractor
	Normalizer Normalizer
	Loader     Loader
	Policy     models.Policy
	BatchSize  int
	// PageSize is how many raw records are requested per Extract call.
	// Zero means BatchSize.
	PageSize int
	// RequireWrites fails the run when no record was written.
	RequireWrites bool
	DryRun        bool
	// Preview receives the records a dry run would have written.
	Preview func(batch []models.Record)
}

// NewPipeline creates a pipeline; a non-positive batchSize selects DefaultBatchSize.
func NewPipeline(job string, ext Extractor, norm Normalizer, loader Loader, policy models.Policy, batchSize int) *Pipeline {
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	return &Pipeline{
		Job:        job,
		Extractor:  ext,
		Normalizer: norm,
		Loader:     loader,
		Policy:     policy,
		BatchSize:  batchSize,
	}
}

// Run reads the source to the end, flushing a batch every BatchSize valid
// records. The returned summary is finalized and its Err matches the error.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	summary := NewSummary(p.Job)
	summary.DryRun = p.DryRun
	err := p.run(ctx, summary)
	summary.Finalize(err)
	return summary, err
}

func (p *Pipeline) run(ctx context.Context, s *Summary) error {
	pageSize := p.PageSize
	if pageSize < 1 {
		pageSize = p.BatchSize
	}
	log := logger.With("job", p.Job, "run_id", s.RunID.String())
	log.Info("starting import", "batch_size", p.BatchSize, "policy", string(p.Policy), "dry_run", p.DryRun)

	batch := make([]models.Record, 0, p.BatchSize)
	batchNo := 0
	for {
		page, err := p.Extractor.Extract(ctx, pageSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("extracting after %d records: %w", s.Read, err)
		}

		for _, raw := range page {
			s.Read++
			rec, err := p.Normalizer.Normalize(raw)
			var verr *ValidationError
			if errors.As(err, &verr) {
				s.Skipped++
				log.Warn("skipping record", "position", verr.Position, "field", verr.Field, "reason", verr.Reason)
				continue
			}
			if err != nil {
				return fmt.Errorf("normalizing record %d: %w", raw.Position, err)
			}
			s.Valid++

			batch = append(batch, rec)
			if len(batch) >= p.BatchSize {
				batchNo++
				if err := p.flush(ctx, s, batchNo, batch); err != nil {
					return err
				}
				batch = make([]models.Record, 0, p.BatchSize)
			}
		}
	}

	if len(batch) > 0 {
		batchNo++
		if err := p.flush(ctx, s, batchNo, batch); err != nil {
			return err
		}
	}

	if s.Valid == 0 {
		return fmt.Errorf("%w: read %d, skipped %d", ErrNoValidRecords, s.Read, s.Skipped)
	}
	if p.RequireWrites && !p.DryRun && s.Written == 0 {
		return fmt.Errorf("%w: %d valid records, %d in failed batches", ErrNothingWritten, s.Valid, s.Failed)
	}
	return nil
}

// flush writes one batch. A write failure is counted and logged but only
// aborts the run when the context is done.
func (p *Pipeline) flush(ctx context.Context, s *Summary, batchNo int, batch []models.Record) error {
	unique, dups := collapseDuplicates(batch, p.Policy)
	s.Duplicates += dups

	if p.DryRun {
		logger.Info("dry run: batch not written", "job", p.Job, "batch", batchNo, "records", len(unique))
		if p.Preview != nil {
			p.Preview(unique)
		}
		return nil
	}

	start := time.Now()
	if err := p.Loader.Load(ctx, unique); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("batch %d interrupted: %w", batchNo, ctxErr)
		}
		applied := 0
		var perr *PartialWriteError
		if errors.As(err, &perr) {
			applied = min(max(perr.Applied, 0), len(unique))
		}
		s.Written += applied
		s.Failed += len(unique) - applied
		s.BatchesFailed++
		werr := &BatchWriteError{Batch: batchNo, Size: len(unique), Err: err}
		logger.Error("batch upsert failed", "job", p.Job, "batch", batchNo, "records", len(unique), "applied", applied, "error", werr)
		return nil
	}

	s.Written += len(unique)
	s.BatchesCommitted++
	elapsed := time.Since(s.Started).Seconds()
	rate := 0.0
	if elapsed > 0 {
		rate = float64(s.Written) / elapsed
	}
	logger.Info("batch committed", "job", p.Job, "batch", batchNo, "records", len(unique),
		"took", time.Since(start).Round(time.Millisecond), "total_written", s.Written, "rate_per_sec", fmt.Sprintf("%.2f", rate))
	return nil
}

// collapseDuplicates keeps one record per natural key so a single multi-row
// upsert never touches a row twice: the last occurrence for replace, the
// first for ignore. Order of first appearance is preserved.
func collapseDuplicates(batch []models.Record, policy models.Policy) ([]models.Record, int) {
	index := make(map[string]int, len(batch))
	out := make([]models.Record, 0, len(batch))
	for _, rec := range batch {
		key := rec.NaturalKey()
		if i, seen := index[key]; seen {
			if policy == models.PolicyReplace {
				out[i] = rec
			}
			continue
		}
		index[key] = len(out)
		out = append(out, rec)
	}
	return out, len(batch) - len(out)
}
