package etl

import (
	"time"

	"github.com/google/uuid"

	"github.com/BartekS5/reviewseed/pkg/logger"
)

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Summary accumulates the counters of one import run.
// After Finalize, Valid == Written + Failed + Duplicates unless the run was a dry run
// or aborted mid-batch.
type Summary struct {
	RunID            uuid.UUID     `json:"run_id"`
	Job              string        `json:"job"`
	Read             int           `json:"read"`
	Valid            int           `json:"valid"`
	Skipped          int           `json:"skipped"`
	Written          int           `json:"written"`
	Failed           int           `json:"failed"`
	Duplicates       int           `json:"duplicates"`
	BatchesCommitted int           `json:"batches_committed"`
	BatchesFailed    int           `json:"batches_failed"`
	DryRun           bool          `json:"dry_run"`
	Started          time.Time     `json:"started"`
	Duration         time.Duration `json:"duration_ns"`
	Outcome          Outcome       `json:"outcome"`
	Error            string        `json:"error,omitempty"`

	err       error
	finalized bool
}

func NewSummary(job string) *Summary {
	return &Summary{RunID: uuid.New(), Job: job, Started: time.Now()}
}

// Finalize fixes the terminal outcome. Later calls are ignored.
func (s *Summary) Finalize(err error) {
	if s.finalized {
		return
	}
	s.finalized = true
	s.Duration = time.Since(s.Started)
	s.err = err
	if err != nil {
		s.Outcome = OutcomeFailure
		s.Error = err.Error()
		return
	}
	s.Outcome = OutcomeSuccess
}

// Err is the error the run finished with, nil on success.
func (s *Summary) Err() error { return s.err }

func (s *Summary) Succeeded() bool { return s.finalized && s.err == nil }

func (s *Summary) attrs() []any {
	attrs := []any{
		"run_id", s.RunID.String(),
		"job", s.Job,
		"read", s.Read,
		"valid", s.Valid,
		"skipped", s.Skipped,
		"written", s.Written,
		"failed", s.Failed,
		"duplicates", s.Duplicates,
		"batches_committed", s.BatchesCommitted,
		"batches_failed", s.BatchesFailed,
		"dry_run", s.DryRun,
		"duration", s.Duration.Round(time.Millisecond),
		"outcome", string(s.Outcome),
	}
	if s.err != nil {
		attrs = append(attrs, "error", s.err)
	}
	return attrs
}

// Log emits the single end-of-run line.
func (s *Summary) Log() {
	if s.err != nil {
		logger.Error("import finished", s.attrs()...)
		return
	}
	logger.Info("import finished", s.attrs()...)
}
