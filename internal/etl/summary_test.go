package etl

import (
	"bytes"
	"strings"
	"testing"

	"github.com/BartekS5/reviewseed/pkg/logger"
)

func TestSummaryFinalizeOnce(t *testing.T) {
	s := NewSummary("books")
	s.Finalize(nil)
	first := s.Duration

	s.Finalize(ErrSource)
	if s.Outcome != OutcomeSuccess || s.Err() != nil || s.Duration != first {
		t.Errorf("second Finalize changed the summary: %+v", s)
	}
}

func TestSummaryLog(t *testing.T) {
	var logs bytes.Buffer
	logger.SetOutput(&logs, "info")
	defer logger.SetOutput(&bytes.Buffer{}, "info")

	s := NewSummary("facilities")
	s.Read, s.Valid, s.Written = 3, 3, 3
	s.Finalize(nil)
	s.Log()

	line := logs.String()
	for _, want := range []string{"level=INFO", `msg="import finished"`, "job=facilities", "written=3", "outcome=success", "run_id=" + s.RunID.String()} {
		if !strings.Contains(line, want) {
			t.Errorf("log line missing %q: %s", want, line)
		}
	}

	logs.Reset()
	failed := NewSummary("facilities")
	failed.Finalize(ErrNothingWritten)
	failed.Log()
	if !strings.Contains(logs.String(), "level=ERROR") || !strings.Contains(logs.String(), "outcome=failure") {
		t.Errorf("failure not logged at ERROR: %s", logs.String())
	}
}
