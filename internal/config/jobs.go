package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BartekS5/reviewseed/pkg/models"
)

// Job file validation errors.
var (
	ErrNoJobs              = errors.New("at least one job is required")
	ErrJobMissingName      = errors.New("name is required")
	ErrDuplicateJobName    = errors.New("job names must be unique")
	ErrUnknownKind         = errors.New("kind must be books or facilities")
	ErrUnknownPolicy       = errors.New("policy must be replace or ignore")
	ErrUnknownSourceType   = errors.New("source.type must be csv or feed")
	ErrSourceMissingPath   = errors.New("source.path is required for csv sources")
	ErrSourceMissingURL    = errors.New("source.url is required for feed sources")
	ErrInvalidBatchSize    = errors.New("batch_size must be non-negative")
	ErrInvalidPageSize     = errors.New("source.page_size must be non-negative")
	ErrInvalidMaxRecords   = errors.New("source.max_records must be non-negative")
	ErrInvalidTimeout      = errors.New("source.timeout_sec must be non-negative")
	ErrFeedRequiresGeoKind = errors.New("feed sources are only supported for facilities")
)

// Defaults applied to jobs that leave them unset.
const (
	DefaultBooksFile      = "books.csv"
	DefaultFeedPageSize   = 1000
	DefaultFeedTimeoutSec = 30
)

// LoadJobs reads a job file. Files ending in .yaml or .yml are decoded as
// YAML, everything else as JSON.
func LoadJobs(path string) (*models.JobFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read job file '%s': %w", ErrConfiguration, path, err)
	}

	var file models.JobFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &file)
	default:
		err = json.Unmarshal(data, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse job file '%s': %w", ErrConfiguration, path, err)
	}

	for i := range file.Jobs {
		ApplyDefaults(&file.Jobs[i])
	}
	if err := ValidateJobs(&file); err != nil {
		return nil, fmt.Errorf("%w: job file '%s': %w", ErrConfiguration, path, err)
	}
	return &file, nil
}

// ApplyDefaults fills in the policy, source type and feed paging settings
// that follow from the job kind.
func ApplyDefaults(job *models.ImportJob) {
	if job.Policy == "" {
		switch job.Kind {
		case models.KindBooks:
			job.Policy = models.PolicyReplace
		case models.KindFacilities:
			job.Policy = models.PolicyIgnore
		}
	}
	if job.Source.Type == "" {
		if job.Source.URL != "" {
			job.Source.Type = models.SourceFeed
		} else {
			job.Source.Type = models.SourceCSV
		}
	}
	if job.Source.Type == models.SourceFeed {
		if job.Source.PageSize == 0 {
			job.Source.PageSize = DefaultFeedPageSize
		}
		if job.Source.TimeoutSec == 0 {
			job.Source.TimeoutSec = DefaultFeedTimeoutSec
		}
	}
}

// ValidateJobs checks every job of a job file.
func ValidateJobs(file *models.JobFile) error {
	if len(file.Jobs) == 0 {
		return ErrNoJobs
	}
	seen := make(map[string]bool, len(file.Jobs))
	for i := range file.Jobs {
		job := &file.Jobs[i]
		if err := ValidateJob(job); err != nil {
			return fmt.Errorf("jobs[%d]: %w", i, err)
		}
		if seen[job.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateJobName, job.Name)
		}
		seen[job.Name] = true
	}
	return nil
}

// ValidateJob checks a single job after defaults have been applied.
func ValidateJob(job *models.ImportJob) error {
	if job.Name == "" {
		return ErrJobMissingName
	}
	if _, err := models.TableFor(job.Kind); err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownKind, job.Kind)
	}
	if _, err := models.ParsePolicy(string(job.Policy)); err != nil {
		return fmt.Errorf("%w: %q", ErrUnknownPolicy, job.Policy)
	}
	if job.BatchSize < 0 {
		return ErrInvalidBatchSize
	}

	src := job.Source
	switch src.Type {
	case models.SourceCSV:
		if src.Path == "" {
			return ErrSourceMissingPath
		}
	case models.SourceFeed:
		if src.URL == "" {
			return ErrSourceMissingURL
		}
		if job.Kind != models.KindFacilities {
			return ErrFeedRequiresGeoKind
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSourceType, src.Type)
	}
	if src.PageSize < 0 {
		return ErrInvalidPageSize
	}
	if src.MaxRecords < 0 {
		return ErrInvalidMaxRecords
	}
	if src.TimeoutSec < 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// BooksJob is the built-in CSV import of the book catalog.
func BooksJob(path string) models.ImportJob {
	if path == "" {
		path = DefaultBooksFile
	}
	job := models.ImportJob{
		Name:   "books",
		Kind:   models.KindBooks,
		Source: models.SourceSpec{Type: models.SourceCSV, Path: path},
	}
	ApplyDefaults(&job)
	return job
}

// FacilitiesJob is the built-in open-data import of hospitals and clinics.
// The run only succeeds if at least one facility was written.
func FacilitiesJob(url, category string) models.ImportJob {
	if url == "" {
		url = DefaultFeedURL
	}
	job := models.ImportJob{
		Name:          "facilities",
		Kind:          models.KindFacilities,
		RequireWrites: true,
		Source:        models.SourceSpec{Type: models.SourceFeed, URL: url, Category: category},
	}
	ApplyDefaults(&job)
	return job
}
