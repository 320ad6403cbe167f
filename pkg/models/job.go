package models

import "fmt"

// Kind selects the normalizer and destination table of a job.
type Kind string

const (
	KindBooks      Kind = "books"
	KindFacilities Kind = "facilities"
)

// SourceType selects the record source adapter.
type SourceType string

const (
	SourceCSV  SourceType = "csv"
	SourceFeed SourceType = "feed"
)

// JobFile represents the root of a jobs.yaml / jobs.json file.
type JobFile struct {
	Version string      `json:"version" yaml:"version"`
	Jobs    []ImportJob `json:"jobs" yaml:"jobs"`
}

// ImportJob is one named import: where records come from, which table
// they land in and how conflicts on the natural key are resolved.
type ImportJob struct {
	Name          string     `json:"name" yaml:"name"`
	Kind          Kind       `json:"kind" yaml:"kind"`
	Policy        Policy     `json:"policy,omitempty" yaml:"policy,omitempty"`
	BatchSize     int        `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	RequireWrites bool       `json:"require_writes,omitempty" yaml:"require_writes,omitempty"`
	Source        SourceSpec `json:"source" yaml:"source"`
}

type SourceSpec struct {
	Type       SourceType        `json:"type" yaml:"type"`
	Path       string            `json:"path,omitempty" yaml:"path,omitempty"`
	URL        string            `json:"url,omitempty" yaml:"url,omitempty"`
	Category   string            `json:"category,omitempty" yaml:"category,omitempty"`
	PageSize   int               `json:"page_size,omitempty" yaml:"page_size,omitempty"`
	MaxRecords int               `json:"max_records,omitempty" yaml:"max_records,omitempty"`
	TimeoutSec int               `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`
	Params     map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// Find returns the job with the given name.
func (f *JobFile) Find(name string) (*ImportJob, bool) {
	for i := range f.Jobs {
		if f.Jobs[i].Name == name {
			return &f.Jobs[i], true
		}
	}
	return nil, false
}

// TableFor returns the destination table of a job kind.
func TableFor(kind Kind) (Table, error) {
	switch kind {
	case KindBooks:
		return BooksTable, nil
	case KindFacilities:
		return FacilitiesTable, nil
	default:
		return Table{}, fmt.Errorf("unknown job kind %q", kind)
	}
}
