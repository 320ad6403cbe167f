package models

import "fmt"

// Policy decides what an upsert does when the natural key already exists.
type Policy string

const (
	// PolicyReplace updates every non-key column on conflict.
	PolicyReplace Policy = "replace"
	// PolicyIgnore leaves the existing row untouched on conflict.
	PolicyIgnore Policy = "ignore"
)

// ParsePolicy validates a policy name read from flags or a job file.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyReplace, PolicyIgnore:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown upsert policy %q (want replace or ignore)", s)
	}
}

// Table describes a destination relation. Key must be one of Columns.
type Table struct {
	Name    string
	Key     string
	Columns []string
}

// NonKeyColumns returns the columns an insert-or-replace updates.
func (t Table) NonKeyColumns() []string {
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c != t.Key {
			cols = append(cols, c)
		}
	}
	return cols
}

// Record is a normalized record ready for the sink.
// Values are ordered like the Columns of the record's Table.
type Record interface {
	NaturalKey() string
	Values() []any
}

var (
	BooksTable = Table{
		Name:    "books",
		Key:     "isbn",
		Columns: []string{"isbn", "title", "author", "year"},
	}

	FacilitiesTable = Table{
		Name:    "hospitals_clinics",
		Key:     "comm_code",
		Columns: []string{"comm_code", "name", "type", "address", "latitude", "longitude"},
	}
)
