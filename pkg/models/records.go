package models

// Book is a row of the books catalog keyed by ISBN.
type Book struct {
	ISBN   string
	Title  string
	Author string
	Year   int
}

func (b Book) NaturalKey() string { return b.ISBN }

func (b Book) Values() []any {
	return []any{b.ISBN, b.Title, b.Author, b.Year}
}

// Facility is a hospital or clinic keyed by its community code.
// Latitude and Longitude are either both set or both nil.
type Facility struct {
	CommCode  string
	Name      string
	Type      string
	Address   string
	Latitude  *float64
	Longitude *float64
}

func (f Facility) NaturalKey() string { return f.CommCode }

func (f Facility) Values() []any {
	return []any{f.CommCode, f.Name, nullString(f.Type), nullString(f.Address), nullFloat(f.Latitude), nullFloat(f.Longitude)}
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
