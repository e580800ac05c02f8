package jobs

import (
	"strings"
	"unicode"
)

// Query is a normalized search key for the job board.
type Query struct {
	Title    string `json:"title"`
	Location string `json:"location,omitempty"`
}

// NewQuery builds a Query from raw title and location strings.
func NewQuery(title, location string) Query {
	return Query{
		Title:    Normalize(title),
		Location: NormalizeLocation(location),
	}
}

// Key is the cache key of the query. Equal queries produce equal keys.
func (q Query) Key() string {
	if q.Location == "" {
		return q.Title
	}
	return q.Title + "|" + q.Location
}

func (q Query) String() string {
	return q.Key()
}

// IsZero reports whether the query has no title.
func (q Query) IsZero() bool {
	return q.Title == ""
}

// Normalize lowercases s, trims it and collapses inner whitespace runs into one space.
// Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), unicode.IsSpace), " ")
}

// NormalizeLocation normalizes a location. Placeholders such as "none" become empty,
// and for alternatives like "Sydney or Melbourne" only the first is kept.
func NormalizeLocation(s string) string {
	loc := Normalize(s)
	switch loc {
	case "", "none", "null", "n/a", "any", "anywhere":
		return ""
	}
	if idx := strings.Index(loc, " or "); idx > 0 {
		loc = strings.TrimSpace(loc[:idx])
	}
	return strings.TrimRight(loc, " ,")
}
