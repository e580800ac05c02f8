package jobs

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{name: "lowercases", input: "Data Engineer", expect: "data engineer"},
		{name: "trims", input: "  data engineer\t", expect: "data engineer"},
		{name: "collapses inner whitespace", input: "Data \n  Engineer", expect: "data engineer"},
		{name: "empty", input: "   ", expect: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Normalize(tt.input)
			if got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
			if again := Normalize(got); again != got {
				t.Fatalf("normalize is not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestNewQueryKeysMatchForEquivalentInput(t *testing.T) {
	t.Parallel()

	a := NewQuery("Data Engineer", "Sydney")
	b := NewQuery("  data   ENGINEER ", " sydney ")
	if a.Key() != b.Key() {
		t.Fatalf("expected equal keys, got %q and %q", a.Key(), b.Key())
	}

	if c := NewQuery("data engineer", ""); c.Key() == a.Key() {
		t.Fatalf("expected location to be part of the key")
	}
}

func TestNormalizeLocation(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"none":                "",
		"Sydney or Melbourne": "sydney",
		"  Perth ":            "perth",
		"Brisbane,":           "brisbane",
	}

	for input, expect := range tests {
		if got := NormalizeLocation(input); got != expect {
			t.Fatalf("NormalizeLocation(%q): expected %q, got %q", input, expect, got)
		}
		if again := NormalizeLocation(expect); again != expect {
			t.Fatalf("NormalizeLocation not idempotent for %q: %q", expect, again)
		}
	}
}

func TestUserProfileQueriesSkipEmptyTitles(t *testing.T) {
	t.Parallel()

	profile := &UserProfile{CandidateTitles: []string{"Backend Engineer", "  ", "Go Developer"}, Location: "Sydney or Melbourne"}
	queries := profile.Queries()
	if len(queries) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(queries))
	}
	if queries[0].Key() != "backend engineer|sydney" {
		t.Fatalf("unexpected first query: %q", queries[0].Key())
	}
}
