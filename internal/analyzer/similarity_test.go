package analyzer

import (
	"math"
	"reflect"
	"testing"
)

func TestFold(t *testing.T) {
	cases := map[string]string{
		"Nestlé":        "nestle",
		"ÅKER Solutions": "aker solutions",
		"already fine":  "already fine",
	}
	for in, want := range cases {
		if got := Fold(in); got != want {
			t.Errorf("Fold(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Acme Corp", []string{"acme"}},
		{"Procter & Gamble Co.", []string{"procter", "and", "gamble"}},
		{"acme-corp", []string{"acme"}},
		{"  Société Générale SA ", []string{"societe", "generale"}},
		{"The Company", []string{"the", "company"}},
		{"!!!", nil},
	}

	for _, tt := range tests {
		got := Tokenize(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCleanTitle(t *testing.T) {
	cases := map[string]string{
		"Acme Corp | LinkedIn":           "Acme Corp",
		"Acme Corp - LinkedIn":           "Acme Corp",
		"Globex: Overview | LinkedIn":    "Globex",
		"No separator here":              "No separator here",
		"- leading separator is ignored": "- leading separator is ignored",
	}
	for in, want := range cases {
		if got := CleanTitle(in); got != want {
			t.Errorf("CleanTitle(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDice(t *testing.T) {
	if got := Dice([]string{"a", "b"}, []string{"a", "b"}); got != 1 {
		t.Errorf("identical sets should score 1, got %f", got)
	}
	if got := Dice([]string{"a"}, []string{"b"}); got != 0 {
		t.Errorf("disjoint sets should score 0, got %f", got)
	}
	if got := Dice([]string{"a", "b"}, []string{"a", "c"}); got != 0.5 {
		t.Errorf("expected 0.5, got %f", got)
	}
	if got := Dice(nil, []string{"a"}); got != 0 {
		t.Errorf("empty set should score 0, got %f", got)
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"acme", "acme", 0},
		{"crème", "creme", 1},
	}
	for _, tt := range tests {
		if got := Levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("Levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestEditSimilarity(t *testing.T) {
	if got := EditSimilarity("", ""); got != 0 {
		t.Errorf("expected 0 for empty strings, got %f", got)
	}
	if got := EditSimilarity("acme", "acme"); got != 1 {
		t.Errorf("expected 1, got %f", got)
	}
	got := EditSimilarity("kitten", "sitting")
	if math.Abs(got-(1-3.0/7.0)) > 1e-9 {
		t.Errorf("unexpected similarity %f", got)
	}
}

func TestNameProfile_Score(t *testing.T) {
	p := NewNameProfile("Acme Corp")

	exact := p.Score("acme-corp", "Acme Corp | LinkedIn")
	if exact != 1 {
		t.Errorf("expected perfect score, got %f", exact)
	}

	partial := p.Score("acme-industries", "Acme Industries | LinkedIn")
	if partial <= 0 || partial >= exact {
		t.Errorf("expected partial score between 0 and 1, got %f", partial)
	}

	unrelated := p.Score("globex", "Globex Corporation")
	if unrelated >= partial {
		t.Errorf("unrelated candidate scored %f, not below partial %f", unrelated, partial)
	}

	// Slug with a typo is caught by edit similarity.
	typo := p.Score("acmee", "")
	if typo < 0.75 {
		t.Errorf("expected high edit similarity for typo slug, got %f", typo)
	}
}

func TestNameProfile_EmptyName(t *testing.T) {
	if got := Similarity("", "acme", "Acme"); got != 0 {
		t.Errorf("empty name should score 0, got %f", got)
	}
}
