package analyzer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes are dropped from token sets so "Acme Corp" and "acme" compare equal.
var legalSuffixes = map[string]struct{}{
	"the": {}, "inc": {}, "incorporated": {}, "llc": {}, "llp": {}, "lp": {},
	"ltd": {}, "limited": {}, "corp": {}, "corporation": {}, "co": {},
	"company": {}, "gmbh": {}, "ag": {}, "plc": {}, "sa": {}, "sas": {},
	"sarl": {}, "bv": {}, "nv": {}, "srl": {}, "spa": {}, "pty": {},
	"oy": {}, "ab": {}, "as": {}, "kk": {}, "group": {}, "holdings": {},
}

// titleSeparators split a SERP title into the page name and the site suffix.
var titleSeparators = []string{" | ", " - ", " – ", " — ", " · ", ": "}

// Fold lowercases s and strips diacritics ("Nestlé" -> "nestle").
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// Tokenize folds s and splits it on anything that is not a letter or digit.
// '&' becomes the token "and". Legal-entity suffixes are removed unless that
// would leave nothing.
func Tokenize(s string) []string {
	s = strings.ReplaceAll(Fold(s), "&", " and ")
	raw := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(raw) == 0 {
		return nil
	}

	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		if _, drop := legalSuffixes[tok]; drop {
			continue
		}
		tokens = append(tokens, tok)
	}
	if len(tokens) == 0 {
		return raw
	}
	return tokens
}

// CleanTitle returns the part of a result title before the first site
// separator, e.g. "Acme Corp | LinkedIn" -> "Acme Corp".
func CleanTitle(title string) string {
	title = strings.TrimSpace(title)
	cut := len(title)
	for _, sep := range titleSeparators {
		if i := strings.Index(title, sep); i > 0 && i < cut {
			cut = i
		}
	}
	return strings.TrimSpace(title[:cut])
}

// Dice returns the Sørensen-Dice coefficient of two token sets in [0,1].
func Dice(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}

	shared := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(setA)+len(setB))
}

// Levenshtein returns the edit distance between a and b, counted in runes.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	// Two rolling rows instead of the full matrix.
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// EditSimilarity is 1 - Levenshtein(a,b)/max(len(a),len(b)), in [0,1].
// Two empty strings have similarity 0.
func EditSimilarity(a, b string) float64 {
	la, lb := len([]rune(a)), len([]rune(b))
	longest := max(la, lb)
	if longest == 0 {
		return 0
	}
	return 1 - float64(Levenshtein(a, b))/float64(longest)
}

// NameProfile is a company name prepared once for comparison against many
// candidates.
type NameProfile struct {
	Name    string
	Tokens  []string
	Compact string
}

// NewNameProfile tokenizes name.
func NewNameProfile(name string) NameProfile {
	tokens := Tokenize(name)
	return NameProfile{
		Name:    name,
		Tokens:  tokens,
		Compact: strings.Join(tokens, ""),
	}
}

// Score rates how well a candidate's URL slug and title describe the company.
// It is the best of: token overlap with the slug, token overlap with the
// cleaned title, and edit similarity between the compacted name and slug.
func (p NameProfile) Score(slug, title string) float64 {
	if len(p.Tokens) == 0 {
		return 0
	}

	slugTokens := Tokenize(slug)
	best := Dice(p.Tokens, slugTokens)

	if title != "" {
		if s := Dice(p.Tokens, Tokenize(CleanTitle(title))); s > best {
			best = s
		}
	}

	if s := EditSimilarity(p.Compact, strings.Join(slugTokens, "")); s > best {
		best = s
	}
	return best
}

// Similarity scores a single candidate. Use NewNameProfile when scoring many
// candidates for the same name.
func Similarity(name, slug, title string) float64 {
	return NewNameProfile(name).Score(slug, title)
}
