// Package linkedin recognises LinkedIn company page URLs and picks the search
// result most likely to be a company's official page.
package linkedin

import (
	"net/url"
	"strings"

	"github.com/FranksOps/companyfinder/internal/analyzer"
	"github.com/FranksOps/companyfinder/internal/serp"
	"github.com/FranksOps/companyfinder/pkg/opt"
)

const canonicalPrefix = "https://www.linkedin.com/company/"

// CompanyPage reports whether rawURL points at a LinkedIn company page and
// returns its canonical form and slug. Sub-pages (/about, /jobs), query
// strings and fragments are dropped from the canonical URL.
func CompanyPage(rawURL string) (canonical, slug string, ok bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", "", false
	}
	host := strings.ToLower(strings.TrimSuffix(u.Hostname(), "."))
	if host != "linkedin.com" && !strings.HasSuffix(host, ".linkedin.com") {
		return "", "", false
	}

	segments := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	if len(segments) < 2 || segments[0] != "company" {
		return "", "", false
	}
	slug, err = url.PathUnescape(segments[1])
	if err != nil || strings.TrimSpace(slug) == "" {
		return "", "", false
	}
	return canonicalPrefix + url.PathEscape(slug), slug, true
}

// Selection is the outcome of SelectBest. URL and Result are either both
// present or both absent.
type Selection struct {
	URL    opt.Option[string]
	Result opt.Option[serp.Result]
	Score  float64
}

// Match builds a Selection for a chosen result.
func Match(canonicalURL string, r serp.Result, score float64) Selection {
	return Selection{
		URL:    opt.Some(canonicalURL),
		Result: opt.Some(r),
		Score:  score,
	}
}

// Found reports whether a candidate was selected.
func (s Selection) Found() bool { return s.URL.IsSome() }

// Selector picks the best company page among search results.
type Selector struct {
	// MinScore is the similarity a candidate must reach, in [0,1]. Zero
	// accepts any structurally valid company page.
	MinScore float64
}

// SelectBest uses a Selector with no similarity threshold.
func SelectBest(results []serp.Result, companyName string) Selection {
	return Selector{}.SelectBest(results, companyName)
}

// SelectBest scores every company page in results against companyName and
// returns the highest scoring one. Equal scores keep the earliest result.
func (s Selector) SelectBest(results []serp.Result, companyName string) Selection {
	profile := analyzer.NewNameProfile(companyName)

	var (
		best      Selection
		bestScore = -1.0
	)
	for _, r := range results {
		canonical, slug, ok := CompanyPage(r.URL)
		if !ok {
			continue
		}
		score := profile.Score(slug, r.Title)
		if score < s.MinScore || score <= bestScore {
			continue
		}
		best = Match(canonical, r, score)
		bestScore = score
	}
	return best
}
