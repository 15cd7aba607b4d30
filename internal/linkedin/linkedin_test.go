package linkedin

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/companyfinder/internal/serp"
)

func TestCompanyPage(t *testing.T) {
	tests := []struct {
		name          string
		in            string
		wantCanonical string
		wantSlug      string
		wantOK        bool
	}{
		{"bare host", "https://linkedin.com/company/acme-corp", "https://www.linkedin.com/company/acme-corp", "acme-corp", true},
		{"country subdomain with subpage", "https://uk.linkedin.com/company/acme-corp/about/?trk=x#top", "https://www.linkedin.com/company/acme-corp", "acme-corp", true},
		{"escaped slug", "http://www.linkedin.com/company/acme%20corp", "https://www.linkedin.com/company/acme%20corp", "acme corp", true},
		{"upper case host", "https://WWW.LinkedIn.com/company/globex", "https://www.linkedin.com/company/globex", "globex", true},
		{"person", "https://www.linkedin.com/in/john-doe", "", "", false},
		{"job", "https://linkedin.com/jobs/123", "", "", false},
		{"school", "https://www.linkedin.com/school/mit", "", "", false},
		{"missing slug", "https://www.linkedin.com/company/", "", "", false},
		{"lookalike domain", "https://notlinkedin.com/company/acme", "", "", false},
		{"suffix domain", "https://linkedin.com.evil.io/company/acme", "", "", false},
		{"wrong scheme", "ftp://linkedin.com/company/acme", "", "", false},
		{"garbage", "::not a url", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			canonical, slug, ok := CompanyPage(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantCanonical, canonical)
			assert.Equal(t, tt.wantSlug, slug)
		})
	}
}

func TestSelectBest_PrefersCompanyPage(t *testing.T) {
	results := []serp.Result{
		{Title: "Acme Corp - LinkedIn", URL: "https://linkedin.com/company/acme-corp", Rank: 1},
		{Title: "Acme Jobs", URL: "https://linkedin.com/jobs/123", Rank: 2},
	}

	sel := SelectBest(results, "Acme Corp")
	require.True(t, sel.Found())

	url, _ := sel.URL.Get()
	assert.Equal(t, "https://www.linkedin.com/company/acme-corp", url)
	best, ok := sel.Result.Get()
	require.True(t, ok)
	assert.Equal(t, results[0], best)
	assert.InDelta(t, 1.0, sel.Score, 1e-9)
}

func TestSelectBest_Empty(t *testing.T) {
	for _, results := range [][]serp.Result{nil, {}} {
		sel := SelectBest(results, "Acme Corp")
		assert.False(t, sel.Found())
		assert.True(t, sel.URL.IsNone())
		assert.True(t, sel.Result.IsNone())
	}
}

func TestSelectBest_NeverPicksNonCompanyURL(t *testing.T) {
	results := []serp.Result{
		{Title: "Acme Corp", URL: "https://www.linkedin.com/in/acme-corp"},
		{Title: "Acme Corp", URL: "https://acme-corp.com/company/acme-corp"},
		{Title: "Acme Corp", URL: "https://www.linkedin.com/jobs/view/acme-corp"},
	}

	sel := SelectBest(results, "Acme Corp")
	assert.False(t, sel.Found())
	assert.True(t, sel.Result.IsNone(), "URL and result must be absent together")
}

func TestSelectBest_HigherScoreWins(t *testing.T) {
	results := []serp.Result{
		{Title: "Globex Logistics | LinkedIn", URL: "https://www.linkedin.com/company/globex-logistics", Rank: 1},
		{Title: "Acme Corp | LinkedIn", URL: "https://www.linkedin.com/company/acme-corp", Rank: 2},
	}

	sel := SelectBest(results, "Acme Corp")
	best, ok := sel.Result.Get()
	require.True(t, ok)
	assert.Equal(t, 2, best.Rank)
}

func TestSelectBest_TieKeepsFirst(t *testing.T) {
	results := []serp.Result{
		{Title: "Acme Corp", URL: "https://www.linkedin.com/company/acme-corp/about", Rank: 1},
		{Title: "Acme Corp", URL: "https://linkedin.com/company/acme-corp", Rank: 2},
	}

	for i := 0; i < 3; i++ {
		sel := SelectBest(results, "Acme Corp")
		best, ok := sel.Result.Get()
		require.True(t, ok)
		assert.Equal(t, 1, best.Rank, "earliest result must win a tie")
	}
}

func TestSelectBest_Deterministic(t *testing.T) {
	results := []serp.Result{
		{Title: "Initrode", URL: "https://www.linkedin.com/company/initrode"},
		{Title: "Initech | LinkedIn", URL: "https://www.linkedin.com/company/initech"},
		{Title: "Initech Careers", URL: "https://www.linkedin.com/company/initech-careers"},
	}

	first := SelectBest(results, "Initech")
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, SelectBest(results, "Initech"))
	}
}

func TestSelectBest_DoesNotMutateInput(t *testing.T) {
	results := []serp.Result{
		{Title: " Acme ", URL: "https://uk.linkedin.com/company/acme/?trk=1"},
	}
	orig := slices.Clone(results)

	SelectBest(results, "Acme")
	assert.Equal(t, orig, results)
}

func TestSelector_MinScore(t *testing.T) {
	results := []serp.Result{
		{Title: "Globex", URL: "https://www.linkedin.com/company/globex"},
	}

	assert.True(t, SelectBest(results, "Acme Corp").Found(), "zero threshold accepts any company page")
	assert.False(t, Selector{MinScore: 0.9}.SelectBest(results, "Acme Corp").Found())
	assert.True(t, Selector{MinScore: 0.9}.SelectBest(results, "Globex Corporation").Found())
}
