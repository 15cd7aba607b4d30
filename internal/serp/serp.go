package serp

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/FranksOps/companyfinder/internal/scraper"
)

var (
	// ErrUnknownEngine is returned by New for an unsupported search_engine.
	ErrUnknownEngine = errors.New("serp: unknown search engine")
	// ErrBlocked means the engine served a bot wall instead of results.
	ErrBlocked = errors.New("serp: blocked by bot protection")
	// ErrUnexpectedStatus means the engine answered with a non-2xx status.
	ErrUnexpectedStatus = errors.New("serp: unexpected status")
)

// Result is one organic search result. Rank is the 1-based position on the
// result page after ads and duplicates are removed.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
	Rank    int    `json:"rank"`
}

// Provider abstracts a search engine. Search must return an empty slice, not
// an error, when the engine has no results. limit caps the number of results.
type Provider interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
	Name() string
}

// Fetcher retrieves a result page. Both scraper.Fetcher and
// scraper.BrowserFetcher satisfy it.
type Fetcher interface {
	Fetch(ctx context.Context, targetURL string) (*scraper.Page, error)
}

type constructor func(Fetcher) Provider

var engines = map[string]constructor{
	"duckduckgo": func(f Fetcher) Provider { return NewDuckDuckGo(f) },
	"bing":       func(f Fetcher) Provider { return NewBing(f) },
	"google":     func(f Fetcher) Provider { return NewGoogle(f) },
}

// Engines lists the supported engine names in sorted order.
func Engines() []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New returns the Provider registered under engine.
func New(engine string, f Fetcher) (Provider, error) {
	if f == nil {
		return nil, errors.New("serp: fetcher is nil")
	}
	ctor, ok := engines[strings.ToLower(strings.TrimSpace(engine))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownEngine, engine, strings.Join(Engines(), ", "))
	}
	return ctor(f), nil
}

// NewAt is New with the engine endpoint replaced by baseURL, for mirrors and
// local test servers. An empty baseURL keeps the default endpoint.
func NewAt(engine string, f Fetcher, baseURL string) (Provider, error) {
	p, err := New(engine, f)
	if err != nil || baseURL == "" {
		return p, err
	}
	switch e := p.(type) {
	case *DuckDuckGo:
		e.baseURL = baseURL
	case *Bing:
		e.baseURL = baseURL
	case *Google:
		e.baseURL = baseURL
	}
	return p, nil
}

// checkPage turns a fetched page into an error when it cannot hold results.
func checkPage(engine string, page *scraper.Page) error {
	if page.BlockedBy != "" {
		return fmt.Errorf("%s: %w (%s)", engine, ErrBlocked, page.BlockedBy)
	}
	if page.StatusCode < 200 || page.StatusCode > 299 {
		return fmt.Errorf("%s: %w: %d", engine, ErrUnexpectedStatus, page.StatusCode)
	}
	return nil
}

// finalize drops non-http links and duplicates, caps at limit and assigns ranks.
func finalize(raw []Result, limit int) []Result {
	out := make([]Result, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		if limit > 0 && len(out) >= limit {
			break
		}
		r.URL = strings.TrimSpace(r.URL)
		r.Title = strings.Join(strings.Fields(r.Title), " ")
		r.Snippet = strings.Join(strings.Fields(r.Snippet), " ")

		u, err := url.Parse(r.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			continue
		}
		if _, dup := seen[r.URL]; dup {
			continue
		}
		seen[r.URL] = struct{}{}

		r.Rank = len(out) + 1
		out = append(out, r)
	}
	return out
}
