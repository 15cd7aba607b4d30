package serp

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const duckDuckGoURL = "https://html.duckduckgo.com/html/"

// DuckDuckGo scrapes the JavaScript-free DuckDuckGo result page.
type DuckDuckGo struct {
	fetcher Fetcher
	baseURL string
}

// NewDuckDuckGo creates a DuckDuckGo provider.
func NewDuckDuckGo(f Fetcher) *DuckDuckGo {
	return &DuckDuckGo{fetcher: f, baseURL: duckDuckGoURL}
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// Search queries DuckDuckGo. The HTML endpoint has no result-count parameter,
// so limit is applied after parsing.
func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit < 0 {
		return nil, fmt.Errorf("limit cannot be negative: %d", limit)
	}

	target := d.baseURL + "?" + url.Values{"q": {query}}.Encode()
	page, err := d.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}
	if err := checkPage(d.Name(), page); err != nil {
		return nil, err
	}

	raw, err := parseDuckDuckGo(page.Body)
	if err != nil {
		return nil, err
	}
	return finalize(raw, limit), nil
}

func parseDuckDuckGo(body []byte) ([]Result, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: parse: %w", err)
	}

	var out []Result
	doc.Find("div.result").Each(func(_ int, s *goquery.Selection) {
		if s.HasClass("result--ad") {
			return
		}
		a := s.Find("a.result__a").First()
		href, ok := a.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		out = append(out, Result{
			Title:   a.Text(),
			URL:     decodeDuckDuckGoRedirect(href),
			Snippet: s.Find(".result__snippet").First().Text(),
		})
	})
	return out, nil
}

// decodeDuckDuckGoRedirect unwraps //duckduckgo.com/l/?uddg=<target> links.
func decodeDuckDuckGoRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && u.Host != "" {
		u.Scheme = "https"
		return u.String()
	}
	return href
}
