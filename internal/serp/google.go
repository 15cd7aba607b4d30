package serp

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

const googleURL = "https://www.google.com/search"

// Google scrapes the Google web result page. Google is the most aggressive of
// the three at serving "unusual traffic" pages; pair it with a browser TLS
// fingerprint and a non-zero delay.
type Google struct {
	fetcher Fetcher
	baseURL string
}

// NewGoogle creates a Google provider.
func NewGoogle(f Fetcher) *Google {
	return &Google{fetcher: f, baseURL: googleURL}
}

func (g *Google) Name() string { return "google" }

func (g *Google) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit < 0 {
		return nil, fmt.Errorf("limit cannot be negative: %d", limit)
	}

	params := url.Values{"q": {query}, "hl": {"en"}}
	if limit > 0 {
		params.Set("num", strconv.Itoa(limit))
	}
	page, err := g.fetcher.Fetch(ctx, g.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("google: %w", err)
	}
	if err := checkPage(g.Name(), page); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("google: parse: %w", err)
	}

	var raw []Result
	doc.Find("a:has(h3)").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		raw = append(raw, Result{
			Title: a.Find("h3").First().Text(),
			URL:   decodeGoogleRedirect(href),
		})
	})
	return finalize(raw, limit), nil
}

// decodeGoogleRedirect unwraps /url?q=<target> links from the basic HTML page.
func decodeGoogleRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if u.Path == "/url" {
		if q := u.Query().Get("q"); q != "" {
			return q
		}
		if q := u.Query().Get("url"); q != "" {
			return q
		}
	}
	return href
}
