package serp

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const bingURL = "https://www.bing.com/search"

// Bing scrapes the Bing web result page.
type Bing struct {
	fetcher Fetcher
	baseURL string
}

// NewBing creates a Bing provider.
func NewBing(f Fetcher) *Bing {
	return &Bing{fetcher: f, baseURL: bingURL}
}

func (b *Bing) Name() string { return "bing" }

func (b *Bing) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit < 0 {
		return nil, fmt.Errorf("limit cannot be negative: %d", limit)
	}

	params := url.Values{"q": {query}}
	if limit > 0 {
		params.Set("count", strconv.Itoa(limit))
	}
	page, err := b.fetcher.Fetch(ctx, b.baseURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("bing: %w", err)
	}
	if err := checkPage(b.Name(), page); err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("bing: parse: %w", err)
	}

	var raw []Result
	doc.Find("li.b_algo").Each(func(_ int, s *goquery.Selection) {
		a := s.Find("h2 a").First()
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		raw = append(raw, Result{
			Title:   a.Text(),
			URL:     decodeBingRedirect(href),
			Snippet: s.Find(".b_caption p").First().Text(),
		})
	})
	return finalize(raw, limit), nil
}

// decodeBingRedirect unwraps bing.com/ck/a?...&u=a1<base64url> tracking links.
func decodeBingRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil || !strings.HasSuffix(u.Hostname(), "bing.com") || u.Path != "/ck/a" {
		return href
	}
	enc := strings.TrimPrefix(u.Query().Get("u"), "a1")
	if enc == "" {
		return href
	}
	dec, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(enc, "="))
	if err != nil {
		return href
	}
	return string(dec)
}
