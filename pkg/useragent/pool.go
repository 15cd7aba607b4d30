// Package useragent rotates the User-Agent header sent to search engines.
package useragent

import (
	"math/rand/v2"
	"strings"
	"sync/atomic"
)

// DefaultName is the User-Agent of the user_agent setting's default.
const DefaultName = "LinkedInCompanyFinder/1.0"

// Family is the browser a User-Agent claims to be.
type Family string

const (
	Chrome  Family = "chrome"
	Firefox Family = "firefox"
	Safari  Family = "safari"
	Edge    Family = "edge"
	Other   Family = "other"
)

// DefaultPool holds desktop browser User-Agents used when rotation is enabled.
// Search engines serve their plain HTML layouts to these.
var DefaultPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/125.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:126.0) Gecko/20100101 Firefox/126.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
}

// Detect classifies ua by its product tokens. Edge and Chrome both carry
// "Chrome/", and Chrome carries "Safari/", so the order of checks matters.
func Detect(ua string) Family {
	switch {
	case strings.Contains(ua, "Edg/"):
		return Edge
	case strings.Contains(ua, "Firefox/"):
		return Firefox
	case strings.Contains(ua, "Chrome/"):
		return Chrome
	case strings.Contains(ua, "Safari/") && strings.Contains(ua, "Version/"):
		return Safari
	}
	return Other
}

// ForFingerprint maps a TLS fingerprint profile name to the browser family
// whose User-Agents match it. The go and random profiles match any family.
func ForFingerprint(profile string) (Family, bool) {
	switch strings.ToLower(profile) {
	case "chrome":
		return Chrome, true
	case "firefox":
		return Firefox, true
	case "safari":
		return Safari, true
	}
	return "", false
}

// FromSetting builds the pool for the user_agent setting: a single fixed
// User-Agent when ua is non-empty, otherwise DefaultPool narrowed to the
// browser family of the tls_fingerprint profile.
func FromSetting(ua, fingerprint string) *Pool {
	if ua = strings.TrimSpace(ua); ua != "" {
		return NewPool([]string{ua})
	}
	p := NewPool(nil)
	if fam, ok := ForFingerprint(fingerprint); ok {
		return p.Only(fam)
	}
	return p
}

// Pool is a fixed set of User-Agents handed out round-robin or at random.
// It is safe for concurrent use.
type Pool struct {
	uas     []string
	counter atomic.Uint64
}

// NewPool creates a pool over a copy of uas, or over DefaultPool when uas is
// empty.
func NewPool(uas []string) *Pool {
	if len(uas) == 0 {
		uas = DefaultPool
	}
	return &Pool{uas: append([]string(nil), uas...)}
}

// Next returns the next User-Agent in round-robin order.
func (p *Pool) Next() string {
	if len(p.uas) == 0 {
		return ""
	}
	idx := p.counter.Add(1) - 1
	return p.uas[idx%uint64(len(p.uas))]
}

// Random returns a uniformly chosen User-Agent.
func (p *Pool) Random() string {
	if len(p.uas) == 0 {
		return ""
	}
	return p.uas[rand.IntN(len(p.uas))]
}

// Only returns a pool of the User-Agents in family. When none match, p is
// returned unchanged.
func (p *Pool) Only(family Family) *Pool {
	var matched []string
	for _, ua := range p.uas {
		if Detect(ua) == family {
			matched = append(matched, ua)
		}
	}
	if len(matched) == 0 {
		return p
	}
	return NewPool(matched)
}

// BrowserUserAgent picks a Chrome User-Agent for headless Chrome: one of
// p's Chrome entries if it has any, otherwise one from DefaultPool. A custom
// non-Chrome User-Agent would not match the browser actually rendering.
func BrowserUserAgent(p *Pool) string {
	if p != nil {
		if chrome := p.Only(Chrome); chrome != p {
			return chrome.Random()
		}
	}
	return NewPool(nil).Only(Chrome).Random()
}

// Len returns the number of User-Agents in the pool.
func (p *Pool) Len() int { return len(p.uas) }

// All returns a copy of the pool's User-Agents.
func (p *Pool) All() []string {
	return append([]string(nil), p.uas...)
}
