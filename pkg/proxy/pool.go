// Package proxy rotates outbound proxies for search requests and benches the
// ones that fail or get served bot walls.
package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotInPool is returned when marking a proxy the pool never handed out.
	ErrNotInPool = errors.New("proxy: not found in pool")
	// ErrUnsupportedScheme is returned for proxy URLs other than http, https or socks5.
	ErrUnsupportedScheme = errors.New("proxy: unsupported scheme")
	// ErrNoHealthyProxy means every proxy in a non-empty pool is benched.
	ErrNoHealthyProxy = errors.New("proxy: no healthy proxy available")
)

// Config defines settings for the Proxy Pool.
type Config struct {
	// MaxFailures is how many transport failures bench a proxy. Default 3.
	MaxFailures int
	// Cooldown is how long a benched proxy sits out. Default 5m.
	Cooldown time.Duration
}

// Status is a snapshot of one proxy's health.
type Status struct {
	URL       string // credentials redacted
	Failures  int
	Successes int
	Blocks    int
	LastUsed  time.Time
	// BenchedUntil is zero while the proxy is in rotation.
	BenchedUntil time.Time
}

type entry struct {
	url          *url.URL
	key          string
	failures     int
	successes    int
	blocks       int
	lastUsed     time.Time
	benchedUntil time.Time
}

// Pool hands out proxies round-robin, skipping benched ones. It is safe for
// concurrent use.
type Pool struct {
	mu          sync.Mutex
	entries     []*entry
	next        int
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time
}

// NewPool creates an empty pool. Zero config values take the defaults.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
	}
}

// FromSettings builds a pool from the proxies and proxy_file settings. It
// returns nil, nil when neither names a proxy so callers connect directly.
func FromSettings(cfg Config, urls []string, file string) (*Pool, error) {
	p := NewPool(cfg)
	if err := p.Add(urls...); err != nil {
		return nil, err
	}
	if file != "" {
		if err := p.LoadFile(file); err != nil {
			return nil, err
		}
	}
	if p.Len() == 0 {
		return nil, nil
	}
	return p, nil
}

// LoadFile adds the proxies listed in path, one per line. Blank lines and
// lines starting with '#' are skipped.
func (p *Pool) LoadFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("proxy: open list: %w", err)
	}
	defer file.Close()

	var urls []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("proxy: read list: %w", err)
	}
	return p.Add(urls...)
}

// Add parses and appends proxy URLs. A missing scheme means http. Blank
// entries and proxies already in the pool are skipped. Nothing is added when
// any entry is invalid.
func (p *Pool) Add(rawURLs ...string) error {
	parsed := make([]*url.URL, 0, len(rawURLs))
	for _, raw := range rawURLs {
		u, err := Parse(raw)
		if err != nil {
			return err
		}
		if u != nil {
			parsed = append(parsed, u)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range parsed {
		if p.find(u) != nil {
			continue
		}
		p.entries = append(p.entries, &entry{url: u, key: u.String()})
	}
	return nil
}

// Parse validates one proxy URL. It returns nil, nil for a blank string.
func Parse(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("proxy: parse %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("proxy: parse %q: missing host", raw)
	}
	return u, nil
}

// Len returns the number of proxies in the pool, benched or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next proxy in rotation. Proxies whose cooldown has passed
// rejoin with a clean failure count. On an empty pool Next returns nil, nil;
// when every proxy is benched it returns ErrNoHealthyProxy.
func (p *Pool) Next() (*url.URL, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.entries) == 0 {
		return nil, nil
	}

	now := p.now()
	for range len(p.entries) {
		e := p.entries[p.next]
		p.next = (p.next + 1) % len(p.entries)

		if !e.benchedUntil.IsZero() {
			if now.Before(e.benchedUntil) {
				continue
			}
			e.benchedUntil = time.Time{}
			e.failures = 0
		}
		e.lastUsed = now
		return e.url, nil
	}
	return nil, ErrNoHealthyProxy
}

// MarkSuccess records a completed request through proxyURL and forgives
// one earlier failure.
func (p *Pool) MarkSuccess(proxyURL *url.URL) error {
	return p.mark(proxyURL, func(e *entry) {
		e.successes++
		if e.failures > 0 {
			e.failures--
		}
	})
}

// MarkFailure records a transport failure. Reaching MaxFailures benches the
// proxy for the cooldown.
func (p *Pool) MarkFailure(proxyURL *url.URL) error {
	return p.mark(proxyURL, func(e *entry) {
		e.failures++
		if e.failures >= p.maxFailures {
			e.benchedUntil = p.now().Add(p.cooldown)
		}
	})
}

// MarkBlocked records that a search engine answered through proxyURL with a
// bot wall. The exit IP is flagged, so the proxy is benched at once.
func (p *Pool) MarkBlocked(proxyURL *url.URL) error {
	return p.mark(proxyURL, func(e *entry) {
		e.blocks++
		e.benchedUntil = p.now().Add(p.cooldown)
	})
}

func (p *Pool) mark(proxyURL *url.URL, f func(*entry)) error {
	if proxyURL == nil {
		return errors.New("proxy: url cannot be nil")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	e := p.find(proxyURL)
	if e == nil {
		return ErrNotInPool
	}
	f(e)
	return nil
}

// Healthy returns how many proxies are currently in rotation.
func (p *Pool) Healthy() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	n := 0
	for _, e := range p.entries {
		if e.benchedUntil.IsZero() || !now.Before(e.benchedUntil) {
			n++
		}
	}
	return n
}

// Statuses returns a snapshot of every proxy in pool order.
func (p *Pool) Statuses() []Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Status, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, Status{
			URL:          e.url.Redacted(),
			Failures:     e.failures,
			Successes:    e.successes,
			Blocks:       e.blocks,
			LastUsed:     e.lastUsed,
			BenchedUntil: e.benchedUntil,
		})
	}
	return out
}

// find must be called with the lock held.
func (p *Pool) find(u *url.URL) *entry {
	key := u.String()
	for _, e := range p.entries {
		if e.key == key {
			return e
		}
	}
	return nil
}
