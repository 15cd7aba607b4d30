package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const defaultRobotsTTL = time.Hour

// Decision is the robots.txt verdict for one URL.
type Decision struct {
	Allowed bool
	// CrawlDelay is the pause the matching group asks for between requests
	// to the host.
	CrawlDelay time.Duration
}

type robotsEntry struct {
	data      *robotstxt.RobotsData // nil when robots.txt could not be read
	fetchedAt time.Time
	lastHit   time.Time
}

// RobotsPolicy checks search URLs against the engine's robots.txt. Files are
// cached per scheme and host for a TTL; an unreachable robots.txt allows
// everything.
type RobotsPolicy struct {
	fetcher *Fetcher
	logger  *slog.Logger
	ttl     time.Duration
	now     func() time.Time

	mu    sync.Mutex
	hosts map[string]*robotsEntry
}

// NewRobotsPolicy creates a policy that reads robots.txt through fetcher. A
// ttl <= 0 caches files for an hour.
func NewRobotsPolicy(fetcher *Fetcher, ttl time.Duration, logger *slog.Logger) *RobotsPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = defaultRobotsTTL
	}
	return &RobotsPolicy{
		fetcher: fetcher,
		logger:  logger,
		ttl:     ttl,
		now:     time.Now,
		hosts:   make(map[string]*robotsEntry),
	}
}

// Check returns the verdict for userAgent fetching targetURL. The query
// string is part of the tested path, so "Disallow: /search?q=" rules apply.
func (r *RobotsPolicy) Check(ctx context.Context, targetURL, userAgent string) (Decision, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return Decision{}, fmt.Errorf("invalid url: %w", err)
	}

	entry := r.entry(ctx, u.Scheme+"://"+u.Host, userAgent)
	if entry.data == nil {
		return Decision{Allowed: true}, nil
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	group := entry.data.FindGroup(userAgent)
	return Decision{Allowed: group.Test(path), CrawlDelay: group.CrawlDelay}, nil
}

// Admit returns ErrDisallowed when robots.txt forbids targetURL. Otherwise it
// waits out any Crawl-delay since the previous admitted request to the host.
func (r *RobotsPolicy) Admit(ctx context.Context, targetURL, userAgent string) error {
	d, err := r.Check(ctx, targetURL, userAgent)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return fmt.Errorf("%w: %s", ErrDisallowed, targetURL)
	}

	u, _ := url.Parse(targetURL)
	host := u.Scheme + "://" + u.Host

	r.mu.Lock()
	entry := r.hosts[host]
	wait := time.Duration(0)
	if d.CrawlDelay > 0 && !entry.lastHit.IsZero() {
		wait = d.CrawlDelay - r.now().Sub(entry.lastHit)
	}
	r.mu.Unlock()

	if wait > 0 {
		r.logger.Debug("honoring crawl-delay", "host", u.Host, "wait", wait)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	r.mu.Lock()
	entry.lastHit = r.now()
	r.mu.Unlock()
	return nil
}

// entry returns the cached robots.txt for host, fetching it when missing or
// older than the TTL. The lock is held during the fetch so each host is read
// once.
func (r *RobotsPolicy) entry(ctx context.Context, host, userAgent string) *robotsEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.hosts[host]; ok && r.now().Sub(e.fetchedAt) < r.ttl {
		return e
	}

	e := &robotsEntry{fetchedAt: r.now()}
	if old, ok := r.hosts[host]; ok {
		e.lastHit = old.lastHit
	}
	r.hosts[host] = e

	page, err := r.fetcher.get(ctx, host+"/robots.txt", userAgent)
	if err != nil {
		r.logger.Debug("robots.txt fetch failed, defaulting to allow", "host", host, "err", err)
		return e
	}
	data, err := robotstxt.FromStatusAndBytes(page.StatusCode, page.Body)
	if err != nil {
		r.logger.Debug("robots.txt parse failed, defaulting to allow", "host", host, "err", err)
		return e
	}
	e.data = data
	return e
}
