package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/FranksOps/companyfinder/internal/bypass"
	"github.com/FranksOps/companyfinder/internal/fingerprint"
	"github.com/FranksOps/companyfinder/internal/metrics"
	"github.com/FranksOps/companyfinder/pkg/httpclient"
	"github.com/FranksOps/companyfinder/pkg/proxy"
	"github.com/FranksOps/companyfinder/pkg/ratelimit"
	"github.com/FranksOps/companyfinder/pkg/useragent"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

const defaultMaxBodyBytes = 5 << 20

// ErrDisallowed is returned when robots.txt forbids the target URL.
var ErrDisallowed = errors.New("scraper: disallowed by robots.txt")

// Page is a fetched search result page.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	FetchedAt  time.Time
	// BlockedBy names the bot protection that answered instead of the site,
	// e.g. "Cloudflare" or "DuckDuckGo". Empty when the page looks genuine.
	BlockedBy string
}

// FetchConfig configures the Fetcher.
type FetchConfig struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	// Retries re-sends a request answered with 429 or 503.
	Retries      int
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	Fingerprint  fingerprint.Profile
	Limiter      *ratelimit.Limiter
	// RespectRobots checks the target host's robots.txt before each fetch.
	RespectRobots bool
	MaxBodyBytes  int64
	Logger        *slog.Logger
}

// Fetcher performs single GET requests with UA rotation, proxy rotation, TLS
// fingerprinting and bot-wall detection.
type Fetcher struct {
	config    FetchConfig
	client    *httpclient.Client
	transport http.RoundTripper
	robots    *RobotsPolicy
	logger    *slog.Logger
}

// NewFetcher initializes a Fetcher. A single client is held across requests so
// connection pooling and the cookie jar (if configured) persist.
func NewFetcher(cfg FetchConfig) (*Fetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileGo
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// The proxy is chosen per request and carried in the request context.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if val := req.Context().Value(proxyKey); val != nil {
			if u, ok := val.(*url.URL); ok {
				return u, nil
			}
		}
		if isLoopback(req.URL.Hostname()) {
			return nil, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(cfg.Fingerprint, proxyFunc)
	if err != nil {
		return nil, fmt.Errorf("failed to setup transport: %w", err)
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: cfg.MaxRedirects,
		UseCookieJar: cfg.UseCookieJar,
		Transport:    transport,
		Retries:      cfg.Retries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	f := &Fetcher{
		config:    cfg,
		client:    client,
		transport: transport,
		logger:    cfg.Logger,
	}
	if cfg.RespectRobots {
		f.robots = NewRobotsPolicy(f, 0, cfg.Logger)
	}
	return f, nil
}

// Fetch GETs targetURL. Transport failures are returned as errors; any HTTP
// response, including error statuses and bot walls, is returned as a Page.
func (f *Fetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	ua := f.config.UAPool.Next()
	if f.robots != nil {
		if err := f.robots.Admit(ctx, targetURL, ua); err != nil {
			return nil, err
		}
	}
	return f.get(ctx, targetURL, ua)
}

// get performs the request without the robots.txt check.
func (f *Fetcher) get(ctx context.Context, targetURL, userAgent string) (*Page, error) {
	if f.config.Limiter != nil {
		if err := f.config.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var activeProxy *url.URL
	if f.config.ProxyPool != nil {
		activeProxy, err = f.config.ProxyPool.Next()
		if err != nil {
			return nil, err
		}
		if activeProxy != nil {
			req = req.WithContext(context.WithValue(req.Context(), proxyKey, activeProxy))
		}
	}

	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	page := &Page{URL: targetURL, FetchedAt: start.UTC()}

	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		if activeProxy != nil {
			_ = f.config.ProxyPool.MarkFailure(activeProxy)
			metrics.RecordProxy(activeProxy.Redacted(), false, f.config.ProxyPool.Healthy())
		}
		metrics.RecordFetch(req.URL.Hostname(), 0, "", time.Since(start), 0)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	page.StatusCode = resp.StatusCode
	page.Headers = resp.Header
	page.Body = body
	page.Duration = time.Since(start)
	page.FinalURL = targetURL
	if resp.Request != nil && resp.Request.URL != nil {
		page.FinalURL = resp.Request.URL.String()
	}

	if blocked, src := bypass.Analyze(signals(page), bypass.DefaultDetectors()); blocked {
		page.BlockedBy = src
		f.logger.Warn("bot protection detected", "url", targetURL, "source", src, "status", page.StatusCode)
	}
	if activeProxy != nil {
		if page.BlockedBy != "" {
			_ = f.config.ProxyPool.MarkBlocked(activeProxy)
		} else {
			_ = f.config.ProxyPool.MarkSuccess(activeProxy)
		}
		metrics.RecordProxy(activeProxy.Redacted(), page.BlockedBy == "", f.config.ProxyPool.Healthy())
	}

	metrics.RecordFetch(req.URL.Hostname(), page.StatusCode, page.BlockedBy, page.Duration, len(page.Body))
	f.logger.Debug("fetched", "url", targetURL, "status", page.StatusCode, "bytes", len(page.Body), "duration", page.Duration)

	return page, nil
}

// Close releases idle connections.
func (f *Fetcher) Close() error {
	if t, ok := f.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
	return nil
}

func signals(p *Page) bypass.Signals {
	return bypass.Signals{
		URL:        p.FinalURL,
		StatusCode: p.StatusCode,
		Headers:    p.Headers,
		Body:       p.Body,
	}
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
