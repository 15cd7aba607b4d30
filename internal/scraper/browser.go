package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/FranksOps/companyfinder/internal/bypass"
	"github.com/FranksOps/companyfinder/internal/metrics"
	"github.com/FranksOps/companyfinder/pkg/ratelimit"
)

// BrowserConfig configures a BrowserFetcher.
type BrowserConfig struct {
	Timeout   time.Duration
	UserAgent string
	// ProxyURL routes the browser through a single proxy.
	ProxyURL string
	Limiter  *ratelimit.Limiter
	Logger   *slog.Logger
}

// BrowserFetcher renders result pages in headless Chrome. It is slower than
// Fetcher but gets past engines that only serve results to JavaScript clients.
// Requires Chrome/Chromium on the host.
type BrowserFetcher struct {
	cfg           BrowserConfig
	logger        *slog.Logger
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	cancelAlloc   context.CancelFunc
}

// NewBrowserFetcher starts a headless browser bound to ctx.
func NewBrowserFetcher(ctx context.Context, cfg BrowserConfig) (*BrowserFetcher, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ProxyURL != "" {
		opts = append(opts, chromedp.ProxyServer(cfg.ProxyURL))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// Start the browser now so a missing Chrome fails at construction.
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &BrowserFetcher{
		cfg:           cfg,
		logger:        cfg.Logger,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		cancelAlloc:   cancelAlloc,
	}, nil
}

// Fetch opens targetURL in a new tab and returns the rendered HTML. The
// browser does not expose the response status, so rendered pages report 200.
func (b *BrowserFetcher) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	if b.cfg.Limiter != nil {
		if err := b.cfg.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	tabCtx, cancelTab := chromedp.NewContext(b.browserCtx)
	defer cancelTab()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.cfg.Timeout)
	defer cancelTimeout()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	start := time.Now()
	var html, location string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body"),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("browser rendering failed: %w", err)
	}

	page := &Page{
		URL:        targetURL,
		FinalURL:   location,
		StatusCode: http.StatusOK,
		Headers:    http.Header{},
		Body:       []byte(html),
		Duration:   time.Since(start),
		FetchedAt:  start.UTC(),
	}
	if blocked, src := bypass.Analyze(signals(page), bypass.DefaultDetectors()); blocked {
		page.BlockedBy = src
		b.logger.Warn("bot protection detected", "url", targetURL, "source", src)
	}

	host := ""
	if u, err := url.Parse(targetURL); err == nil {
		host = u.Hostname()
	}
	metrics.RecordFetch(host, page.StatusCode, page.BlockedBy, page.Duration, len(page.Body))
	b.logger.Debug("rendered", "url", targetURL, "bytes", len(html), "duration", page.Duration)

	return page, nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() error {
	b.cancelBrowser()
	b.cancelAlloc()
	return nil
}
