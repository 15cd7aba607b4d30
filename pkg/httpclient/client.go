// Package httpclient is the HTTP client behind result page fetches: default
// browser-like headers, a redirect cap, an optional cookie jar and bounded
// retries when an engine throttles.
package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"time"
)

var (
	// ErrNilContext is returned by Do when called without a context.
	ErrNilContext = errors.New("httpclient: context cannot be nil")
	// ErrTooManyRedirects is returned once a request exceeds MaxRedirects.
	ErrTooManyRedirects = errors.New("httpclient: too many redirects")
)

// DefaultHeader is sent with every request unless the request or
// Config.Header sets the same key.
var DefaultHeader = http.Header{
	"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
	"Accept-Language": {"en-US,en;q=0.5"},
}

const defaultMaxRetryWait = 30 * time.Second

// Config defines the setup for the HTTP Client.
type Config struct {
	Timeout time.Duration
	// MaxRedirects caps followed redirects. Negative values return the
	// redirect response itself instead of following it.
	MaxRedirects int
	// UseCookieJar keeps consent and session cookies between searches.
	UseCookieJar bool
	// Transport, e.g. for proxies or uTLS fingerprinting.
	Transport http.RoundTripper
	// Header overrides DefaultHeader per key.
	Header http.Header
	// Retries is how many times a 429 or 503 answer is retried.
	Retries int
	// MaxRetryWait caps the wait taken from Retry-After. Default 30s.
	MaxRetryWait time.Duration
}

// Client wraps a standard http.Client.
type Client struct {
	*http.Client
	header       http.Header
	retries      int
	maxRetryWait time.Duration
}

// New creates a new HTTP client based on the provided configuration.
func New(cfg Config) (*Client, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetryWait <= 0 {
		cfg.MaxRetryWait = defaultMaxRetryWait
	}

	c := &http.Client{
		Timeout:       cfg.Timeout,
		CheckRedirect: redirectPolicy(cfg.MaxRedirects),
	}

	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("httpclient: cookie jar: %w", err)
		}
		c.Jar = jar
	}

	if cfg.Transport != nil {
		c.Transport = cfg.Transport
	}

	header := DefaultHeader.Clone()
	for k, v := range cfg.Header {
		header[http.CanonicalHeaderKey(k)] = v
	}

	return &Client{
		Client:       c,
		header:       header,
		retries:      max(cfg.Retries, 0),
		maxRetryWait: cfg.MaxRetryWait,
	}, nil
}

func redirectPolicy(maxRedirects int) func(*http.Request, []*http.Request) error {
	if maxRedirects < 0 {
		return func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: stopped after %d", ErrTooManyRedirects, maxRedirects)
		}
		return nil
	}
}

// Get issues a GET for rawURL.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %w", err)
	}
	return c.Do(ctx, req)
}

// Do executes req under ctx, which replaces the request's own context. A 429
// or 503 answer is retried up to Config.Retries times, waiting as long as
// Retry-After asks (capped) or one second when it does not say. The last
// response is returned as is once retries run out.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}

	for attempt := 0; ; attempt++ {
		r := req.Clone(ctx)
		for k, v := range c.header {
			if r.Header.Get(k) == "" {
				r.Header[k] = v
			}
		}

		resp, err := c.Client.Do(r)
		if err != nil {
			return nil, fmt.Errorf("httpclient: %s %s: %w", req.Method, req.URL.Redacted(), err)
		}
		if attempt >= c.retries || !retryable(resp.StatusCode) {
			return resp, nil
		}

		wait := min(RetryAfter(resp.Header.Get("Retry-After"), time.Now()), c.maxRetryWait)
		resp.Body.Close()

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("httpclient: %s %s: %w", req.Method, req.URL.Redacted(), ctx.Err())
		case <-t.C:
		}
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable
}

// RetryAfter parses a Retry-After value, either delay seconds or an HTTP
// date, relative to now. Missing or malformed values mean one second.
func RetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return time.Second
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(at.Sub(now), 0)
	}
	return time.Second
}
