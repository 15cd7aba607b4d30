package bypass

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"
)

// Signals is the part of an HTTP response the detectors look at.
type Signals struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// Detector examines a response to decide whether bot protection or a search
// engine's abuse filter answered instead of the real page.
type Detector func(s Signals) (detected bool, source string)

// DefaultDetectors returns CDN bot managers followed by search engine walls.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
		detectDuckDuckGo,
		detectGoogle,
		detectBing,
	}
}

// Analyze runs the detectors in order and returns the first hit.
func Analyze(s Signals, detectors []Detector) (bool, string) {
	for _, d := range detectors {
		if detected, source := d(s); detected {
			return true, source
		}
	}
	return false, ""
}

func getHeader(headers http.Header, key string) string {
	if v := headers.Get(key); v != "" {
		return v
	}
	// Headers built by hand may not be canonicalized.
	lowerKey := strings.ToLower(key)
	for k, vals := range headers {
		if strings.ToLower(k) == lowerKey && len(vals) > 0 {
			return vals[0]
		}
	}
	return ""
}

func containsAny(body []byte, needles ...string) bool {
	for _, n := range needles {
		if bytes.Contains(body, []byte(n)) {
			return true
		}
	}
	return false
}

func detectCloudflare(s Signals) (bool, string) {
	if s.StatusCode != http.StatusForbidden && s.StatusCode != http.StatusServiceUnavailable {
		return false, ""
	}
	if strings.Contains(strings.ToLower(getHeader(s.Headers, "Server")), "cloudflare") {
		return true, "Cloudflare"
	}
	if containsAny(s.Body, "cf-browser-verification", "cloudflare-nginx", "cf-turnstile", "Attention Required! | Cloudflare") {
		return true, "Cloudflare"
	}
	return false, ""
}

func detectAkamai(s Signals) (bool, string) {
	if s.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(getHeader(s.Headers, "Server")), "akamai") {
		return true, "Akamai"
	}
	// Generic Akamai block page.
	if containsAny(s.Body, "Reference #") && containsAny(s.Body, "Access Denied") {
		return true, "Akamai"
	}
	return false, ""
}

func detectDataDome(s Signals) (bool, string) {
	if s.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if strings.Contains(strings.ToLower(getHeader(s.Headers, "Server")), "datadome") {
		return true, "DataDome"
	}
	if getHeader(s.Headers, "X-DataDome") != "" || getHeader(s.Headers, "X-DataDome-Response") != "" {
		return true, "DataDome"
	}
	if containsAny(s.Body, "geo.captcha-delivery.com", "datadome") {
		return true, "DataDome"
	}
	return false, ""
}

func detectPerimeterX(s Signals) (bool, string) {
	if s.StatusCode != http.StatusForbidden {
		return false, ""
	}
	if getHeader(s.Headers, "X-Px-Captcha") != "" {
		return true, "PerimeterX"
	}
	if containsAny(s.Body, "client.perimeterx.net", "px-captcha", "_pxBlock") {
		return true, "PerimeterX"
	}
	return false, ""
}

// detectDuckDuckGo spots the anomaly page the HTML endpoint serves, usually
// with status 202, when it suspects automation.
func detectDuckDuckGo(s Signals) (bool, string) {
	if containsAny(s.Body, "anomaly-modal", "Unfortunately, bots use DuckDuckGo too") {
		return true, "DuckDuckGo"
	}
	return false, ""
}

// detectGoogle spots the /sorry/ interstitial and "unusual traffic" page.
func detectGoogle(s Signals) (bool, string) {
	if u, err := url.Parse(s.URL); err == nil && strings.Contains(u.Hostname(), "google.") && strings.HasPrefix(u.Path, "/sorry/") {
		return true, "Google"
	}
	if containsAny(s.Body, "Our systems have detected unusual traffic", "g-recaptcha") &&
		(s.StatusCode == http.StatusTooManyRequests || containsAny(s.Body, "/sorry/")) {
		return true, "Google"
	}
	return false, ""
}

func detectBing(s Signals) (bool, string) {
	if u, err := url.Parse(s.URL); err == nil && strings.HasSuffix(u.Hostname(), "bing.com") && strings.HasPrefix(u.Path, "/challenge") {
		return true, "Bing"
	}
	return false, ""
}
