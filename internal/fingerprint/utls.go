package fingerprint

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	utls "github.com/refraction-networking/utls"
)

// Profile names the TLS ClientHello the fetcher presents to search engines.
type Profile string

const (
	ProfileChrome  Profile = "chrome"
	ProfileFirefox Profile = "firefox"
	ProfileSafari  Profile = "safari"
	ProfileGo      Profile = "go"     // standard library TLS
	ProfileRandom  Profile = "random" // randomized uTLS hello
)

// ErrUnknownProfile is returned for profile names outside the list above.
var ErrUnknownProfile = errors.New("fingerprint: unknown profile")

var helloIDs = map[Profile]utls.ClientHelloID{
	ProfileChrome:  utls.HelloChrome_Auto,
	ProfileFirefox: utls.HelloFirefox_Auto,
	ProfileSafari:  utls.HelloIOS_Auto,
	ProfileRandom:  utls.HelloRandomizedNoALPN,
}

// Profiles lists every supported profile name, sorted.
func Profiles() []string {
	names := []string{string(ProfileGo)}
	for p := range helloIDs {
		names = append(names, string(p))
	}
	sort.Strings(names)
	return names
}

// ParseProfile converts a settings value into a Profile. Empty means ProfileGo.
func ParseProfile(s string) (Profile, error) {
	p := Profile(strings.ToLower(strings.TrimSpace(s)))
	if p == "" || p == ProfileGo {
		return ProfileGo, nil
	}
	if _, ok := helloIDs[p]; !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownProfile, s)
	}
	return p, nil
}

// Transport returns an http.RoundTripper presenting the TLS fingerprint of p.
// ProfileGo yields a plain cloned http.Transport with proxyFunc as its Proxy.
// Every other profile dials TLS through utls.UClient; when proxyFunc picks a
// proxy for an https request, the tunnel is opened here so the target still
// sees the fingerprinted hello.
func Transport(p Profile, proxyFunc func(*http.Request) (*url.URL, error)) (http.RoundTripper, error) {
	base := http.DefaultTransport.(*http.Transport).Clone()
	if p == ProfileGo {
		if proxyFunc != nil {
			base.Proxy = proxyFunc
		}
		return base, nil
	}

	helloID, ok := helloIDs[p]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownProfile, p)
	}
	base.Proxy = nil
	return &fingerprintTransport{
		helloID:   helloID,
		proxyFunc: proxyFunc,
		base:      base,
		byProxy:   make(map[string]*http.Transport),
	}, nil
}

// fingerprintTransport keeps one http.Transport per proxy so pooled
// connections are never shared between proxies.
type fingerprintTransport struct {
	helloID   utls.ClientHelloID
	proxyFunc func(*http.Request) (*url.URL, error)
	base      *http.Transport

	mu      sync.Mutex
	byProxy map[string]*http.Transport
}

func (t *fingerprintTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var proxyURL *url.URL
	if t.proxyFunc != nil {
		u, err := t.proxyFunc(req)
		if err != nil {
			return nil, err
		}
		proxyURL = u
	}
	return t.transport(proxyURL).RoundTrip(req)
}

// CloseIdleConnections closes idle connections of every per-proxy transport.
func (t *fingerprintTransport) CloseIdleConnections() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, tr := range t.byProxy {
		tr.CloseIdleConnections()
	}
}

func (t *fingerprintTransport) transport(proxyURL *url.URL) *http.Transport {
	key := ""
	if proxyURL != nil {
		key = proxyURL.String()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if tr, ok := t.byProxy[key]; ok {
		return tr
	}

	tr := t.base.Clone()
	// Plain http targets go through the proxy the usual way; https targets
	// are tunnelled by DialTLSContext.
	tr.Proxy = func(req *http.Request) (*url.URL, error) {
		if proxyURL != nil && req.URL.Scheme == "http" {
			return proxyURL, nil
		}
		return nil, nil
	}
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	tr.DialTLSContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialThrough(ctx, dialer, proxyURL, network, addr)
		if err != nil {
			return nil, err
		}

		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}

		uConn, err := client(conn, host, t.helloID)
		if err != nil {
			_ = conn.Close()
			return nil, err
		}
		if err := uConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("fingerprint: utls handshake with %s failed: %w", host, err)
		}
		return uConn, nil
	}
	t.byProxy[key] = tr
	return tr
}

// client builds a utls connection whose ALPN offers only http/1.1:
// http.Transport cannot speak HTTP/2 over a custom TLS dialer.
func client(conn net.Conn, host string, id utls.ClientHelloID) (*utls.UConn, error) {
	cfg := &utls.Config{ServerName: host}
	if id == utls.HelloRandomizedNoALPN {
		return utls.UClient(conn, cfg, id), nil
	}

	spec, err := utls.UTLSIdToSpec(id)
	if err != nil {
		return nil, fmt.Errorf("fingerprint: %s: %w", id.Str(), err)
	}
	for _, ext := range spec.Extensions {
		if alpn, ok := ext.(*utls.ALPNExtension); ok {
			alpn.AlpnProtocols = []string{"http/1.1"}
		}
	}
	uConn := utls.UClient(conn, cfg, utls.HelloCustom)
	if err := uConn.ApplyPreset(&spec); err != nil {
		return nil, fmt.Errorf("fingerprint: %s: %w", id.Str(), err)
	}
	return uConn, nil
}
