package fingerprint

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

type seenHello struct {
	alpn   []string
	grease bool
}

// helloServer is a TLS server that reports every ClientHello it receives.
func helloServer(t *testing.T) (*httptest.Server, <-chan seenHello) {
	t.Helper()
	hellos := make(chan seenHello, 4)
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	srv.TLS = &tls.Config{
		GetConfigForClient: func(h *tls.ClientHelloInfo) (*tls.Config, error) {
			seen := seenHello{alpn: append([]string(nil), h.SupportedProtos...)}
			for _, c := range h.CipherSuites {
				if c&0x0f0f == 0x0a0a {
					seen.grease = true
				}
			}
			hellos <- seen
			return nil, nil
		},
	}
	srv.StartTLS()
	t.Cleanup(srv.Close)
	return srv, hellos
}

// connectProxy tunnels CONNECT requests and answers anything else with 418.
func connectProxy(t *testing.T, connects *atomic.Int32) *url.URL {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodConnect {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		connects.Add(1)
		dst, err := net.Dial("tcp", r.Host)
		if err != nil {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		src, _, err := w.(http.Hijacker).Hijack()
		if err != nil {
			_ = dst.Close()
			return
		}
		_, _ = src.Write([]byte("HTTP/1.1 200 Connection established\r\n\r\n"))
		go func() { _, _ = io.Copy(dst, src); _ = dst.Close() }()
		go func() { _, _ = io.Copy(src, dst); _ = src.Close() }()
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func nextHello(t *testing.T, hellos <-chan seenHello) seenHello {
	t.Helper()
	select {
	case h := <-hellos:
		return h
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw a ClientHello")
		return seenHello{}
	}
}

func TestTransport_FingerprintThroughProxy(t *testing.T) {
	target, hellos := helloServer(t)
	var connects atomic.Int32
	proxyURL := connectProxy(t, &connects)

	for _, tc := range []struct {
		name  string
		proxy *url.URL
	}{
		{"direct", nil},
		{"proxied", proxyURL},
	} {
		t.Run(tc.name, func(t *testing.T) {
			rt, err := Transport(ProfileChrome, func(*http.Request) (*url.URL, error) { return tc.proxy, nil })
			if err != nil {
				t.Fatal(err)
			}
			req, _ := http.NewRequest(http.MethodGet, target.URL, nil)
			// The test certificate is not trusted, so the handshake fails
			// after the hello has been seen.
			_, _ = rt.RoundTrip(req)

			h := nextHello(t, hellos)
			if !h.grease {
				t.Errorf("expected a Chrome hello with GREASE ciphers")
			}
			if len(h.alpn) != 1 || h.alpn[0] != "http/1.1" {
				t.Errorf("ALPN = %v, want [http/1.1]", h.alpn)
			}
		})
	}
	if got := connects.Load(); got != 1 {
		t.Errorf("expected one CONNECT through the proxy, got %d", got)
	}
}

func TestTransport_PlainHTTPThroughProxy(t *testing.T) {
	var connects atomic.Int32
	proxyURL := connectProxy(t, &connects)

	rt, err := Transport(ProfileFirefox, func(*http.Request) (*url.URL, error) { return proxyURL, nil })
	if err != nil {
		t.Fatal(err)
	}
	req, _ := http.NewRequest(http.MethodGet, "http://search.example.com/html/?q=acme", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTeapot {
		t.Errorf("expected the proxy to answer with 418, got %d", resp.StatusCode)
	}
	if connects.Load() != 0 {
		t.Errorf("plain http should not open a tunnel")
	}
}

func TestTransport_OneTransportPerProxy(t *testing.T) {
	rt, err := Transport(ProfileSafari, nil)
	if err != nil {
		t.Fatal(err)
	}
	ft := rt.(*fingerprintTransport)
	a, _ := url.Parse("http://10.0.0.1:3128")
	b, _ := url.Parse("http://10.0.0.2:3128")

	if ft.transport(a) != ft.transport(a) {
		t.Errorf("same proxy should reuse its transport")
	}
	if ft.transport(a) == ft.transport(b) || ft.transport(a) == ft.transport(nil) {
		t.Errorf("different proxies must not share a connection pool")
	}
}

func TestDialThrough_Refused(t *testing.T) {
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusProxyAuthRequired)
	}))
	defer proxy.Close()
	u, _ := url.Parse(proxy.URL)

	_, err := dialThrough(context.Background(), &net.Dialer{}, u, "tcp", "example.com:443")
	if !errors.Is(err, ErrProxyConnect) {
		t.Fatalf("expected ErrProxyConnect, got %v", err)
	}

	u.Scheme = "ftp"
	if _, err := dialThrough(context.Background(), &net.Dialer{}, u, "tcp", "example.com:443"); err == nil {
		t.Errorf("expected an error for an unsupported proxy scheme")
	}
}
