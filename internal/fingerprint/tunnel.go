package fingerprint

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	netproxy "golang.org/x/net/proxy"
)

// ErrProxyConnect is returned when a proxy refuses to open a tunnel.
var ErrProxyConnect = errors.New("fingerprint: proxy CONNECT failed")

// dialThrough opens a raw TCP stream to addr, tunnelled through proxyURL when
// it is set. http and https proxies get a CONNECT request; socks5 proxies go
// through x/net/proxy.
func dialThrough(ctx context.Context, d *net.Dialer, proxyURL *url.URL, network, addr string) (net.Conn, error) {
	if proxyURL == nil {
		return d.DialContext(ctx, network, addr)
	}

	switch proxyURL.Scheme {
	case "socks5", "socks5h":
		pd, err := netproxy.FromURL(proxyURL, d)
		if err != nil {
			return nil, fmt.Errorf("fingerprint: socks5 proxy %s: %w", proxyURL.Redacted(), err)
		}
		cd, ok := pd.(netproxy.ContextDialer)
		if !ok {
			return pd.Dial(network, addr)
		}
		return cd.DialContext(ctx, network, addr)
	case "http", "https":
		return connectTunnel(ctx, d, proxyURL, network, addr)
	default:
		return nil, fmt.Errorf("fingerprint: unsupported proxy scheme %q", proxyURL.Scheme)
	}
}

func connectTunnel(ctx context.Context, d *net.Dialer, proxyURL *url.URL, network, addr string) (net.Conn, error) {
	proxyAddr := proxyURL.Host
	if proxyURL.Port() == "" {
		port := "80"
		if proxyURL.Scheme == "https" {
			port = "443"
		}
		proxyAddr = net.JoinHostPort(proxyURL.Hostname(), port)
	}

	conn, err := d.DialContext(ctx, network, proxyAddr)
	if err != nil {
		return nil, err
	}
	if proxyURL.Scheme == "https" {
		tlsConn := tls.Client(conn, &tls.Config{ServerName: proxyURL.Hostname()})
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("fingerprint: tls to proxy %s: %w", proxyURL.Redacted(), err)
		}
		conn = tlsConn
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	defer conn.SetDeadline(time.Time{})
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Unix(1, 0)) })
	defer stop()

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if u := proxyURL.User; u != nil {
		pass, _ := u.Password()
		cred := base64.StdEncoding.EncodeToString([]byte(u.Username() + ":" + pass))
		req.Header.Set("Proxy-Authorization", "Basic "+cred)
	}
	if err := req.Write(conn); err != nil {
		_ = conn.Close()
		return nil, connectErr(ctx, proxyURL, err)
	}

	br := bufio.NewReader(conn)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		_ = conn.Close()
		return nil, connectErr(ctx, proxyURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s answered %s", ErrProxyConnect, proxyURL.Redacted(), resp.Status)
	}
	if br.Buffered() > 0 {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %s sent data before the TLS handshake", ErrProxyConnect, proxyURL.Redacted())
	}
	return conn, nil
}

func connectErr(ctx context.Context, proxyURL *url.URL, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s: %v", ErrProxyConnect, proxyURL.Redacted(), err)
}
