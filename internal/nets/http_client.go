// Package nets builds the outbound HTTP client used for completion calls.
package nets

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// Dialer is satisfied by *net.Dialer and the SOCKS dialers from x/net/proxy.
type Dialer interface {
	Dial(network, addr string) (net.Conn, error)
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// ParseProxyURL parses addr, normalizing the socks scheme to socks5. An
// empty addr yields a nil URL.
func ParseProxyURL(addr string) (*url.URL, error) {
	if addr == "" {
		return nil, nil
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parse proxy address: %w", err)
	}
	if u.Scheme == "socks" {
		u.Scheme = "socks5"
	}
	return u, nil
}

// NewHTTPClient returns a client that routes through proxyAddr. SOCKS
// proxies are dialed directly; http and https proxies go through
// Transport.Proxy. Loopback and private addresses always bypass the proxy.
func NewHTTPClient(proxyAddr string, timeout time.Duration) (*http.Client, error) {
	u, err := ParseProxyURL(proxyAddr)
	if err != nil {
		return nil, err
	}

	direct := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		DialContext:         direct.DialContext,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
	}

	if u != nil {
		switch u.Scheme {
		case "socks5", "socks5h":
			d, err := proxy.FromURL(u, direct)
			if err != nil {
				return nil, fmt.Errorf("socks proxy: %w", err)
			}
			proxyDialer, ok := d.(Dialer)
			if !ok {
				return nil, fmt.Errorf("socks proxy dialer does not support contexts")
			}
			transport.DialContext = bypassLocal(direct, proxyDialer)
		case "http", "https":
			transport.Proxy = func(req *http.Request) (*url.URL, error) {
				if IsLocalAddr(req.URL.Host) {
					return nil, nil
				}
				return u, nil
			}
		default:
			return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

func bypassLocal(direct, proxied Dialer) func(context.Context, string, string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if IsLocalAddr(addr) {
			return direct.DialContext(ctx, network, addr)
		}
		return proxied.DialContext(ctx, network, addr)
	}
}

// IsLocalAddr reports whether addr (host or host:port) resolves to a
// loopback or private address. Lookup failures count as non-local.
func IsLocalAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate()
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return false
	}
	for _, ip := range ips {
		if ip.IsLoopback() || ip.IsPrivate() {
			return true
		}
	}
	return false
}
