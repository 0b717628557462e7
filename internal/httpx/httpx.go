package httpx

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/net/proxy"
)

const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:129.0) Gecko/20100101 Firefox/129.0"
const DefaultTorProxyURL = "socks5://127.0.0.1:9050"

const DefaultTimeout = 10 * time.Second

// Doer lets us accept *http.Client or a test double.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type ClientConfig struct {
	Timeout time.Duration

	// ProxyURL accepts http, https, socks5 and socks5h URLs.
	ProxyURL string
	// WithTor routes everything through DefaultTorProxyURL unless ProxyURL is set.
	WithTor bool
}

// NewClient returns the client shared by every request of a run.
func NewClient(cfg ClientConfig) (*http.Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ProxyURL == "" && cfg.WithTor {
		cfg.ProxyURL = DefaultTorProxyURL
	}

	dialer := &net.Dialer{
		Timeout:   cfg.Timeout,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,

		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse proxy url")
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			transport.Proxy = http.ProxyURL(u)
		case "socks5", "socks5h":
			d, err := proxy.FromURL(u, dialer)
			if err != nil {
				return nil, errors.Wrap(err, "create socks dialer")
			}
			transport.Proxy = nil
			if cd, ok := d.(proxy.ContextDialer); ok {
				transport.DialContext = cd.DialContext
			} else {
				transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
					return d.Dial(network, addr)
				}
			}
		default:
			return nil, errors.Errorf("unsupported proxy scheme %q", u.Scheme)
		}
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}, nil
}

// CloseIdle releases pooled connections once a run is over.
func CloseIdle(d Doer) {
	if c, ok := d.(interface{ CloseIdleConnections() }); ok {
		c.CloseIdleConnections()
	}
}

func NewRequest(ctx context.Context, method, rawURL string, body io.Reader, userAgent string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}
	return req, nil
}
