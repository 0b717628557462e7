package scan

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/Mysteriza/linkook/internal/httpx"
	"github.com/Mysteriza/linkook/internal/provider"
)

var ErrFetchFailed = errors.New("fetch failed")

// FetchError is a transport failure while requesting a profile page.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrFetchFailed, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetchFailed }

// Fetcher issues the single request a provider prescribes for a username.
// It never retries.
type Fetcher struct {
	client  httpx.Doer
	cfg     Config
	limiter *rate.Limiter
}

func NewFetcher(client httpx.Doer, cfg Config) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = httpx.DefaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = httpx.DefaultMaxBodyBytes
	}
	return &Fetcher{client: client, cfg: cfg, limiter: cfg.limiter()}
}

func (f *Fetcher) Fetch(ctx context.Context, username string, p *provider.Provider) (*Page, error) {
	target := p.BuildQueryURL(username)

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{URL: target, Err: err}
		}
	}
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	var (
		body    io.Reader
		payload []byte
	)
	if p.Method == http.MethodPost {
		payload = p.BuildPayload(username)
		if payload == nil {
			payload = []byte("{}")
		}
		body = bytes.NewReader(payload)
	}

	req, err := httpx.NewRequest(ctx, p.Method, target, body, f.cfg.UserAgent)
	if err != nil {
		return nil, &FetchError{URL: target, Err: errors.Wrap(err, "build request")}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}
	defer resp.Body.Close()

	text, err := httpx.ReadBody(resp, f.cfg.MaxBodyBytes)
	if err != nil {
		return nil, &FetchError{URL: target, Err: err}
	}

	final := target
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return &Page{Status: resp.StatusCode, Body: text, URL: final}, nil
}
