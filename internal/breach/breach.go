// Package breach looks up whether an email address appears in known data
// breaches and which leaked passwords are associated with it.
//
// Three services are consulted. With an API key, Have I Been Pwned is
// authoritative; without one the HudsonRock infostealer database is used.
// Addresses found breached are then looked up on ProxyNova's COMB index for
// leaked password candidates. Every lookup is best effort: a failed call is
// a negative result, never an error.
package breach

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/Mysteriza/linkook/internal/httpx"
)

const emailPlaceholder = "{email}"

const DefaultTimeout = 5 * time.Second

const (
	hudsonRockInfected    = "is associated with a computer that was infected"
	hudsonRockNotInfected = "is not associated with a computer that was infected"
)

var (
	ErrInvalidAPIKey = errors.New("invalid HIBP API key")
	ErrKeyUnverified = errors.New("HIBP API key could not be verified")
)

// Endpoints are URL templates; {email} is replaced with the escaped address.
type Endpoints struct {
	HIBP       string
	HIBPStatus string
	HudsonRock string
	ProxyNova  string
}

func DefaultEndpoints() Endpoints {
	return Endpoints{
		HIBP:       "https://haveibeenpwned.com/api/v3/breachedaccount/" + emailPlaceholder + "?truncateResponse=true",
		HIBPStatus: "https://haveibeenpwned.com/api/v3/subscription/status",
		HudsonRock: "https://cavalier.hudsonrock.com/api/json/v2/osint-tools/search-by-email?email=" + emailPlaceholder,
		ProxyNova:  "https://api.proxynova.com/comb?query=" + emailPlaceholder,
	}
}

type Config struct {
	APIKey    string
	Endpoints Endpoints
	Timeout   time.Duration
	UserAgent string
}

func (c *Config) defaults() {
	def := DefaultEndpoints()
	if c.Endpoints.HIBP == "" {
		c.Endpoints.HIBP = def.HIBP
	}
	if c.Endpoints.HIBPStatus == "" {
		c.Endpoints.HIBPStatus = def.HIBPStatus
	}
	if c.Endpoints.HudsonRock == "" {
		c.Endpoints.HudsonRock = def.HudsonRock
	}
	if c.Endpoints.ProxyNova == "" {
		c.Endpoints.ProxyNova = def.ProxyNova
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.UserAgent == "" {
		c.UserAgent = httpx.DefaultUserAgent
	}
}

type Finding struct {
	Breached  bool
	Count     int
	Passwords []string
}

// Chain answers breach questions for a run. Each distinct address is
// evaluated upstream at most once, however many callers ask concurrently.
type Chain struct {
	client httpx.Doer
	cfg    Config
	log    logrus.FieldLogger

	group singleflight.Group
	mu    sync.Mutex
	memo  map[string]Finding
}

func New(client httpx.Doer, cfg Config, log logrus.FieldLogger) *Chain {
	cfg.defaults()
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Chain{client: client, cfg: cfg, log: log, memo: map[string]Finding{}}
}

// Check returns the breach finding for email.
func (c *Chain) Check(ctx context.Context, email string) Finding {
	key := strings.ToLower(strings.TrimSpace(email))

	c.mu.Lock()
	f, ok := c.memo[key]
	c.mu.Unlock()
	if ok {
		return f
	}

	v, _, _ := c.group.Do(key, func() (any, error) {
		c.mu.Lock()
		f, ok := c.memo[key]
		c.mu.Unlock()
		if ok {
			return f, nil
		}

		f = c.evaluate(ctx, email)

		c.mu.Lock()
		c.memo[key] = f
		c.mu.Unlock()
		return f, nil
	})
	return v.(Finding)
}

func (c *Chain) evaluate(ctx context.Context, email string) Finding {
	var f Finding
	if c.cfg.APIKey != "" {
		f.Breached, f.Count = c.hibp(ctx, email)
	} else {
		f.Breached = c.hudsonRock(ctx, email)
	}
	if f.Breached {
		f.Passwords = c.proxyNova(ctx, email)
	}
	c.log.WithFields(logrus.Fields{
		"email":     email,
		"breached":  f.Breached,
		"count":     f.Count,
		"passwords": len(f.Passwords),
	}).Debug("breach lookup")
	return f
}

func (c *Chain) hibp(ctx context.Context, email string) (bool, int) {
	status, body, err := c.get(ctx, expand(c.cfg.Endpoints.HIBP, url.PathEscape(email)), true)
	if err != nil {
		c.log.WithError(err).Debug("hibp lookup failed")
		return false, 0
	}
	if status != http.StatusOK || !gjson.ValidBytes(body) {
		return false, 0
	}
	res := gjson.ParseBytes(body)
	if !res.IsArray() {
		return false, 0
	}
	return true, len(res.Array())
}

func (c *Chain) hudsonRock(ctx context.Context, email string) bool {
	status, body, err := c.get(ctx, expand(c.cfg.Endpoints.HudsonRock, url.QueryEscape(email)), false)
	if err != nil {
		c.log.WithError(err).Debug("hudsonrock lookup failed")
		return false
	}
	if status != http.StatusOK {
		return false
	}
	msg := gjson.GetBytes(body, "message").String()
	switch {
	case strings.Contains(msg, hudsonRockNotInfected):
		return false
	case strings.Contains(msg, hudsonRockInfected):
		return true
	default:
		return false
	}
}

func (c *Chain) proxyNova(ctx context.Context, email string) []string {
	status, body, err := c.get(ctx, expand(c.cfg.Endpoints.ProxyNova, url.QueryEscape(email)), false)
	if err != nil {
		c.log.WithError(err).Debug("proxynova lookup failed")
		return nil
	}
	if status != http.StatusOK {
		return nil
	}

	prefix := email + ":"
	seen := map[string]struct{}{}
	var out []string
	gjson.GetBytes(body, "lines").ForEach(func(_, line gjson.Result) bool {
		s := line.String()
		if len(s) < len(prefix) || !strings.EqualFold(s[:len(prefix)], prefix) {
			return true
		}
		pw := strings.TrimSpace(s[len(prefix):])
		if pw == "" {
			return true
		}
		if _, dup := seen[pw]; !dup {
			seen[pw] = struct{}{}
			out = append(out, pw)
		}
		return true
	})
	return out
}

func (c *Chain) get(ctx context.Context, rawURL string, withKey bool) (int, []byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := httpx.NewRequest(ctx, http.MethodGet, rawURL, nil, c.cfg.UserAgent)
	if err != nil {
		return 0, nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if withKey {
		req.Header.Set("hibp-api-key", c.cfg.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, nil, errors.Wrap(err, "read body")
	}
	return resp.StatusCode, body, nil
}

func expand(tmpl, email string) string {
	return strings.ReplaceAll(tmpl, emailPlaceholder, email)
}

// VerifyKey checks cfg.APIKey against the HIBP subscription endpoint.
// It returns ErrInvalidAPIKey when the key is rejected and ErrKeyUnverified
// when the answer is anything else.
func VerifyKey(ctx context.Context, client httpx.Doer, cfg Config) error {
	cfg.defaults()
	c := &Chain{client: client, cfg: cfg}

	status, _, err := c.get(ctx, cfg.Endpoints.HIBPStatus, true)
	if err != nil {
		return errors.Wrap(ErrKeyUnverified, err.Error())
	}
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusUnauthorized:
		return ErrInvalidAPIKey
	default:
		return errors.Wrapf(ErrKeyUnverified, "status %d", status)
	}
}
