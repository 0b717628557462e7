package scan

import (
	"time"

	"golang.org/x/time/rate"
)

// Page is a fetched response: the status code and the decoded body text.
type Page struct {
	Status int
	Body   string
	URL    string
}

type Result struct {
	Username   string
	Provider   string
	ProfileURL string
	ViaLink    bool

	Found bool

	// OtherLinks maps a provider name to the links found for it on this page.
	OtherLinks     map[string][]string
	OtherUsernames []string
	Fields         map[string]string
	Emails         []string

	EmailFindings    map[string]bool
	PasswordFindings map[string][]string
	BreachCounts     map[string]int

	Err error
}

type Config struct {
	UserAgent    string
	MaxBodyBytes int64

	// RequestsPerSecond caps outgoing profile requests across all workers.
	// Zero disables the limit.
	RequestsPerSecond float64
	Timeout           time.Duration
}

func (c Config) limiter() *rate.Limiter {
	if c.RequestsPerSecond <= 0 {
		return nil
	}
	burst := int(c.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.RequestsPerSecond), burst)
}
