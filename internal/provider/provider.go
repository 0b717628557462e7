package provider

import (
	"sort"
	"strings"

	"github.com/bytedance/sonic"
)

// Placeholder is replaced with the username in URL and payload templates.
const Placeholder = "{}"

// Mode tells the extractor how a provider's pages are mined for other accounts.
type Mode int

const (
	// ModeGenericSearch searches the page for links to every candidate provider.
	ModeGenericSearch Mode = iota
	// ModeStructuredHandles reads linked handles with the provider's own handle patterns.
	ModeStructuredHandles
	// ModeIsolated pages are never mined for cross-links.
	ModeIsolated
)

func (m Mode) String() string {
	switch m {
	case ModeStructuredHandles:
		return "structured-handles"
	case ModeIsolated:
		return "isolated"
	default:
		return "generic-search"
	}
}

// Keywords drives the availability check of a fetched page.
type Keywords struct {
	Match    []string `json:"Match" yaml:"Match"`
	NotMatch []string `json:"notMatch" yaml:"notMatch"`
}

// Empty reports whether no keyword is configured at all.
func (k *Keywords) Empty() bool {
	return k == nil || (len(k.Match) == 0 && len(k.NotMatch) == 0)
}

// Record is one provider entry as it appears in a catalog file.
type Record struct {
	MainURL       string            `json:"mainUrl" yaml:"mainUrl"`
	ProfileURL    string            `json:"profileUrl" yaml:"profileUrl"`
	QueryURL      string            `json:"queryUrl" yaml:"queryUrl"`
	RegexURL      string            `json:"regexUrl" yaml:"regexUrl"`
	RequestMethod string            `json:"requestMethod" yaml:"requestMethod"`
	Headers       map[string]string `json:"headers" yaml:"headers"`
	Payload       any               `json:"payload" yaml:"payload"`
	Keyword       *Keywords         `json:"keyword" yaml:"keyword"`

	IsConnected bool `json:"isConnected" yaml:"isConnected"`
	IsUserID    bool `json:"isUserId" yaml:"isUserId"`
	HasEmail    bool `json:"hasEmail" yaml:"hasEmail"`

	HandleRegex     map[string]string `json:"handleRegex" yaml:"handleRegex"`
	ExtractPatterns map[string]string `json:"extractPatterns" yaml:"extractPatterns"`
	Links           []string          `json:"links" yaml:"links"`
}

// Provider is the compiled, read-only configuration of one platform.
// Nothing mutates a Provider after New returns.
type Provider struct {
	Name       string
	MainURL    string
	ProfileURL string
	QueryURL   string
	Method     string
	Headers    map[string]string
	Keywords   *Keywords

	IsConnected bool
	IsUserID    bool
	HasEmail    bool

	// Links restricts generic search to these provider names. Empty means all.
	Links []string
	Mode  Mode

	payload  any
	urlRegex *pattern
	handles  []namedPattern
	fields   []namedPattern
}

// Handle is a linked account read from a page with a handle pattern.
type Handle struct {
	Provider string
	Value    string
}

// New compiles rec. Patterns that do not compile are reported and left out;
// the provider itself stays usable.
func New(name string, rec Record) (*Provider, []*PatternError) {
	p := &Provider{
		Name:        name,
		MainURL:     rec.MainURL,
		ProfileURL:  rec.ProfileURL,
		QueryURL:    rec.QueryURL,
		Method:      strings.ToUpper(strings.TrimSpace(rec.RequestMethod)),
		Headers:     rec.Headers,
		Keywords:    rec.Keyword,
		IsConnected: rec.IsConnected,
		IsUserID:    rec.IsUserID,
		HasEmail:    rec.HasEmail,
		Links:       rec.Links,
		payload:     rec.Payload,
	}
	if p.Method == "" {
		p.Method = "GET"
	}

	var errs []*PatternError
	if rec.RegexURL != "" {
		re, err := compile(rec.RegexURL, false)
		if err != nil {
			errs = append(errs, &PatternError{Provider: name, Field: "regexUrl", Pattern: rec.RegexURL, Err: err})
		} else {
			p.urlRegex = re
		}
	}
	p.handles, errs = compileNamed(name, "handleRegex", rec.HandleRegex, errs)
	p.fields, errs = compileNamed(name, "extractPatterns", rec.ExtractPatterns, errs)

	switch {
	case !p.IsConnected:
		p.Mode = ModeIsolated
	case len(rec.HandleRegex) > 0:
		p.Mode = ModeStructuredHandles
	default:
		p.Mode = ModeGenericSearch
	}

	return p, errs
}

func compileNamed(provider, field string, exprs map[string]string, errs []*PatternError) ([]namedPattern, []*PatternError) {
	names := make([]string, 0, len(exprs))
	for name := range exprs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]namedPattern, 0, len(names))
	for _, name := range names {
		re, err := compile(exprs[name], true)
		if err != nil {
			errs = append(errs, &PatternError{Provider: provider, Field: field + "." + name, Pattern: exprs[name], Err: err})
			continue
		}
		out = append(out, namedPattern{name: name, re: re})
	}
	return out, errs
}

// Expand substitutes username into every placeholder of template.
func Expand(template, username string) string {
	return strings.ReplaceAll(template, Placeholder, username)
}

// BuildURL returns the public profile URL of username.
func (p *Provider) BuildURL(username string) string {
	return Expand(p.ProfileURL, username)
}

// BuildQueryURL returns the URL that is actually requested: the query URL
// when one is configured, the profile URL otherwise.
func (p *Provider) BuildQueryURL(username string) string {
	if p.QueryURL != "" {
		return Expand(p.QueryURL, username)
	}
	return p.BuildURL(username)
}

// BuildPayload renders the JSON request body for username, or nil when the
// provider has no payload.
func (p *Provider) BuildPayload(username string) []byte {
	if p.payload == nil {
		return nil
	}
	b, err := sonic.Marshal(expandValue(p.payload, username))
	if err != nil {
		return nil
	}
	return b
}

func expandValue(v any, username string) any {
	switch t := v.(type) {
	case string:
		return Expand(t, username)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, vv := range t {
			out[k] = expandValue(vv, username)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, vv := range t {
			out[i] = expandValue(vv, username)
		}
		return out
	default:
		return v
	}
}

// ExtractUser returns the usernames captured by the provider's URL pattern
// in text, unique and in order of appearance.
func (p *Provider) ExtractUser(text string) []string {
	if p.urlRegex == nil {
		return nil
	}
	return p.urlRegex.captures(text)
}

// ExtractLinks returns every link to this provider found in text.
func (p *Provider) ExtractLinks(text string) []string {
	if p.urlRegex == nil {
		return nil
	}
	return p.urlRegex.matches(text)
}

// Handles applies the handle patterns to text, ordered by target provider name.
func (p *Provider) Handles(text string) []Handle {
	var out []Handle
	for _, np := range p.handles {
		if v, ok := np.re.first(text); ok {
			out = append(out, Handle{Provider: np.name, Value: v})
		}
	}
	return out
}

// Fields applies the extract patterns to text. Patterns without a match
// are absent from the result.
func (p *Provider) Fields(text string) map[string]string {
	out := make(map[string]string, len(p.fields))
	for _, np := range p.fields {
		if v, ok := np.re.first(text); ok {
			out[np.name] = v
		}
	}
	return out
}

// HasURLPattern reports whether links to this provider can be recognized.
func (p *Provider) HasURLPattern() bool {
	return p.urlRegex != nil
}
