package provider

import (
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
)

// matchTimeout bounds a single regex evaluation against one page.
const matchTimeout = time.Second

// PatternError describes a catalog pattern that could not be compiled.
type PatternError struct {
	Provider string
	Field    string
	Pattern  string
	Err      error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("%s: invalid %s %q: %v", e.Provider, e.Field, e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

type pattern struct {
	re *regexp2.Regexp
}

type namedPattern struct {
	name string
	re   *pattern
}

func compile(expr string, singleline bool) (*pattern, error) {
	var opts regexp2.RegexOptions
	if singleline {
		opts |= regexp2.Singleline
	}
	re, err := regexp2.Compile(expr, opts)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = matchTimeout
	return &pattern{re: re}, nil
}

// first returns the first capture group of the first match with internal
// whitespace collapsed.
func (p *pattern) first(text string) (string, bool) {
	m, err := p.re.FindStringMatch(text)
	if err != nil || m == nil {
		return "", false
	}
	v := collapse(group(m))
	if v == "" {
		return "", false
	}
	return v, true
}

func (p *pattern) captures(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	p.each(text, func(m *regexp2.Match) {
		v := strings.TrimSpace(group(m))
		if v == "" {
			return
		}
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	})
	return out
}

func (p *pattern) matches(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	p.each(text, func(m *regexp2.Match) {
		v := m.String()
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	})
	return out
}

func (p *pattern) each(text string, fn func(*regexp2.Match)) {
	m, err := p.re.FindStringMatch(text)
	for err == nil && m != nil {
		fn(m)
		m, err = p.re.FindNextMatch(m)
	}
}

func group(m *regexp2.Match) string {
	if m.GroupCount() < 2 {
		return ""
	}
	g := m.GroupByNumber(1)
	if g == nil {
		return ""
	}
	return g.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ExtractField matches expr against text and returns its first capture
// group with whitespace collapsed. An empty or invalid expr, or no match,
// yields ok == false.
func ExtractField(text, expr string) (string, bool) {
	if expr == "" {
		return "", false
	}
	re, err := compile(expr, true)
	if err != nil {
		return "", false
	}
	return re.first(text)
}
