package scan

import (
	"regexp"
	"sort"

	"github.com/Mysteriza/linkook/internal/provider"
)

var emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)

// Catalog is the provider lookup the extractor needs.
type Catalog interface {
	Get(name string) *provider.Provider
	All() []*provider.Provider
}

// Extraction is what a found page yields.
type Extraction struct {
	Links     map[string][]string
	Usernames []string
	Fields    map[string]string
	Emails    []string
}

// Extract mines body, served by p, for profile fields, emails and links to
// accounts on other providers.
func Extract(body string, p *provider.Provider, cat Catalog) Extraction {
	ex := Extraction{
		Links:  map[string][]string{},
		Fields: p.Fields(body),
	}
	if p.HasEmail {
		ex.Emails = FindEmails(body)
	}

	users := newOrderedSet()
	switch p.Mode {
	case provider.ModeIsolated:
		return ex

	case provider.ModeStructuredHandles:
		for _, h := range p.Handles(body) {
			target := cat.Get(h.Provider)
			if target == nil {
				continue
			}
			if !target.IsUserID {
				users.add(h.Value)
			}
			ex.Links[target.Name] = []string{target.BuildURL(h.Value)}
		}

	default:
		for _, cand := range candidates(p, cat) {
			if links := cand.ExtractLinks(body); len(links) > 0 {
				ex.Links[cand.Name] = links
			}
			if cand.IsUserID {
				continue
			}
			users.add(cand.ExtractUser(body)...)
		}
	}

	ex.Usernames = users.items
	return ex
}

func candidates(p *provider.Provider, cat Catalog) []*provider.Provider {
	var out []*provider.Provider
	if len(p.Links) > 0 {
		names := append([]string(nil), p.Links...)
		sort.Strings(names)
		for _, name := range names {
			if name == p.Name {
				continue
			}
			if c := cat.Get(name); c != nil {
				out = append(out, c)
			}
		}
		return out
	}
	for _, c := range cat.All() {
		if c.Name != p.Name {
			out = append(out, c)
		}
	}
	return out
}

// FindEmails returns the email addresses in text, unique, in order of
// first appearance.
func FindEmails(text string) []string {
	set := newOrderedSet()
	set.add(emailPattern.FindAllString(text, -1)...)
	return set.items
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: map[string]struct{}{}}
}

func (s *orderedSet) add(vs ...string) {
	for _, v := range vs {
		if _, ok := s.seen[v]; ok {
			continue
		}
		s.seen[v] = struct{}{}
		s.items = append(s.items, v)
	}
}
