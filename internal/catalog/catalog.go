package catalog

import (
	_ "embed"
	"sort"
	"strings"

	"github.com/Mysteriza/linkook/internal/provider"
)

//go:embed provider.json
var embedded []byte

// Embedded returns the catalog compiled into the binary.
func Embedded() []byte {
	return embedded
}

// Catalog is the set of providers known to a run. It is read-only once built.
type Catalog struct {
	byName map[string]*provider.Provider
	names  []string
}

// New compiles records into a Catalog. Pattern errors are returned alongside
// the catalog; the affected providers are still included.
func New(records map[string]provider.Record) (*Catalog, []*provider.PatternError) {
	c := &Catalog{byName: make(map[string]*provider.Provider, len(records))}
	var errs []*provider.PatternError

	for name := range records {
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)

	for _, name := range c.names {
		p, perrs := provider.New(name, records[name])
		errs = append(errs, perrs...)
		c.byName[name] = p
	}
	return c, errs
}

// Get returns the provider registered under name, or nil.
func (c *Catalog) Get(name string) *provider.Provider {
	return c.byName[name]
}

// Names returns all provider names, sorted.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

func (c *Catalog) Len() int {
	return len(c.names)
}

// All returns every provider ordered by name.
func (c *Catalog) All() []*provider.Provider {
	out := make([]*provider.Provider, 0, len(c.names))
	for _, name := range c.names {
		out = append(out, c.byName[name])
	}
	return out
}

// Seeds returns the providers a run starts from. Providers without keyword
// configuration, ID-only providers and providers without a profile URL are
// never seeded. Unless scanAll is set, only connected providers are.
func (c *Catalog) Seeds(scanAll bool) []*provider.Provider {
	var out []*provider.Provider
	for _, p := range c.All() {
		if p.Keywords.Empty() || p.IsUserID || strings.TrimSpace(p.ProfileURL) == "" {
			continue
		}
		if !scanAll && !p.IsConnected {
			continue
		}
		out = append(out, p)
	}
	return out
}
