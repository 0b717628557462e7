package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mysteriza/linkook/internal/provider"
)

const smallCatalog = `{
  "$schema": "ignored",
  "Alpha": {
    "profileUrl": "https://alpha.example/{}",
    "regexUrl": "https://alpha\\.example/([a-z]+)",
    "keyword": {"Match": ["profile"], "notMatch": []},
    "isConnected": true
  },
  "Beta": {
    "profileUrl": "https://beta.example/{}",
    "keyword": {"notMatch": ["gone"]},
    "isConnected": false
  }
}`

func nullLogger() (*logrus.Logger, *test.Hook) {
	return test.NewNullLogger()
}

func TestEmbeddedCatalogCompiles(t *testing.T) {
	t.Parallel()

	records, err := DecodeJSON(Embedded())
	require.NoError(t, err)
	assert.NotContains(t, records, "$schema")

	c, perrs := New(records)
	require.Empty(t, perrs)
	assert.Equal(t, len(records), c.Len())

	kb := c.Get("Keybase")
	require.NotNil(t, kb)
	assert.Equal(t, provider.ModeStructuredHandles, kb.Mode)
	assert.Equal(t, provider.ModeIsolated, c.Get("Twitter").Mode)
	assert.Equal(t, provider.ModeGenericSearch, c.Get("GitHub").Mode)
	assert.Equal(t, "POST", c.Get("Discord").Method)
}

func TestSeeds(t *testing.T) {
	t.Parallel()

	c, _ := New(map[string]provider.Record{
		"Connected":   {ProfileURL: "https://c/{}", IsConnected: true, Keyword: &provider.Keywords{Match: []string{"x"}}},
		"Isolated":    {ProfileURL: "https://i/{}", Keyword: &provider.Keywords{NotMatch: []string{"x"}}},
		"NoKeywords":  {ProfileURL: "https://n/{}", IsConnected: true},
		"EmptyKw":     {ProfileURL: "https://e/{}", IsConnected: true, Keyword: &provider.Keywords{}},
		"UserID":      {ProfileURL: "https://u/{}", IsConnected: true, IsUserID: true, Keyword: &provider.Keywords{Match: []string{"x"}}},
		"NoProfile":   {IsConnected: true, Keyword: &provider.Keywords{Match: []string{"x"}}},
		"AConnected2": {ProfileURL: "https://a/{}", IsConnected: true, Keyword: &provider.Keywords{NotMatch: []string{"x"}}},
	})

	names := func(ps []*provider.Provider) []string {
		var out []string
		for _, p := range ps {
			out = append(out, p.Name)
		}
		return out
	}

	assert.Equal(t, []string{"AConnected2", "Connected"}, names(c.Seeds(false)))
	assert.Equal(t, []string{"AConnected2", "Connected", "Isolated"}, names(c.Seeds(true)))
}

func TestNamesSortedAndCopied(t *testing.T) {
	t.Parallel()

	c, _ := New(map[string]provider.Record{"b": {}, "a": {}, "c": {}})
	names := c.Names()
	assert.Equal(t, []string{"a", "b", "c"}, names)

	names[0] = "zzz"
	assert.Equal(t, "a", c.Names()[0])
	assert.Nil(t, c.Get("zzz"))
	assert.Len(t, c.All(), 3)
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()

	raw := []byte(`
$schema: ignored
Alpha:
  profileUrl: https://alpha.example/{}
  requestMethod: post
  payload:
    user: "{}"
  keyword:
    Match: [profile]
  isConnected: true
  handleRegex:
    Beta: 'beta:(\w+)'
`)
	records, err := Decode(raw, "catalog.yml")
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records["Alpha"]
	assert.Equal(t, "https://alpha.example/{}", rec.ProfileURL)
	assert.Equal(t, []string{"profile"}, rec.Keyword.Match)
	assert.Equal(t, `beta:(\w+)`, rec.HandleRegex["Beta"])

	p, perrs := provider.New("Alpha", rec)
	require.Empty(t, perrs)
	assert.JSONEq(t, `{"user":"bob"}`, string(p.BuildPayload("bob")))
}

func TestDecodeJSONErrors(t *testing.T) {
	t.Parallel()

	_, err := DecodeJSON([]byte(`{not json`))
	assert.Error(t, err)

	_, err = DecodeJSON([]byte(`[1,2]`))
	assert.Error(t, err)

	_, err = DecodeJSON([]byte(`{"A": {"isConnected": "yes"}}`))
	assert.ErrorContains(t, err, `"A"`)
}

func TestLoadRemote(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "linkook-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(smallCatalog))
	}))
	defer srv.Close()

	log, _ := nullLogger()
	c, err := Load(context.Background(), Options{RemoteURL: srv.URL, UserAgent: "linkook-test", Logger: log})
	require.NoError(t, err)
	assert.Equal(t, []string{"Alpha", "Beta"}, c.Names())
}

func TestLoadFallsBackToLocalFile(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "providers.json")
	require.NoError(t, os.WriteFile(path, []byte(smallCatalog), 0o600))

	log, hook := nullLogger()
	c, err := Load(context.Background(), Options{RemoteURL: srv.URL, LocalPath: path, Logger: log})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
	assert.Equal(t, int32(1), hits.Load())

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestLoadFallsBackToEmbedded(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not a catalog</html>`))
	}))
	defer srv.Close()

	log, _ := nullLogger()
	c, err := Load(context.Background(), Options{RemoteURL: srv.URL, Logger: log})
	require.NoError(t, err)
	assert.NotNil(t, c.Get("GitHub"))
}

func TestLoadForceLocal(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	_, err := Load(context.Background(), Options{RemoteURL: srv.URL, ForceLocal: true, LocalPath: filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)
	assert.Zero(t, hits.Load())

	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"$schema": "x"}`), 0o600))
	_, err = Load(context.Background(), Options{ForceLocal: true, LocalPath: path})
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestLoadWarnsOnBadPatterns(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Bad": {"profileUrl": "https://bad/{}", "regexUrl": "(("}}`), 0o600))

	log, hook := nullLogger()
	c, err := Load(context.Background(), Options{ForceLocal: true, LocalPath: path, Logger: log})
	require.NoError(t, err)
	assert.NotNil(t, c.Get("Bad"))

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["provider"] == "Bad" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(smallCatalog))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "sub", "provider.json")
	require.NoError(t, Update(context.Background(), Options{RemoteURL: srv.URL}, dest))

	raw, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.JSONEq(t, smallCatalog, string(raw))
}
