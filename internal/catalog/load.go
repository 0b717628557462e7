package catalog

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/Mysteriza/linkook/internal/provider"
)

const DefaultRemoteURL = "https://raw.githubusercontent.com/JackJuly/linkook/refs/heads/main/linkook/provider/provider.json"

// DefaultLocalPath is the file read by --local when no path is given.
const DefaultLocalPath = "provider.json"

var ErrEmptyCatalog = errors.New("catalog has no providers")

type Options struct {
	RemoteURL  string
	LocalPath  string
	ForceLocal bool

	// HTTPClient carries the run's proxy settings. Nil uses a plain client.
	HTTPClient *http.Client
	Timeout    time.Duration
	UserAgent  string
	Logger     logrus.FieldLogger
}

func (o *Options) defaults() {
	if o.RemoteURL == "" {
		o.RemoteURL = DefaultRemoteURL
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}
}

// Load builds the run's catalog. The remote catalog is tried first unless
// ForceLocal is set; on failure it falls back to LocalPath, and to the
// embedded catalog when no local path is configured.
func Load(ctx context.Context, opts Options) (*Catalog, error) {
	opts.defaults()
	log := opts.Logger

	var records map[string]provider.Record
	if !opts.ForceLocal {
		raw, err := fetchRemote(ctx, opts)
		if err == nil {
			records, err = DecodeJSON(raw)
		}
		if err != nil {
			log.WithError(err).WithField("url", opts.RemoteURL).Warn("remote catalog unavailable, falling back to local catalog")
			records = nil
		}
	}

	if records == nil {
		var err error
		records, err = loadLocal(opts.LocalPath)
		if err != nil {
			return nil, err
		}
	}

	c, perrs := New(records)
	for _, perr := range perrs {
		log.WithField("provider", perr.Provider).Warn(perr.Error())
	}
	if c.Len() == 0 {
		return nil, ErrEmptyCatalog
	}
	log.WithField("providers", c.Len()).Debug("catalog loaded")
	return c, nil
}

func loadLocal(path string) (map[string]provider.Record, error) {
	if path == "" {
		return DecodeJSON(embedded)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read catalog %s", path)
	}
	return Decode(raw, path)
}

func newRetryClient(opts Options) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.Logger = nil
	if opts.HTTPClient != nil {
		rc.HTTPClient = opts.HTTPClient
	}
	return rc
}

func fetchRemote(ctx context.Context, opts Options) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, opts.RemoteURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build catalog request")
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}

	resp, err := newRetryClient(opts).Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch remote catalog")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("fetch remote catalog: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read remote catalog")
	}
	return body, nil
}

// Update downloads the remote catalog to dest, replacing it atomically.
func Update(ctx context.Context, opts Options, dest string) error {
	opts.defaults()

	raw, err := fetchRemote(ctx, opts)
	if err != nil {
		return err
	}
	if _, err := DecodeJSON(raw); err != nil {
		return err
	}

	if dir := filepath.Dir(dest); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create catalog dir")
		}
	}
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return errors.Wrap(err, "write catalog")
	}
	return errors.Wrap(os.Rename(tmp, dest), "replace catalog")
}

// Decode parses a catalog file, choosing YAML or JSON by the file extension.
func Decode(raw []byte, filename string) (map[string]provider.Record, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return DecodeYAML(raw)
	default:
		return DecodeJSON(raw)
	}
}

// DecodeJSON parses a JSON catalog. Top-level keys starting with "$" are
// metadata and skipped.
func DecodeJSON(raw []byte) (map[string]provider.Record, error) {
	if !gjson.ValidBytes(raw) {
		return nil, errors.New("catalog is not valid JSON")
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil, errors.New("catalog must be a JSON object")
	}

	out := make(map[string]provider.Record)
	var err error
	root.ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if strings.HasPrefix(name, "$") {
			return true
		}
		var rec provider.Record
		if uerr := sonic.UnmarshalString(value.Raw, &rec); uerr != nil {
			err = errors.Wrapf(uerr, "provider %q", name)
			return false
		}
		out[name] = rec
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func DecodeYAML(raw []byte) (map[string]provider.Record, error) {
	var nodes map[string]yaml.Node
	if err := yaml.Unmarshal(raw, &nodes); err != nil {
		return nil, errors.Wrap(err, "parse yaml catalog")
	}

	out := make(map[string]provider.Record, len(nodes))
	for name, node := range nodes {
		if strings.HasPrefix(name, "$") {
			continue
		}
		var rec provider.Record
		if err := node.Decode(&rec); err != nil {
			return nil, errors.Wrapf(err, "provider %q", name)
		}
		out[name] = rec
	}
	return out, nil
}
