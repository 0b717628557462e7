package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Mysteriza/linkook/internal/catalog"
	"github.com/Mysteriza/linkook/internal/discovery"
	"github.com/Mysteriza/linkook/internal/httpx"
)

var ErrNoUsername = errors.New("a username is required")

const (
	envPrefix      = "LINKOOK"
	configName     = ".linkook"
	defaultResults = "results"
)

type Options struct {
	NoColor     bool
	Silent      bool
	Concise     bool
	PrintAll    bool
	ShowSummary bool
	Debug       bool

	ScanAll     bool
	CheckBreach bool
	HIBP        bool
	HIBPKey     string

	WithTor      bool
	Proxy        string
	Timeout      time.Duration
	Workers      int
	Rate         float64
	MaxBodyBytes int64

	// OutputDir is empty when results are not saved.
	OutputDir string

	LocalCatalog  string
	ForceLocal    bool
	RemoteCatalog string
	Sites         []string

	// Update downloads the remote catalog to LocalCatalog and exits.
	Update bool

	ConfigFile string
}

type RunFunc func(ctx context.Context, opts Options, username string) error

// NewRootCommand builds the linkook command. Flag values can also be given
// in ~/.linkook.yaml or as LINKOOK_* environment variables; flags win.
func NewRootCommand(stdout, stderr io.Writer, run RunFunc) *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:           "linkook [flags] USERNAME",
		Short:         "Find the accounts linked to a username across social networks",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return initConfig(v, cfgFile)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optionsFrom(v, stderr)
			opts.ConfigFile = cfgFile

			var username string
			if len(args) > 0 {
				username = strings.TrimSpace(args[0])
			}
			if username == "" && !opts.Update {
				_ = cmd.Usage()
				return ErrNoUsername
			}
			return run(cmd.Context(), opts, username)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.linkook.yaml)")

	fs := cmd.Flags()
	fs.SortFlags = false

	fs.BoolP("concise", "c", false, "print more concise results")
	fs.BoolP("silent", "s", false, "suppress progress output and only show the summary")
	fs.Bool("show-summary", false, "show a summary of the scan results")
	fs.Bool("print-all", false, "also print providers where the username was not found")
	fs.Bool("no-color", false, "disable colored output")
	fs.BoolP("debug", "d", false, "enable verbose logging")

	fs.BoolP("scan-all", "a", false, "seed every provider, not only the connected ones")
	fs.StringSlice("sites", nil, "only seed these providers (comma separated)")
	fs.Bool("check-breach", false, "check found emails against breach databases")
	fs.Bool("hibp", false, "use Have I Been Pwned for breach checks (needs --hibp-key)")
	fs.String("hibp-key", "", "Have I Been Pwned API key")

	fs.BoolP("tor", "t", false, "route requests through tor ("+httpx.DefaultTorProxyURL+")")
	fs.String("proxy", "", "proxy URL (http, https, socks5, socks5h)")
	fs.Duration("timeout", httpx.DefaultTimeout, "HTTP request timeout")
	fs.IntP("workers", "w", discovery.DefaultWorkers, "number of concurrent workers")
	fs.Float64("rate", 0, "max profile requests per second, 0 for no limit")
	fs.Int64("max-body", httpx.DefaultMaxBodyBytes, "max bytes read from a response body")

	fs.StringP("output", "o", "", "directory to save the results to (default \""+defaultResults+"\" when given without a value)")
	fs.Lookup("output").NoOptDefVal = defaultResults
	fs.StringP("local", "l", "", "force the local catalog (default \""+catalog.DefaultLocalPath+"\" when given without a value)")
	fs.Lookup("local").NoOptDefVal = catalog.DefaultLocalPath
	fs.String("remote", catalog.DefaultRemoteURL, "remote catalog URL")
	fs.BoolP("update", "u", false, "download the remote catalog to the local path and exit")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

// initConfig reads the config file if there is one. It never writes it, so
// the HIBP key stays wherever the user put it.
func initConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			return nil
		}
		v.AddConfigPath(home)
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return errors.Wrap(err, "read config")
	}
	return nil
}

func optionsFrom(v *viper.Viper, stderr io.Writer) Options {
	opts := Options{
		NoColor:     v.GetBool("no-color"),
		Silent:      v.GetBool("silent"),
		Concise:     v.GetBool("concise"),
		PrintAll:    v.GetBool("print-all"),
		ShowSummary: v.GetBool("show-summary"),
		Debug:       v.GetBool("debug"),

		ScanAll:     v.GetBool("scan-all"),
		CheckBreach: v.GetBool("check-breach"),
		HIBP:        v.GetBool("hibp"),
		HIBPKey:     strings.TrimSpace(v.GetString("hibp-key")),

		WithTor:      v.GetBool("tor"),
		Proxy:        strings.TrimSpace(v.GetString("proxy")),
		Timeout:      v.GetDuration("timeout"),
		Workers:      v.GetInt("workers"),
		Rate:         v.GetFloat64("rate"),
		MaxBodyBytes: v.GetInt64("max-body"),

		OutputDir:     v.GetString("output"),
		LocalCatalog:  v.GetString("local"),
		RemoteCatalog: v.GetString("remote"),
		Update:        v.GetBool("update"),
	}
	opts.ForceLocal = opts.LocalCatalog != ""
	opts.Sites = splitSites(v.GetStringSlice("sites"))

	if opts.Silent {
		opts.ShowSummary = true
	}
	if opts.HIBP || opts.HIBPKey != "" {
		opts.CheckBreach = true
	}

	if opts.Timeout <= 0 {
		warn(stderr, opts.NoColor, "Invalid timeout value; using default of %s.", httpx.DefaultTimeout)
		opts.Timeout = httpx.DefaultTimeout
	}
	if opts.Workers <= 0 {
		warn(stderr, opts.NoColor, "Invalid worker count; using default of %d.", discovery.DefaultWorkers)
		opts.Workers = discovery.DefaultWorkers
	}
	if opts.Rate < 0 {
		opts.Rate = 0
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = httpx.DefaultMaxBodyBytes
	}
	return opts
}

// splitSites accepts both repeated flags and comma separated values from
// the environment or config file.
func splitSites(raw []string) []string {
	var out []string
	for _, item := range raw {
		for _, s := range strings.Split(item, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func warn(w io.Writer, noColor bool, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if noColor {
		fmt.Fprintf(w, "[!] %s\n", msg)
		return
	}
	fmt.Fprintf(w, "[%s] %s\n", color.HiRedString("!"), msg)
}
