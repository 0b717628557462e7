package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Mysteriza/linkook/internal/breach"
	"github.com/Mysteriza/linkook/internal/catalog"
	"github.com/Mysteriza/linkook/internal/cli"
	"github.com/Mysteriza/linkook/internal/discovery"
	"github.com/Mysteriza/linkook/internal/httpx"
	"github.com/Mysteriza/linkook/internal/output"
	"github.com/Mysteriza/linkook/internal/scan"
)

// Runner adapts Run to the command's callback.
func Runner(stdout, stderr io.Writer) cli.RunFunc {
	return func(ctx context.Context, opts cli.Options, username string) error {
		return Run(ctx, opts, username, stdout, stderr)
	}
}

// Run performs one discovery run for username and prints the results.
// When the context is cancelled the partial results are still reported and
// the context's error is returned.
func Run(ctx context.Context, opts cli.Options, username string, stdout, stderr io.Writer) error {
	color.NoColor = opts.NoColor
	log := newLogger(stderr, opts)

	client, err := httpx.NewClient(httpx.ClientConfig{
		Timeout:  opts.Timeout,
		ProxyURL: opts.Proxy,
		WithTor:  opts.WithTor,
	})
	if err != nil {
		return errors.Wrap(err, "initialize HTTP client")
	}
	defer httpx.CloseIdle(client)

	catOpts := catalog.Options{
		RemoteURL:  opts.RemoteCatalog,
		LocalPath:  opts.LocalCatalog,
		ForceLocal: opts.ForceLocal,
		HTTPClient: client,
		Timeout:    opts.Timeout,
		UserAgent:  httpx.DefaultUserAgent,
		Logger:     log,
	}

	if opts.Update {
		return updateCatalog(ctx, catOpts, stdout, opts.NoColor)
	}

	cat, err := catalog.Load(ctx, catOpts)
	if err != nil {
		return errors.Wrap(err, "load catalog")
	}

	chain, err := newBreachChain(ctx, client, opts, log)
	if err != nil {
		return err
	}

	// Buffer for the results file.
	var buf strings.Builder
	printer := output.NewPrinter(stdout, output.Options{
		NoColor:  opts.NoColor,
		PrintAll: opts.PrintAll,
		Concise:  opts.Concise,
		Breach:   opts.CheckBreach,
	}, &buf)

	fetcher := scan.NewFetcher(client, scan.Config{
		UserAgent:         httpx.DefaultUserAgent,
		MaxBodyBytes:      opts.MaxBodyBytes,
		RequestsPerSecond: opts.Rate,
		Timeout:           opts.Timeout,
	})
	cfg := discovery.Config{
		Workers:  opts.Workers,
		ScanAll:  opts.ScanAll,
		Only:     opts.Sites,
		Silent:   opts.Silent,
		Reporter: printer,
		Logger:   log,
	}
	if chain != nil {
		cfg.Breach = chain
	}
	engine := discovery.New(cat, scan.NewScanner(fetcher, cat, log), cfg)

	res, runErr := engine.Run(ctx, username)
	if runErr != nil {
		notice(stdout, opts.NoColor, "Interrupted; showing partial results.")
	}

	if opts.ShowSummary {
		if err := output.WriteSummary(stdout, res); err != nil {
			return errors.Wrap(err, "write summary")
		}
	}

	if opts.OutputDir != "" {
		if err := output.WriteSummary(&buf, res); err != nil {
			return errors.Wrap(err, "write summary")
		}
		path, err := output.WriteFile(opts.OutputDir, username, buf.String())
		if err != nil {
			return err
		}
		notice(stdout, opts.NoColor, "Results saved to "+path)
	}
	return runErr
}

func newLogger(w io.Writer, opts cli.Options) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{
		DisableColors: opts.NoColor,
		FullTimestamp: true,
	})
	log.SetLevel(logrus.WarnLevel)
	if opts.Debug {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// newBreachChain returns nil when breach checking is off. A key HIBP
// rejects is fatal; a key that cannot be verified is dropped and the
// keyless lookup is used instead.
func newBreachChain(ctx context.Context, client httpx.Doer, opts cli.Options, log logrus.FieldLogger) (*breach.Chain, error) {
	if !opts.CheckBreach {
		return nil, nil
	}

	cfg := breach.Config{
		APIKey:    opts.HIBPKey,
		Timeout:   breach.DefaultTimeout,
		UserAgent: httpx.DefaultUserAgent,
	}
	if opts.HIBP && cfg.APIKey == "" {
		log.Warn("--hibp needs an API key (--hibp-key or LINKOOK_HIBP_KEY); using HudsonRock")
	}
	if cfg.APIKey != "" {
		err := breach.VerifyKey(ctx, client, cfg)
		switch {
		case errors.Is(err, breach.ErrInvalidAPIKey):
			return nil, err
		case err != nil:
			log.WithError(err).Warn("using HudsonRock instead of HIBP")
			cfg.APIKey = ""
		}
	}
	return breach.New(client, cfg, log), nil
}

func updateCatalog(ctx context.Context, opts catalog.Options, stdout io.Writer, noColor bool) error {
	dest := opts.LocalPath
	if dest == "" {
		dest = catalog.DefaultLocalPath
	}

	if noColor {
		fmt.Fprintf(stdout, "[!] Update catalog: Downloading...")
	} else {
		fmt.Fprintf(stdout, "[%s] Update catalog: %s",
			color.HiBlueString("!"),
			color.HiYellowString("Downloading..."),
		)
	}
	if err := catalog.Update(ctx, opts, dest); err != nil {
		fmt.Fprintln(stdout)
		return errors.Wrap(err, "update catalog")
	}
	if noColor {
		fmt.Fprintln(stdout, "[Done]")
	} else {
		fmt.Fprintf(stdout, "[%s]\n", color.GreenString("Done"))
	}
	return nil
}

func notice(w io.Writer, noColor bool, msg string) {
	if noColor {
		fmt.Fprintf(w, "[*] %s\n", msg)
		return
	}
	fmt.Fprintf(w, "[%s] %s\n", color.HiBlueString("*"), msg)
}
