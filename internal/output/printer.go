package output

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/Mysteriza/linkook/internal/scan"
)

type Options struct {
	NoColor bool
	// PrintAll also reports providers where nothing was found, and errors.
	PrintAll bool
	// Concise prints only the headline of each found account.
	Concise bool
	// Breach marks emails with their breach status.
	Breach bool
}

// Printer renders progress to the console. It is safe for concurrent use;
// each result is written as one block.
type Printer struct {
	opts Options

	logger *log.Logger
	stream *log.Logger // optional (writes to buffer)
}

func NewPrinter(stdout io.Writer, opts Options, buf *strings.Builder) *Printer {
	p := &Printer{
		opts:   opts,
		logger: log.New(stdout, "", 0),
	}
	if buf != nil {
		p.stream = log.New(buf, "", 0)
	}
	return p
}

func (p *Printer) Logger() *log.Logger {
	return p.logger
}

func (p *Printer) paint(fn func(string, ...any) string, s string) string {
	if p.opts.NoColor {
		return s
	}
	return fn("%s", s)
}

func (p *Printer) Start(username string) {
	p.logger.Printf("[%s] Searching linked accounts of %s", p.paint(color.HiBlueString, "*"), p.paint(color.HiGreenString, username))
	if p.stream != nil {
		p.stream.Printf("Linked accounts of %s", username)
	}
}

func (p *Printer) Update(res scan.Result) {
	if p.stream != nil {
		if block := p.render(res, true); block != "" {
			p.stream.Print(block)
		}
	}
	if block := p.render(res, false); block != "" {
		p.logger.Print(block)
	}
}

func (p *Printer) render(res scan.Result, plain bool) string {
	paint := p.paint
	if plain {
		paint = func(_ func(string, ...any) string, s string) string { return s }
	}

	var b strings.Builder
	switch {
	case res.Err != nil:
		if !p.opts.PrintAll {
			return ""
		}
		fmt.Fprintf(&b, "[%s] %s: %s: %s", paint(color.HiRedString, "!"), res.Provider,
			paint(color.HiMagentaString, "ERROR"), paint(color.HiRedString, res.Err.Error()))
		return b.String()

	case !res.Found:
		if !p.opts.PrintAll {
			return ""
		}
		fmt.Fprintf(&b, "[%s] %s: %s", paint(color.HiRedString, "-"), res.Provider, paint(color.HiYellowString, "Not Found!"))
		return b.String()
	}

	fmt.Fprintf(&b, "[%s] %s: %s", paint(color.HiGreenString, "+"), paint(color.HiWhiteString, res.Provider), res.ProfileURL)
	if res.ViaLink {
		b.WriteString(" " + paint(color.CyanString, "(linked)"))
	}
	if p.opts.Concise {
		return b.String()
	}

	for _, name := range sortedKeys(res.OtherLinks) {
		for _, link := range res.OtherLinks[name] {
			fmt.Fprintf(&b, "\n    %s %s: %s", paint(color.HiBlueString, "->"), name, link)
		}
	}
	for _, key := range sortedKeys(res.Fields) {
		fmt.Fprintf(&b, "\n    %s %s: %s", paint(color.HiBlueString, "::"), key, res.Fields[key])
	}
	for _, email := range res.Emails {
		fmt.Fprintf(&b, "\n    %s Email: %s", paint(color.HiBlueString, "@"), email)
		if p.opts.Breach {
			if res.EmailFindings[email] {
				status := "Breached"
				if n := res.BreachCounts[email]; n > 0 {
					status = fmt.Sprintf("Breached in %d", n)
				}
				fmt.Fprintf(&b, " [%s]", paint(color.HiRedString, status))
			} else {
				fmt.Fprintf(&b, " [%s]", paint(color.GreenString, "Safe"))
			}
		}
		for _, pw := range res.PasswordFindings[email] {
			fmt.Fprintf(&b, "\n        %s Password: %s", paint(color.HiRedString, "!"), pw)
		}
	}
	return b.String()
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
