// Package discovery turns one username into a traversal across providers.
//
// Every provider selected for seeding is probed for the username. Pages that
// show an account are mined for links to other providers; each link yields a
// new (username, provider) task unless that identity or profile URL has been
// seen before in the run. Identities only ever enter the visited sets, and
// the catalog is finite, so the traversal terminates.
//
// Tasks are served by a fixed pool of workers from an unbounded queue. Run
// returns once no task is queued or in flight, or as soon as the context is
// cancelled; in the latter case tasks already in flight finish but do not
// enqueue anything new.
package discovery

import (
	"context"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Mysteriza/linkook/internal/breach"
	"github.com/Mysteriza/linkook/internal/provider"
	"github.com/Mysteriza/linkook/internal/scan"
)

const DefaultWorkers = 5

// Reporter receives progress. Update is called once per settled task, from
// worker goroutines.
type Reporter interface {
	Start(username string)
	Update(res scan.Result)
}

type EmailChecker interface {
	Check(ctx context.Context, email string) breach.Finding
}

type Catalog interface {
	scan.Catalog
	Seeds(scanAll bool) []*provider.Provider
	Len() int
}

type PageScanner interface {
	Scan(ctx context.Context, username string, p *provider.Provider, viaLink bool) scan.Result
}

type Config struct {
	Workers int
	ScanAll bool

	// Only restricts seeding to these provider names, case-insensitively.
	// Unknown names are ignored; if none is known every seed is used.
	Only []string

	// Silent suppresses Update calls.
	Silent   bool
	Reporter Reporter

	// Breach is nil when breach checking is disabled.
	Breach EmailChecker
	Logger logrus.FieldLogger
}

type Engine struct {
	cat     Catalog
	scanner PageScanner
	cfg     Config
	log     logrus.FieldLogger
}

func New(cat Catalog, scanner PageScanner, cfg Config) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	log := cfg.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Engine{cat: cat, scanner: scanner, cfg: cfg, log: log}
}

// run is the per-invocation context shared by the workers.
type run struct {
	*Engine
	state *State
	queue *queue
	log   logrus.FieldLogger
}

// Run discovers the accounts linked to username. The returned error is the
// context's error when the run was cut short; the results gathered so far
// are returned either way.
func (e *Engine) Run(ctx context.Context, username string) (*Results, error) {
	r := &run{
		Engine: e,
		state:  NewState(),
		queue:  newQueue(),
	}
	runID := uuid.NewString()
	r.log = e.log.WithFields(logrus.Fields{"run_id": runID, "username": username})

	if e.cfg.Reporter != nil {
		e.cfg.Reporter.Start(username)
	}

	seeds := e.Seeds()
	for _, p := range seeds {
		t := Task{Username: username, Provider: p.Name}
		if r.state.MarkTask(t.ID()) {
			r.queue.push(t)
		}
	}
	r.queue.sealIfIdle()
	r.log.WithField("seeds", len(seeds)).Debug("run started")

	stop := context.AfterFunc(ctx, r.queue.close)
	defer stop()

	var g errgroup.Group
	for range e.cfg.Workers {
		g.Go(func() error {
			r.work(ctx)
			return nil
		})
	}
	_ = g.Wait()

	res := r.state.snapshot()
	res.RunID = runID
	res.Username = username
	res.ProvidersScanned = e.cat.Len()
	r.log.WithField("tasks", res.TasksProcessed).Debug("run finished")
	return res, ctx.Err()
}

// Seeds returns the providers a run starts from.
func (e *Engine) Seeds() []*provider.Provider {
	all := e.cat.Seeds(e.cfg.ScanAll)
	if len(e.cfg.Only) == 0 {
		return all
	}

	want := make(map[string]struct{}, len(e.cfg.Only))
	for _, name := range e.cfg.Only {
		want[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}
	var out []*provider.Provider
	for _, p := range all {
		if _, ok := want[strings.ToLower(p.Name)]; ok {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		e.log.WithField("only", e.cfg.Only).Warn("no matching providers; using every seed")
		return all
	}
	return out
}

func (r *run) work(ctx context.Context) {
	for {
		t, ok := r.queue.pop()
		if !ok {
			return
		}
		r.process(ctx, t)
		r.queue.done()
	}
}

func (r *run) process(ctx context.Context, t Task) {
	log := r.log.WithFields(logrus.Fields{"provider": t.Provider, "task_user": t.Username})

	if ctx.Err() != nil {
		return
	}
	p := r.cat.Get(t.Provider)
	if p == nil {
		log.Debug("unknown provider, task dropped")
		return
	}
	url := p.BuildURL(t.Username)
	if !r.state.MarkURL(url) {
		log.WithField("url", url).Debug("already visited")
		return
	}

	res := r.scanner.Scan(ctx, t.Username, p, t.ViaLink)
	r.state.countProcessed()

	if res.Found {
		r.checkEmails(ctx, &res)
		r.state.Record(res, r.canonicalLinks(res.OtherLinks))
	}
	if !r.cfg.Silent && r.cfg.Reporter != nil {
		r.cfg.Reporter.Update(res)
	}

	if !res.Found || ctx.Err() != nil {
		return
	}
	r.expand(res, log)
}

func (r *run) checkEmails(ctx context.Context, res *scan.Result) {
	if len(res.Emails) == 0 {
		return
	}
	res.EmailFindings = make(map[string]bool, len(res.Emails))
	for _, email := range res.Emails {
		if r.cfg.Breach == nil {
			res.EmailFindings[email] = false
			continue
		}
		f := r.cfg.Breach.Check(ctx, email)
		res.EmailFindings[email] = f.Breached
		if f.Count > 0 {
			if res.BreachCounts == nil {
				res.BreachCounts = map[string]int{}
			}
			res.BreachCounts[email] = f.Count
		}
		if len(f.Passwords) > 0 {
			if res.PasswordFindings == nil {
				res.PasswordFindings = map[string][]string{}
			}
			res.PasswordFindings[email] = f.Passwords
		}
	}
}

// canonicalLinks rewrites discovered links to the target providers' profile
// URLs. Links no username can be recovered from are left out.
func (r *run) canonicalLinks(links map[string][]string) map[string][]string {
	out := make(map[string][]string, len(links))
	for name, urls := range links {
		target := r.cat.Get(name)
		if target == nil {
			continue
		}
		for _, u := range urls {
			if users := target.ExtractUser(u); len(users) > 0 {
				out[name] = append(out[name], target.BuildURL(users[0]))
			}
		}
	}
	return out
}

func (r *run) expand(res scan.Result, log logrus.FieldLogger) {
	names := make([]string, 0, len(res.OtherLinks))
	for name := range res.OtherLinks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		target := r.cat.Get(name)
		if target == nil {
			continue
		}
		for _, link := range res.OtherLinks[name] {
			if r.state.HasURL(link) {
				continue
			}
			users := target.ExtractUser(link)
			if len(users) == 0 {
				continue
			}
			t := Task{Username: users[0], Provider: name, ViaLink: true}
			if !r.state.MarkTask(t.ID()) {
				continue
			}
			if r.queue.push(t) {
				log.WithFields(logrus.Fields{"new_provider": name, "new_user": t.Username}).Debug("task queued")
			}
		}
	}
}
