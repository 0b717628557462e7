package discovery

import (
	"sort"
	"strings"
	"sync"

	"github.com/Mysteriza/linkook/internal/scan"
)

// TaskID is the dedup identity of a task.
type TaskID struct {
	Username string
	Provider string
}

// Task is one (username, provider) unit of work.
type Task struct {
	Username string
	Provider string
	ViaLink  bool
}

func (t Task) ID() TaskID {
	return TaskID{Username: strings.ToLower(t.Username), Provider: t.Provider}
}

// State is the aggregate of one run. All access goes through its methods.
type State struct {
	mu sync.Mutex

	visitedURLs  map[string]struct{}
	visitedTasks map[TaskID]struct{}

	byProvider     map[string][]scan.Result
	foundAccounts  map[string]map[string]struct{}
	foundUsernames map[string]struct{}
	foundEmails    map[string]bool
	foundPasswords map[string][]string
	breachCounts   map[string]int
	processed      int
}

func NewState() *State {
	return &State{
		visitedURLs:    map[string]struct{}{},
		visitedTasks:   map[TaskID]struct{}{},
		byProvider:     map[string][]scan.Result{},
		foundAccounts:  map[string]map[string]struct{}{},
		foundUsernames: map[string]struct{}{},
		foundEmails:    map[string]bool{},
		foundPasswords: map[string][]string{},
		breachCounts:   map[string]int{},
	}
}

// MarkURL records url as visited and reports whether it was new.
func (s *State) MarkURL(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visitedURLs[url]; ok {
		return false
	}
	s.visitedURLs[url] = struct{}{}
	return true
}

func (s *State) HasURL(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.visitedURLs[url]
	return ok
}

// MarkTask records id as enqueued and reports whether it was new.
func (s *State) MarkTask(id TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.visitedTasks[id]; ok {
		return false
	}
	s.visitedTasks[id] = struct{}{}
	return true
}

func (s *State) countProcessed() {
	s.mu.Lock()
	s.processed++
	s.mu.Unlock()
}

// Record merges a found result. linked holds the canonical profile URLs of
// accounts the page links to, keyed by provider.
func (s *State) Record(res scan.Result, linked map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byProvider[res.Provider] = append(s.byProvider[res.Provider], res)
	s.addAccount(res.Provider, res.ProfileURL)
	for name, urls := range linked {
		for _, u := range urls {
			s.addAccount(name, u)
		}
	}
	for _, u := range res.OtherUsernames {
		s.foundUsernames[u] = struct{}{}
	}
	for email, breached := range res.EmailFindings {
		s.foundEmails[email] = breached
	}
	for email, pws := range res.PasswordFindings {
		s.foundPasswords[email] = pws
	}
	for email, n := range res.BreachCounts {
		s.breachCounts[email] = n
	}
}

func (s *State) addAccount(name, url string) {
	set, ok := s.foundAccounts[name]
	if !ok {
		set = map[string]struct{}{}
		s.foundAccounts[name] = set
	}
	set[url] = struct{}{}
}

// Results is what a run hands to its consumers.
type Results struct {
	RunID    string
	Username string

	// ByProvider holds every found result per provider, in settlement order.
	ByProvider map[string][]scan.Result

	FoundAccounts  map[string][]string
	FoundUsernames []string
	FoundEmails    map[string]bool
	FoundPasswords map[string][]string
	BreachCounts   map[string]int

	ProvidersScanned int
	TasksProcessed   int
}

func (s *State) snapshot() *Results {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &Results{
		ByProvider:     make(map[string][]scan.Result, len(s.byProvider)),
		FoundAccounts:  make(map[string][]string, len(s.foundAccounts)),
		FoundEmails:    make(map[string]bool, len(s.foundEmails)),
		FoundPasswords: make(map[string][]string, len(s.foundPasswords)),
		BreachCounts:   make(map[string]int, len(s.breachCounts)),
		TasksProcessed: s.processed,
	}
	for k, v := range s.byProvider {
		r.ByProvider[k] = append([]scan.Result(nil), v...)
	}
	for k, set := range s.foundAccounts {
		r.FoundAccounts[k] = sortedKeys(set)
	}
	r.FoundUsernames = sortedKeys(s.foundUsernames)
	for k, v := range s.foundEmails {
		r.FoundEmails[k] = v
	}
	for k, v := range s.foundPasswords {
		r.FoundPasswords[k] = append([]string(nil), v...)
	}
	for k, v := range s.breachCounts {
		r.BreachCounts[k] = v
	}
	return r
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
