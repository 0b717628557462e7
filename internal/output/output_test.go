package output

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mysteriza/linkook/internal/discovery"
	"github.com/Mysteriza/linkook/internal/scan"
)

func foundResult() scan.Result {
	return scan.Result{
		Username:   "alice",
		Provider:   "GitHub",
		ProfileURL: "https://github.com/alice",
		ViaLink:    true,
		Found:      true,
		OtherLinks: map[string][]string{
			"Twitter": {"https://x.com/alice"},
			"GitLab":  {"https://gitlab.com/alice"},
		},
		Fields:           map[string]string{"name": "Alice", "bio": "hi"},
		Emails:           []string{"alice@example.com"},
		EmailFindings:    map[string]bool{"alice@example.com": true},
		BreachCounts:     map[string]int{"alice@example.com": 4},
		PasswordFindings: map[string][]string{"alice@example.com": {"hunter2"}},
	}
}

func TestPrinterFound(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	var buf strings.Builder
	p := NewPrinter(&out, Options{NoColor: true, Breach: true}, &buf)
	p.Update(foundResult())

	want := strings.Join([]string{
		"[+] GitHub: https://github.com/alice (linked)",
		"    -> GitLab: https://gitlab.com/alice",
		"    -> Twitter: https://x.com/alice",
		"    :: bio: hi",
		"    :: name: Alice",
		"    @ Email: alice@example.com [Breached in 4]",
		"        ! Password: hunter2",
	}, "\n") + "\n"
	assert.Equal(t, want, out.String())
	assert.Equal(t, want, buf.String())
}

func TestPrinterConcise(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p := NewPrinter(&out, Options{NoColor: true, Concise: true}, nil)
	res := foundResult()
	res.ViaLink = false
	p.Update(res)
	assert.Equal(t, "[+] GitHub: https://github.com/alice\n", out.String())
}

func TestPrinterEmailWithoutBreach(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p := NewPrinter(&out, Options{NoColor: true}, nil)
	p.Update(scan.Result{Provider: "HN", ProfileURL: "https://hn/alice", Found: true, Emails: []string{"a@b.co"}})
	assert.Equal(t, "[+] HN: https://hn/alice\n    @ Email: a@b.co\n", out.String())
}

func TestPrinterNotFoundAndErrors(t *testing.T) {
	t.Parallel()

	miss := scan.Result{Provider: "Reddit"}
	failed := scan.Result{Provider: "Medium", Err: errors.New("fetch failed: timeout")}

	var quiet bytes.Buffer
	p := NewPrinter(&quiet, Options{NoColor: true}, nil)
	p.Update(miss)
	p.Update(failed)
	assert.Empty(t, quiet.String())

	var loud bytes.Buffer
	p = NewPrinter(&loud, Options{NoColor: true, PrintAll: true}, nil)
	p.Update(miss)
	p.Update(failed)
	assert.Equal(t, "[-] Reddit: Not Found!\n[!] Medium: ERROR: fetch failed: timeout\n", loud.String())
}

func TestPrinterStart(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	var buf strings.Builder
	NewPrinter(&out, Options{NoColor: true}, &buf).Start("alice")
	assert.Equal(t, "[*] Searching linked accounts of alice\n", out.String())
	assert.Equal(t, "Linked accounts of alice\n", buf.String())
}

func TestWriteSummary(t *testing.T) {
	t.Parallel()

	res := foundResult()
	r := &discovery.Results{
		Username:         "alice",
		ByProvider:       map[string][]scan.Result{"GitHub": {res}},
		FoundAccounts:    map[string][]string{"GitHub": {"https://github.com/alice"}, "Twitter": {"https://x.com/alice"}},
		FoundUsernames:   []string{"alice", "alice2"},
		FoundEmails:      map[string]bool{"alice@example.com": true},
		FoundPasswords:   map[string][]string{"alice@example.com": {"hunter2"}},
		BreachCounts:     map[string]int{"alice@example.com": 4},
		ProvidersScanned: 16,
		TasksProcessed:   11,
	}

	var out bytes.Buffer
	require.NoError(t, WriteSummary(&out, r))
	s := out.String()

	assert.Contains(t, s, "Summary for alice: 2 accounts on 2 providers (16 providers known, 11 pages checked)")
	assert.Contains(t, s, "https://x.com/alice")
	assert.Contains(t, s, "Usernames: alice, alice2")
	assert.Contains(t, s, "hunter2")
	assert.Contains(t, s, "Alice")
}

func TestWriteSummaryEmpty(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, WriteSummary(&out, &discovery.Results{Username: "ghost"}))
	assert.Equal(t, "\nSummary for ghost: 0 accounts on 0 providers (0 providers known, 0 pages checked)\n", out.String())
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "results")
	path, err := WriteFile(dir, "a/b", "content\n")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a_b.txt"), path)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "content\n", string(raw))
}
