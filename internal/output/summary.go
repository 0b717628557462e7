package output

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/Mysteriza/linkook/internal/discovery"
)

// WriteSummary renders the aggregate of a run as tables.
func WriteSummary(w io.Writer, r *discovery.Results) error {
	accounts := 0
	for _, urls := range r.FoundAccounts {
		accounts += len(urls)
	}
	fmt.Fprintf(w, "\nSummary for %s: %d accounts on %d providers (%d providers known, %d pages checked)\n",
		r.Username, accounts, len(r.FoundAccounts), r.ProvidersScanned, r.TasksProcessed)

	if len(r.FoundAccounts) > 0 {
		t := tablewriter.NewTable(w)
		t.Header("Provider", "Account")
		for _, name := range sortedKeys(r.FoundAccounts) {
			for _, u := range r.FoundAccounts[name] {
				if err := t.Append([]string{name, u}); err != nil {
					return err
				}
			}
		}
		if err := t.Render(); err != nil {
			return err
		}
	}

	if len(r.FoundUsernames) > 0 {
		fmt.Fprintf(w, "Usernames: %s\n", strings.Join(r.FoundUsernames, ", "))
	}

	if len(r.FoundEmails) > 0 {
		t := tablewriter.NewTable(w)
		t.Header("Email", "Breached", "Breaches", "Passwords")
		for _, email := range sortedKeys(r.FoundEmails) {
			count := ""
			if n, ok := r.BreachCounts[email]; ok {
				count = strconv.Itoa(n)
			}
			row := []string{email, strconv.FormatBool(r.FoundEmails[email]), count, strings.Join(r.FoundPasswords[email], ", ")}
			if err := t.Append(row); err != nil {
				return err
			}
		}
		if err := t.Render(); err != nil {
			return err
		}
	}

	var fields [][]string
	for _, name := range sortedKeys(r.ByProvider) {
		for _, res := range r.ByProvider[name] {
			for _, key := range sortedKeys(res.Fields) {
				fields = append(fields, []string{name, res.Username, key, res.Fields[key]})
			}
		}
	}
	if len(fields) > 0 {
		t := tablewriter.NewTable(w)
		t.Header("Provider", "Username", "Field", "Value")
		for _, row := range fields {
			if err := t.Append(row); err != nil {
				return err
			}
		}
		if err := t.Render(); err != nil {
			return err
		}
	}
	return nil
}

// WriteFile stores content as <dir>/<username>.txt and returns the path.
func WriteFile(dir, username, content string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create results dir %q", dir)
	}
	path := filepath.Join(dir, safeName(username)+".txt")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", errors.Wrapf(err, "write %q", path)
	}
	return path, nil
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, s)
}
