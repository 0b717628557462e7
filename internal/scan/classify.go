package scan

import (
	"strings"

	"github.com/Mysteriza/linkook/internal/provider"
)

// genericNotFound is consulted, case-insensitively, for providers that
// configure no keywords at all.
var genericNotFound = []string{
	"404 not found",
	"page not found",
	"user not found",
	"profile not found",
	"account not found",
	"this page doesn't exist",
	"this page does not exist",
	"this account doesn't exist",
	"sorry, this page isn't available",
	"the page you requested could not be found",
	"no such user",
}

type Verdict struct {
	Found bool
	Err   error
}

// Classify decides whether page shows an existing account on p. A nil page
// or a non-nil fetchErr means no response was obtained.
//
// Order matters: a notMatch hit beats any Match hit, and a provider with
// only notMatch keywords reports found when none of them appears.
func Classify(page *Page, fetchErr error, p *provider.Provider) Verdict {
	if fetchErr != nil || page == nil {
		if fetchErr == nil {
			fetchErr = ErrFetchFailed
		}
		return Verdict{Err: fetchErr}
	}
	if page.Status < 200 || page.Status >= 400 {
		return Verdict{}
	}

	if p.Keywords.Empty() {
		body := strings.ToLower(page.Body)
		for _, phrase := range genericNotFound {
			if strings.Contains(body, phrase) {
				return Verdict{}
			}
		}
		return Verdict{Found: true}
	}

	if containsAny(page.Body, p.Keywords.NotMatch) {
		return Verdict{}
	}
	if len(p.Keywords.Match) > 0 {
		return Verdict{Found: containsAny(page.Body, p.Keywords.Match)}
	}
	return Verdict{Found: true}
}

func containsAny(body string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(body, kw) {
			return true
		}
	}
	return false
}
