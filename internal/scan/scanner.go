package scan

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/Mysteriza/linkook/internal/provider"
)

// PageFetcher is implemented by *Fetcher.
type PageFetcher interface {
	Fetch(ctx context.Context, username string, p *provider.Provider) (*Page, error)
}

// Scanner runs one task end to end: fetch, classify and, for found pages,
// extract.
type Scanner struct {
	fetcher PageFetcher
	catalog Catalog
	log     logrus.FieldLogger
}

func NewScanner(fetcher PageFetcher, cat Catalog, log logrus.FieldLogger) *Scanner {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return &Scanner{fetcher: fetcher, catalog: cat, log: log}
}

func (s *Scanner) Scan(ctx context.Context, username string, p *provider.Provider, viaLink bool) Result {
	res := Result{
		Username:   username,
		Provider:   p.Name,
		ProfileURL: p.BuildURL(username),
		ViaLink:    viaLink,
	}
	log := s.log.WithFields(logrus.Fields{"provider": p.Name, "username": username})

	page, err := s.fetcher.Fetch(ctx, username, p)
	v := Classify(page, err, p)
	if v.Err != nil {
		log.WithError(v.Err).Debug("fetch failed")
		res.Err = v.Err
		return res
	}
	if !v.Found {
		log.WithField("status", page.Status).Debug("not found")
		return res
	}

	res.Found = true
	ex := Extract(page.Body, p, s.catalog)
	res.OtherLinks = ex.Links
	res.OtherUsernames = ex.Usernames
	res.Fields = ex.Fields
	res.Emails = ex.Emails
	log.WithFields(logrus.Fields{
		"links":  len(ex.Links),
		"users":  len(ex.Usernames),
		"emails": len(ex.Emails),
	}).Debug("found")
	return res
}
