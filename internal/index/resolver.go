// Package index resolves the ordered municipality list from the fixed
// index page. One fetch per run; row order is canonical for the whole
// pipeline.
package index

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/civicdata/gemeinden-extractor/internal/gemeinde"
)

// Entity pages live under this path prefix; anything else in the table's
// first column (footnote anchors, file links) is skipped.
const entityPathPrefix = "/wiki/"

// Config locates the index page and the host links are resolved against.
type Config struct {
	IndexURL string
	BaseURL  string
}

// Resolver fetches and parses the index page.
type Resolver struct {
	cfg     Config
	fetcher gemeinde.Fetcher
	logger  *zap.Logger
}

// New builds a Resolver.
func New(cfg Config, f gemeinde.Fetcher, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg, fetcher: f, logger: logger}
}

// Resolve returns the (name, url) pairs from the first data table's first
// column, in source order. A page with zero matching links yields an
// empty slice, not an error; a failed fetch or unparsable page yields a
// *gemeinde.IndexError.
func (r *Resolver) Resolve(ctx context.Context) ([]gemeinde.Entry, error) {
	body, err := r.fetcher.Fetch(ctx, r.cfg.IndexURL)
	if err != nil {
		return nil, &gemeinde.IndexError{URL: r.cfg.IndexURL, Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, &gemeinde.IndexError{URL: r.cfg.IndexURL, Err: fmt.Errorf("parse index page: %w", err)}
	}

	table := doc.Find("table.wikitable").First()
	if table.Length() == 0 {
		return nil, &gemeinde.IndexError{URL: r.cfg.IndexURL, Err: fmt.Errorf("index page has no data table")}
	}

	// An existing table with zero matching links is legitimate ("no
	// matches"), distinct from a missing table or a failed fetch.
	entries := []gemeinde.Entry{}
	table.Find("tbody tr td:first-child a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || !strings.HasPrefix(href, entityPathPrefix) {
			return
		}
		entries = append(entries, gemeinde.Entry{
			Name: displayName(a, href),
			URL:  r.cfg.BaseURL + href,
		})
	})

	r.logger.Info("index resolved",
		zap.String("url", r.cfg.IndexURL),
		zap.Int("entries", len(entries)),
	)
	return entries, nil
}

// displayName prefers the link's title attribute and falls back to the
// URL path segment with word separators rewritten to spaces.
func displayName(a *goquery.Selection, href string) string {
	if title, ok := a.Attr("title"); ok && title != "" {
		return title
	}
	segment := strings.TrimPrefix(href, entityPathPrefix)
	if decoded, err := url.PathUnescape(segment); err == nil {
		segment = decoded
	}
	return strings.ReplaceAll(segment, "_", " ")
}
