// Package parser turns one entity page into a partially filled record.
// Nothing here fails outward: a malformed page degrades to fewer
// populated fields, reported as skipped-field reasons, so one bad page
// can never abort the batch.
package parser

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/civicdata/gemeinden-extractor/internal/gemeinde"
	"github.com/civicdata/gemeinden-extractor/internal/normalize"
)

// Parser extracts record fields from a single page.
type Parser struct {
	fetcher gemeinde.Fetcher
	logger  *zap.Logger
}

// New builds a Parser.
func New(f gemeinde.Fetcher, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{fetcher: f, logger: logger}
}

// Parse fetches the job's page and populates a record from its infobox,
// coordinate markup and body text. The returned reasons list names each
// step or field that was skipped; the record always carries at least the
// job's identity fields.
func (p *Parser) Parse(ctx context.Context, job gemeinde.Job) (*gemeinde.Record, []string) {
	rec := gemeinde.NewRecord(job.Name, job.URL)
	var reasons []string

	body, err := p.fetcher.Fetch(ctx, job.URL)
	if err != nil {
		p.logger.Warn("entity page fetch failed",
			zap.String("name", job.Name),
			zap.String("url", job.URL),
			zap.Error(err),
		)
		return rec, append(reasons, fmt.Sprintf("fetch: %v", err))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return rec, append(reasons, fmt.Sprintf("parse html: %v", err))
	}

	rows := infoboxRows(doc)
	if len(rows) == 0 {
		reasons = append(reasons, "infobox: not found")
	} else {
		reasons = append(reasons, prefixAll("normalize: ", normalize.Apply(rows, rec))...)
	}

	p.extractCoordinates(doc, rec)
	p.extractBodyText(doc, rec, job.CharLimit)

	return rec, reasons
}

// infoboxRows returns the label/value rows of the page's structured box:
// the first table whose class names an infobox, else the first table
// with at least two columns. Tolerates pages where the box is named
// differently or is not the first table.
func infoboxRows(doc *goquery.Document) []normalize.Row {
	box := doc.Find(`table[class*="infobox"]`).First()
	if box.Length() == 0 {
		doc.Find("table").EachWithBreak(func(_ int, t *goquery.Selection) bool {
			if t.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
				return tr.Find("th, td").Length() >= 2
			}).Length() > 0 {
				box = t
				return false
			}
			return true
		})
	}
	if box.Length() == 0 {
		return nil
	}

	var rows []normalize.Row
	box.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		label := tr.Find("th").First()
		value := tr.Find("td").First()
		if label.Length() == 0 || value.Length() == 0 {
			return
		}
		rows = append(rows, normalize.Row{
			Label: normalize.CleanValue(label.Text()),
			Value: normalize.CleanValue(value.Text()),
		})
	})
	return rows
}

// extractCoordinates pulls the coordinate display string from the page's
// coordinate markup and the companion lookup link. A record whose
// infobox already yielded a coordinate string keeps it.
func (p *Parser) extractCoordinates(doc *goquery.Document, rec *gemeinde.Record) {
	if rec.Coordinates == nil {
		if text := normalize.CleanValue(doc.Find("#coordinates").First().Text()); text != "" {
			rec.Coordinates = &text
		}
	}

	link := doc.Find(`table[class*="infobox"] a[href*="geohack"]`).First()
	if link.Length() == 0 {
		// No direct link inside the box: fall back to the first
		// coordinate-lookup link anywhere on the page.
		link = doc.Find(`a[href*="geohack"]`).First()
	}
	if href, ok := link.Attr("href"); ok && href != "" {
		if strings.HasPrefix(href, "//") {
			href = "https:" + href
		}
		rec.CoordinatesURL = &href
	}
}

// extractBodyText takes the visible text of the main content container,
// minus structured-box and navigation-box sub-elements, truncated to the
// job's character budget. The cut is a hard rune cut, not word-aware.
func (p *Parser) extractBodyText(doc *goquery.Document, rec *gemeinde.Record, charLimit int) {
	container := doc.Find("#mw-content-text").First()
	if container.Length() == 0 {
		container = doc.Find("body").First()
	}
	if container.Length() == 0 {
		return
	}

	container.Find(`table[class*="infobox"], [class*="navbox"], [class*="metadata"]`).Remove()

	text := strings.Join(strings.Fields(container.Text()), " ")
	if text == "" {
		return
	}
	text = normalize.Truncate(text, charLimit)
	rec.BodyText = &text
}

func prefixAll(prefix string, items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		out = append(out, prefix+s)
	}
	return out
}
