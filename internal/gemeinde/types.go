// Package gemeinde defines the core types and interfaces for the
// municipality extraction pipeline: entity records, extraction jobs,
// the error taxonomy, and the contracts between subsystems.
package gemeinde

import "time"

// Entry is one (display name, page URL) pair taken from the index page.
// Order of entries is the canonical order for the whole pipeline.
type Entry struct {
	Name string
	URL  string
}

// Job is the unit of work handed to a single pipeline worker. It is owned
// exclusively by the worker processing it and discarded after the worker
// has produced a record.
type Job struct {
	Index     int
	Name      string
	URL       string
	CharLimit int
}

// Record holds the extracted attributes for one municipality. Identity
// fields (Name, SourceURL) are set when the job is dispatched and never
// change. Every other attribute is optional: nil means the source page
// did not carry the field or parsing could not produce a typed value.
type Record struct {
	Name      string
	SourceURL string

	Population     *int
	PopulationDate *string
	AreaKM2        *float64
	ElevationM     *int

	MunicipalityKey *string
	District        *string
	Region          *string
	State           *string
	PostalCode      *string
	DialingCode     *string
	PlateCode       *string

	Coordinates    *string
	CoordinatesURL *string
	Website        *string
	Mayor          *string

	BodyText *string

	// Summary is written exactly once, after extraction, by the
	// summarization collaborator. It never originates from the page.
	Summary *string

	FetchedAt time.Time
	Fallback  bool
}

// NewRecord creates an empty record carrying only identity fields.
func NewRecord(name, sourceURL string) *Record {
	return &Record{Name: name, SourceURL: sourceURL}
}

// SetSummary attaches the externally generated summary text. An empty
// summary is ignored so a failed collaborator call leaves the field nil.
func (r *Record) SetSummary(text string) {
	if text == "" {
		return
	}
	r.Summary = &text
}

// FieldNames lists every flat attribute key in export order. The CSV
// header, the stats artifact and the store columns all derive from it.
var FieldNames = []string{
	"name",
	"source_url",
	"population",
	"population_date",
	"area_km2",
	"elevation_m",
	"municipality_key",
	"district",
	"region",
	"state",
	"postal_code",
	"dialing_code",
	"plate_code",
	"coordinates",
	"coordinates_url",
	"website",
	"mayor",
	"body_text",
	"summary",
}

// Flat returns the record as a key/value map covering every declared
// attribute. Absent attributes map to nil, never to sentinel strings.
func (r *Record) Flat() map[string]any {
	out := map[string]any{
		"name":             r.Name,
		"source_url":       r.SourceURL,
		"population":       nilOr(r.Population),
		"population_date":  nilOr(r.PopulationDate),
		"area_km2":         nilOr(r.AreaKM2),
		"elevation_m":      nilOr(r.ElevationM),
		"municipality_key": nilOr(r.MunicipalityKey),
		"district":         nilOr(r.District),
		"region":           nilOr(r.Region),
		"state":            nilOr(r.State),
		"postal_code":      nilOr(r.PostalCode),
		"dialing_code":     nilOr(r.DialingCode),
		"plate_code":       nilOr(r.PlateCode),
		"coordinates":      nilOr(r.Coordinates),
		"coordinates_url":  nilOr(r.CoordinatesURL),
		"website":          nilOr(r.Website),
		"mayor":            nilOr(r.Mayor),
		"body_text":        nilOr(r.BodyText),
		"summary":          nilOr(r.Summary),
	}
	return out
}

func nilOr[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
