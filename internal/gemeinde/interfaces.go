package gemeinde

import (
	"context"
	"time"
)

// Fetcher retrieves a page body over HTTP. Implementations retry
// transient failures internally and return *FetchError on exhaustion.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// IndexResolver produces the ordered entity list from the index page.
type IndexResolver interface {
	Resolve(ctx context.Context) ([]Entry, error)
}

// PageParser turns one entity page into a partially filled record. It
// never fails outward: internal failures degrade to fewer populated
// fields, reported as skipped-field reasons alongside the record.
type PageParser interface {
	Parse(ctx context.Context, job Job) (*Record, []string)
}

// Summarizer generates the post-hoc summary for one record. A nil or
// empty result is tolerated by all consumers.
type Summarizer interface {
	Summarize(ctx context.Context, record *Record) (string, error)
}

// RecordStore upserts records into an external store keyed by name.
type RecordStore interface {
	UpsertRecords(ctx context.Context, runID string, records []*Record) error
	Close()
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
