package index

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicdata/gemeinden-extractor/internal/gemeinde"
)

type fakeFetcher struct {
	body string
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (string, error) {
	return f.body, f.err
}

const indexHTML = `<html><body>
<table class="wikitable sortable">
<tbody>
<tr><th>Name</th><th>Kreis</th></tr>
<tr><td><a href="/wiki/Aachen" title="Aachen">Aachen</a></td><td>Städteregion Aachen</td></tr>
<tr><td><a href="/wiki/Bad_Honnef">Bad Honnef</a></td><td>Rhein-Sieg-Kreis</td></tr>
<tr><td><a href="#cite_note-1">note</a></td><td>skipped</td></tr>
<tr><td><a href="/wiki/K%C3%B6ln" title="Köln">Köln</a></td><td>kreisfrei</td></tr>
</tbody>
</table>
<table class="wikitable"><tbody>
<tr><td><a href="/wiki/Ignored" title="Ignored">second table</a></td></tr>
</tbody></table>
</body></html>`

func TestResolvePreservesSourceOrder(t *testing.T) {
	t.Parallel()

	r := New(Config{IndexURL: "https://example.org/liste", BaseURL: "https://de.wikipedia.org"},
		&fakeFetcher{body: indexHTML}, zap.NewNop())

	entries, err := r.Resolve(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "Aachen", entries[0].Name)
	assert.Equal(t, "https://de.wikipedia.org/wiki/Aachen", entries[0].URL)

	// No title attribute: name derives from the path segment with
	// underscores rewritten to spaces.
	assert.Equal(t, "Bad Honnef", entries[1].Name)
	assert.Equal(t, "https://de.wikipedia.org/wiki/Bad_Honnef", entries[1].URL)

	assert.Equal(t, "Köln", entries[2].Name)
}

func TestResolveZeroMatchesYieldsEmpty(t *testing.T) {
	t.Parallel()

	html := `<html><body><table class="wikitable"><tbody>
<tr><td><a href="#only-anchors">x</a></td></tr>
</tbody></table></body></html>`
	r := New(Config{IndexURL: "https://example.org/liste", BaseURL: "https://de.wikipedia.org"},
		&fakeFetcher{body: html}, zap.NewNop())

	entries, err := r.Resolve(context.Background())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestResolveMissingTableIsIndexError(t *testing.T) {
	t.Parallel()

	r := New(Config{IndexURL: "https://example.org/liste", BaseURL: "https://de.wikipedia.org"},
		&fakeFetcher{body: "<html><body><p>kein Inhalt</p></body></html>"}, zap.NewNop())

	_, err := r.Resolve(context.Background())
	var idxErr *gemeinde.IndexError
	require.ErrorAs(t, err, &idxErr)
}

func TestResolveFetchFailureIsIndexError(t *testing.T) {
	t.Parallel()

	cause := &gemeinde.FetchError{URL: "https://example.org/liste", Attempts: 3, Err: errors.New("boom")}
	r := New(Config{IndexURL: "https://example.org/liste", BaseURL: "https://de.wikipedia.org"},
		&fakeFetcher{err: cause}, zap.NewNop())

	_, err := r.Resolve(context.Background())

	var idxErr *gemeinde.IndexError
	require.ErrorAs(t, err, &idxErr)
	assert.Equal(t, "https://example.org/liste", idxErr.URL)

	// The fetch cause stays reachable through the chain.
	var fetchErr *gemeinde.FetchError
	assert.ErrorAs(t, err, &fetchErr)
}
