package summarize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicdata/gemeinden-extractor/internal/gemeinde"
)

func completionBody(text string) []byte {
	body, _ := json.Marshal(map[string]any{
		"content": []map[string]string{{"type": "text", "text": text}},
	})
	return body
}

func testClient(baseURL string) *Client {
	return New(Config{
		BaseURL:    baseURL,
		APIKey:     "test-key",
		Model:      "test-model",
		MaxRetries: 3,
		Workers:    2,
		Timeout:    5 * time.Second,
	}, zap.NewNop())
}

func TestSummarizeReturnsCompletion(t *testing.T) {
	t.Parallel()

	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, apiVersion, r.Header.Get("anthropic-version"))

		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		gotPrompt = req.Messages[0].Content

		w.Write(completionBody("  Dortmund ist eine Großstadt im Ruhrgebiet. "))
	}))
	defer srv.Close()

	rec := gemeinde.NewRecord("Dortmund", "https://de.wikipedia.org/wiki/Dortmund")
	pop := 587696
	rec.Population = &pop

	text, err := testClient(srv.URL).Summarize(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "Dortmund ist eine Großstadt im Ruhrgebiet.", text)
	assert.Contains(t, gotPrompt, "Dortmund")
	assert.Contains(t, gotPrompt, "587696")
	assert.NotContains(t, gotPrompt, "mayor", "nil fields stay out of the prompt")
}

func TestSummarizeRetriesRateLimit(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write(completionBody("Bonn liegt am Rhein."))
	}))
	defer srv.Close()

	rec := gemeinde.NewRecord("Bonn", "https://de.wikipedia.org/wiki/Bonn")
	text, err := testClient(srv.URL).Summarize(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "Bonn liegt am Rhein.", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSummarizeDoesNotRetryClientError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	rec := gemeinde.NewRecord("Essen", "https://de.wikipedia.org/wiki/Essen")
	_, err := testClient(srv.URL).Summarize(context.Background(), rec)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSummarizeDisabledClientIsNoOp(t *testing.T) {
	t.Parallel()

	c := New(Config{BaseURL: "http://127.0.0.1:1"}, zap.NewNop())
	assert.False(t, c.Enabled())

	rec := gemeinde.NewRecord("Köln", "https://de.wikipedia.org/wiki/Köln")
	text, err := c.Summarize(context.Background(), rec)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestSummarizeAllAttachesSummaries(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionBody("Eine Kommune in Nordrhein-Westfalen."))
	}))
	defer srv.Close()

	records := []*gemeinde.Record{
		gemeinde.NewRecord("Aachen", "https://de.wikipedia.org/wiki/Aachen"),
		gemeinde.NewRecord("Bochum", "https://de.wikipedia.org/wiki/Bochum"),
		gemeinde.NewRecord("Duisburg", "https://de.wikipedia.org/wiki/Duisburg"),
	}

	testClient(srv.URL).SummarizeAll(context.Background(), records)

	for _, rec := range records {
		require.NotNil(t, rec.Summary, rec.Name)
		assert.Equal(t, "Eine Kommune in Nordrhein-Westfalen.", *rec.Summary)
	}
}

func TestSummarizeAllToleratesFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req messagesRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if len(req.Messages) == 1 && strings.Contains(req.Messages[0].Content, "Wuppertal") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write(completionBody("Zusammenfassung."))
	}))
	defer srv.Close()

	records := []*gemeinde.Record{
		gemeinde.NewRecord("Wuppertal", "https://de.wikipedia.org/wiki/Wuppertal"),
		gemeinde.NewRecord("Hagen", "https://de.wikipedia.org/wiki/Hagen"),
	}

	testClient(srv.URL).SummarizeAll(context.Background(), records)

	assert.Nil(t, records[0].Summary)
	require.NotNil(t, records[1].Summary)
}
