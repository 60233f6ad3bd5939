// Package summarize implements the summarization collaborator: an HTTP
// client for a messages-style text-generation API that writes exactly
// one field (the summary) back per record. A missing API key disables
// the client; consumers must tolerate nil summaries.
package summarize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/civicdata/gemeinden-extractor/internal/gemeinde"
	"github.com/civicdata/gemeinden-extractor/internal/normalize"
)

const (
	apiVersion = "2023-06-01"

	// Very long body texts are clipped before prompting so one record
	// cannot blow the request budget.
	promptTextClip = 5000
)

const promptTemplate = `Du erhältst strukturierte JSON-Daten inklusive gekürztem Volltext zu einer nordrhein-westfälischen Kommune.

Erstelle eine prägnante Zusammenfassung auf Deutsch:
- Maximal 120 Wörter
- Erwähne die wichtigsten Fakten (Einwohnerzahl, Lage, Besonderheiten)
- Sachlicher, informativer Ton
- Beginne mit dem Namen der Kommune

Daten:
%s

Zusammenfassung:`

// Config controls the client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxTokens  int
	MaxRetries int
	Workers    int
	Timeout    time.Duration
}

// Client talks to the text-generation API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// New builds a Client. The returned client is disabled (all calls are
// no-ops returning empty summaries) when no API key is configured.
func New(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 512
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Enabled reports whether the client has credentials to work with.
func (c *Client) Enabled() bool { return c.cfg.APIKey != "" }

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
}

// Summarize generates a summary for one record, retrying rate limits
// and server errors with exponential backoff. Disabled clients and
// nameless records yield an empty summary without error.
func (c *Client) Summarize(ctx context.Context, rec *gemeinde.Record) (string, error) {
	if !c.Enabled() || rec == nil || rec.Name == "" {
		return "", nil
	}

	prompt, err := c.buildPrompt(rec)
	if err != nil {
		return "", fmt.Errorf("build prompt for %s: %w", rec.Name, err)
	}

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, retryable, err := c.callOnce(ctx, prompt)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			break
		}
		wait := time.Duration(1<<attempt) * time.Second
		c.logger.Warn("summary attempt failed",
			zap.String("name", rec.Name),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}
	return "", fmt.Errorf("summarize %s: %w", rec.Name, lastErr)
}

func (c *Client) buildPrompt(rec *gemeinde.Record) (string, error) {
	flat := rec.Flat()
	filtered := make(map[string]any, len(flat))
	for k, v := range flat {
		if v == nil {
			continue
		}
		if k == "body_text" {
			if s, ok := v.(string); ok {
				v = normalize.Truncate(s, promptTextClip)
			}
		}
		filtered[k] = v
	}
	data, err := json.MarshalIndent(filtered, "", "  ")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(promptTemplate, data), nil
}

// callOnce performs one API round trip. The second return value reports
// whether the failure is worth retrying (rate limit or server error).
func (c *Client) callOnce(ctx context.Context, prompt string) (string, bool, error) {
	payload, err := json.Marshal(messagesRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("post messages: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", true, fmt.Errorf("api status %d", resp.StatusCode)
	default:
		return "", false, fmt.Errorf("api status %d", resp.StatusCode)
	}

	var decoded messagesResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", false, fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Content) == 0 {
		return "", false, fmt.Errorf("empty completion")
	}
	text := strings.TrimSpace(decoded.Content[0].Text)
	if text == "" {
		return "", false, fmt.Errorf("empty completion")
	}
	return text, false, nil
}

// SummarizeAll generates summaries for every record over a small bounded
// worker pool and attaches each one via SetSummary. Per-record failures
// are logged and leave that record's summary nil; they never abort the
// batch.
func (c *Client) SummarizeAll(ctx context.Context, records []*gemeinde.Record) {
	if !c.Enabled() || len(records) == 0 {
		return
	}

	jobs := make(chan *gemeinde.Record)
	var wg sync.WaitGroup
	for w := 0; w < c.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				text, err := c.Summarize(ctx, rec)
				if err != nil {
					c.logger.Warn("summary failed", zap.String("name", rec.Name), zap.Error(err))
					continue
				}
				rec.SetSummary(text)
			}
		}()
	}

	for _, rec := range records {
		select {
		case jobs <- rec:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	close(jobs)
	wg.Wait()
}
