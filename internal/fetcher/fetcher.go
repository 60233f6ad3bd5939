// Package fetcher implements the resilient HTTP fetcher used by every
// component above it. It is the pipeline's only I/O primitive: a single
// GET with bounded retries and exponential backoff, built on a shared
// Colly collector so all workers reuse one pooled transport.
package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/civicdata/gemeinden-extractor/internal/gemeinde"
	"github.com/civicdata/gemeinden-extractor/internal/metrics"
	"github.com/civicdata/gemeinden-extractor/internal/policy/ratelimit"
)

// Config controls collector behavior. RPS of zero disables throttling.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Retry     RetryPolicy
	RPS       float64
	Burst     int
}

// Fetcher issues retried GETs through Colly. Safe for concurrent use:
// each attempt clones the base collector, the transport is shared.
type Fetcher struct {
	cfg           Config
	transport     http.RoundTripper
	baseCollector *colly.Collector
	limiter       *ratelimit.Limiter
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// New builds a Fetcher. The metrics handle may be nil.
func New(cfg Config, m *metrics.Metrics, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = DefaultRetryPolicy()
	}

	c := colly.NewCollector(colly.Async(false))
	transport := newHTTPTransport()
	c.WithTransport(transport)
	c.IgnoreRobotsTxt = true

	return &Fetcher{
		cfg:           cfg,
		transport:     transport,
		baseCollector: c,
		limiter:       ratelimit.New(ratelimit.Config{RPS: cfg.RPS, Burst: cfg.Burst}),
		metrics:       m,
		logger:        logger,
	}
}

// Fetch retrieves the body at url, retrying per the policy. On
// exhaustion it returns a *gemeinde.FetchError carrying the last cause;
// it never returns a partial body.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt < f.cfg.Retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			lastErr = err
			break
		}
		if err := f.limiter.Wait(ctx, url); err != nil {
			lastErr = err
			break
		}
		attempts++
		body, err := f.fetchOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !f.cfg.Retry.ShouldRetry(err, attempt+1) {
			break
		}
		if f.metrics != nil {
			f.metrics.FetchRetried()
		}
		wait := f.cfg.Retry.Backoff(attempt)
		f.logger.Debug("fetch attempt failed, backing off",
			zap.String("url", url),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
		case <-time.After(wait):
			continue
		}
		break
	}
	return "", &gemeinde.FetchError{URL: url, Attempts: attempts, Err: lastErr}
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (string, error) {
	var (
		body     []byte
		fetchErr error
	)

	collector := f.baseCollector.Clone()
	collector.WithTransport(f.transport)
	collector.IgnoreRobotsTxt = true
	// Retries re-visit the same URL; never let the collector dedupe them.
	collector.AllowURLRevisit = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("visit %s: %w", url, err)
		}
		if fetchErr != nil {
			return "", fmt.Errorf("get %s: %w", url, fetchErr)
		}
		return string(body), nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
