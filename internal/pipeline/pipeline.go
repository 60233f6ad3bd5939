// Package pipeline drives concurrent per-entity extraction over a
// bounded worker pool: index fan-out, per-job fault isolation and
// timeout conversion to fallback records, ordered fan-in.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/civicdata/gemeinden-extractor/internal/gemeinde"
	"github.com/civicdata/gemeinden-extractor/internal/metrics"
)

// Config controls pool size and per-job limits.
type Config struct {
	Workers          int
	JobTimeout       time.Duration
	DefaultCharLimit int
}

// Options are the caller-supplied knobs for one run. Limit zero means
// process the full index; CharLimit zero falls back to the configured
// default character budget.
type Options struct {
	Limit     int
	CharLimit int
}

// Pipeline is the extraction orchestrator.
type Pipeline struct {
	resolver gemeinde.IndexResolver
	parser   gemeinde.PageParser
	clock    gemeinde.Clock
	ids      gemeinde.IDGenerator
	metrics  *metrics.Metrics
	cfg      Config
	logger   *zap.Logger

	mu   sync.Mutex
	last Snapshot
}

// Snapshot summarizes the most recent run for the status surface. The
// counters follow the metrics taxonomy: Succeeded counts fully populated
// records, Partial records with skipped fields, Fallbacks identity-only
// records.
type Snapshot struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Dispatched int       `json:"dispatched"`
	Succeeded  int       `json:"succeeded"`
	Partial    int       `json:"partial"`
	Fallbacks  int       `json:"fallbacks"`
}

// New constructs a Pipeline.
func New(
	resolver gemeinde.IndexResolver,
	parser gemeinde.PageParser,
	clock gemeinde.Clock,
	ids gemeinde.IDGenerator,
	m *metrics.Metrics,
	cfg Config,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 60 * time.Second
	}
	if cfg.DefaultCharLimit <= 0 {
		cfg.DefaultCharLimit = 10000
	}
	return &Pipeline{
		resolver: resolver,
		parser:   parser,
		clock:    clock,
		ids:      ids,
		metrics:  m,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run resolves the index, fans jobs out to the worker pool and returns
// one record per dispatched job. Output order matches index order:
// every worker writes into its job's slot. A canceled context abandons
// the run and discards collected records.
func (p *Pipeline) Run(ctx context.Context, opts Options) ([]*gemeinde.Record, error) {
	runID := p.newRunID()
	started := p.clock.Now()
	logger := p.logger.With(zap.String("run_id", runID))

	entries, err := p.resolver.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	if opts.Limit > 0 && opts.Limit < len(entries) {
		entries = entries[:opts.Limit]
	}
	charLimit := opts.CharLimit
	if charLimit <= 0 {
		charLimit = p.cfg.DefaultCharLimit
	}

	logger.Info("extraction run started",
		zap.Int("entries", len(entries)),
		zap.Int("workers", p.cfg.Workers),
		zap.Int("char_limit", charLimit),
	)

	jobs := make(chan gemeinde.Job)
	results := make([]*gemeinde.Record, len(entries))

	var partials atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < p.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.metrics != nil {
				p.metrics.WorkerStarted()
				defer p.metrics.WorkerStopped()
			}
			for job := range jobs {
				rec, partial := p.processJob(ctx, logger, job)
				results[job.Index] = rec
				if partial {
					partials.Add(1)
				}
			}
		}()
	}

dispatch:
	for i, entry := range entries {
		job := gemeinde.Job{Index: i, Name: entry.Name, URL: entry.URL, CharLimit: charLimit}
		select {
		case jobs <- job:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		logger.Warn("extraction run aborted", zap.Error(err))
		return nil, err
	}

	snap := Snapshot{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: p.clock.Now(),
		Dispatched: len(entries),
		Partial:    int(partials.Load()),
	}
	for _, rec := range results {
		if rec.Fallback {
			snap.Fallbacks++
		}
	}
	snap.Succeeded = snap.Dispatched - snap.Partial - snap.Fallbacks
	p.mu.Lock()
	p.last = snap
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RunFinished(snap.FinishedAt.Sub(snap.StartedAt))
	}
	logger.Info("extraction run finished",
		zap.Int("succeeded", snap.Succeeded),
		zap.Int("partial", snap.Partial),
		zap.Int("fallbacks", snap.Fallbacks),
		zap.Duration("elapsed", snap.FinishedAt.Sub(snap.StartedAt)),
	)
	return results, nil
}

// processJob runs one job under its timeout. Any panic or timeout
// degrades to a fallback record carrying only identity fields; a record
// is always produced. The second return reports a partial result (some
// fields skipped).
func (p *Pipeline) processJob(ctx context.Context, logger *zap.Logger, job gemeinde.Job) (rec *gemeinde.Record, partial bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("job panicked",
				zap.String("name", job.Name),
				zap.String("url", job.URL),
				zap.Any("panic", r),
			)
			rec, partial = p.fallback(job), false
		}
	}()

	jobCtx, cancel := context.WithTimeout(ctx, p.cfg.JobTimeout)
	defer cancel()

	start := p.clock.Now()
	parsed, reasons := p.parser.Parse(jobCtx, job)
	elapsed := p.clock.Now().Sub(start)

	if jobCtx.Err() != nil && ctx.Err() == nil {
		logger.Warn("job timed out",
			zap.String("name", job.Name),
			zap.String("url", job.URL),
			zap.Duration("timeout", p.cfg.JobTimeout),
		)
		return p.fallback(job), false
	}

	parsed.FetchedAt = start
	if len(reasons) > 0 {
		logger.Debug("job finished with skipped fields",
			zap.String("name", job.Name),
			zap.Strings("skipped", reasons),
		)
	}
	if p.metrics != nil {
		p.metrics.JobFinished(len(reasons) == 0, elapsed)
	}
	return parsed, len(reasons) > 0
}

func (p *Pipeline) fallback(job gemeinde.Job) *gemeinde.Record {
	rec := gemeinde.NewRecord(job.Name, job.URL)
	rec.Fallback = true
	rec.FetchedAt = p.clock.Now()
	if p.metrics != nil {
		p.metrics.JobFallback()
	}
	return rec
}

// LastRun returns the snapshot of the most recent completed run.
func (p *Pipeline) LastRun() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func (p *Pipeline) newRunID() string {
	if p.ids == nil {
		return "run"
	}
	id, err := p.ids.NewID()
	if err != nil {
		return "run"
	}
	return id
}
