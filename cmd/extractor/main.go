// Package main wires together the extractor binary.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civicdata/gemeinden-extractor/internal/api"
	"github.com/civicdata/gemeinden-extractor/internal/clock/system"
	"github.com/civicdata/gemeinden-extractor/internal/config"
	"github.com/civicdata/gemeinden-extractor/internal/export"
	"github.com/civicdata/gemeinden-extractor/internal/fetcher"
	"github.com/civicdata/gemeinden-extractor/internal/gemeinde"
	idgen "github.com/civicdata/gemeinden-extractor/internal/id/uuid"
	"github.com/civicdata/gemeinden-extractor/internal/index"
	"github.com/civicdata/gemeinden-extractor/internal/logging"
	"github.com/civicdata/gemeinden-extractor/internal/metrics"
	"github.com/civicdata/gemeinden-extractor/internal/parser"
	"github.com/civicdata/gemeinden-extractor/internal/pipeline"
	"github.com/civicdata/gemeinden-extractor/internal/store/postgres"
	"github.com/civicdata/gemeinden-extractor/internal/summarize"
)

type runOptions struct {
	cfgPath   string
	limit     int
	charLimit int
	csvPath   string
	statsPath string
	summaries bool
	upsert    bool
}

func newRootCmd() *cobra.Command {
	opts := &runOptions{}

	root := &cobra.Command{
		Use:   "extractor",
		Short: "Extracts structured municipality data from the source wiki.",
		Long: `extractor resolves the list of North Rhine-Westphalia municipalities,
fetches each entity page concurrently, normalizes the infobox attributes
into a fixed schema and writes the resulting records to CSV, an optional
stats artifact and an optional Postgres store.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.cfgPath, "config", "", "config file (environment overrides apply on top)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one extraction pass over all municipalities",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExtraction(cmd.Context(), opts)
		},
	}
	runCmd.Flags().IntVar(&opts.limit, "limit", 0, "process only the first N municipalities (0 = all)")
	runCmd.Flags().IntVar(&opts.charLimit, "chars", 0, "body text character budget (0 = configured default)")
	runCmd.Flags().StringVar(&opts.csvPath, "csv", "", "CSV output path (overrides config)")
	runCmd.Flags().StringVar(&opts.statsPath, "stats", "", "stats JSON output path (overrides config)")
	runCmd.Flags().BoolVar(&opts.summaries, "summaries", false, "generate summaries via the configured text-generation API")
	runCmd.Flags().BoolVar(&opts.upsert, "store", false, "upsert records into the configured Postgres store")

	root.AddCommand(runCmd)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		os.Exit(1)
	}
}

func runExtraction(ctx context.Context, opts *runOptions) error {
	cfg, err := config.Load(opts.cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	if err := run(ctx, cfg, logger, opts); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("run interrupted")
		} else {
			logger.Error("run failed", zap.Error(err))
		}
		return err
	}
	return nil
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, opts *runOptions) error {
	registry := prometheus.NewRegistry()
	m, err := metrics.New(registry)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	fetch := fetcher.New(fetcher.Config{
		UserAgent: cfg.Fetch.UserAgent,
		Timeout:   cfg.FetchTimeout(),
		RPS:       cfg.Fetch.RPS,
		Burst:     cfg.Fetch.Burst,
		Retry: fetcher.RetryPolicy{
			MaxAttempts: cfg.Fetch.MaxRetries,
			BaseDelay:   time.Duration(cfg.Fetch.BackoffInitialMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Fetch.BackoffMaxMs) * time.Millisecond,
		},
	}, m, logger.Named("fetcher"))

	resolver := index.New(index.Config{
		IndexURL: cfg.Index.URL,
		BaseURL:  cfg.Index.BaseURL,
	}, fetch, logger.Named("index"))

	pipe := pipeline.New(
		resolver,
		parser.New(fetch, logger.Named("parser")),
		system.New(),
		idgen.NewGenerator(),
		m,
		pipeline.Config{
			Workers:          cfg.Pipeline.Workers,
			JobTimeout:       cfg.JobTimeout(),
			DefaultCharLimit: cfg.Pipeline.CharLimit,
		},
		logger.Named("pipeline"),
	)

	srvDone := startStatusServer(ctx, cfg, pipe, m, registry, logger)

	records, err := pipe.Run(ctx, pipeline.Options{Limit: opts.limit, CharLimit: opts.charLimit})
	if err != nil {
		return err
	}

	if opts.summaries {
		summarizer := summarize.New(summarize.Config{
			BaseURL:    cfg.Summarizer.BaseURL,
			APIKey:     cfg.Summarizer.APIKey,
			Model:      cfg.Summarizer.Model,
			MaxTokens:  cfg.Summarizer.MaxTokens,
			MaxRetries: cfg.Summarizer.MaxRetries,
			Workers:    cfg.Summarizer.Workers,
		}, logger.Named("summarize"))
		if !summarizer.Enabled() {
			logger.Info("summarizer api key not configured, skipping summaries")
		}
		summarizer.SummarizeAll(ctx, records)
	}

	csvPath := opts.csvPath
	if csvPath == "" {
		csvPath = cfg.Export.CSVPath
	}
	if _, err := export.WriteCSV(csvPath, records, logger.Named("export")); err != nil {
		return fmt.Errorf("csv export: %w", err)
	}

	statsPath := opts.statsPath
	if statsPath == "" {
		statsPath = cfg.Export.StatsPath
	}
	if statsPath != "" {
		if err := export.WriteStats(statsPath, records, time.Now().UTC()); err != nil {
			return fmt.Errorf("stats export: %w", err)
		}
	}

	if opts.upsert {
		if err := upsertRecords(ctx, cfg, pipe, records, logger); err != nil {
			return err
		}
	}

	if srvDone != nil {
		logger.Info("extraction complete, status server running until interrupt")
		<-srvDone
	}
	return nil
}

func upsertRecords(ctx context.Context, cfg config.Config, pipe *pipeline.Pipeline, records []*gemeinde.Record, logger *zap.Logger) error {
	store, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: int32(cfg.DB.MaxConns),
	}, logger.Named("store"))
	if err != nil {
		return fmt.Errorf("init record store: %w", err)
	}
	defer store.Close()

	if err := store.UpsertRecords(ctx, pipe.LastRun().RunID, records); err != nil {
		return fmt.Errorf("upsert records: %w", err)
	}
	return nil
}

// startStatusServer launches the optional status/metrics server. The
// returned channel closes once the server has shut down; it is nil when
// the server is disabled.
func startStatusServer(
	ctx context.Context,
	cfg config.Config,
	pipe *pipeline.Pipeline,
	m *metrics.Metrics,
	registry *prometheus.Registry,
	logger *zap.Logger,
) <-chan struct{} {
	if !cfg.Server.Enabled {
		return nil
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(pipe, m, registry, logger.Named("api")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	done := make(chan struct{})

	go func() {
		logger.Info("status server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		close(done)
	}()
	return done
}
