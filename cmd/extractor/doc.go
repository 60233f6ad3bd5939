// Package main hosts the extractor entrypoint.
//
// Architecture overview:
//   - Index resolution: internal/index fetches the fixed list page once
//     per run and yields the ordered (name, url) entity pairs. Row order
//     on the index page is the canonical order for the entire pipeline,
//     including the --limit truncation and all output surfaces.
//   - Fetch pipeline: internal/fetcher issues every GET through a shared
//     Colly collector with bounded retries, deterministic exponential
//     backoff and a per-host rate limit. All non-success statuses are
//     retried alike; exhaustion surfaces a FetchError carrying the last
//     cause.
//   - Extraction: internal/pipeline fans jobs out to a fixed worker pool.
//     Each worker runs internal/parser (infobox rows through the
//     normalizer, coordinate markup, truncated body text) under a per-job
//     timeout. A failed or timed-out job degrades to a fallback record
//     carrying only identity fields; one record is always emitted per
//     dispatched job and results land in index order.
//   - Summarization & export: internal/summarize optionally attaches one
//     externally generated summary per record; internal/export writes the
//     CSV and stats artifacts; internal/store/postgres upserts rows keyed
//     by name (last write wins, duplicates flagged in logs).
//   - Plumbing: Viper populates config from env/file; zap provides
//     structured logging keyed by run ID; Prometheus collectors and the
//     chi status server expose observability when enabled.
//
// Quick checklist:
//   - Configure env vars with the EXTRACTOR_ prefix (for example
//     EXTRACTOR_PIPELINE_WORKERS, EXTRACTOR_FETCH_MAX_RETRIES,
//     EXTRACTOR_SUMMARIZER_API_KEY, EXTRACTOR_DB_DSN) or pass a YAML file
//     via --config.
//   - Run locally: go run ./cmd/extractor run --limit 5 --csv out.csv
package main
