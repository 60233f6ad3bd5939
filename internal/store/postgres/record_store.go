// Package postgres provides the Postgres-backed record store used by the
// export surface: upserts keyed by municipality name, last write wins.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/civicdata/gemeinden-extractor/internal/gemeinde"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for record rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RecordStore upserts municipality records into Postgres.
type RecordStore struct {
	pool   execCloser
	table  string
	logger *zap.Logger
}

// New creates a Postgres-backed RecordStore using the provided config.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "gemeinden"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordStore{pool: pool, table: table, logger: logger}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing).
func NewWithPool(pool execCloser, table string, logger *zap.Logger) (*RecordStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "gemeinden"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordStore{pool: pool, table: table, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *RecordStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// UpsertRecords writes every record, keyed by name. Duplicate names in
// one batch are flagged via log and resolved last-write-wins; the later
// upsert simply overwrites the earlier row.
func (s *RecordStore) UpsertRecords(ctx context.Context, runID string, records []*gemeinde.Record) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("record store is not configured")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	name,
	source_url,
	population,
	population_date,
	area_km2,
	elevation_m,
	municipality_key,
	district,
	region,
	state,
	postal_code,
	dialing_code,
	plate_code,
	coordinates,
	coordinates_url,
	website,
	mayor,
	body_text,
	summary,
	run_id,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21
)
ON CONFLICT (name) DO UPDATE SET
	source_url = EXCLUDED.source_url,
	population = EXCLUDED.population,
	population_date = EXCLUDED.population_date,
	area_km2 = EXCLUDED.area_km2,
	elevation_m = EXCLUDED.elevation_m,
	municipality_key = EXCLUDED.municipality_key,
	district = EXCLUDED.district,
	region = EXCLUDED.region,
	state = EXCLUDED.state,
	postal_code = EXCLUDED.postal_code,
	dialing_code = EXCLUDED.dialing_code,
	plate_code = EXCLUDED.plate_code,
	coordinates = EXCLUDED.coordinates,
	coordinates_url = EXCLUDED.coordinates_url,
	website = EXCLUDED.website,
	mayor = EXCLUDED.mayor,
	body_text = EXCLUDED.body_text,
	summary = EXCLUDED.summary,
	run_id = EXCLUDED.run_id,
	updated_at = EXCLUDED.updated_at`, s.table)

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if rec.Name == "" {
			s.logger.Warn("skipping record without name", zap.String("source_url", rec.SourceURL))
			continue
		}
		if _, dup := seen[rec.Name]; dup {
			s.logger.Warn("duplicate record name, last write wins", zap.String("name", rec.Name))
		}
		seen[rec.Name] = struct{}{}

		args := []any{
			rec.Name,
			rec.SourceURL,
			rec.Population,
			rec.PopulationDate,
			rec.AreaKM2,
			rec.ElevationM,
			rec.MunicipalityKey,
			rec.District,
			rec.Region,
			rec.State,
			rec.PostalCode,
			rec.DialingCode,
			rec.PlateCode,
			rec.Coordinates,
			rec.CoordinatesURL,
			rec.Website,
			rec.Mayor,
			rec.BodyText,
			rec.Summary,
			runID,
			time.Now().UTC(),
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert record %s: %w", rec.Name, err)
		}
	}
	return nil
}
