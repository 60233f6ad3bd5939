// Package export writes the collected records to the tabular and stats
// output surfaces. Exporters read records through their flat form and
// never mutate them.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/civicdata/gemeinden-extractor/internal/gemeinde"
)

// WriteCSV writes one row per record, in collection order, with a header
// derived from the full attribute set. Absent values become empty
// strings. Returns the number of rows written.
func WriteCSV(path string, records []*gemeinde.Record, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(records) == 0 {
		return 0, fmt.Errorf("no records to export")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return 0, fmt.Errorf("create export dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(gemeinde.FieldNames); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	written := 0
	for _, rec := range records {
		if err := w.Write(row(rec)); err != nil {
			// Degrade to identity columns rather than dropping the entity.
			logger.Warn("csv row failed, writing identity only",
				zap.String("name", rec.Name),
				zap.Error(err),
			)
			if err := w.Write(identityRow(rec)); err != nil {
				return written, fmt.Errorf("write fallback row: %w", err)
			}
		}
		written++
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return written, fmt.Errorf("flush csv: %w", err)
	}
	logger.Info("csv written", zap.String("path", path), zap.Int("rows", written))
	return written, nil
}

func row(rec *gemeinde.Record) []string {
	flat := rec.Flat()
	out := make([]string, 0, len(gemeinde.FieldNames))
	for _, field := range gemeinde.FieldNames {
		out = append(out, cell(flat[field]))
	}
	return out
}

func identityRow(rec *gemeinde.Record) []string {
	out := make([]string, len(gemeinde.FieldNames))
	out[0] = rec.Name
	out[1] = rec.SourceURL
	return out
}

func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
