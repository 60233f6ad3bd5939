package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicdata/gemeinden-extractor/internal/gemeinde"
)

func TestBuildStats(t *testing.T) {
	t.Parallel()

	recs := make([]*gemeinde.Record, 0, 3)
	for i, pop := range []int{1000, 3000, 0} {
		rec := gemeinde.NewRecord("Stadt", "https://example.org")
		if pop > 0 {
			p := pop
			rec.Population = &p
		}
		if i == 0 {
			region := "Arnsberg"
			district := "Kreis Unna"
			rec.Region = &region
			rec.District = &district
		}
		if i == 1 {
			region := "Köln"
			rec.Region = &region
			area := 45.7
			rec.AreaKM2 = &area
		}
		recs = append(recs, rec)
	}

	s := BuildStats(recs, time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, 3, s.TotalMunicipalities)
	assert.Equal(t, 2, s.WithPopulation)
	assert.Equal(t, 4000, s.PopulationTotal)
	assert.InDelta(t, 2000.0, s.PopulationAvg, 1e-9)
	assert.Equal(t, 1000, s.PopulationMin)
	assert.Equal(t, 3000, s.PopulationMax)
	assert.Equal(t, 1, s.WithArea)
	assert.InDelta(t, 45.7, s.AreaTotalKM2, 1e-9)
	assert.Equal(t, []string{"Arnsberg", "Köln"}, s.Regions)
	assert.Equal(t, 1, s.DistrictCount)
}

func TestWriteStats(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "stats.json")
	recs := []*gemeinde.Record{gemeinde.NewRecord("Stadt", "https://example.org")}
	require.NoError(t, WriteStats(path, recs, time.Now().UTC()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var s Stats
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, 1, s.TotalMunicipalities)
}
