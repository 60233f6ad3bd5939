package export

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/civicdata/gemeinden-extractor/internal/gemeinde"
)

// Stats summarizes one run's field coverage and basic aggregates.
type Stats struct {
	ExportedAt          time.Time `json:"exported_at"`
	TotalMunicipalities int       `json:"total_municipalities"`
	WithPopulation      int       `json:"with_population"`
	WithArea            int       `json:"with_area"`
	WithWebsite         int       `json:"with_website"`
	WithCoordinates     int       `json:"with_coordinates"`
	WithSummary         int       `json:"with_summary"`

	PopulationTotal int     `json:"population_total"`
	PopulationAvg   float64 `json:"population_avg"`
	PopulationMin   int     `json:"population_min"`
	PopulationMax   int     `json:"population_max"`
	AreaTotalKM2    float64 `json:"area_total_km2"`

	Regions       []string `json:"regions"`
	DistrictCount int      `json:"district_count"`
}

// BuildStats computes aggregates across the collection.
func BuildStats(records []*gemeinde.Record, now time.Time) Stats {
	s := Stats{ExportedAt: now, TotalMunicipalities: len(records)}
	regions := map[string]struct{}{}
	districts := map[string]struct{}{}

	for _, rec := range records {
		if rec.Population != nil {
			n := *rec.Population
			s.WithPopulation++
			s.PopulationTotal += n
			if s.PopulationMin == 0 || n < s.PopulationMin {
				s.PopulationMin = n
			}
			if n > s.PopulationMax {
				s.PopulationMax = n
			}
		}
		if rec.AreaKM2 != nil {
			s.WithArea++
			s.AreaTotalKM2 += *rec.AreaKM2
		}
		if rec.Website != nil {
			s.WithWebsite++
		}
		if rec.Coordinates != nil {
			s.WithCoordinates++
		}
		if rec.Summary != nil {
			s.WithSummary++
		}
		if rec.Region != nil {
			regions[*rec.Region] = struct{}{}
		}
		if rec.District != nil {
			districts[*rec.District] = struct{}{}
		}
	}

	if s.WithPopulation > 0 {
		s.PopulationAvg = float64(s.PopulationTotal) / float64(s.WithPopulation)
	}
	s.Regions = make([]string, 0, len(regions))
	for r := range regions {
		s.Regions = append(s.Regions, r)
	}
	sort.Strings(s.Regions)
	s.DistrictCount = len(districts)
	return s
}

// WriteStats writes the aggregates as a JSON artifact.
func WriteStats(path string, records []*gemeinde.Record, now time.Time) error {
	if len(records) == 0 {
		return fmt.Errorf("no records for stats export")
	}
	data, err := json.MarshalIndent(BuildStats(records, now), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return nil
}
