package normalize

import "github.com/civicdata/gemeinden-extractor/internal/gemeinde"

// Apply resolves raw table rows against the field mapping table and
// writes the coerced values into the record. It returns the attributes
// whose raw value was present but could not be coerced, so callers can
// surface skipped fields without treating them as failures.
func Apply(rows []Row, rec *gemeinde.Record) []string {
	resolved := ResolveRows(rows)
	var skipped []string

	if raw, ok := resolved[AttrPopulation]; ok {
		n, date := Population(raw)
		rec.Population = n
		rec.PopulationDate = date
		if n == nil {
			skipped = append(skipped, string(AttrPopulation))
		}
	}
	if raw, ok := resolved[AttrArea]; ok {
		if rec.AreaKM2 = Float(raw); rec.AreaKM2 == nil {
			skipped = append(skipped, string(AttrArea))
		}
	}
	if raw, ok := resolved[AttrElevation]; ok {
		if rec.ElevationM = Int(raw); rec.ElevationM == nil {
			skipped = append(skipped, string(AttrElevation))
		}
	}
	if raw, ok := resolved[AttrMunicipalityKey]; ok {
		rec.MunicipalityKey = Text(raw)
	}
	if raw, ok := resolved[AttrDistrict]; ok {
		rec.District = Text(raw)
	}
	if raw, ok := resolved[AttrRegion]; ok {
		rec.Region = Text(raw)
	}
	if raw, ok := resolved[AttrState]; ok {
		rec.State = Text(raw)
	}
	if raw, ok := resolved[AttrPostalCode]; ok {
		rec.PostalCode = Text(raw)
	}
	if raw, ok := resolved[AttrDialingCode]; ok {
		rec.DialingCode = Text(raw)
	}
	if raw, ok := resolved[AttrPlateCode]; ok {
		rec.PlateCode = Text(raw)
	}
	if raw, ok := resolved[AttrCoordinates]; ok {
		rec.Coordinates = Text(raw)
	}
	if raw, ok := resolved[AttrWebsite]; ok {
		rec.Website = Website(raw)
	}
	if raw, ok := resolved[AttrMayor]; ok {
		rec.Mayor = Mayor(raw)
	}
	return skipped
}
