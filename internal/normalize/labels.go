// Package normalize maps raw infobox labels and values onto the fixed
// record schema. All functions are pure: no I/O, no errors. Input that
// cannot be coerced yields absence, never a failure.
package normalize

import "strings"

// Attr names a canonical record attribute targeted by the label table.
type Attr string

// Canonical attributes fed by infobox rows.
const (
	AttrPopulation      Attr = "population"
	AttrArea            Attr = "area_km2"
	AttrElevation       Attr = "elevation_m"
	AttrMunicipalityKey Attr = "municipality_key"
	AttrDistrict        Attr = "district"
	AttrRegion          Attr = "region"
	AttrState           Attr = "state"
	AttrPostalCode      Attr = "postal_code"
	AttrDialingCode     Attr = "dialing_code"
	AttrPlateCode       Attr = "plate_code"
	AttrCoordinates     Attr = "coordinates"
	AttrWebsite         Attr = "website"
	AttrMayor           Attr = "mayor"
)

// labelRule binds one raw label variant to its canonical attribute.
// Matching is by prefix on the cleaned label, so source labels carrying
// trailing qualifiers ("Fläche km²", "Einwohner (2023)") still resolve.
type labelRule struct {
	prefix string
	attr   Attr
}

// labelRules is the static field mapping table. Rules are ordered: when
// several raw labels feed the same attribute, earlier rules take priority
// and the first populated match wins. More specific prefixes must come
// before shorter ones that would shadow them ("oberbürgermeister" before
// "bürgermeister", "landkreis" before the bare "kreis").
var labelRules = []labelRule{
	{"einwohner", AttrPopulation},
	{"bevölkerung", AttrPopulation},
	{"fläche", AttrArea},
	{"höhe", AttrElevation},
	{"gemeindeschlüssel", AttrMunicipalityKey},
	{"ags", AttrMunicipalityKey},
	{"landkreis", AttrDistrict},
	{"kreis", AttrDistrict},
	{"regierungsbezirk", AttrRegion},
	{"bundesland", AttrState},
	{"postleitzahl", AttrPostalCode},
	{"plz", AttrPostalCode},
	{"vorwahl", AttrDialingCode},
	{"kfz-kennzeichen", AttrPlateCode},
	{"kfz", AttrPlateCode},
	{"koordinaten", AttrCoordinates},
	{"website", AttrWebsite},
	{"webpräsenz", AttrWebsite},
	{"oberbürgermeister", AttrMayor},
	{"bürgermeister", AttrMayor},
}

// CleanLabel lowercases a raw label and strips surrounding whitespace and
// trailing colons so spelling variants collapse before matching.
func CleanLabel(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimRight(s, ":")
	return strings.TrimSpace(s)
}

// Row is one label/value pair read from the structured table.
type Row struct {
	Label string
	Value string
}

// ResolveRows maps raw rows onto canonical attributes. For each attribute
// the synonyms are tried in table priority order and the first row with a
// non-empty value wins; later synonyms are ignored even when present.
func ResolveRows(rows []Row) map[Attr]string {
	cleaned := make([]Row, 0, len(rows))
	for _, r := range rows {
		cleaned = append(cleaned, Row{Label: CleanLabel(r.Label), Value: strings.TrimSpace(r.Value)})
	}

	out := make(map[Attr]string)
	for _, rule := range labelRules {
		if _, done := out[rule.attr]; done {
			continue
		}
		for _, r := range cleaned {
			if r.Value == "" {
				continue
			}
			if strings.HasPrefix(r.Label, rule.prefix) {
				out[rule.attr] = r.Value
				break
			}
		}
	}
	return out
}
