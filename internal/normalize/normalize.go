package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	footnoteRe    = regexp.MustCompile(`\[.*?\]`)
	parentheticRe = regexp.MustCompile(`\s*\([^)]*\)`)
	parenGroupRe  = regexp.MustCompile(`\(([^)]*)\)`)
)

// CleanValue collapses whitespace and drops bracketed footnote markers
// ("[1]", "[Anm. 2]") that the source wiki markup sprinkles into cells.
func CleanValue(raw string) string {
	s := footnoteRe.ReplaceAllString(raw, "")
	return strings.Join(strings.Fields(s), " ")
}

// Int coerces a European-formatted integer string. Every non-digit
// character is stripped first, which removes thousands separators written
// as periods ("12.345" -> 12345). An empty result after stripping means
// the value is absent.
func Int(raw string) *int {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if digits == "" {
		return nil
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return nil
	}
	return &n
}

// Float coerces a European-formatted decimal string: characters other
// than digits, commas and periods are stripped, then the comma decimal
// separator is replaced with a period ("45,7 km²" -> 45.7). Values that
// still fail to parse (for example mixed separators) are absent.
func Float(raw string) *float64 {
	kept := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.':
			return r
		default:
			return -1
		}
	}, raw)
	kept = strings.ReplaceAll(kept, ",", ".")
	if kept == "" {
		return nil
	}
	f, err := strconv.ParseFloat(kept, 64)
	if err != nil || f < 0 {
		return nil
	}
	return &f
}

// Population splits a raw population cell into its numeric part and the
// parenthesized reference date ("12.345 (31. Dez. 2021)" -> 12345,
// "31. Dez. 2021"). The parenthesized text is never numeric-parsed.
func Population(raw string) (*int, *string) {
	var date *string
	if m := parenGroupRe.FindStringSubmatch(raw); m != nil {
		if d := strings.TrimSpace(m[1]); d != "" {
			date = &d
		}
	}
	numeric := parenGroupRe.ReplaceAllString(raw, "")
	return Int(numeric), date
}

// Website normalizes an official-website value: schemeless values get an
// https:// prefix, already-schemed values pass through unchanged.
func Website(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	return &s
}

// Mayor strips parenthetical annotations (party, term dates) from a
// head-of-government value.
func Mayor(raw string) *string {
	s := strings.TrimSpace(parentheticRe.ReplaceAllString(raw, ""))
	if s == "" {
		return nil
	}
	return &s
}

// Text passes a free-text value through, mapping emptiness to absence.
func Text(raw string) *string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	return &s
}

// Truncate hard-cuts s to at most limit characters (runes, not bytes).
// The cut is not word-aware; re-truncating to the same limit is a no-op.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
