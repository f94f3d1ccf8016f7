package catalog

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"neokudilonga/pkg/domain"
)

// Canonical grade tokens as stored in reading-plan documents.
const (
	GradeKeyAids       = "didactic_aids"
	GradeKeyReception  = "iniciação"
	GradeKeyBand1to4   = "1-4"
	GradeKeyBand5to9   = "5-9"
	GradeKeyBand10to12 = "10-12"
)

// GradeKind tags the variant held by a Grade.
type GradeKind int

const (
	GradeUnknown GradeKind = iota
	GradeReception
	GradeNumeric
	GradeBand
	GradeAids
)

// Grade is a parsed reading-plan grade key.
//
//	Numeric(n) | Band(lower..upper) | Aids | Reception | Unknown(raw)
type Grade struct {
	Kind   GradeKind
	Number int // Numeric
	Lower  int // Band
	Upper  int // Band
	Raw    string
}

type bandToken struct {
	lower, upper int
}

// Both pt and en spellings are accepted for every special token.
var (
	receptionTokens = []string{"iniciação", "iniciacao", "reception"}
	aidsTokens      = []string{"didactic_aids", "outros", "others"}
	bandTokens      = map[string]bandToken{
		"1-4":       {1, 4},
		"1st-4th":   {1, 4},
		"5-9":       {5, 9},
		"5th-9th":   {5, 9},
		"10-12":     {10, 12},
		"10th-12th": {10, 12},
	}
)

// ParseGrade classifies a raw grade key. Matching is case-insensitive.
// An empty key is the generic aids bucket, mirroring how grouping keys
// items that have no grade.
func ParseGrade(raw string) Grade {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)
	switch {
	case lower == "":
		return Grade{Kind: GradeAids, Raw: raw}
	case slices.Contains(receptionTokens, lower):
		return Grade{Kind: GradeReception, Raw: raw}
	case slices.Contains(aidsTokens, lower):
		return Grade{Kind: GradeAids, Raw: raw}
	}
	if band, ok := bandTokens[lower]; ok {
		return Grade{Kind: GradeBand, Lower: band.lower, Upper: band.upper, Raw: raw}
	}
	if n, ok := leadingInt(lower); ok {
		return Grade{Kind: GradeNumeric, Number: n, Raw: raw}
	}
	return Grade{Kind: GradeUnknown, Raw: raw}
}

// leadingInt parses an optionally signed run of leading digits, so "5ª" reads as 5.
func leadingInt(s string) (int, bool) {
	end := 0
	if end < len(s) && (s[end] == '-' || s[end] == '+') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Rank orders grades: reception first, then numeric grades, each band right
// after its upper grade, unknown tokens, and the generic aids bucket last.
func (g Grade) Rank() float64 {
	switch g.Kind {
	case GradeReception:
		return -1
	case GradeNumeric:
		return float64(g.Number)
	case GradeBand:
		return float64(g.Upper) + 0.5
	case GradeAids:
		return 100
	case GradeUnknown:
		return 99
	}
	return 99
}

// Key returns the canonical storage token for special grades and the raw
// trimmed value otherwise.
func (g Grade) Key() string {
	switch g.Kind {
	case GradeReception:
		return GradeKeyReception
	case GradeAids:
		return GradeKeyAids
	case GradeBand:
		return bandKey(g.Lower)
	case GradeNumeric:
		return strconv.Itoa(g.Number)
	case GradeUnknown:
		return strings.TrimSpace(g.Raw)
	}
	return strings.TrimSpace(g.Raw)
}

func bandKey(lower int) string {
	switch lower {
	case 1:
		return GradeKeyBand1to4
	case 5:
		return GradeKeyBand5to9
	default:
		return GradeKeyBand10to12
	}
}

// IsAidsBucket reports whether products in this grade are shown individually
// rather than as kits.
func (g Grade) IsAidsBucket() bool {
	return g.Kind == GradeAids || g.Kind == GradeBand
}

// Label returns the display label in the requested language.
func (g Grade) Label(lang domain.Language) string {
	en := lang == domain.LangEN
	switch g.Kind {
	case GradeReception:
		if en {
			return "Reception"
		}
		return "Iniciação"
	case GradeAids:
		if en {
			return "Didactic Aids"
		}
		return "Auxiliares Didáticos"
	case GradeBand:
		if en {
			return ordinalEN(g.Lower) + " - " + ordinalEN(g.Upper) + " Grade (Didactic Aids)"
		}
		return strconv.Itoa(g.Lower) + "ª - " + strconv.Itoa(g.Upper) + "ª Classe (Auxiliares Didáticos)"
	case GradeNumeric:
		if en {
			return ordinalEN(g.Number) + " Grade"
		}
		return strconv.Itoa(g.Number) + "ª Classe"
	case GradeUnknown:
		if en {
			return strings.TrimSpace(g.Raw) + " Grade"
		}
		return strings.TrimSpace(g.Raw) + "ª Classe"
	}
	return strings.TrimSpace(g.Raw)
}

func ordinalEN(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return strconv.Itoa(n) + suffix
}

// SortGradeKeys compares two grade keys by rank. Keys with equal rank are
// ordered by their lowercased text so the result does not depend on map order.
func SortGradeKeys(a, b string) int {
	if c := cmp.Compare(ParseGrade(a).Rank(), ParseGrade(b).Rank()); c != 0 {
		return c
	}
	return cmp.Compare(strings.ToLower(a), strings.ToLower(b))
}

// SortGrades sorts grade keys in place.
func SortGrades(keys []string) {
	slices.SortStableFunc(keys, SortGradeKeys)
}

// GradeDisplayLabel returns the Portuguese label used on the shop page.
func GradeDisplayLabel(key string) string {
	return ParseGrade(key).Label(domain.LangPT)
}

// GradeDisplayLabelLang returns the label for key in lang.
func GradeDisplayLabelLang(key string, lang domain.Language) string {
	return ParseGrade(key).Label(lang)
}

// MapGradeToBand folds the cycle number entered for a didactic-aids item
// (1, 2 or 3) into its band token. Other numbers and unrecognised input fold
// into the generic aids token. Grades that already are a band or the aids
// token are kept. Items with any other status keep their grade.
func MapGradeToBand(grade string, status domain.PlanStatus) string {
	if status != domain.PlanDidacticAids {
		return strings.TrimSpace(grade)
	}
	parsed := ParseGrade(grade)
	if parsed.Kind == GradeBand || (parsed.Kind == GradeAids && strings.TrimSpace(grade) != "") {
		return parsed.Key()
	}
	var digits strings.Builder
	for _, r := range grade {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	n, err := strconv.Atoi(digits.String())
	if err != nil {
		return GradeKeyAids
	}
	switch n {
	case 1:
		return GradeKeyBand1to4
	case 2:
		return GradeKeyBand5to9
	case 3:
		return GradeKeyBand10to12
	default:
		return GradeKeyAids
	}
}
