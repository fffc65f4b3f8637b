package extract

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rpattn/tabimport/internal/domain"
)

var (
	nonNumeric = regexp.MustCompile(`[^0-9.\-]`)
	nonSlug    = regexp.MustCompile(`[^a-z0-9]+`)
)

// FindColumn returns the first header matching one of the candidates, in
// candidate order. An exact normalized match wins over a header that merely
// contains the candidate.
func FindColumn(candidates []string, headers []string) string {
	norm := make([]string, len(headers))
	for i, h := range headers {
		norm[i] = NormalizeHeader(h)
	}
	for _, c := range candidates {
		target := NormalizeHeader(c)
		for i, n := range norm {
			if n == target {
				return headers[i]
			}
		}
		for i, n := range norm {
			if n != "" && strings.Contains(n, target) {
				return headers[i]
			}
		}
	}
	return ""
}

// column resolves a source column, preferring an explicit mapping. A field
// written as "type.field" only counts when the mapping targets that type.
func column(mapping *domain.ImportMapping, fields []string, candidates []string, headers []string) string {
	for _, f := range fields {
		if t, name, ok := strings.Cut(f, "."); ok {
			if mapping == nil || mapping.EntityType != t {
				continue
			}
			f = name
		}
		if c, ok := mapping.ColumnFor(f); ok {
			return c
		}
	}
	return FindColumn(candidates, headers)
}

// Value returns the trimmed cell, or "" when the column is absent.
func Value(row Row, col string) string {
	if col == "" {
		return ""
	}
	return strings.TrimSpace(row[col])
}

// NumericValue strips currency symbols and separators before parsing.
func NumericValue(row Row, col string) (float64, bool) {
	v := Value(row, col)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(nonNumeric.ReplaceAllString(v, ""), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// NormalizeKey is the deduplication form of a value.
func NormalizeKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// Slug turns a value into a dash-separated lower-case token.
func Slug(v string) string {
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(strings.TrimSpace(v)), "-"), "-")
}

func median(values []float64) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	s := append([]float64(nil), values...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2, true
	}
	return s[mid], true
}

// mostCommon returns the most frequent non-empty value; ties go to the value
// that reached the count first.
func mostCommon(values []string) string {
	counts := map[string]int{}
	best, bestN := "", 0
	for _, v := range values {
		if v == "" {
			continue
		}
		counts[v]++
		if counts[v] > bestN {
			best, bestN = v, counts[v]
		}
	}
	return best
}

func boolOption(m *domain.ImportMapping, key string, fallback bool) bool {
	v := m.Option(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
