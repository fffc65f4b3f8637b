package signal

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// SampleSize bounds the number of non-empty values inspected per column.
const SampleSize = 100

// FoldAccents strips combining marks so "Quantité" compares equal to "quantite".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// nonEmpty drops blank values, keeping order.
func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func sample(values []string) []string {
	vals := nonEmpty(values)
	if len(vals) > SampleSize {
		vals = vals[:SampleSize]
	}
	return vals
}

// ParseNumber accepts plain decimal notation with an optional sign or exponent.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// IsNumeric reports whether s parses as a finite number.
func IsNumeric(s string) bool {
	_, ok := ParseNumber(s)
	return ok
}

func ratio(matches, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(matches) / float64(total)
}

func countMatches(values []string, fn func(string) bool) int {
	n := 0
	for _, v := range values {
		if fn(v) {
			n++
		}
	}
	return n
}

// Round rounds to the given number of decimal places.
func Round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
