package signal

import (
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var (
	booleanTokens = map[string]bool{
		"true": true, "false": true, "yes": true, "no": true, "y": true, "n": true,
		"1": true, "0": true, "on": true, "off": true, "enabled": true, "disabled": true,
	}

	integerRe    = regexp.MustCompile(`^[+-]?\d+$`)
	decimalStrip = regexp.MustCompile(`[$,\s]`)
	timeRe       = regexp.MustCompile(`(?i)^\d{1,2}:\d{2}(:\d{2})?(\s?[AP]M)?$`)
	phoneRe      = regexp.MustCompile(`^[\d\s\-\(\)\+\.]{7,}$`)
	currencyRe   = regexp.MustCompile(`^[\$€£¥]?\s?[\d,]+\.?\d{0,2}$`)

	dateFormats = []struct {
		Name string
		Re   *regexp.Regexp
	}{
		{"2006-01-02", regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)},
		{"01/02/2006", regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`)},
		{"01-02-2006", regexp.MustCompile(`^\d{1,2}-\d{1,2}-\d{4}$`)},
		{"02.01.2006", regexp.MustCompile(`^\d{1,2}\.\d{1,2}\.\d{4}$`)},
	}

	datetimeLayouts = []string{
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
		"01/02/2006 15:04:05",
		"01/02/2006 15:04",
		"02/01/2006 15:04:05",
		"02/01/2006 15:04",
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05Z",
		time.RFC3339,
		"01/02/2006 3:04 PM",
		"2006-01-02 3:04 PM",
	}
)

type typeTest struct {
	Type DataType
	Fn   func(string) bool
}

var typeTests = []typeTest{
	{TypeBoolean, isBoolean},
	{TypeInteger, isInteger},
	{TypeDecimal, isDecimal},
	{TypeDatetime, isDatetime},
	{TypeDate, isDate},
	{TypeTime, isTime},
	{TypeEmail, isEmail},
	{TypePhone, isPhone},
	{TypeURL, isURL},
	{TypeCurrency, isCurrency},
	{TypePercentage, isPercentage},
}

// InferDataType scores every type test over up to SampleSize non-empty values.
// The highest ratio wins; ties keep the earlier, more specific type. The string
// fallback scores the share of values no specific test accepted, so a stray
// value in an otherwise integer column lowers confidence instead of flipping
// the column to string.
func InferDataType(values []string) TypeSignal {
	if len(values) == 0 {
		return TypeSignal{Type: TypeUnknown}
	}
	vals := sample(values)
	if len(vals) == 0 {
		return TypeSignal{Type: TypeNullable, Confidence: 1}
	}

	scores := make(map[DataType]float64, len(typeTests)+1)
	claimed := make([]bool, len(vals))
	best := TypeSignal{Type: TypeString, SampleSize: len(vals), Scores: scores}

	for _, tt := range typeTests {
		matches := 0
		for i, v := range vals {
			if tt.Fn(v) {
				matches++
				claimed[i] = true
			}
		}
		r := ratio(matches, len(vals))
		scores[tt.Type] = r
		if r > best.Confidence {
			best.Type = tt.Type
			best.Confidence = r
		}
	}

	unclaimed := 0
	for _, c := range claimed {
		if !c {
			unclaimed++
		}
	}
	stringScore := ratio(unclaimed, len(vals))
	scores[TypeString] = stringScore
	if stringScore > best.Confidence {
		best.Type = TypeString
		best.Confidence = stringScore
	}

	switch best.Type {
	case TypeDate:
		best.Format = detectDateFormat(vals)
	case TypeDatetime:
		best.Format = detectDatetimeLayout(vals)
	}
	return best
}

func isBoolean(v string) bool {
	return booleanTokens[strings.ToLower(strings.TrimSpace(v))]
}

func isInteger(v string) bool {
	return integerRe.MatchString(strings.TrimSpace(v))
}

func isDecimal(v string) bool {
	return IsNumeric(decimalStrip.ReplaceAllString(v, ""))
}

func isDatetime(v string) bool {
	_, ok := ParseDatetime(v)
	return ok
}

// ParseDatetime parses values that carry both a date and a time of day.
func ParseDatetime(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func detectDatetimeLayout(vals []string) string {
	for _, v := range vals {
		for _, layout := range datetimeLayouts {
			if _, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				return layout
			}
		}
	}
	return ""
}

func isDate(v string) bool {
	v = strings.TrimSpace(v)
	for _, f := range dateFormats {
		if f.Re.MatchString(v) {
			return true
		}
	}
	return false
}

func detectDateFormat(vals []string) string {
	for _, v := range vals {
		v = strings.TrimSpace(v)
		for _, f := range dateFormats {
			if f.Re.MatchString(v) {
				return f.Name
			}
		}
	}
	return ""
}

func isTime(v string) bool {
	return timeRe.MatchString(strings.TrimSpace(v))
}

func isEmail(v string) bool {
	v = strings.TrimSpace(v)
	if strings.ContainsAny(v, " <>") {
		return false
	}
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Address != v {
		return false
	}
	at := strings.LastIndex(v, "@")
	return at > 0 && strings.Contains(v[at:], ".")
}

func isPhone(v string) bool {
	return phoneRe.MatchString(v)
}

func isURL(v string) bool {
	u, err := url.Parse(strings.TrimSpace(v))
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

func isCurrency(v string) bool {
	return currencyRe.MatchString(strings.TrimSpace(v))
}

func isPercentage(v string) bool {
	v = strings.TrimSpace(v)
	if !strings.HasSuffix(v, "%") {
		return false
	}
	return IsNumeric(strings.TrimSuffix(v, "%"))
}
