package importer

import (
	"fmt"
	"math"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/extract"
	"github.com/rpattn/tabimport/internal/mapping"
	"github.com/rpattn/tabimport/internal/signal"
)

const (
	dateOutput     = "2006-01-02"
	timeOutput     = "15:04:05"
	datetimeOutput = time.RFC3339
)

var (
	dateLayouts = []string{
		"2006-01-02",
		"01/02/2006",
		"1/2/2006",
		"01-02-2006",
		"2006/01/02",
		"02.01.2006",
		"Jan 2, 2006",
		"2 Jan 2006",
	}
	timeLayouts = []string{"15:04:05", "15:04", "3:04 PM", "3:04PM", "3:04:05 PM", "3PM"}

	trueValues  = map[string]bool{"true": true, "yes": true, "y": true, "1": true, "t": true, "x": true}
	falseValues = map[string]bool{"false": true, "no": true, "n": true, "0": true, "f": true}

	amountReplacer = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", ",", "", " ", "")
)

// Fields are the mapped and converted values of one row, keyed by target
// field. Values are string, float64, bool or time.Time.
type Fields map[string]any

// Has reports whether a field holds a non-empty value.
func (f Fields) Has(field string) bool {
	v, ok := f[field]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String returns a field rendered as text.
func (f Fields) String(field string) string {
	switch v := f[field].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(datetimeOutput)
	default:
		return fmt.Sprint(v)
	}
}

// Float returns a numeric field. Text values are parsed leniently.
func (f Fields) Float(field string) (float64, bool) {
	switch v := f[field].(type) {
	case float64:
		return v, true
	case string:
		return parseAmount(v)
	default:
		return 0, false
	}
}

// First returns the first non-empty field among names.
func (f Fields) First(names ...string) string {
	for _, n := range names {
		if s := f.String(n); s != "" {
			return s
		}
	}
	return ""
}

// Properties converts the fields into entity properties.
func (f Fields) Properties(skip ...string) map[string]any {
	skipped := make(map[string]bool, len(skip))
	for _, s := range skip {
		skipped[s] = true
	}
	out := make(map[string]any, len(f))
	for k, v := range f {
		if skipped[k] || !f.Has(k) {
			continue
		}
		if t, ok := v.(time.Time); ok {
			out[k] = t.Format(datetimeOutput)
			continue
		}
		out[k] = v
	}
	return out
}

// FieldError is a value that could not be converted.
type FieldError struct {
	Field   string
	Column  string
	Value   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Transformer applies a mapping to raw rows.
type Transformer struct {
	mapping *domain.ImportMapping
}

// NewTransformer returns a transformer for the mapping.
func NewTransformer(m *domain.ImportMapping) *Transformer {
	return &Transformer{mapping: m}
}

// FieldName strips an entity type qualifier such as "order_item.quantity".
func FieldName(target string) string {
	if i := strings.LastIndex(target, "."); i >= 0 {
		return target[i+1:]
	}
	return target
}

// Apply maps, converts and defaults one row. Conversion failures are
// returned alongside whatever fields did convert.
func (t *Transformer) Apply(row extract.Row) (Fields, []FieldError) {
	fields := Fields{}
	var errs []FieldError
	if t.mapping == nil {
		return fields, nil
	}
	for _, fm := range t.mapping.FieldMappings {
		field := FieldName(fm.TargetField)
		raw := strings.TrimSpace(row[fm.Column])
		if raw == "" {
			continue
		}
		v, err := convert(field, fm.Transformation, raw, row)
		if err != nil {
			errs = append(errs, FieldError{Field: field, Column: fm.Column, Value: raw, Message: err.Error()})
			continue
		}
		fields[field] = v
		if fm.Transformation != nil && fm.Transformation.Type == "extract_quantity" && !fields.Has("unit") {
			if _, unit, ok := signal.ExtractQuantity(raw); ok && unit != "" {
				fields["unit"] = unit
			} else if u := fm.Transformation.Param("unit", ""); u != "" {
				fields["unit"] = u
			}
		}
	}
	for field, def := range t.mapping.DefaultValues {
		field = FieldName(field)
		if !fields.Has(field) && def != "" {
			fields[field] = def
		}
	}
	return fields, errs
}

// convert runs the explicit transformation, or coerces the value by the
// field's expected profile when there is none.
func convert(field string, tr *domain.Transformation, raw string, row extract.Row) (any, error) {
	if tr != nil && tr.Type != "" {
		return ApplyTransformation(tr, raw, row)
	}
	switch mapping.FieldProfile(field) {
	case mapping.ProfileMoney, mapping.ProfileQuantity:
		f, ok := parseAmount(raw)
		if !ok {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return f, nil
	case mapping.ProfileTemporal:
		if t, ok := parseDate(raw, ""); ok {
			return t, nil
		}
		if t, ok := signal.ParseDatetime(raw); ok {
			return t, nil
		}
		return nil, fmt.Errorf("%q is not a recognised date", raw)
	}
	if field == "email" {
		if _, err := mail.ParseAddress(raw); err != nil {
			return nil, fmt.Errorf("%q is not a valid email address", raw)
		}
		return strings.ToLower(raw), nil
	}
	return raw, nil
}

// ApplyTransformation converts one raw value. row supplies sibling columns
// for transformations that combine several.
func ApplyTransformation(tr *domain.Transformation, raw string, row extract.Row) (any, error) {
	raw = strings.TrimSpace(raw)
	switch tr.Type {
	case "trim":
		return raw, nil
	case "lowercase":
		return strings.ToLower(raw), nil
	case "uppercase":
		return strings.ToUpper(raw), nil
	case "number", "float", "decimal":
		f, ok := parseAmount(raw)
		if !ok {
			return nil, fmt.Errorf("%q is not a number", raw)
		}
		return f, nil
	case "integer":
		f, ok := parseAmount(raw)
		if !ok || f != math.Trunc(f) {
			return nil, fmt.Errorf("%q is not a whole number", raw)
		}
		return f, nil
	case "currency", "currency_to_decimal":
		s := raw
		if sym := tr.Param("symbol", ""); sym != "" {
			s = strings.ReplaceAll(s, sym, "")
		}
		f, ok := parseAmount(s)
		if !ok {
			return nil, fmt.Errorf("%q is not a currency amount", raw)
		}
		return math.Round(f*100) / 100, nil
	case "percentage_to_decimal":
		f, ok := parseAmount(strings.TrimSuffix(raw, "%"))
		if !ok {
			return nil, fmt.Errorf("%q is not a percentage", raw)
		}
		return f / 100, nil
	case "boolean":
		lower := strings.ToLower(raw)
		switch {
		case trueValues[lower]:
			return true, nil
		case falseValues[lower]:
			return false, nil
		}
		return nil, fmt.Errorf("%q is not a boolean", raw)
	case "date", "parse_date":
		t, ok := parseDate(raw, tr.Param("layout", tr.Param("format", "")))
		if !ok {
			return nil, fmt.Errorf("%q is not a recognised date", raw)
		}
		return t, nil
	case "datetime", "parse_datetime":
		if layout := tr.Param("layout", ""); layout != "" {
			if t, err := time.Parse(layout, raw); err == nil {
				return t, nil
			}
		}
		if t, ok := signal.ParseDatetime(raw); ok {
			return t, nil
		}
		if t, ok := parseDate(raw, ""); ok {
			return t, nil
		}
		return nil, fmt.Errorf("%q is not a recognised date and time", raw)
	case "parse_time":
		t, ok := parseTime(raw, tr.Param("layout", ""))
		if !ok {
			return nil, fmt.Errorf("%q is not a recognised time", raw)
		}
		return t.Format(timeOutput), nil
	case "normalize_phone":
		return normalizePhone(raw)
	case "extract_quantity":
		q, _, ok := signal.ExtractQuantity(raw)
		if !ok {
			if f, plain := parseAmount(raw); plain {
				return f, nil
			}
			return nil, fmt.Errorf("%q has no quantity", raw)
		}
		return q, nil
	case "combine_datetime":
		return combineDateTime(tr, raw, row)
	case "map":
		for from, to := range tr.Params {
			if strings.EqualFold(from, raw) {
				return to, nil
			}
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("unknown transformation %q", tr.Type)
	}
}

// parseAmount accepts currency symbols, thousands separators and accounting
// style negatives such as "(12.50)".
func parseAmount(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	f, ok := signal.ParseNumber(amountReplacer.Replace(s))
	if !ok {
		return 0, false
	}
	if negative {
		f = -f
	}
	return f, true
}

func parseDate(raw, layout string) (time.Time, bool) {
	if layout != "" {
		t, err := time.Parse(layout, raw)
		return t, err == nil
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseTime(raw, layout string) (time.Time, bool) {
	if layout != "" {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	upper := strings.ToUpper(raw)
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, upper); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func combineDateTime(tr *domain.Transformation, raw string, row extract.Row) (any, error) {
	timeRaw := ""
	if col := tr.Param("time_column", ""); col != "" {
		timeRaw = strings.TrimSpace(row[col])
	}
	if timeRaw != "" {
		if t, err := time.Parse(tr.Param("layout", ""), raw+" "+timeRaw); err == nil {
			return t, nil
		}
	}
	date, ok := parseDate(raw, tr.Param("date_layout", ""))
	if !ok {
		if t, full := signal.ParseDatetime(raw); full {
			return t, nil
		}
		return nil, fmt.Errorf("%q is not a recognised date", raw)
	}
	if timeRaw == "" {
		return date, nil
	}
	clock, ok := parseTime(timeRaw, "")
	if !ok {
		return nil, fmt.Errorf("%q is not a recognised time", timeRaw)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute(), clock.Second(), 0, time.UTC), nil
}

func normalizePhone(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case len(d) < 7:
		return "", fmt.Errorf("%q is not a phone number", raw)
	case len(d) == 10:
		return "+1" + d, nil
	case len(d) == 11 && d[0] == '1':
		return "+" + d, nil
	case strings.HasPrefix(raw, "+"):
		return "+" + d, nil
	}
	return d, nil
}
