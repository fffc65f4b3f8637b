package signal

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const (
	patternThreshold  = 0.8
	europeanThreshold = 0.6
	europeanShare     = 0.3
)

var (
	uuidRe        = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	formattedIDRe = regexp.MustCompile(`(?i)^([A-Z]{2,4})[-_]\d{3,}$`)
	usdRe         = regexp.MustCompile(`^\$\s?[\d,]+\.?\d{0,2}$`)
	symbolRe      = regexp.MustCompile(`^([€£¥₹])\s?[\d.,]+$`)
	dateISORe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	slashDateRe   = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	datetimeISORe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[\sT]\d{2}:\d{2}(:\d{2})?`)
	time12Re      = regexp.MustCompile(`(?i)^(0?[1-9]|1[0-2]):\d{2}(:\d{2})?\s?[AP]M$`)
	time24Re      = regexp.MustCompile(`^([01]?\d|2[0-3]):\d{2}(:\d{2})?$`)
	skuRe         = regexp.MustCompile(`(?i)^[A-Z0-9]{4,20}$`)
	upcRe         = regexp.MustCompile(`^\d{12,13}$`)
	quantityRe    = regexp.MustCompile(`(?i)^(\d+\.?\d*)\s?(kg|g|mg|lb|lbs|oz|ml|l|gal|qt|pt|ea|each|pcs|units?)$`)
)

// DetectPattern runs every format family over a column sample. Families that
// clear their threshold are returned by descending confidence; the first is
// the primary pattern.
func DetectPattern(values []string) PatternSignal {
	vals := sample(values)
	if len(vals) == 0 {
		return PatternSignal{}
	}

	detectors := []func([]string) *PatternMatch{
		detectSequentialID,
		simpleFamily(PatternUUID, "uuid", nil, func(v string) bool { return uuidRe.MatchString(strings.TrimSpace(v)) }),
		detectFormattedID,
		simpleFamily(PatternCurrencyUSD, "price", &Transform{Type: "currency_to_decimal"}, func(v string) bool { return usdRe.MatchString(strings.TrimSpace(v)) }),
		detectCurrencySymbol,
		simpleFamily(PatternDateISO, "date", parseDate("2006-01-02"), func(v string) bool { return dateISORe.MatchString(strings.TrimSpace(v)) }),
		detectDateUS,
		detectDateEuropean,
		simpleFamily(PatternDatetimeISO, "datetime", &Transform{Type: "parse_datetime", Params: map[string]string{"layout": "2006-01-02 15:04:05"}}, func(v string) bool { return datetimeISORe.MatchString(strings.TrimSpace(v)) }),
		simpleFamily(PatternTime12h, "time", &Transform{Type: "parse_time", Params: map[string]string{"layout": "3:04 PM"}}, func(v string) bool { return time12Re.MatchString(strings.TrimSpace(v)) }),
		simpleFamily(PatternTime24h, "time", &Transform{Type: "parse_time", Params: map[string]string{"layout": "15:04:05"}}, func(v string) bool { return time24Re.MatchString(strings.TrimSpace(v)) }),
		simpleFamily(PatternEmail, "email", nil, isEmail),
		simpleFamily(PatternPhone, "phone", &Transform{Type: "normalize_phone"}, isPhone),
		simpleFamily(PatternSKU, "sku", nil, func(v string) bool { return skuRe.MatchString(strings.TrimSpace(v)) }),
		simpleFamily(PatternUPC, "upc", nil, func(v string) bool { return upcRe.MatchString(strings.TrimSpace(v)) }),
		simpleFamily(PatternPercentage, "percentage", &Transform{Type: "percentage_to_decimal"}, isPercentage),
		detectQuantityWithUnit,
	}

	var out PatternSignal
	for _, detect := range detectors {
		if m := detect(vals); m != nil {
			out.Patterns = append(out.Patterns, *m)
		}
	}
	sort.SliceStable(out.Patterns, func(i, j int) bool {
		return out.Patterns[i].Confidence > out.Patterns[j].Confidence
	})
	if len(out.Patterns) > 0 {
		primary := out.Patterns[0]
		out.Primary = &primary
	}
	return out
}

func parseDate(layout string) *Transform {
	return &Transform{Type: "parse_date", Params: map[string]string{"layout": layout}}
}

func simpleFamily(family PatternFamily, field string, transform *Transform, match func(string) bool) func([]string) *PatternMatch {
	return func(vals []string) *PatternMatch {
		conf := ratio(countMatches(vals, match), len(vals))
		if conf <= patternThreshold {
			return nil
		}
		return &PatternMatch{Family: family, Confidence: conf, SuggestedField: field, Transform: cloneTransform(transform)}
	}
}

func cloneTransform(t *Transform) *Transform {
	if t == nil {
		return nil
	}
	c := &Transform{Type: t.Type}
	if t.Params != nil {
		c.Params = make(map[string]string, len(t.Params))
		for k, v := range t.Params {
			c.Params[k] = v
		}
	}
	return c
}

func detectSequentialID(vals []string) *PatternMatch {
	nums := make([]float64, 0, len(vals))
	for _, v := range vals {
		if f, ok := ParseNumber(v); ok {
			nums = append(nums, float64(int64(f)))
		}
	}
	if ratio(len(nums), len(vals)) < 0.9 || len(nums) < 2 {
		return nil
	}
	sort.Float64s(nums)
	ones := 0
	for i := 1; i < len(nums); i++ {
		if nums[i]-nums[i-1] == 1 {
			ones++
		}
	}
	conf := ratio(ones, len(nums)-1)
	if conf <= patternThreshold {
		return nil
	}
	return &PatternMatch{Family: PatternSequentialID, Confidence: conf, SuggestedField: "id"}
}

func detectFormattedID(vals []string) *PatternMatch {
	matches := 0
	prefix := ""
	for _, v := range vals {
		m := formattedIDRe.FindStringSubmatch(strings.TrimSpace(v))
		if m == nil {
			continue
		}
		matches++
		if prefix == "" {
			prefix = strings.ToUpper(m[1])
		}
	}
	conf := ratio(matches, len(vals))
	if conf <= patternThreshold {
		return nil
	}
	field := "external_id"
	switch prefix {
	case "ORD":
		field = "order_number"
	case "INV":
		field = "invoice_number"
	case "CUST":
		field = "customer_id"
	case "PROD":
		field = "product_id"
	}
	return &PatternMatch{Family: PatternFormattedID, Confidence: conf, SuggestedField: field}
}

func detectCurrencySymbol(vals []string) *PatternMatch {
	matches := 0
	symbol := ""
	for _, v := range vals {
		m := symbolRe.FindStringSubmatch(strings.TrimSpace(v))
		if m == nil {
			continue
		}
		matches++
		if symbol == "" {
			symbol = m[1]
		}
	}
	conf := ratio(matches, len(vals))
	if conf <= patternThreshold {
		return nil
	}
	return &PatternMatch{
		Family:         PatternCurrencySign,
		Confidence:     conf,
		SuggestedField: "price",
		Transform:      &Transform{Type: "currency_to_decimal", Params: map[string]string{"symbol": symbol}},
	}
}

// slashParts returns the first two components of a d/d/yyyy value.
func slashParts(v string) (int, int, bool) {
	m := slashDateRe.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return 0, 0, false
	}
	a, _ := strconv.Atoi(m[1])
	b, _ := strconv.Atoi(m[2])
	return a, b, true
}

// detectDateUS only counts values whose first component can be a month, so a
// column that is unambiguously day-first never reads as US.
func detectDateUS(vals []string) *PatternMatch {
	matches := countMatches(vals, func(v string) bool {
		a, _, ok := slashParts(v)
		return ok && a <= 12
	})
	conf := ratio(matches, len(vals))
	if conf <= patternThreshold {
		return nil
	}
	return &PatternMatch{Family: PatternDateUS, Confidence: conf, SuggestedField: "date", Transform: parseDate("01/02/2006")}
}

func detectDateEuropean(vals []string) *PatternMatch {
	matches, dayFirst := 0, 0
	for _, v := range vals {
		a, _, ok := slashParts(v)
		if !ok {
			continue
		}
		matches++
		if a > 12 {
			dayFirst++
		}
	}
	if matches == 0 || ratio(dayFirst, matches) <= europeanShare {
		return nil
	}
	conf := ratio(matches, len(vals))
	if conf <= europeanThreshold {
		return nil
	}
	return &PatternMatch{Family: PatternDateEuropean, Confidence: conf, SuggestedField: "date", Transform: parseDate("02/01/2006")}
}

func detectQuantityWithUnit(vals []string) *PatternMatch {
	matches := 0
	units := map[string]int{}
	for _, v := range vals {
		m := quantityRe.FindStringSubmatch(strings.TrimSpace(v))
		if m == nil {
			continue
		}
		matches++
		units[strings.ToLower(m[2])]++
	}
	conf := ratio(matches, len(vals))
	if conf <= patternThreshold {
		return nil
	}
	common, best := "", 0
	for u, n := range units {
		if n > best || (n == best && u < common) {
			common, best = u, n
		}
	}
	return &PatternMatch{
		Family:         PatternQuantityUnits,
		Confidence:     conf,
		SuggestedField: "quantity",
		Transform:      &Transform{Type: "extract_quantity", Params: map[string]string{"unit": common}},
	}
}

// ExtractQuantity splits "12 kg" into its magnitude and unit.
func ExtractQuantity(v string) (float64, string, bool) {
	m := quantityRe.FindStringSubmatch(strings.TrimSpace(v))
	if m == nil {
		return 0, "", false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", false
	}
	return f, strings.ToLower(m[2]), true
}
