// Package signal holds the pure, persistence-free evidence functions the
// import pipeline builds on: column type inference, value distribution,
// format pattern recognition and fuzzy header matching.
package signal

// DataType is the inferred type of a column.
type DataType string

const (
	TypeUnknown    DataType = "unknown"
	TypeNullable   DataType = "nullable"
	TypeBoolean    DataType = "boolean"
	TypeInteger    DataType = "integer"
	TypeDecimal    DataType = "decimal"
	TypeDatetime   DataType = "datetime"
	TypeDate       DataType = "date"
	TypeTime       DataType = "time"
	TypeEmail      DataType = "email"
	TypePhone      DataType = "phone"
	TypeURL        DataType = "url"
	TypeCurrency   DataType = "currency"
	TypePercentage DataType = "percentage"
	TypeString     DataType = "string"
)

// Numeric reports whether values of this type carry a magnitude.
func (t DataType) Numeric() bool {
	switch t {
	case TypeInteger, TypeDecimal, TypeCurrency, TypePercentage:
		return true
	}
	return false
}

// Temporal reports whether values of this type are dates or times.
func (t DataType) Temporal() bool {
	return t == TypeDate || t == TypeDatetime || t == TypeTime
}

// TypeSignal is the outcome of InferDataType.
type TypeSignal struct {
	Type       DataType             `json:"type"`
	Confidence float64              `json:"confidence"`
	SampleSize int                  `json:"sample_size"`
	Format     string               `json:"format,omitempty"`
	Scores     map[DataType]float64 `json:"scores,omitempty"`
}

// NumericRange describes an all-numeric column.
type NumericRange struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// LengthRange describes string lengths of a non-numeric column.
type LengthRange struct {
	Min int     `json:"min"`
	Max int     `json:"max"`
	Avg float64 `json:"avg"`
}

// ValueCount is one histogram bucket.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// DistributionSignal is the outcome of AnalyzeDistribution.
type DistributionSignal struct {
	Total           int           `json:"total_count"`
	NonNull         int           `json:"non_null_count"`
	Nulls           int           `json:"null_count"`
	NullRatio       float64       `json:"null_ratio"`
	Unique          int           `json:"unique_count"`
	UniquenessRatio float64       `json:"uniqueness_ratio"`
	Numeric         *NumericRange `json:"range,omitempty"`
	Length          *LengthRange  `json:"string_length,omitempty"`
	Sequential      bool          `json:"is_sequential"`
	TopValues       []ValueCount  `json:"top_values,omitempty"`
}

// PatternFamily names a recognised value format.
type PatternFamily string

const (
	PatternSequentialID  PatternFamily = "sequential_id"
	PatternUUID          PatternFamily = "uuid"
	PatternFormattedID   PatternFamily = "formatted_id"
	PatternCurrencyUSD   PatternFamily = "currency_usd"
	PatternCurrencySign  PatternFamily = "currency_symbol"
	PatternDateISO       PatternFamily = "date_iso"
	PatternDateUS        PatternFamily = "date_us"
	PatternDateEuropean  PatternFamily = "date_european"
	PatternDatetimeISO   PatternFamily = "datetime_iso"
	PatternTime12h       PatternFamily = "time_12h"
	PatternTime24h       PatternFamily = "time_24h"
	PatternEmail         PatternFamily = "email"
	PatternPhone         PatternFamily = "phone"
	PatternSKU           PatternFamily = "sku"
	PatternUPC           PatternFamily = "upc"
	PatternPercentage    PatternFamily = "percentage"
	PatternQuantityUnits PatternFamily = "quantity_with_unit"
)

// Transform describes how raw values of a pattern become clean values.
type Transform struct {
	Type   string            `json:"type"`
	Params map[string]string `json:"params,omitempty"`
}

// PatternMatch is one family that cleared its threshold.
type PatternMatch struct {
	Family         PatternFamily `json:"pattern"`
	Confidence     float64       `json:"confidence"`
	SuggestedField string        `json:"suggested_field,omitempty"`
	Transform      *Transform    `json:"transformation,omitempty"`
}

// PatternSignal is the outcome of DetectPattern.
type PatternSignal struct {
	Patterns []PatternMatch `json:"patterns"`
	Primary  *PatternMatch  `json:"primary,omitempty"`
}

// MatchMethod names how a header matched an alias.
type MatchMethod string

const (
	MethodExact       MatchMethod = "exact"
	MethodLevenshtein MatchMethod = "levenshtein"
	MethodNGram       MatchMethod = "ngram"
	MethodSubstring   MatchMethod = "substring"
)

// HeaderMatch is a scored header to field candidate.
type HeaderMatch struct {
	Field  string      `json:"field"`
	Score  float64     `json:"score"`
	Method MatchMethod `json:"method"`
	Alias  string      `json:"alias"`
}
