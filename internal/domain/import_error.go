package domain

import (
	"time"

	"github.com/google/uuid"
)

// ErrorType classifies an ImportError.
type ErrorType string

const (
	ErrorValidation     ErrorType = "validation"
	ErrorEntityCreation ErrorType = "entity_creation"
)

// Severity of an ImportError.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ImportError captures one row or chunk level failure.
type ImportError struct {
	ID           uuid.UUID         `json:"id"`
	BatchID      uuid.UUID         `json:"batch_id"`
	RowNumber    int               `json:"row_number"`
	ErrorType    ErrorType         `json:"error_type"`
	Severity     Severity          `json:"severity"`
	FieldName    string            `json:"field_name,omitempty"`
	Message      string            `json:"message"`
	RowData      map[string]string `json:"row_data,omitempty"`
	SuggestedFix string            `json:"suggested_fix,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// ErrorSummary aggregates every error recorded for a batch, including the ones
// dropped by the storage cap.
type ErrorSummary struct {
	Total      int               `json:"total_errors"`
	ByType     map[ErrorType]int `json:"by_type"`
	BySeverity map[Severity]int  `json:"by_severity"`
	Samples    []ImportError     `json:"samples"`
}

// MaxErrorSamples bounds ErrorSummary.Samples.
const MaxErrorSamples = 5

// NewErrorSummary returns an empty summary.
func NewErrorSummary() *ErrorSummary {
	return &ErrorSummary{
		ByType:     map[ErrorType]int{},
		BySeverity: map[Severity]int{},
	}
}

// Add counts one error.
func (s *ErrorSummary) Add(e ImportError) {
	if s.ByType == nil {
		s.ByType = map[ErrorType]int{}
	}
	if s.BySeverity == nil {
		s.BySeverity = map[Severity]int{}
	}
	s.Total++
	s.ByType[e.ErrorType]++
	s.BySeverity[e.Severity]++
	if len(s.Samples) < MaxErrorSamples {
		s.Samples = append(s.Samples, e)
	}
}

// Clone returns a deep copy of the summary.
func (s ErrorSummary) Clone() ErrorSummary {
	out := ErrorSummary{
		Total:      s.Total,
		ByType:     make(map[ErrorType]int, len(s.ByType)),
		BySeverity: make(map[Severity]int, len(s.BySeverity)),
		Samples:    append([]ImportError(nil), s.Samples...),
	}
	for k, v := range s.ByType {
		out.ByType[k] = v
	}
	for k, v := range s.BySeverity {
		out.BySeverity[k] = v
	}
	return out
}
