package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// ImportMappingLearning is a vote that a column (or a whole header set, via
// HeaderFingerprint) resolves to TargetField for EntityType.
type ImportMappingLearning struct {
	ID                uuid.UUID `json:"id"`
	ColumnName        string    `json:"column_name"`
	TargetField       string    `json:"target_field"`
	EntityType        string    `json:"entity_type"`
	HeaderFingerprint string    `json:"header_fingerprint,omitempty"`
	SuccessCount      int       `json:"success_count"`
	FailedSuggestions []string  `json:"failed_suggestions,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewImportMappingLearning creates a learning record with no successes yet.
func NewImportMappingLearning(column, field, entityType string) *ImportMappingLearning {
	now := time.Now()
	return &ImportMappingLearning{
		ID:          uuid.New(),
		ColumnName:  column,
		TargetField: field,
		EntityType:  entityType,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IncrementSuccess records one more confirmation.
func (l *ImportMappingLearning) IncrementSuccess() {
	l.SuccessCount++
	l.UpdatedAt = time.Now()
}

// Confidence saturates at ten confirmations.
func (l *ImportMappingLearning) Confidence() float64 {
	return math.Min(1, float64(l.SuccessCount)/10)
}
