package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Transformation names a value conversion applied to a mapped column.
type Transformation struct {
	Type   string            `json:"type" yaml:"type"`
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// Param returns a transformation parameter or the fallback.
func (t *Transformation) Param(key, fallback string) string {
	if t == nil || t.Params == nil {
		return fallback
	}
	if v, ok := t.Params[key]; ok && v != "" {
		return v
	}
	return fallback
}

// FieldMapping assigns one source column to a target field.
type FieldMapping struct {
	Column         string          `json:"column" yaml:"column"`
	TargetField    string          `json:"target_field" yaml:"target_field"`
	Transformation *Transformation `json:"transformation,omitempty" yaml:"transformation,omitempty"`
	Confidence     *float64        `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Source         string          `json:"source,omitempty" yaml:"source,omitempty"`
}

// ValidationRule is a declarative per-field check.
type ValidationRule struct {
	Rule     string   `json:"rule" yaml:"rule"`
	Value    string   `json:"value,omitempty" yaml:"value,omitempty"`
	Values   []string `json:"values,omitempty" yaml:"values,omitempty"`
	Severity Severity `json:"severity,omitempty" yaml:"severity,omitempty"`
	Message  string   `json:"message,omitempty" yaml:"message,omitempty"`
}

// ImportMapping is a reusable column to field configuration.
type ImportMapping struct {
	ID               uuid.UUID                   `json:"id" yaml:"id"`
	Name             string                      `json:"name" yaml:"name"`
	Description      string                      `json:"description,omitempty" yaml:"description,omitempty"`
	EntityType       string                      `json:"entity_type" yaml:"entity_type"`
	FieldMappings    []FieldMapping              `json:"field_mappings" yaml:"field_mappings"`
	DefaultValues    map[string]string           `json:"default_values,omitempty" yaml:"default_values,omitempty"`
	ValidationRules  map[string][]ValidationRule `json:"validation_rules,omitempty" yaml:"validation_rules,omitempty"`
	Options          map[string]string           `json:"options,omitempty" yaml:"options,omitempty"`
	IsActive         bool                        `json:"is_active" yaml:"is_active"`
	IsSystemTemplate bool                        `json:"is_system_template" yaml:"is_system_template"`
	CreatedBy        string                      `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	CreatedAt        time.Time                   `json:"created_at" yaml:"created_at"`
	UpdatedAt        time.Time                   `json:"updated_at" yaml:"updated_at"`
}

// NewImportMapping creates an active mapping.
func NewImportMapping(name, entityType string, fields []FieldMapping) *ImportMapping {
	now := time.Now()
	return &ImportMapping{
		ID:            uuid.New(),
		Name:          name,
		EntityType:    entityType,
		FieldMappings: append([]FieldMapping(nil), fields...),
		DefaultValues: map[string]string{},
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// WithName returns a copy carrying a new name. The name is the only attribute
// that may change once a batch has consumed the mapping.
func (m ImportMapping) WithName(name string) ImportMapping {
	m.Name = name
	m.UpdatedAt = time.Now()
	return m
}

// FieldFor returns the mapping for a source column.
func (m *ImportMapping) FieldFor(column string) (FieldMapping, bool) {
	if m == nil {
		return FieldMapping{}, false
	}
	for _, fm := range m.FieldMappings {
		if fm.Column == column {
			return fm, true
		}
	}
	return FieldMapping{}, false
}

// ColumnFor returns the source column mapped to a target field.
func (m *ImportMapping) ColumnFor(field string) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, fm := range m.FieldMappings {
		if fm.TargetField == field {
			return fm.Column, true
		}
	}
	return "", false
}

// MappedFields lists target fields in sorted order.
func (m *ImportMapping) MappedFields() []string {
	if m == nil {
		return nil
	}
	fields := make([]string, 0, len(m.FieldMappings))
	for _, fm := range m.FieldMappings {
		fields = append(fields, fm.TargetField)
	}
	sort.Strings(fields)
	return fields
}

// IsMapped reports whether some column targets the field.
func (m *ImportMapping) IsMapped(field string) bool {
	_, ok := m.ColumnFor(field)
	return ok
}

// Option returns an extractor option or the fallback.
func (m *ImportMapping) Option(key, fallback string) string {
	if m == nil || m.Options == nil {
		return fallback
	}
	if v, ok := m.Options[key]; ok && v != "" {
		return v
	}
	return fallback
}
