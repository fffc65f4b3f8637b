package mapping

import (
	"fmt"
	"io"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/rpattn/tabimport/internal/domain"
)

// SaveTemplate writes a mapping as a YAML template.
func SaveTemplate(w io.Writer, m *domain.ImportMapping) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode mapping template: %w", err)
	}
	return enc.Close()
}

// LoadTemplate reads a YAML mapping template. The entity type and at least one
// field mapping are required.
func LoadTemplate(r io.Reader) (*domain.ImportMapping, error) {
	var m domain.ImportMapping
	if err := yaml.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("decode mapping template: %w", err)
	}
	if m.EntityType == "" {
		return nil, fmt.Errorf("mapping template %q: entity_type is required", m.Name)
	}
	if len(m.FieldMappings) == 0 {
		return nil, fmt.Errorf("mapping template %q: no field mappings", m.Name)
	}
	for i, fm := range m.FieldMappings {
		if fm.Column == "" || fm.TargetField == "" {
			return nil, fmt.Errorf("mapping template %q: field mapping %d needs column and target_field", m.Name, i)
		}
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.DefaultValues == nil {
		m.DefaultValues = map[string]string{}
	}
	m.IsActive = true
	return &m, nil
}
