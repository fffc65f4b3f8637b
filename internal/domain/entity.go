package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entity is a persisted record produced by an import. Domain specifics live in
// Properties; identity and natural key are first-class so the importer can
// deduplicate before and after persistence.
type Entity struct {
	ID         uuid.UUID      `json:"id"`
	Kind       EntityKind     `json:"kind"`
	NaturalKey string         `json:"natural_key"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
	BatchID    *uuid.UUID     `json:"batch_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// NewEntity creates a new entity with immutable pattern
func NewEntity(kind EntityKind, naturalKey, name string, properties map[string]any) Entity {
	now := time.Now()
	return Entity{
		ID:         uuid.New(),
		Kind:       kind,
		NaturalKey: naturalKey,
		Name:       name,
		Properties: copyProperties(properties),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// WithProperty returns a new entity with an added/updated property
func (e Entity) WithProperty(key string, value any) Entity {
	props := copyProperties(e.Properties)
	props[key] = value
	e.Properties = props
	e.UpdatedAt = time.Now()
	return e
}

// Clone returns a copy that shares no property map with e.
func (e Entity) Clone() Entity {
	e.Properties = copyProperties(e.Properties)
	if e.BatchID != nil {
		id := *e.BatchID
		e.BatchID = &id
	}
	return e
}

// WithBatch tags the entity as created by the given batch.
func (e Entity) WithBatch(batchID uuid.UUID) Entity {
	id := batchID
	e.BatchID = &id
	e.Properties = copyProperties(e.Properties)
	return e
}

// StringProperty returns a property as a string, or "" when absent.
func (e Entity) StringProperty(key string) string {
	v, ok := e.Properties[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// FloatProperty returns a numeric property.
func (e Entity) FloatProperty(key string) (float64, bool) {
	switch v := e.Properties[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func (e *Entity) GetPropertiesAsJSONB() (json.RawMessage, error) {
	if e.Properties == nil {
		e.Properties = make(map[string]any)
	}
	return json.Marshal(e.Properties)
}

// FromJSONBProperties creates properties map from JSONB data
func FromJSONBProperties(propertiesJSON json.RawMessage) (map[string]any, error) {
	var properties map[string]any
	err := json.Unmarshal(propertiesJSON, &properties)
	return properties, err
}

// EntityReference records that one entity points at another (an order line at
// its sellable, a stock target at its item). Rollback consults these.
type EntityReference struct {
	FromID   uuid.UUID `json:"from_id"`
	ToID     uuid.UUID `json:"to_id"`
	Relation string    `json:"relation"`
}

// copyProperties creates a shallow copy of the properties map
func copyProperties(properties map[string]any) map[string]any {
	newProperties := make(map[string]any, len(properties))
	for k, v := range properties {
		newProperties[k] = v
	}
	return newProperties
}
