package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/tabimport/internal/domain"
)

type importMappingRepository struct {
	q querier
}

const mappingColumns = `id, name, description, entity_type, field_mappings, default_values, validation_rules, options,
	is_active, is_system_template, created_by, created_at, updated_at`

// Save inserts or replaces a mapping by id
func (r *importMappingRepository) Save(ctx context.Context, m domain.ImportMapping) error {
	fields, err := json.Marshal(m.FieldMappings)
	if err != nil {
		return fmt.Errorf("failed to marshal field mappings: %w", err)
	}
	defaults, err := json.Marshal(orEmpty(m.DefaultValues))
	if err != nil {
		return fmt.Errorf("failed to marshal default values: %w", err)
	}
	rules, err := json.Marshal(orEmpty(m.ValidationRules))
	if err != nil {
		return fmt.Errorf("failed to marshal validation rules: %w", err)
	}
	options, err := json.Marshal(orEmpty(m.Options))
	if err != nil {
		return fmt.Errorf("failed to marshal mapping options: %w", err)
	}

	_, err = r.q.Exec(ctx,
		`INSERT INTO import_mappings (`+mappingColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name,
		   description = EXCLUDED.description,
		   field_mappings = EXCLUDED.field_mappings,
		   default_values = EXCLUDED.default_values,
		   validation_rules = EXCLUDED.validation_rules,
		   options = EXCLUDED.options,
		   is_active = EXCLUDED.is_active,
		   updated_at = now()`,
		m.ID, m.Name, m.Description, m.EntityType,
		string(fields), string(defaults), string(rules), string(options),
		m.IsActive, m.IsSystemTemplate, m.CreatedBy, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save import mapping: %w", err)
	}
	return nil
}

func (r *importMappingRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ImportMapping, error) {
	m, err := scanMapping(r.q.QueryRow(ctx, `SELECT `+mappingColumns+` FROM import_mappings WHERE id = $1`, id))
	if err != nil {
		return domain.ImportMapping{}, notFound(err, "get import mapping %s", id)
	}
	return m, nil
}

func (r *importMappingRepository) GetByName(ctx context.Context, name string) (domain.ImportMapping, error) {
	m, err := scanMapping(r.q.QueryRow(ctx, `SELECT `+mappingColumns+` FROM import_mappings WHERE name = $1`, name))
	if err != nil {
		return domain.ImportMapping{}, notFound(err, "get import mapping %q", name)
	}
	return m, nil
}

func (r *importMappingRepository) List(ctx context.Context, entityType string) ([]domain.ImportMapping, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+mappingColumns+` FROM import_mappings
		 WHERE ($1 = '' OR entity_type = $1)
		 ORDER BY name`, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to list import mappings: %w", err)
	}
	defer rows.Close()

	mappings := []domain.ImportMapping{}
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import mapping: %w", err)
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func scanMapping(row pgx.Row) (domain.ImportMapping, error) {
	var (
		m                                domain.ImportMapping
		fields, defaults, rules, options []byte
	)
	err := row.Scan(&m.ID, &m.Name, &m.Description, &m.EntityType, &fields, &defaults, &rules, &options,
		&m.IsActive, &m.IsSystemTemplate, &m.CreatedBy, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return domain.ImportMapping{}, err
	}
	for _, part := range []struct {
		raw  []byte
		into any
	}{
		{fields, &m.FieldMappings},
		{defaults, &m.DefaultValues},
		{rules, &m.ValidationRules},
		{options, &m.Options},
	} {
		if len(part.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(part.raw, part.into); err != nil {
			return domain.ImportMapping{}, fmt.Errorf("failed to unmarshal mapping %s: %w", m.Name, err)
		}
	}
	return m, nil
}
