package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/tabimport/internal/domain"
)

// entityRepository implements EntityStore over the entities table. Fetched
// rows are kept in an identity cache until the store's ClearCache.
type entityRepository struct {
	q     querier
	cache *lru.Cache[uuid.UUID, domain.Entity]
}

const entityColumns = `id, kind, natural_key, name, properties, batch_id, created_at, updated_at`

// Create inserts a new entity
func (r *entityRepository) Create(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	if strings.TrimSpace(string(entity.Kind)) == "" {
		return domain.Entity{}, fmt.Errorf("failed to create entity: kind is required")
	}
	propertiesJSON, err := entity.GetPropertiesAsJSONB()
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to marshal properties: %w", err)
	}

	row := r.q.QueryRow(ctx,
		`INSERT INTO entities (id, kind, natural_key, name, properties, batch_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+entityColumns,
		entity.ID,
		string(entity.Kind),
		nullableText(entity.NaturalKey),
		entity.Name,
		string(propertiesJSON),
		entity.BatchID,
	)
	created, err := scanEntity(row)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to create entity: %w", err)
	}
	r.remember(created)
	return created, nil
}

// GetByID retrieves an entity by ID, from the identity cache when possible
func (r *entityRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Entity, error) {
	if r.cache != nil {
		if e, ok := r.cache.Get(id); ok {
			return e, nil
		}
	}
	row := r.q.QueryRow(ctx, `SELECT `+entityColumns+` FROM entities WHERE id = $1`, id)
	e, err := scanEntity(row)
	if err != nil {
		return domain.Entity{}, notFound(err, "get entity %s", id)
	}
	r.remember(e)
	return e, nil
}

// FindByNaturalKey looks an entity up by its kind-scoped business key
func (r *entityRepository) FindByNaturalKey(ctx context.Context, kind domain.EntityKind, naturalKey string) (domain.Entity, error) {
	row := r.q.QueryRow(ctx,
		`SELECT `+entityColumns+` FROM entities WHERE kind = $1 AND natural_key = $2`,
		string(kind), naturalKey)
	e, err := scanEntity(row)
	if err != nil {
		return domain.Entity{}, notFound(err, "find %s %q", kind, naturalKey)
	}
	r.remember(e)
	return e, nil
}

// Update replaces name, natural key and properties of an entity
func (r *entityRepository) Update(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	propertiesJSON, err := entity.GetPropertiesAsJSONB()
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to marshal properties: %w", err)
	}
	row := r.q.QueryRow(ctx,
		`UPDATE entities
		 SET natural_key = $2, name = $3, properties = $4, updated_at = now()
		 WHERE id = $1
		 RETURNING `+entityColumns,
		entity.ID,
		nullableText(entity.NaturalKey),
		entity.Name,
		string(propertiesJSON),
	)
	updated, err := scanEntity(row)
	if err != nil {
		return domain.Entity{}, notFound(err, "update entity %s", entity.ID)
	}
	r.remember(updated)
	return updated, nil
}

// Delete removes an entity and the references it holds
func (r *entityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM entities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete entity %s: %w", id, ErrNotFound)
	}
	if r.cache != nil {
		r.cache.Remove(id)
	}
	return nil
}

func (r *entityRepository) AddReference(ctx context.Context, ref domain.EntityReference) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO entity_references (from_id, to_id, relation)
		 VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		ref.FromID, ref.ToID, ref.Relation)
	if err != nil {
		return fmt.Errorf("failed to add entity reference: %w", err)
	}
	return nil
}

func (r *entityRepository) HasExternalReferences(ctx context.Context, id uuid.UUID, batchID uuid.UUID) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1
		   FROM entity_references ref
		   JOIN entities src ON src.id = ref.from_id
		   WHERE ref.to_id = $1
		     AND (src.batch_id IS NULL OR src.batch_id <> $2)
		 )`,
		id, batchID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check references of %s: %w", id, err)
	}
	return exists, nil
}

func (r *entityRepository) IsReferenced(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM entity_references WHERE to_id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check references of %s: %w", id, err)
	}
	return exists, nil
}

func (r *entityRepository) ListByBatch(ctx context.Context, batchID uuid.UUID, kind domain.EntityKind) ([]domain.Entity, error) {
	rows, err := r.q.Query(ctx,
		`SELECT `+entityColumns+` FROM entities
		 WHERE batch_id = $1 AND kind = $2
		 ORDER BY created_at`,
		batchID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s entities: %w", kind, err)
	}
	defer rows.Close()

	entities := []domain.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entities: %w", err)
	}
	return entities, nil
}

func (r *entityRepository) CountByBatch(ctx context.Context, batchID uuid.UUID) (map[domain.EntityKind]int, error) {
	rows, err := r.q.Query(ctx,
		`SELECT kind, COUNT(*) FROM entities WHERE batch_id = $1 GROUP BY kind`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to count batch entities: %w", err)
	}
	defer rows.Close()

	counts := map[domain.EntityKind]int{}
	for rows.Next() {
		var (
			kind  string
			count int64
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("failed to scan entity count: %w", err)
		}
		counts[domain.EntityKind(kind)] = int(count)
	}
	return counts, rows.Err()
}

func (r *entityRepository) CountByKind(ctx context.Context, kind domain.EntityKind) (int, error) {
	var count int64
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM entities WHERE kind = $1`, string(kind)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count %s entities: %w", kind, err)
	}
	return int(count), nil
}

func (r *entityRepository) remember(e domain.Entity) {
	if r.cache != nil {
		r.cache.Add(e.ID, e)
	}
}

func scanEntity(row pgx.Row) (domain.Entity, error) {
	var (
		e          domain.Entity
		kind       string
		naturalKey *string
		props      []byte
		batchID    *uuid.UUID
		createdAt  time.Time
		updatedAt  time.Time
	)
	if err := row.Scan(&e.ID, &kind, &naturalKey, &e.Name, &props, &batchID, &createdAt, &updatedAt); err != nil {
		return domain.Entity{}, err
	}
	properties := map[string]any{}
	if len(props) > 0 {
		if err := json.Unmarshal(props, &properties); err != nil {
			return domain.Entity{}, fmt.Errorf("failed to unmarshal properties: %w", err)
		}
	}
	e.Kind = domain.EntityKind(kind)
	if naturalKey != nil {
		e.NaturalKey = *naturalKey
	}
	e.Properties = properties
	e.BatchID = batchID
	e.CreatedAt = createdAt
	e.UpdatedAt = updatedAt
	return e, nil
}

func nullableText(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
