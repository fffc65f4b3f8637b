package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rpattn/tabimport/internal/domain"
)

type mappingLearningRepository struct {
	q querier
}

const learningColumns = `id, column_name, target_field, entity_type, header_fingerprint, success_count, failed_suggestions, created_at, updated_at`

func (r *mappingLearningRepository) FindByColumn(ctx context.Context, column, entityType string) ([]domain.ImportMappingLearning, error) {
	return r.list(ctx,
		`SELECT `+learningColumns+` FROM import_mapping_learnings
		 WHERE column_name = $1 AND entity_type = $2
		 ORDER BY success_count DESC, target_field`,
		column, entityType)
}

func (r *mappingLearningRepository) FindByFingerprint(ctx context.Context, fingerprint string) ([]domain.ImportMappingLearning, error) {
	if fingerprint == "" {
		return nil, nil
	}
	return r.list(ctx,
		`SELECT `+learningColumns+` FROM import_mapping_learnings
		 WHERE header_fingerprint = $1
		 ORDER BY success_count DESC, target_field`,
		fingerprint)
}

// Save upserts on the natural key so concurrent confirmations add up.
func (r *mappingLearningRepository) Save(ctx context.Context, l *domain.ImportMappingLearning) error {
	failed, err := json.Marshal(l.FailedSuggestions)
	if err != nil {
		return fmt.Errorf("failed to marshal failed suggestions: %w", err)
	}
	err = r.q.QueryRow(ctx,
		`INSERT INTO import_mapping_learnings (`+learningColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (column_name, entity_type, target_field, header_fingerprint) DO UPDATE SET
		   success_count = GREATEST(import_mapping_learnings.success_count, EXCLUDED.success_count),
		   failed_suggestions = EXCLUDED.failed_suggestions,
		   updated_at = now()
		 RETURNING id, success_count`,
		l.ID, l.ColumnName, l.TargetField, l.EntityType, l.HeaderFingerprint, l.SuccessCount,
		string(failed), l.CreatedAt, l.UpdatedAt,
	).Scan(&l.ID, &l.SuccessCount)
	if err != nil {
		return fmt.Errorf("failed to save mapping learning: %w", err)
	}
	return nil
}

func (r *mappingLearningRepository) list(ctx context.Context, sql string, args ...any) ([]domain.ImportMappingLearning, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mapping learnings: %w", err)
	}
	defer rows.Close()

	out := []domain.ImportMappingLearning{}
	for rows.Next() {
		var (
			l      domain.ImportMappingLearning
			failed []byte
		)
		if err := rows.Scan(&l.ID, &l.ColumnName, &l.TargetField, &l.EntityType, &l.HeaderFingerprint,
			&l.SuccessCount, &failed, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mapping learning: %w", err)
		}
		if len(failed) > 0 {
			if err := json.Unmarshal(failed, &l.FailedSuggestions); err != nil {
				return nil, fmt.Errorf("failed to unmarshal failed suggestions: %w", err)
			}
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mapping learnings: %w", err)
	}
	return out, nil
}
