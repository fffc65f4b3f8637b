package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rpattn/tabimport/internal/domain"
)

type importBatchRepository struct {
	q querier
}

const batchColumns = `id, name, status, mapping_id, source_file, total_rows, processed_rows, successful_rows, failed_rows,
	entity_counts, error_summary, metadata, created_by, started_at, completed_at, created_at, updated_at`

func (r *importBatchRepository) Create(ctx context.Context, b domain.ImportBatch) error {
	counts, summary, meta, err := marshalBatchJSON(b)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx,
		`INSERT INTO import_batches (`+batchColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		b.ID, b.Name, string(b.Status), b.MappingID, b.SourceFile,
		b.TotalRows, b.ProcessedRows, b.SuccessfulRows, b.FailedRows,
		counts, summary, meta, b.CreatedBy, b.StartedAt, b.CompletedAt, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create import batch: %w", err)
	}
	return nil
}

func (r *importBatchRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ImportBatch, error) {
	b, err := scanBatch(r.q.QueryRow(ctx, `SELECT `+batchColumns+` FROM import_batches WHERE id = $1`, id))
	if err != nil {
		return domain.ImportBatch{}, notFound(err, "get import batch %s", id)
	}
	return b, nil
}

// Update persists status, counters and summaries. Counters never decrease: the
// stored value wins when it is ahead of the caller's copy.
func (r *importBatchRepository) Update(ctx context.Context, b domain.ImportBatch) error {
	counts, summary, meta, err := marshalBatchJSON(b)
	if err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx,
		`UPDATE import_batches SET
		   name = $2,
		   status = $3,
		   mapping_id = $4,
		   total_rows = $5,
		   processed_rows = GREATEST(processed_rows, $6),
		   successful_rows = GREATEST(successful_rows, $7),
		   failed_rows = GREATEST(failed_rows, $8),
		   entity_counts = $9,
		   error_summary = $10,
		   metadata = $11,
		   started_at = $12,
		   completed_at = $13,
		   updated_at = now()
		 WHERE id = $1`,
		b.ID, b.Name, string(b.Status), b.MappingID, b.TotalRows,
		b.ProcessedRows, b.SuccessfulRows, b.FailedRows,
		counts, summary, meta, b.StartedAt, b.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update import batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update import batch %s: %w", b.ID, ErrNotFound)
	}
	return nil
}

func (r *importBatchRepository) List(ctx context.Context, limit int, offset int) ([]domain.ImportBatch, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.q.Query(ctx,
		`SELECT `+batchColumns+` FROM import_batches ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list import batches: %w", err)
	}
	defer rows.Close()

	batches := []domain.ImportBatch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import batch: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate import batches: %w", err)
	}
	return batches, nil
}

func marshalBatchJSON(b domain.ImportBatch) (string, *string, string, error) {
	counts, err := json.Marshal(orEmpty(b.EntityCounts))
	if err != nil {
		return "", nil, "", fmt.Errorf("failed to marshal entity counts: %w", err)
	}
	var summary *string
	if b.ErrorSummary != nil {
		raw, err := json.Marshal(b.ErrorSummary)
		if err != nil {
			return "", nil, "", fmt.Errorf("failed to marshal error summary: %w", err)
		}
		s := string(raw)
		summary = &s
	}
	meta, err := json.Marshal(orEmpty(b.Metadata))
	if err != nil {
		return "", nil, "", fmt.Errorf("failed to marshal batch metadata: %w", err)
	}
	return string(counts), summary, string(meta), nil
}

func orEmpty[V any](m map[string]V) map[string]V {
	if m == nil {
		return map[string]V{}
	}
	return m
}

func scanBatch(row pgx.Row) (domain.ImportBatch, error) {
	var (
		b           domain.ImportBatch
		status      string
		counts      []byte
		summary     []byte
		meta        []byte
		startedAt   *time.Time
		completedAt *time.Time
	)
	err := row.Scan(
		&b.ID, &b.Name, &status, &b.MappingID, &b.SourceFile,
		&b.TotalRows, &b.ProcessedRows, &b.SuccessfulRows, &b.FailedRows,
		&counts, &summary, &meta, &b.CreatedBy, &startedAt, &completedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return domain.ImportBatch{}, err
	}
	b.Status = domain.BatchStatus(status)
	b.StartedAt = startedAt
	b.CompletedAt = completedAt
	b.EntityCounts = map[string]int{}
	if len(counts) > 0 {
		if err := json.Unmarshal(counts, &b.EntityCounts); err != nil {
			return domain.ImportBatch{}, fmt.Errorf("failed to unmarshal entity counts: %w", err)
		}
	}
	if len(summary) > 0 {
		b.ErrorSummary = domain.NewErrorSummary()
		if err := json.Unmarshal(summary, b.ErrorSummary); err != nil {
			return domain.ImportBatch{}, fmt.Errorf("failed to unmarshal error summary: %w", err)
		}
	}
	b.Metadata = map[string]any{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &b.Metadata); err != nil {
			return domain.ImportBatch{}, fmt.Errorf("failed to unmarshal batch metadata: %w", err)
		}
	}
	return b, nil
}
