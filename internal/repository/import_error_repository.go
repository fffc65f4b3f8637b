package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rpattn/tabimport/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type importErrorRepository struct {
	q querier
}

func (r *importErrorRepository) Record(ctx context.Context, entry domain.ImportError) error {
	if r.q == nil {
		return fmt.Errorf("import error repository not initialized")
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	var rowNumber any
	if entry.RowNumber > 0 {
		rowNumber = entry.RowNumber
	}
	rowData, err := json.Marshal(entry.RowData)
	if err != nil {
		return fmt.Errorf("failed to marshal row snapshot: %w", err)
	}

	_, err = r.q.Exec(
		ctx,
		`INSERT INTO import_errors (id, batch_id, row_number, error_type, severity, field_name, message, row_data, suggested_fix)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID,
		entry.BatchID,
		rowNumber,
		string(entry.ErrorType),
		string(entry.Severity),
		entry.FieldName,
		entry.Message,
		string(rowData),
		entry.SuggestedFix,
	)
	if err != nil {
		return fmt.Errorf("failed to record import error: %w", err)
	}

	return nil
}

func (r *importErrorRepository) ListByBatch(ctx context.Context, batchID uuid.UUID, limit int, offset int) ([]domain.ImportError, error) {
	if r.q == nil {
		return nil, fmt.Errorf("import error repository not initialized")
	}

	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.q.Query(
		ctx,
		`SELECT id, batch_id, row_number, error_type, severity, field_name, message, row_data, suggested_fix, created_at
		 FROM import_errors
		 WHERE batch_id = $1
		 ORDER BY row_number NULLS LAST, created_at
		 LIMIT $2 OFFSET $3`,
		batchID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import errors: %w", err)
	}
	defer rows.Close()

	entries := []domain.ImportError{}
	for rows.Next() {
		var (
			entry     domain.ImportError
			rowNumber pgtype.Int4
			errType   string
			severity  string
			rowData   []byte
			createdAt pgtype.Timestamptz
		)
		if scanErr := rows.Scan(
			&entry.ID,
			&entry.BatchID,
			&rowNumber,
			&errType,
			&severity,
			&entry.FieldName,
			&entry.Message,
			&rowData,
			&entry.SuggestedFix,
			&createdAt,
		); scanErr != nil {
			return nil, fmt.Errorf("failed to scan import error: %w", scanErr)
		}

		entry.ErrorType = domain.ErrorType(errType)
		entry.Severity = domain.Severity(severity)
		if rowNumber.Valid {
			entry.RowNumber = int(rowNumber.Int32)
		}
		if len(rowData) > 0 {
			if err := json.Unmarshal(rowData, &entry.RowData); err != nil {
				return nil, fmt.Errorf("failed to unmarshal row snapshot: %w", err)
			}
		}
		if createdAt.Valid {
			entry.CreatedAt = createdAt.Time
		}

		entries = append(entries, entry)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate import errors: %w", rowsErr)
	}

	return entries, nil
}

func (r *importErrorRepository) CountByBatch(ctx context.Context, batchID uuid.UUID) (int, error) {
	var count int64
	if err := r.q.QueryRow(ctx, `SELECT COUNT(*) FROM import_errors WHERE batch_id = $1`, batchID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count import errors: %w", err)
	}
	return int(count), nil
}
