package repository

import (
	"context"
	"fmt"

	"github.com/rpattn/tabimport/internal/detect"
)

type vendorFingerprintRepository struct {
	q querier
}

func (r *vendorFingerprintRepository) Add(ctx context.Context, vendorID string, kind detect.SignalKind, value string) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO vendor_fingerprints (vendor_id, kind, value)
		 VALUES ($1, $2, $3)
		 ON CONFLICT DO NOTHING`,
		vendorID, string(kind), detect.NormalizeFingerprint(kind, value))
	if err != nil {
		return fmt.Errorf("failed to add vendor fingerprint: %w", err)
	}
	return nil
}

// Lookup implements detect.FingerprintIndex. Phone numbers compare on their
// last ten digits.
func (r *vendorFingerprintRepository) Lookup(ctx context.Context, kind detect.SignalKind, value string) ([]string, error) {
	value = detect.NormalizeFingerprint(kind, value)
	query := `SELECT DISTINCT vendor_id FROM vendor_fingerprints WHERE kind = $1 AND value = $2 ORDER BY vendor_id`
	if kind == detect.SignalPhone {
		query = `SELECT DISTINCT vendor_id FROM vendor_fingerprints
		         WHERE kind = $1 AND right(value, 10) = right($2, 10)
		         ORDER BY vendor_id`
	}
	rows, err := r.q.Query(ctx, query, string(kind), value)
	if err != nil {
		return nil, fmt.Errorf("failed to look up vendor fingerprint: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan vendor id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
