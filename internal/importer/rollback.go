package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/mapping"
	"github.com/rpattn/tabimport/internal/repository"
)

// DefaultPreviewRows is the preview size used when none is given.
const DefaultPreviewRows = 10

// Rollback deletes what a finished batch created, newest dependents first.
// Entities still referenced by anything the rollback keeps are left alone.
func (s *Service) Rollback(ctx context.Context, batchID uuid.UUID) domain.Result {
	batch, err := s.store.Batches().GetByID(ctx, batchID)
	if err != nil {
		return lookupFailure(batchID, err)
	}
	if !batch.CanRollback() {
		return domain.Failed(fmt.Sprintf("Batch cannot be rolled back while %s", batch.Status), domain.BatchData(&batch))
	}
	logger := s.logger.With("batch_id", batchID)

	deleted := map[domain.EntityKind]int{}
	skipped := map[domain.EntityKind]int{}
	err = s.store.WithTx(ctx, func(tx repository.Store) error {
		clear(deleted)
		clear(skipped)
		entities := tx.Entities()
		for _, kind := range domain.RollbackOrder() {
			list, err := entities.ListByBatch(ctx, batchID, kind)
			if err != nil {
				return fmt.Errorf("failed to list %s: %w", kind, err)
			}
			for _, e := range list {
				keep, err := stillReferenced(ctx, entities, e.ID, batchID)
				if err != nil {
					return err
				}
				if keep {
					skipped[kind]++
					continue
				}
				if err := entities.Delete(ctx, e.ID); err != nil {
					return fmt.Errorf("failed to delete %s %s: %w", kind, e.ID, err)
				}
				deleted[kind]++
			}
		}
		rolled := batch
		if err := rolled.Transition(domain.BatchRolledBack); err != nil {
			return err
		}
		rolled.Metadata["rollback_deleted"] = total(deleted)
		if err := tx.Batches().Update(ctx, rolled); err != nil {
			return fmt.Errorf("failed to update batch: %w", err)
		}
		batch = rolled
		return nil
	})
	s.store.ClearCache()
	if err != nil {
		logger.Error("rollback failed", "error", err)
		return domain.Failed("Rollback failed: "+err.Error(), domain.BatchData(&batch))
	}

	data := domain.BatchData(&batch)
	data.Deleted = deleted
	data.Extra = map[string]any{
		"skipped":            skipped,
		"receivings_deleted": 0,
	}
	logger.Info("batch rolled back", "deleted", total(deleted), "skipped", total(skipped))
	return domain.Succeeded(fmt.Sprintf("Rolled back %d entities, kept %d still in use", total(deleted), total(skipped)), data)
}

// stillReferenced is true when something outside the batch, or a batch
// entity the rollback kept, points at id.
func stillReferenced(ctx context.Context, entities repository.EntityStore, id, batchID uuid.UUID) (bool, error) {
	external, err := entities.HasExternalReferences(ctx, id, batchID)
	if err != nil || external {
		return external, err
	}
	return entities.IsReferenced(ctx, id)
}

func total(m map[domain.EntityKind]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}

func lookupFailure(batchID uuid.UUID, err error) domain.Result {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Failed(fmt.Sprintf("Import batch %s not found", batchID), domain.ResultData{})
	}
	return domain.Failed("Failed to load import batch", domain.ResultData{}, err.Error())
}

// Status reports a batch's counters and whether it can be rolled back.
func (s *Service) Status(ctx context.Context, batchID uuid.UUID) domain.Result {
	batch, err := s.store.Batches().GetByID(ctx, batchID)
	if err != nil {
		return lookupFailure(batchID, err)
	}
	data := domain.BatchData(&batch)
	stored, err := s.store.Errors().CountByBatch(ctx, batchID)
	if err != nil {
		return domain.Failed("Failed to count import errors", data, err.Error())
	}
	data.Extra = map[string]any{
		"name":          batch.Name,
		"source_file":   batch.SourceFile,
		"stored_errors": stored,
		"metadata":      batch.Metadata,
		"created_at":    batch.CreatedAt,
	}
	if batch.StartedAt != nil {
		data.Extra["started_at"] = *batch.StartedAt
	}
	if batch.CompletedAt != nil {
		data.Extra["completed_at"] = *batch.CompletedAt
	}
	return domain.Succeeded(fmt.Sprintf("Batch is %s", batch.Status), data)
}

// Errors pages through the stored errors of a batch.
func (s *Service) Errors(ctx context.Context, batchID uuid.UUID, limit, offset int) ([]domain.ImportError, error) {
	errs, err := s.store.Errors().ListByBatch(ctx, batchID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list errors of batch %s: %w", batchID, err)
	}
	return errs, nil
}

// Suggest parses a file and proposes a mapping for it.
func (s *Service) Suggest(ctx context.Context, req Request) (*mapping.Suggestion, *Table, error) {
	if req.Data == nil {
		return nil, nil, errors.New("no file data supplied")
	}
	table, err := ParseTable(req.FileName, req.Data)
	if err != nil {
		return nil, nil, err
	}
	sug, err := s.synth.Suggest(ctx, table.Headers, sampleRows(table))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to suggest mapping: %w", err)
	}
	return sug, table, nil
}

// Preview shows how the first rows of a file would be imported without
// writing anything.
func (s *Service) Preview(ctx context.Context, req Request, maxRows int) domain.Result {
	if maxRows <= 0 {
		maxRows = DefaultPreviewRows
	}
	sug, table, err := s.Suggest(ctx, req)
	if err != nil {
		return domain.Failed("Failed to preview file: "+err.Error(), domain.ResultData{})
	}
	m := req.Mapping
	if m == nil {
		m = sug.ToMapping(req.Name)
	}

	tr := NewTransformer(m)
	preview := make([]map[string]any, 0, min(maxRows, len(table.Rows)))
	for _, row := range table.Rows[:min(maxRows, len(table.Rows))] {
		fields, errs := tr.Apply(row.Values)
		entry := map[string]any{"line": row.Line, "fields": fields.Properties()}
		if len(errs) > 0 {
			msgs := make([]string, len(errs))
			for i, e := range errs {
				msgs[i] = e.Error()
			}
			entry["errors"] = msgs
		}
		preview = append(preview, entry)
	}
	validation := NewValidator(m).Validate(table.Rows, uuid.Nil)

	data := domain.ResultData{
		TotalRows:  len(table.Rows),
		Mapping:    m,
		Preview:    preview,
		Validation: &validation.Report,
		Extra: map[string]any{
			"headers":    table.Headers,
			"suggestion": sug,
			"supported":  Supported(m.EntityType),
		},
	}
	if s.runner != nil {
		extraction := s.runner.RunAll(table.Records(), table.Headers, m)
		data.Extra["master_data"] = map[string]any{
			"counts":    extraction.Counts(),
			"warnings":  truncate(extraction.Warnings, maxWarningsKept),
			"conflicts": extraction.Conflicts,
		}
	}
	return domain.Succeeded(fmt.Sprintf("Previewing %d of %d rows as %s", len(preview), len(table.Rows), m.EntityType), data)
}
