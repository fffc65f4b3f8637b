package mapping

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/signal"
)

// ErrNoLearningStore is returned when feedback is recorded on a synthesizer
// without a learning store.
var ErrNoLearningStore = errors.New("no learning store configured")

// RecordCorrection records that a user resolved column to field. The vote is
// keyed by normalized column, entity type and field; a repeat correction
// increments the existing record.
func (s *Synthesizer) RecordCorrection(ctx context.Context, column, field, entityType string) (*domain.ImportMappingLearning, error) {
	return s.vote(ctx, column, field, entityType, "")
}

// ConfirmMapping records one fingerprinted vote per mapped column so the same
// header set is recognised next time.
func (s *Synthesizer) ConfirmMapping(ctx context.Context, headers []string, m *domain.ImportMapping) error {
	if m == nil {
		return errors.New("confirm mapping: nil mapping")
	}
	fp := Fingerprint(headers)
	for _, fm := range m.FieldMappings {
		if _, err := s.vote(ctx, fm.Column, fm.TargetField, m.EntityType, fp); err != nil {
			return err
		}
	}
	s.logger.Info("mapping confirmed", "mapping", m.Name, "columns", len(m.FieldMappings), "fingerprint", fp)
	return nil
}

func (s *Synthesizer) vote(ctx context.Context, column, field, entityType, fingerprint string) (*domain.ImportMappingLearning, error) {
	if s.learnings == nil {
		return nil, ErrNoLearningStore
	}
	norm := signal.NormalizeHeader(column)
	if norm == "" || field == "" {
		return nil, fmt.Errorf("record learning: column and field are required")
	}

	existing, err := s.learnings.FindByColumn(ctx, norm, entityType)
	if err != nil {
		return nil, fmt.Errorf("find learning for %q: %w", column, err)
	}
	var l *domain.ImportMappingLearning
	for i := range existing {
		if existing[i].TargetField == field && existing[i].HeaderFingerprint == fingerprint {
			l = &existing[i]
			break
		}
	}
	if l == nil {
		l = domain.NewImportMappingLearning(norm, field, entityType)
		l.HeaderFingerprint = fingerprint
	}
	l.IncrementSuccess()

	if err := s.learnings.Save(ctx, l); err != nil {
		return nil, fmt.Errorf("save learning for %q: %w", column, err)
	}
	return l, nil
}
