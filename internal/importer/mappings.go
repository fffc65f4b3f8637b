package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/repository"
)

// ErrMappingNotFound is returned when no saved mapping has the given name.
var ErrMappingNotFound = errors.New("mapping not found")

// SaveMapping stores a mapping for reuse. A mapping with the same name is
// replaced, keeping its id.
func (s *Service) SaveMapping(ctx context.Context, m *domain.ImportMapping) error {
	if m == nil || m.Name == "" {
		return errors.New("mapping needs a name to be saved")
	}
	existing, err := s.store.Mappings().GetByName(ctx, m.Name)
	switch {
	case err == nil:
		m.ID = existing.ID
		m.CreatedAt = existing.CreatedAt
	case errors.Is(err, repository.ErrNotFound):
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
	default:
		return fmt.Errorf("failed to look up mapping %q: %w", m.Name, err)
	}
	m.UpdatedAt = time.Now()
	if err := s.store.Mappings().Save(ctx, *m); err != nil {
		return fmt.Errorf("failed to save mapping %q: %w", m.Name, err)
	}
	return nil
}

// Mapping loads a saved mapping by name.
func (s *Service) Mapping(ctx context.Context, name string) (*domain.ImportMapping, error) {
	m, err := s.store.Mappings().GetByName(ctx, name)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrMappingNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mapping %q: %w", name, err)
	}
	return &m, nil
}

// Mappings lists saved mappings, optionally for one entity type.
func (s *Service) Mappings(ctx context.Context, entityType string) ([]domain.ImportMapping, error) {
	ms, err := s.store.Mappings().List(ctx, entityType)
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	return ms, nil
}

// Batches lists recent batches, newest first.
func (s *Service) Batches(ctx context.Context, limit, offset int) ([]domain.ImportBatch, error) {
	bs, err := s.store.Batches().List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return bs, nil
}

// Batch loads one batch.
func (s *Service) Batch(ctx context.Context, id uuid.UUID) (domain.ImportBatch, error) {
	b, err := s.store.Batches().GetByID(ctx, id)
	if err != nil {
		return domain.ImportBatch{}, fmt.Errorf("failed to load batch %s: %w", id, err)
	}
	return b, nil
}
