package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/tabimport/internal/detect"
	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/repository"
)

type batches struct{ s *Store }

func (r batches) Create(_ context.Context, b domain.ImportBatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()
	if _, exists := st.batches[b.ID]; exists {
		return fmt.Errorf("failed to create batch: duplicate id %s", b.ID)
	}
	st.batches[b.ID] = cloneBatch(b)
	return nil
}

func (r batches) GetByID(_ context.Context, id uuid.UUID) (domain.ImportBatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.state().batches[id]
	if !ok {
		return domain.ImportBatch{}, fmt.Errorf("batch %s: %w", id, repository.ErrNotFound)
	}
	return cloneBatch(b), nil
}

func (r batches) Update(_ context.Context, b domain.ImportBatch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()
	if _, ok := st.batches[b.ID]; !ok {
		return fmt.Errorf("batch %s: %w", b.ID, repository.ErrNotFound)
	}
	b.UpdatedAt = time.Now()
	st.batches[b.ID] = cloneBatch(b)
	return nil
}

func (r batches) List(_ context.Context, limit int, offset int) ([]domain.ImportBatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]domain.ImportBatch, 0, len(r.s.state().batches))
	for _, b := range r.s.state().batches {
		out = append(out, cloneBatch(b))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return page(out, limit, offset), nil
}

func cloneBatch(b domain.ImportBatch) domain.ImportBatch {
	counts := make(map[string]int, len(b.EntityCounts))
	for k, v := range b.EntityCounts {
		counts[k] = v
	}
	b.EntityCounts = counts
	meta := make(map[string]any, len(b.Metadata))
	for k, v := range b.Metadata {
		meta[k] = v
	}
	b.Metadata = meta
	if b.ErrorSummary != nil {
		sum := b.ErrorSummary.Clone()
		b.ErrorSummary = &sum
	}
	return b
}

type importErrors struct{ s *Store }

func (r importErrors) Record(_ context.Context, e domain.ImportError) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	st := r.s.state()
	st.errors = append(st.errors, e)
	return nil
}

func (r importErrors) ListByBatch(_ context.Context, batchID uuid.UUID, limit int, offset int) ([]domain.ImportError, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ImportError
	for _, e := range r.s.state().errors {
		if e.BatchID == batchID {
			out = append(out, e)
		}
	}
	return page(out, limit, offset), nil
}

func (r importErrors) CountByBatch(_ context.Context, batchID uuid.UUID) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, e := range r.s.state().errors {
		if e.BatchID == batchID {
			n++
		}
	}
	return n, nil
}

type mappings struct{ s *Store }

func (r mappings) Save(_ context.Context, m domain.ImportMapping) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()
	for id, existing := range st.mappings {
		if existing.Name == m.Name && id != m.ID {
			return fmt.Errorf("failed to save mapping: name %q already taken", m.Name)
		}
	}
	m.UpdatedAt = time.Now()
	st.mappings[m.ID] = m
	return nil
}

func (r mappings) GetByID(_ context.Context, id uuid.UUID) (domain.ImportMapping, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.state().mappings[id]
	if !ok {
		return domain.ImportMapping{}, fmt.Errorf("mapping %s: %w", id, repository.ErrNotFound)
	}
	return m, nil
}

func (r mappings) GetByName(_ context.Context, name string) (domain.ImportMapping, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.state().mappings {
		if m.Name == name {
			return m, nil
		}
	}
	return domain.ImportMapping{}, fmt.Errorf("mapping %q: %w", name, repository.ErrNotFound)
}

func (r mappings) List(_ context.Context, entityType string) ([]domain.ImportMapping, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ImportMapping
	for _, m := range r.s.state().mappings {
		if entityType == "" || m.EntityType == entityType {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type learnings struct{ s *Store }

func (r learnings) FindByColumn(_ context.Context, column, entityType string) ([]domain.ImportMappingLearning, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ImportMappingLearning
	for _, l := range r.s.state().learnings {
		if l.ColumnName == column && l.EntityType == entityType {
			out = append(out, l)
		}
	}
	sortLearnings(out)
	return out, nil
}

func (r learnings) FindByFingerprint(_ context.Context, fingerprint string) ([]domain.ImportMappingLearning, error) {
	if fingerprint == "" {
		return nil, nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.ImportMappingLearning
	for _, l := range r.s.state().learnings {
		if l.HeaderFingerprint == fingerprint {
			out = append(out, l)
		}
	}
	sortLearnings(out)
	return out, nil
}

func (r learnings) Save(_ context.Context, l *domain.ImportMappingLearning) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()
	for id, existing := range st.learnings {
		if id != l.ID && existing.ColumnName == l.ColumnName && existing.EntityType == l.EntityType &&
			existing.TargetField == l.TargetField && existing.HeaderFingerprint == l.HeaderFingerprint {
			return fmt.Errorf("failed to save learning: duplicate %s.%s for %q", l.EntityType, l.TargetField, l.ColumnName)
		}
	}
	st.learnings[l.ID] = *l
	return nil
}

func sortLearnings(ls []domain.ImportMappingLearning) {
	sort.Slice(ls, func(i, j int) bool {
		if ls[i].SuccessCount != ls[j].SuccessCount {
			return ls[i].SuccessCount > ls[j].SuccessCount
		}
		return ls[i].TargetField < ls[j].TargetField
	})
}

type fingerprints struct{ s *Store }

func (r fingerprints) Add(_ context.Context, vendorID string, kind detect.SignalKind, value string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()
	value = detect.NormalizeFingerprint(kind, value)
	if st.fingerprints[kind] == nil {
		st.fingerprints[kind] = map[string][]string{}
	}
	for _, id := range st.fingerprints[kind][value] {
		if id == vendorID {
			return nil
		}
	}
	st.fingerprints[kind][value] = append(st.fingerprints[kind][value], vendorID)
	return nil
}

func (r fingerprints) Lookup(_ context.Context, kind detect.SignalKind, value string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	value = detect.NormalizeFingerprint(kind, value)
	var out []string
	for stored, ids := range r.s.state().fingerprints[kind] {
		if stored == value || (kind == detect.SignalPhone && sameSuffix(stored, value)) {
			out = append(out, ids...)
		}
	}
	sort.Strings(out)
	return out, nil
}

func sameSuffix(a, b string) bool {
	const n = 10
	if len(a) < n || len(b) < n {
		return false
	}
	return strings.HasSuffix(a, b[len(b)-n:])
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
