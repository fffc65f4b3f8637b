// Package memstore is an in-memory repository.Store. Transactions snapshot the
// whole state and restore it on error, which is enough for dry runs and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rpattn/tabimport/internal/detect"
	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/repository"
)

const cacheSize = 1024

type naturalKey struct {
	kind domain.EntityKind
	key  string
}

type state struct {
	entities     map[uuid.UUID]domain.Entity
	keys         map[naturalKey]uuid.UUID
	refs         []domain.EntityReference
	batches      map[uuid.UUID]domain.ImportBatch
	errors       []domain.ImportError
	mappings     map[uuid.UUID]domain.ImportMapping
	learnings    map[uuid.UUID]domain.ImportMappingLearning
	fingerprints map[detect.SignalKind]map[string][]string
}

func newState() *state {
	return &state{
		entities:     map[uuid.UUID]domain.Entity{},
		keys:         map[naturalKey]uuid.UUID{},
		batches:      map[uuid.UUID]domain.ImportBatch{},
		mappings:     map[uuid.UUID]domain.ImportMapping{},
		learnings:    map[uuid.UUID]domain.ImportMappingLearning{},
		fingerprints: map[detect.SignalKind]map[string][]string{},
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.entities {
		c.entities[k] = v
	}
	for k, v := range s.keys {
		c.keys[k] = v
	}
	c.refs = append(c.refs, s.refs...)
	for k, v := range s.batches {
		c.batches[k] = v
	}
	c.errors = append(c.errors, s.errors...)
	for k, v := range s.mappings {
		c.mappings[k] = v
	}
	for k, v := range s.learnings {
		c.learnings[k] = v
	}
	for kind, values := range s.fingerprints {
		m := make(map[string][]string, len(values))
		for v, ids := range values {
			m[v] = append([]string(nil), ids...)
		}
		c.fingerprints[kind] = m
	}
	return c
}

// Store is a repository.Store held in memory.
type Store struct {
	mu    *sync.Mutex
	root  **state
	cache *lru.Cache[uuid.UUID, domain.Entity]
	depth int
}

// New returns an empty store.
func New() *Store {
	cache, err := lru.New[uuid.UUID, domain.Entity](cacheSize)
	if err != nil {
		panic(fmt.Sprintf("memstore: create cache: %v", err))
	}
	st := newState()
	return &Store{mu: &sync.Mutex{}, root: &st, cache: cache}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) state() *state { return *s.root }

// WithTx runs fn against a snapshot boundary. Any error restores the state
// as it was when the transaction began.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Store) error) (err error) {
	s.mu.Lock()
	snapshot := s.state().clone()
	s.mu.Unlock()

	tx := &Store{mu: s.mu, root: s.root, cache: s.cache, depth: s.depth + 1}
	defer func() {
		if p := recover(); p != nil {
			s.restore(snapshot)
			panic(p)
		}
		if err != nil {
			s.restore(snapshot)
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(tx)
}

func (s *Store) restore(snapshot *state) {
	s.mu.Lock()
	*s.root = snapshot
	s.mu.Unlock()
	s.cache.Purge()
}

// ClearCache drops cached entity handles.
func (s *Store) ClearCache() { s.cache.Purge() }

// CachedEntities reports how many entity handles are cached.
func (s *Store) CachedEntities() int { return s.cache.Len() }

// InTx reports whether the store is a transaction view.
func (s *Store) InTx() bool { return s.depth > 0 }

func (s *Store) Entities() repository.EntityStore                     { return entities{s} }
func (s *Store) Batches() repository.BatchRepository                  { return batches{s} }
func (s *Store) Errors() repository.ImportErrorRepository             { return importErrors{s} }
func (s *Store) Mappings() repository.MappingRepository               { return mappings{s} }
func (s *Store) Learnings() repository.LearningRepository             { return learnings{s} }
func (s *Store) Fingerprints() repository.VendorFingerprintRepository { return fingerprints{s} }

type entities struct{ s *Store }

func (r entities) Create(_ context.Context, e domain.Entity) (domain.Entity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()

	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if _, exists := st.entities[e.ID]; exists {
		return domain.Entity{}, fmt.Errorf("failed to create entity: duplicate id %s", e.ID)
	}
	nk := naturalKey{e.Kind, e.NaturalKey}
	if e.NaturalKey != "" {
		if _, exists := st.keys[nk]; exists {
			return domain.Entity{}, fmt.Errorf("failed to create entity: duplicate %s natural key %q", e.Kind, e.NaturalKey)
		}
	}
	now := time.Now()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	e = e.Clone()

	st.entities[e.ID] = e
	if e.NaturalKey != "" {
		st.keys[nk] = e.ID
	}
	r.s.cache.Add(e.ID, e)
	return e, nil
}

func (r entities) GetByID(_ context.Context, id uuid.UUID) (domain.Entity, error) {
	if e, ok := r.s.cache.Get(id); ok {
		return e, nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.state().entities[id]
	if !ok {
		return domain.Entity{}, fmt.Errorf("entity %s: %w", id, repository.ErrNotFound)
	}
	r.s.cache.Add(id, e)
	return e, nil
}

func (r entities) FindByNaturalKey(ctx context.Context, kind domain.EntityKind, key string) (domain.Entity, error) {
	r.s.mu.Lock()
	id, ok := r.s.state().keys[naturalKey{kind, key}]
	r.s.mu.Unlock()
	if !ok {
		return domain.Entity{}, fmt.Errorf("%s %q: %w", kind, key, repository.ErrNotFound)
	}
	return r.GetByID(ctx, id)
}

func (r entities) Update(_ context.Context, e domain.Entity) (domain.Entity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()
	prev, ok := st.entities[e.ID]
	if !ok {
		return domain.Entity{}, fmt.Errorf("entity %s: %w", e.ID, repository.ErrNotFound)
	}
	if prev.NaturalKey != e.NaturalKey || prev.Kind != e.Kind {
		delete(st.keys, naturalKey{prev.Kind, prev.NaturalKey})
		if e.NaturalKey != "" {
			st.keys[naturalKey{e.Kind, e.NaturalKey}] = e.ID
		}
	}
	e.UpdatedAt = time.Now()
	st.entities[e.ID] = e
	r.s.cache.Add(e.ID, e)
	return e, nil
}

func (r entities) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()
	e, ok := st.entities[id]
	if !ok {
		return fmt.Errorf("entity %s: %w", id, repository.ErrNotFound)
	}
	kept := st.refs[:0:0]
	for _, ref := range st.refs {
		if ref.ToID == id {
			return fmt.Errorf("failed to delete entity %s: still referenced by %s", id, ref.FromID)
		}
		if ref.FromID != id {
			kept = append(kept, ref)
		}
	}
	st.refs = kept
	delete(st.entities, id)
	delete(st.keys, naturalKey{e.Kind, e.NaturalKey})
	r.s.cache.Remove(id)
	return nil
}

func (r entities) AddReference(_ context.Context, ref domain.EntityReference) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()
	if _, ok := st.entities[ref.FromID]; !ok {
		return fmt.Errorf("reference source %s: %w", ref.FromID, repository.ErrNotFound)
	}
	if _, ok := st.entities[ref.ToID]; !ok {
		return fmt.Errorf("reference target %s: %w", ref.ToID, repository.ErrNotFound)
	}
	for _, existing := range st.refs {
		if existing == ref {
			return nil
		}
	}
	st.refs = append(st.refs, ref)
	return nil
}

func (r entities) HasExternalReferences(_ context.Context, id uuid.UUID, batchID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st := r.s.state()
	for _, ref := range st.refs {
		if ref.ToID != id {
			continue
		}
		from, ok := st.entities[ref.FromID]
		if !ok || from.BatchID == nil || *from.BatchID != batchID {
			return true, nil
		}
	}
	return false, nil
}

func (r entities) IsReferenced(_ context.Context, id uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, ref := range r.s.state().refs {
		if ref.ToID == id {
			return true, nil
		}
	}
	return false, nil
}

func (r entities) ListByBatch(_ context.Context, batchID uuid.UUID, kind domain.EntityKind) ([]domain.Entity, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.Entity
	for _, e := range r.s.state().entities {
		if e.Kind == kind && e.BatchID != nil && *e.BatchID == batchID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r entities) CountByBatch(_ context.Context, batchID uuid.UUID) (map[domain.EntityKind]int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := map[domain.EntityKind]int{}
	for _, e := range r.s.state().entities {
		if e.BatchID != nil && *e.BatchID == batchID {
			out[e.Kind]++
		}
	}
	return out, nil
}

func (r entities) CountByKind(_ context.Context, kind domain.EntityKind) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, e := range r.s.state().entities {
		if e.Kind == kind {
			n++
		}
	}
	return n, nil
}
