package extract

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/repository"
)

const handleCacheSize = 4096

// EntityMap is the batch-scoped cross reference from natural keys to entity
// ids. Ids stay valid for the whole batch; cached entity handles do not
// survive DropHandles and are refetched by id.
type EntityMap struct {
	ids     map[domain.EntityKind]map[string]uuid.UUID
	aliases map[domain.EntityKind]map[string]string
	handles *lru.Cache[string, domain.Entity]

	adds, gets, hits, misses int
}

// MapStats reports lookup activity.
type MapStats struct {
	Adds    int                       `json:"adds"`
	Gets    int                       `json:"gets"`
	Hits    int                       `json:"hits"`
	Misses  int                       `json:"misses"`
	HitRate float64                   `json:"hit_rate"`
	ByKind  map[domain.EntityKind]int `json:"by_kind"`
}

// NewEntityMap returns an empty map.
func NewEntityMap() *EntityMap {
	cache, err := lru.New[string, domain.Entity](handleCacheSize)
	if err != nil {
		panic(fmt.Sprintf("entity map cache: %v", err))
	}
	return &EntityMap{
		ids:     map[domain.EntityKind]map[string]uuid.UUID{},
		aliases: map[domain.EntityKind]map[string]string{},
		handles: cache,
	}
}

func mapKey(key string) string { return strings.ToLower(strings.TrimSpace(key)) }

func handleKey(kind domain.EntityKind, key string) string { return string(kind) + "\x00" + key }

func checkKind(kind domain.EntityKind) error {
	if !kind.Mappable() {
		return fmt.Errorf("entity kind %q cannot be cross-referenced", kind)
	}
	return nil
}

// Add records the id of a natural key. A non-zero entity is cached as a handle.
func (m *EntityMap) Add(kind domain.EntityKind, key string, id uuid.UUID, entity *domain.Entity) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	k := mapKey(key)
	if m.ids[kind] == nil {
		m.ids[kind] = map[string]uuid.UUID{}
	}
	m.ids[kind][k] = id
	if entity != nil {
		m.handles.Add(handleKey(kind, k), *entity)
	}
	m.adds++
	return nil
}

// AddAlias lets alias resolve to the id of key.
func (m *EntityMap) AddAlias(kind domain.EntityKind, alias, key string) error {
	if err := checkKind(kind); err != nil {
		return err
	}
	a := mapKey(alias)
	if a == "" {
		return nil
	}
	if m.aliases[kind] == nil {
		m.aliases[kind] = map[string]string{}
	}
	m.aliases[kind][a] = mapKey(key)
	return nil
}

func (m *EntityMap) resolve(kind domain.EntityKind, key string) (string, uuid.UUID, bool) {
	k := mapKey(key)
	if id, ok := m.ids[kind][k]; ok {
		return k, id, true
	}
	if primary, ok := m.aliases[kind][k]; ok {
		if id, ok := m.ids[kind][primary]; ok {
			return primary, id, true
		}
	}
	return "", uuid.Nil, false
}

// Get returns the id for a key or alias.
func (m *EntityMap) Get(kind domain.EntityKind, key string) (uuid.UUID, bool) {
	m.gets++
	_, id, ok := m.resolve(kind, key)
	if ok {
		m.hits++
	} else {
		m.misses++
	}
	return id, ok
}

// Has reports whether a key or alias resolves.
func (m *EntityMap) Has(kind domain.EntityKind, key string) bool {
	_, ok := m.Get(kind, key)
	return ok
}

// Entity returns the entity for a key, serving it from the handle cache when
// possible and otherwise fetching it by id.
func (m *EntityMap) Entity(ctx context.Context, kind domain.EntityKind, key string, store repository.EntityStore) (domain.Entity, error) {
	k, id, ok := m.resolve(kind, key)
	if !ok {
		return domain.Entity{}, fmt.Errorf("%s %q: %w", kind, key, repository.ErrNotFound)
	}
	if e, ok := m.handles.Get(handleKey(kind, k)); ok {
		return e, nil
	}
	e, err := store.GetByID(ctx, id)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to load %s %q: %w", kind, key, err)
	}
	m.handles.Add(handleKey(kind, k), e)
	return e, nil
}

// All returns a copy of the key to id table for a kind.
func (m *EntityMap) All(kind domain.EntityKind) map[string]uuid.UUID {
	out := make(map[string]uuid.UUID, len(m.ids[kind]))
	for k, id := range m.ids[kind] {
		out[k] = id
	}
	return out
}

// Count is the number of keys recorded for a kind.
func (m *EntityMap) Count(kind domain.EntityKind) int { return len(m.ids[kind]) }

// TotalCount is the number of keys across every kind.
func (m *EntityMap) TotalCount() int {
	n := 0
	for _, ids := range m.ids {
		n += len(ids)
	}
	return n
}

// Stats snapshots lookup counters.
func (m *EntityMap) Stats() MapStats {
	s := MapStats{Adds: m.adds, Gets: m.gets, Hits: m.hits, Misses: m.misses, ByKind: map[domain.EntityKind]int{}}
	if m.gets > 0 {
		s.HitRate = math.Round(float64(m.hits)/float64(m.gets)*10000) / 100
	}
	for k, ids := range m.ids {
		s.ByKind[k] = len(ids)
	}
	return s
}

// DropHandles forgets cached entities but keeps ids and aliases.
func (m *EntityMap) DropHandles() { m.handles.Purge() }

// Clear resets the map.
func (m *EntityMap) Clear() {
	m.ids = map[domain.EntityKind]map[string]uuid.UUID{}
	m.aliases = map[domain.EntityKind]map[string]string{}
	m.handles.Purge()
	m.adds, m.gets, m.hits, m.misses = 0, 0, 0, 0
}

// Merge copies the ids and aliases of other into m.
func (m *EntityMap) Merge(other *EntityMap) {
	if other == nil {
		return
	}
	for kind, ids := range other.ids {
		if m.ids[kind] == nil {
			m.ids[kind] = map[string]uuid.UUID{}
		}
		for k, id := range ids {
			m.ids[kind][k] = id
		}
	}
	for kind, aliases := range other.aliases {
		if m.aliases[kind] == nil {
			m.aliases[kind] = map[string]string{}
		}
		for a, k := range aliases {
			m.aliases[kind][a] = k
		}
	}
}
