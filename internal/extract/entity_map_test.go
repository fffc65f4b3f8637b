package extract

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/repository"
	"github.com/rpattn/tabimport/internal/repository/memstore"
)

func TestEntityMapKeysAndAliases(t *testing.T) {
	m := NewEntityMap()
	id := uuid.New()
	require.NoError(t, m.Add(domain.KindSellable, "  Name:Latte ", id, nil))
	require.NoError(t, m.AddAlias(domain.KindSellable, "Latte Lg", "name:latte"))

	got, ok := m.Get(domain.KindSellable, "NAME:LATTE")
	require.True(t, ok)
	assert.Equal(t, id, got)
	got, ok = m.Get(domain.KindSellable, "latte lg")
	require.True(t, ok)
	assert.Equal(t, id, got)
	assert.False(t, m.Has(domain.KindSellable, "mocha"))
	assert.False(t, m.Has(domain.KindCustomer, "name:latte"))

	stats := m.Stats()
	assert.Equal(t, 1, stats.Adds)
	assert.Equal(t, 4, stats.Gets)
	assert.Equal(t, 2, stats.Hits)
	assert.Equal(t, 2, stats.Misses)
	assert.Equal(t, 50.0, stats.HitRate)
	assert.Equal(t, 1, stats.ByKind[domain.KindSellable])

	assert.Error(t, m.Add(domain.KindOrder, "ORD-1", uuid.New(), nil))
	assert.Equal(t, 1, m.TotalCount())

	m.Clear()
	assert.Zero(t, m.TotalCount())
	assert.Zero(t, m.Stats().Gets)
}

func TestEntityMapRefetchesAfterDroppingHandles(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	e, err := store.Entities().Create(ctx, domain.NewEntity(domain.KindItem, "name:flour", "Flour", nil))
	require.NoError(t, err)

	m := NewEntityMap()
	require.NoError(t, m.Add(domain.KindItem, "name:flour", e.ID, &e))

	_, err = store.Entities().Update(ctx, e.WithProperty("unit", "kg"))
	require.NoError(t, err)

	cached, err := m.Entity(ctx, domain.KindItem, "name:flour", store.Entities())
	require.NoError(t, err)
	assert.Empty(t, cached.StringProperty("unit"))

	m.DropHandles()
	fresh, err := m.Entity(ctx, domain.KindItem, "name:flour", store.Entities())
	require.NoError(t, err)
	assert.Equal(t, "kg", fresh.StringProperty("unit"))
	assert.Equal(t, 1, m.Count(domain.KindItem))

	_, err = m.Entity(ctx, domain.KindItem, "name:sugar", store.Entities())
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestEntityMapMerge(t *testing.T) {
	a, b := NewEntityMap(), NewEntityMap()
	idA, idB := uuid.New(), uuid.New()
	require.NoError(t, a.Add(domain.KindVendor, "name:acme", idA, nil))
	require.NoError(t, b.Add(domain.KindVendor, "name:acme", idB, nil))
	require.NoError(t, b.Add(domain.KindItem, "sku:fl-25", uuid.New(), nil))
	require.NoError(t, b.AddAlias(domain.KindItem, "Flour", "sku:fl-25"))

	a.Merge(b)
	got, _ := a.Get(domain.KindVendor, "name:acme")
	assert.Equal(t, idB, got)
	assert.True(t, a.Has(domain.KindItem, "flour"))
	assert.Len(t, a.All(domain.KindVendor), 1)
}
