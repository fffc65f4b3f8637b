package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/tabimport/internal/detect"
	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/repository"
)

func TestCreateAndFindByNaturalKey(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, err := s.Entities().Create(ctx, domain.NewEntity(domain.KindItem, "name:flour", "Flour", map[string]any{"unit": "kg"}))
	require.NoError(t, err)

	found, err := s.Entities().FindByNaturalKey(ctx, domain.KindItem, "name:flour")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "kg", found.StringProperty("unit"))

	_, err = s.Entities().Create(ctx, domain.NewEntity(domain.KindItem, "name:flour", "Flour", nil))
	assert.ErrorContains(t, err, "duplicate item natural key")

	_, err = s.Entities().FindByNaturalKey(ctx, domain.KindVendor, "name:flour")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestWithTxRestoresOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	batch := uuid.New()

	_, err := s.Entities().Create(ctx, domain.NewEntity(domain.KindItem, "a", "A", nil).WithBatch(batch))
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithTx(ctx, func(tx repository.Store) error {
		_, err := tx.Entities().Create(ctx, domain.NewEntity(domain.KindItem, "b", "B", nil).WithBatch(batch))
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	counts, err := s.Entities().CountByBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[domain.KindItem])

	require.NoError(t, s.WithTx(ctx, func(tx repository.Store) error {
		_, err := tx.Entities().Create(ctx, domain.NewEntity(domain.KindItem, "b", "B", nil).WithBatch(batch))
		return err
	}))
	counts, _ = s.Entities().CountByBatch(ctx, batch)
	assert.Equal(t, 2, counts[domain.KindItem])
}

func TestWithTxRestoresOnPanic(t *testing.T) {
	ctx := context.Background()
	s := New()
	assert.Panics(t, func() {
		_ = s.WithTx(ctx, func(tx repository.Store) error {
			_, _ = tx.Entities().Create(ctx, domain.NewEntity(domain.KindVendor, "v", "V", nil))
			panic("bad row")
		})
	})
	n, err := s.Entities().CountByKind(ctx, domain.KindVendor)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExternalReferences(t *testing.T) {
	ctx := context.Background()
	s := New()
	batch := uuid.New()

	item, err := s.Entities().Create(ctx, domain.NewEntity(domain.KindItem, "i", "I", nil).WithBatch(batch))
	require.NoError(t, err)
	variant, err := s.Entities().Create(ctx, domain.NewEntity(domain.KindItemVariant, "v", "V", nil).WithBatch(batch))
	require.NoError(t, err)
	require.NoError(t, s.Entities().AddReference(ctx, domain.EntityReference{FromID: variant.ID, ToID: item.ID, Relation: "item"}))

	ext, err := s.Entities().HasExternalReferences(ctx, item.ID, batch)
	require.NoError(t, err)
	assert.False(t, ext, "reference from the same batch is internal")

	target, err := s.Entities().Create(ctx, domain.NewEntity(domain.KindStockTarget, "t", "T", nil))
	require.NoError(t, err)
	require.NoError(t, s.Entities().AddReference(ctx, domain.EntityReference{FromID: target.ID, ToID: item.ID, Relation: "item"}))

	ext, err = s.Entities().HasExternalReferences(ctx, item.ID, batch)
	require.NoError(t, err)
	assert.True(t, ext)

	assert.ErrorContains(t, s.Entities().Delete(ctx, item.ID), "still referenced")
	require.NoError(t, s.Entities().Delete(ctx, variant.ID))
}

func TestClearCache(t *testing.T) {
	ctx := context.Background()
	s := New()
	e, err := s.Entities().Create(ctx, domain.NewEntity(domain.KindCustomer, "c", "C", nil))
	require.NoError(t, err)
	assert.Equal(t, 1, s.CachedEntities())

	s.ClearCache()
	assert.Zero(t, s.CachedEntities())

	got, err := s.Entities().GetByID(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "C", got.Name)
	assert.Equal(t, 1, s.CachedEntities())
}

func TestBatchesAreCopied(t *testing.T) {
	ctx := context.Background()
	s := New()
	b := domain.NewImportBatch("b", "f.csv", "tester")
	require.NoError(t, s.Batches().Create(ctx, *b))

	b.EntityCounts["item"] = 3
	got, err := s.Batches().GetByID(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, got.EntityCounts)

	require.NoError(t, s.Batches().Update(ctx, *b))
	got, _ = s.Batches().GetByID(ctx, b.ID)
	assert.Equal(t, 3, got.EntityCounts["item"])
}

func TestErrorsPaging(t *testing.T) {
	ctx := context.Background()
	s := New()
	batch := uuid.New()
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Errors().Record(ctx, domain.ImportError{BatchID: batch, RowNumber: i, Message: "x"}))
	}
	page, err := s.Errors().ListByBatch(ctx, batch, 2, 3)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, 4, page[0].RowNumber)

	n, err := s.Errors().CountByBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestLearningsAndFingerprints(t *testing.T) {
	ctx := context.Background()
	s := New()

	l := domain.NewImportMappingLearning("quantity", "quantity", "order_item")
	l.IncrementSuccess()
	require.NoError(t, s.Learnings().Save(ctx, l))
	dup := domain.NewImportMappingLearning("quantity", "quantity", "order_item")
	assert.Error(t, s.Learnings().Save(ctx, dup))

	found, err := s.Learnings().FindByColumn(ctx, "quantity", "order_item")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, 1, found[0].SuccessCount)

	require.NoError(t, s.Fingerprints().Add(ctx, "v1", detect.SignalPhone, "+1 (217) 555-0134"))
	ids, err := s.Fingerprints().Lookup(ctx, detect.SignalPhone, "217.555.0134")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1"}, ids)
}
