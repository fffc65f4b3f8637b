package extract

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/repository/memstore"
)

var (
	_ Extractor = (*LocationExtractor)(nil)
	_ Extractor = (*CustomerExtractor)(nil)
	_ Extractor = (*VendorExtractor)(nil)
	_ Extractor = (*ItemExtractor)(nil)
	_ Extractor = (*CatalogExtractor)(nil)
)

func TestDetectProfileScoring(t *testing.T) {
	score := NewLocationExtractor().Detect([]string{"Store Name", "Store ID", "Address"}, nil)
	// both groups plus two of eleven strong indicators
	assert.InDelta(t, 0.4+0.5*2.0/11.0, score, 0.0001)

	assert.Zero(t, NewLocationExtractor().Detect([]string{"foo", "bar"}, nil))
	assert.Zero(t, Detect(Profile{}, []string{"location"}, nil))
}

func TestCustomerDetectWithoutCustomerColumn(t *testing.T) {
	e := NewCustomerExtractor()
	assert.Equal(t, MinRelevance, e.Detect([]string{"order_id", "order_date", "qty"}, nil))
	assert.Zero(t, e.Detect([]string{"sku", "qty"}, nil))
	assert.Greater(t, e.Detect([]string{"order_id", "customer", "qty"}, nil), MinRelevance)
}

func TestFindColumnPrefersExactMatch(t *testing.T) {
	headers := []string{"Customer Email", "email"}
	assert.Equal(t, "email", FindColumn([]string{"email"}, headers))
	assert.Equal(t, "Customer Email", FindColumn([]string{"customer_email", "email"}, headers))
	assert.Equal(t, "", FindColumn([]string{"phone"}, headers))
}

func TestValueHelpers(t *testing.T) {
	row := Row{"price": " $1,234.50 ", "name": "  Latte  "}
	f, ok := NumericValue(row, "price")
	require.True(t, ok)
	assert.Equal(t, 1234.5, f)
	_, ok = NumericValue(row, "missing")
	assert.False(t, ok)
	assert.Equal(t, "Latte", Value(row, "name"))
	assert.Equal(t, "cold-brew-16-oz", Slug("  Cold Brew (16 oz) "))
	assert.Equal(t, "latte", NormalizeKey(" LATTE "))
}

func TestResultMergeOverwritesOnKeyCollision(t *testing.T) {
	a := NewResult()
	a.Put(domain.KindVendor, Record{Key: "name:acme", Name: "ACME"})
	a.Diagnostics["total_rows"] = 2
	b := NewResult()
	b.Put(domain.KindVendor, Record{Key: "name:acme", Name: "Acme Foods"})
	b.Put(domain.KindItem, Record{Key: "name:flour", Name: "Flour"})
	b.Diagnostics["total_rows"] = 3
	b.Warnf("w%d", 1)

	a.Merge(b)
	assert.Equal(t, "Acme Foods", a.Records[domain.KindVendor]["name:acme"].Name)
	assert.Equal(t, map[domain.EntityKind]int{domain.KindVendor: 1, domain.KindItem: 1}, a.Counts())
	assert.Equal(t, 2, a.Total())
	assert.Equal(t, 5, a.Diagnostics["total_rows"])
	assert.Equal(t, []string{"w1"}, a.Warnings)
}

func TestLocationExtractConflictsAndTypes(t *testing.T) {
	headers := []string{"store_location", "store_id", "region"}
	rows := []Row{
		{"store_location": "Lower Manhattan", "store_id": "LM001", "region": "NYC"},
		{"store_location": "Central Commissary", "store_id": "CK01", "region": "NYC"},
		{"store_location": "Lower Manhattan Store", "store_id": "lm001", "region": "NYC"},
		{"store_location": "", "store_id": "X"},
	}
	res := NewLocationExtractor().Extract(rows, headers, nil)

	locs := res.Records[domain.KindStockLocation]
	require.Len(t, locs, 2)
	lm := locs["ext:lm001"]
	assert.Equal(t, "Lower Manhattan", lm.Name)
	assert.Equal(t, []int{0, 2}, lm.Rows)
	assert.Equal(t, "kitchen", locs["ext:ck01"].Field("type"))
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "ext:lm001", res.Conflicts[0].Key)
	assert.Len(t, res.Warnings, 1)
}

func TestInferLocationType(t *testing.T) {
	assert.Equal(t, "warehouse", InferLocationType("North WH"))
	assert.Equal(t, "", InferLocationType("White Plains"))
	assert.Equal(t, "event", InferLocationType("Saturday Farmers Market"))
	assert.Equal(t, "store", InferLocationType("Store #42"))
}

func TestLocationCreateFillsMissingExternalID(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	existing, err := store.Entities().Create(ctx, domain.NewEntity(domain.KindStockLocation, "name:lower manhattan", "Lower Manhattan", nil))
	require.NoError(t, err)

	rec := newRecord("ext:lm001", "Lower Manhattan")
	rec.Fields["external_id"] = "LM001"
	out, err := NewLocationExtractor().CreateEntities(ctx, Records{domain.KindStockLocation: {rec.Key: rec}}, domain.NewImportBatch("b", "f.csv", ""), store.Entities())
	require.NoError(t, err)

	assert.Equal(t, 1, out.Counts["stock_location_updated"])
	id, ok := out.Map.Get(domain.KindStockLocation, "ext:lm001")
	require.True(t, ok)
	assert.Equal(t, existing.ID, id)

	got, err := store.Entities().GetByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "LM001", got.StringProperty("external_id"))
}

func TestCustomerExtractAssignsFallback(t *testing.T) {
	headers := []string{"order_id", "customer", "customer_email"}
	rows := []Row{
		{"order_id": "1", "customer": "Jane Doe"},
		{"order_id": "2", "customer": "guest"},
		{"order_id": "3", "customer": "", "customer_email": "bob.smith@example.com"},
		{"order_id": "4", "customer": "Jane Doe"},
		{"order_id": "5", "customer": "Walk-In"},
	}
	res := NewCustomerExtractor().Extract(rows, headers, nil)

	customers := res.Records[domain.KindCustomer]
	require.Len(t, customers, 3)
	assert.Equal(t, []int{0, 3}, customers["name:jane doe"].Rows)
	assert.Equal(t, "Bob Smith", customers["email:bob.smith@example.com"].Name)

	fb := customers[FallbackKey]
	assert.Equal(t, "Walk In", fb.Name)
	assert.Equal(t, FallbackWalkIn, fb.Field("mode"))
	assert.Equal(t, 2.0, fb.Numbers["anonymous_count"])
	assert.Equal(t, 2, res.Diagnostics["anonymous_transactions"])
}

func TestCustomerFallbackModes(t *testing.T) {
	headers := []string{"order_id", "customer", "channel"}
	rows := []Row{{"order_id": "1", "customer": "", "channel": "DoorDash delivery"}}

	m := domain.NewImportMapping("m", "order", nil)
	m.Options = map[string]string{OptFallbackMode: FallbackPlatform}
	res := NewCustomerExtractor().Extract(rows, headers, m)
	fb := res.Records[domain.KindCustomer][FallbackKey]
	assert.Equal(t, "DoorDash Customer", fb.Name)
	assert.Equal(t, "doordash", fb.Field("platform"))

	m.Options = map[string]string{OptFallbackMode: FallbackNone}
	res = NewCustomerExtractor().Extract(rows, headers, m)
	assert.Empty(t, res.Records[domain.KindCustomer])
	assert.Len(t, res.Warnings, 1)

	m.Options = map[string]string{OptFallbackMode: FallbackNamed, OptFallbackName: "House Account"}
	res = NewCustomerExtractor().Extract(rows, headers, m)
	assert.Equal(t, "House Account", res.Records[domain.KindCustomer][FallbackKey].Name)
}

func TestFindOrCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	headers := []string{"order_id", "customer", "customer_email"}
	rows := []Row{
		{"order_id": "1", "customer": "Jane Doe", "customer_email": "jane@example.com"},
		{"order_id": "2", "customer": ""},
	}
	e := NewCustomerExtractor()
	res := e.Extract(rows, headers, nil)

	first, err := e.CreateEntities(ctx, res.Records, domain.NewImportBatch("one", "a.csv", ""), store.Entities())
	require.NoError(t, err)
	assert.Equal(t, 2, first.Counts["customer_created"])

	second, err := e.CreateEntities(ctx, res.Records, domain.NewImportBatch("two", "a.csv", ""), store.Entities())
	require.NoError(t, err)
	assert.Zero(t, second.Counts["customer_created"])
	assert.Equal(t, 2, second.Counts["customer_found"])

	n, err := store.Entities().CountByKind(ctx, domain.KindCustomer)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, key := range []string{"email:jane@example.com", FallbackKey} {
		a, ok := first.Map.Get(domain.KindCustomer, key)
		require.True(t, ok, key)
		b, ok := second.Map.Get(domain.KindCustomer, key)
		require.True(t, ok, key)
		assert.Equal(t, a, b, key)
	}
	id, ok := second.Map.Get(domain.KindCustomer, "Jane Doe")
	require.True(t, ok)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Empty(t, second.Drift)
}

func TestFindOrCreateReportsDrift(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	headers := []string{"order_id", "customer", "customer_email"}
	rows := []Row{{"order_id": "1", "customer": "Jane Doe", "customer_email": "jane@example.com"}}
	e := NewCustomerExtractor()
	res := e.Extract(rows, headers, nil)
	_, err := e.CreateEntities(ctx, res.Records, nil, store.Entities())
	require.NoError(t, err)

	recs := res.Sorted(domain.KindCustomer)
	require.Len(t, recs, 1)
	rec := recs[0]
	rec.Fields["phone"] = "555-0100"
	res.Put(domain.KindCustomer, rec)

	out, err := e.CreateEntities(ctx, res.Records, nil, store.Entities())
	require.NoError(t, err)
	assert.Equal(t, 1, out.Counts["customer_found"])
	assert.Equal(t, 1, out.Counts["customer_drifted"])
	require.Len(t, out.Drift, 1)
	assert.Equal(t, domain.KindCustomer, out.Drift[0].Kind)
	assert.Equal(t, []domain.PropertyChange{{Path: "phone", Incoming: `"555-0100"`}}, out.Drift[0].Changes)

	stored, err := store.Entities().FindByNaturalKey(ctx, domain.KindCustomer, out.Drift[0].NaturalKey)
	require.NoError(t, err)
	assert.Empty(t, stored.StringProperty("phone"))
}

func TestVendorAndItemExtract(t *testing.T) {
	headers := []string{"po_number", "vendor", "item_name", "sku", "unit", "unit_cost"}
	rows := []Row{
		{"po_number": "PO-1", "vendor": "Acme Foods", "item_name": "Flour", "sku": "FL-25", "unit": "kg", "unit_cost": "$18.00"},
		{"po_number": "PO-1", "vendor": "Acme Foods", "item_name": "Sugar", "sku": "", "unit": "kg", "unit_cost": "12"},
		{"po_number": "PO-2", "vendor": "acme foods", "item_name": "Flour", "sku": "FL-25", "unit": "", "unit_cost": "19"},
	}
	vendors := NewVendorExtractor().Extract(rows, headers, nil)
	require.Len(t, vendors.Records[domain.KindVendor], 1)
	assert.Equal(t, []int{0, 1, 2}, vendors.Records[domain.KindVendor]["name:acme foods"].Rows)

	items := NewItemExtractor().Extract(rows, headers, nil)
	recs := items.Records[domain.KindItem]
	require.Len(t, recs, 2)
	flour := recs["sku:fl-25"]
	assert.Equal(t, "kg", flour.Field("unit"))
	assert.Equal(t, 19.0, flour.Numbers["unit_cost"])
	assert.Contains(t, recs, "name:sugar")
}

func TestRememberReportsUnmappableKind(t *testing.T) {
	c := newCreator(memstore.New().Entities(), nil)
	order := domain.NewEntity(domain.KindOrder, "order:so-1", "SO-1", nil)
	c.remember(domain.KindOrder, "so-1", order, "SO 1")

	out, err := c.outcome()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be cross-referenced")
	assert.Zero(t, out.Map.TotalCount())

	vendor := domain.NewEntity(domain.KindVendor, "name:acme", "Acme", nil)
	c = newCreator(memstore.New().Entities(), nil)
	c.remember(domain.KindVendor, "name:acme", vendor, "ACME Foods")
	out, err = c.outcome()
	require.NoError(t, err)
	id, ok := out.Map.Get(domain.KindVendor, "acme foods")
	require.True(t, ok)
	assert.Equal(t, vendor.ID, id)
}
