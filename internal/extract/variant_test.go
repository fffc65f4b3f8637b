package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/repository/memstore"
)

func TestInferVariant(t *testing.T) {
	tests := []struct {
		in         string
		base       string
		size       string
		confidence float64
	}{
		{"Latte - Lg", "Latte", "Large", 0.9},
		{"Cold Brew Large", "Cold Brew", "Large", 0.95},
		{"Iced Tea Extra Large", "Iced Tea", "Extra Large", 0.95},
		{"Mocha Sm", "Mocha", "Small", 0.85},
		{"Hot Cocoa | Regular", "Hot Cocoa", "Regular", 0.9},
		{"Chai Tea M", "Chai Tea", "Medium", 0.6},
		{"Combo L", "Combo L", "", 1},
		{"Small Plates Sampler", "Small Plates Sampler", "", 1},
		{"Original Blend Lg", "Original Blend Lg", "", 1},
		{"Espresso", "Espresso", "", 1},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := InferVariant(tt.in)
			assert.Equal(t, tt.base, got.BaseName)
			assert.Equal(t, tt.in, got.Original)
			assert.Equal(t, tt.confidence, got.Confidence)
			if tt.size == "" {
				assert.Nil(t, got.Size)
				return
			}
			require.NotNil(t, got.Size)
			assert.Equal(t, tt.size, got.Size.Name)
		})
	}
}

func TestGroupByBaseOrdersVariantsBySize(t *testing.T) {
	groups := GroupByBase([]string{"Latte Lg", "Muffin", "Latte Sm", "Latte", "Latte Md"})
	require.Len(t, groups, 2)

	latte := groups[0]
	assert.Equal(t, "latte", latte.Key)
	assert.True(t, latte.Configurable())
	var names []string
	for _, v := range latte.Variants {
		names = append(names, v.Name)
	}
	assert.Equal(t, []string{"Latte Sm", "Latte Md", "Latte Lg", "Latte"}, names)
	assert.False(t, groups[1].Configurable())

	a := AnalyzeVariants([]string{"Latte Lg", "Latte Sm", "Muffin"})
	assert.Equal(t, 2, a.Sized)
	assert.Equal(t, 1, a.Unsized)
	assert.Equal(t, map[string]int{"Lg": 1, "Sm": 1}, a.SizeDistribution)
}

func TestPortionMultiplier(t *testing.T) {
	assert.Equal(t, 1.25, PortionMultiplier("Large"))
	assert.Equal(t, 1.0, PortionMultiplier("Family"))
}

var catalogRows = []Row{
	{"product_name": "Latte Sm", "sku": "", "price": "3.50"},
	{"product_name": "Latte Lg", "sku": "", "price": "4.50"},
	{"product_name": "Latte Lg", "sku": "", "price": "4.70"},
	{"product_name": "Muffin", "sku": "MUF1", "price": "$2.25"},
}

var catalogHeaders = []string{"product_name", "sku", "price"}

func TestCatalogExtractInfersVariantsAndPrices(t *testing.T) {
	res := NewCatalogExtractor().Extract(catalogRows, catalogHeaders, nil)

	sellables := res.Records[domain.KindSellable]
	require.Len(t, sellables, 2)
	latte := sellables["name:latte"]
	assert.Equal(t, SellableConfigurable, latte.Field("type"))
	assert.Equal(t, 4.5, latte.Numbers["base_price"])
	assert.Equal(t, 2.0, latte.Numbers["variant_count"])
	assert.ElementsMatch(t, []string{"Latte Sm", "Latte Lg"}, latte.Aliases)

	muffin := sellables["name:muffin"]
	assert.Equal(t, SellableSimple, muffin.Field("type"))
	assert.Equal(t, "MUF1", muffin.Field("sku"))

	variants := res.Records[domain.KindSellableVariant]
	require.Len(t, variants, 2)
	assert.InDelta(t, -1.0, variants[VariantKey("Latte", "Sm")].Numbers["price_adjustment"], 0.0001)
	assert.InDelta(t, 0.1, variants[VariantKey("Latte", "Lg")].Numbers["price_adjustment"], 0.0001)
	assert.Equal(t, 1.25, variants[VariantKey("Latte", "Lg")].Numbers["portion_multiplier"])
	assert.Equal(t, 1, res.Diagnostics["configurable_sellables"])
	assert.Empty(t, res.Warnings)
}

func TestCatalogExtractHonoursOptions(t *testing.T) {
	m := domain.NewImportMapping("m", "order", nil)
	m.Options = map[string]string{OptAutoCreateVariants: "false", OptMedianPrice: "false"}
	res := NewCatalogExtractor().Extract(catalogRows, catalogHeaders, m)

	assert.Empty(t, res.Records[domain.KindSellableVariant])
	assert.Equal(t, 3.5, res.Records[domain.KindSellable]["name:latte"].Numbers["base_price"])
}

func TestCatalogExtractWarnsWithoutSizes(t *testing.T) {
	rows := []Row{
		{"product_name": "Muffin", "sku": "X1"},
		{"product_name": "Scone", "sku": "X1"},
	}
	res := NewCatalogExtractor().Extract(rows, catalogHeaders, nil)
	require.Len(t, res.Warnings, 2)
	assert.Contains(t, res.Warnings[0], "No size variants")
	assert.Contains(t, res.Warnings[1], "Duplicate SKU")
}

func TestCatalogCreateLinksVariantsToSellable(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	res := NewCatalogExtractor().Extract(catalogRows, catalogHeaders, nil)
	batch := domain.NewImportBatch("menu", "menu.csv", "")

	out, err := NewCatalogExtractor().CreateEntities(ctx, res.Records, batch, store.Entities())
	require.NoError(t, err)
	assert.Equal(t, 2, out.Counts["sellable_created"])
	assert.Equal(t, 2, out.Counts["sellable_variant_created"])

	latteID, ok := out.Map.Get(domain.KindSellable, "Latte Lg")
	require.True(t, ok)
	lgID, ok := out.Map.Get(domain.KindSellableVariant, "Latte Lg")
	require.True(t, ok)

	latte, err := store.Entities().GetByID(ctx, latteID)
	require.NoError(t, err)
	lg, err := store.Entities().GetByID(ctx, lgID)
	require.NoError(t, err)
	assert.Equal(t, latteID.String(), lg.StringProperty("sellable_id"))
	price, ok := VariantPrice(latte, lg)
	require.True(t, ok)
	assert.Equal(t, 4.6, price)

	external, err := store.Entities().HasExternalReferences(ctx, latteID, batch.ID)
	require.NoError(t, err)
	assert.False(t, external)

	muffinID, ok := out.Map.Get(domain.KindSellable, "MUF1")
	require.True(t, ok)
	muffin, err := store.Entities().GetByID(ctx, muffinID)
	require.NoError(t, err)
	assert.Equal(t, "sku:muf1", muffin.NaturalKey)
	assert.Equal(t, 2.25, muffin.Properties["price"])
}
