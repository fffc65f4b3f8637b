package extract

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/repository"
)

// Sellable types.
const (
	SellableSimple       = "simple"
	SellableConfigurable = "configurable"
)

// Mapping options read by the catalog extractor.
const (
	OptAutoCreateVariants = "catalog.auto_create_variants"
	OptInferPrices        = "catalog.infer_prices"
	OptMedianPrice        = "catalog.use_median_price"
)

var productColumns = []string{"product_name", "product_detail", "item_name", "name", "product", "sellable", "item", "menu_item"}

// CatalogExtractor infers sellables and their size variants from product
// names, so "Latte Sm" and "Latte Lg" become one configurable Latte.
type CatalogExtractor struct{}

// NewCatalogExtractor returns the catalog extractor.
func NewCatalogExtractor() *CatalogExtractor { return &CatalogExtractor{} }

var catalogProfile = Profile{
	Groups: [][]string{
		{"product", "product_name", "item", "item_name", "menu_item", "sellable"},
		{"product_detail", "item_detail", "description", "product_description"},
	},
	Strong: []string{
		"sku", "product_sku", "item_sku", "upc", "barcode",
		"price", "unit_price", "sell_price", "retail_price",
		"category", "product_category", "menu_category", "type",
		"cost", "unit_cost", "cogs",
	},
	Data: catalogDataScore,
}

func (e *CatalogExtractor) Metadata() Metadata {
	return Metadata{
		Name:     "catalog",
		Label:    "Product Catalog (Sellables & Variants)",
		Kinds:    []domain.EntityKind{domain.KindSellable, domain.KindSellableVariant},
		Priority: 70,
	}
}

func (e *CatalogExtractor) Detect(headers []string, sample []Row) float64 {
	return Detect(catalogProfile, headers, sample)
}

// catalogDataScore rewards samples whose product names carry sizes, up to 0.3
// for the sized share and 0.2 for bases seen in more than one size.
func catalogDataScore(headers []string, sample []Row) float64 {
	col := FindColumn(productColumns, headers)
	if col == "" {
		return 0
	}
	var names []string
	for _, row := range sample {
		if v := Value(row, col); v != "" {
			names = append(names, v)
		}
	}
	if len(names) == 0 {
		return 0
	}
	a := AnalyzeVariants(names)
	score := 0.0
	if a.Sized > 0 {
		score += math.Min(0.3, float64(a.Sized)/float64(a.Total)*0.4)
	}
	multi := 0
	for _, g := range a.Groups {
		if g.Configurable() {
			multi++
		}
	}
	if multi > 0 {
		score += math.Min(0.2, float64(multi)*0.05)
	}
	return score
}

type rawProduct struct {
	name, sku, category, description string
	prices                           []float64
	rows                             []int
}

func (e *CatalogExtractor) Extract(rows []Row, headers []string, mapping *domain.ImportMapping) *Result {
	autoVariants := boolOption(mapping, OptAutoCreateVariants, true)
	inferPrices := boolOption(mapping, OptInferPrices, true)
	useMedian := boolOption(mapping, OptMedianPrice, true)

	productCol := column(mapping, []string{"sellable", "sellable.name"}, productColumns, headers)
	skuCol := column(mapping, []string{"sku", "sellable.sku"}, []string{"sku", "product_sku", "item_sku", "product_code", "item_code"}, headers)
	priceCol := column(mapping, []string{"unit_price", "sellable.price"}, []string{"price", "unit_price", "sell_price", "retail_price", "amount"}, headers)
	categoryCol := column(mapping, []string{"sellable.category"}, []string{"category", "product_category", "menu_category", "product_type"}, headers)
	descCol := FindColumn([]string{"description", "product_description", "item_description"}, headers)

	raw := map[string]*rawProduct{}
	var order []string
	for i, row := range rows {
		name := Value(row, productCol)
		if name == "" {
			continue
		}
		key := NormalizeKey(name)
		p, ok := raw[key]
		if !ok {
			p = &rawProduct{name: name, description: Value(row, descCol)}
			raw[key] = p
			order = append(order, key)
		}
		if price, ok := NumericValue(row, priceCol); ok {
			p.prices = append(p.prices, price)
		}
		if p.sku == "" {
			p.sku = Value(row, skuCol)
		}
		if p.category == "" {
			p.category = Value(row, categoryCol)
		}
		p.rows = append(p.rows, i)
	}

	names := make([]string, len(order))
	for i, k := range order {
		names[i] = raw[k].name
	}
	analysis := AnalyzeVariants(names)

	res := NewResult()
	configurable := 0
	for _, g := range analysis.Groups {
		sized := g.Configurable()
		var prices []float64
		var categories, skus []string
		rec := newRecord("name:"+NormalizeKey(g.BaseName), g.BaseName)
		for _, v := range g.Variants {
			p := raw[NormalizeKey(v.Name)]
			if p == nil {
				continue
			}
			prices = append(prices, p.prices...)
			categories = append(categories, p.category)
			if p.sku != "" {
				skus = append(skus, p.sku)
			}
			if rec.Fields["description"] == "" {
				rec.Fields["description"] = p.description
			}
			rec.Rows = append(rec.Rows, p.rows...)
			rec.Aliases = append(rec.Aliases, p.name)
		}

		rec.Fields["type"] = SellableSimple
		if sized {
			rec.Fields["type"] = SellableConfigurable
			rec.Numbers["variant_count"] = float64(len(g.Variants))
			configurable++
		} else if len(skus) > 0 {
			rec.Fields["sku"] = skus[0]
		}
		rec.Fields["category"] = mostCommon(categories)

		var base float64
		hasBase := false
		if inferPrices && len(prices) > 0 {
			base, hasBase = prices[0], true
			if useMedian {
				base, hasBase = median(prices)
			}
			rec.Numbers["base_price"] = base
		}
		res.Put(domain.KindSellable, rec)

		if !sized || !autoVariants {
			continue
		}
		for _, v := range g.Variants {
			if v.Size == nil {
				continue
			}
			p := raw[NormalizeKey(v.Name)]
			vk := VariantKey(g.BaseName, v.Size.Code)
			vr := newRecord(vk, v.Size.Name)
			vr.Fields["sellable_key"] = rec.Key
			vr.Fields["original_name"] = v.Name
			vr.Fields["size_code"] = v.Size.Code
			vr.Numbers["sort_order"] = float64(v.Size.Order)
			vr.Numbers["portion_multiplier"] = PortionMultiplier(v.Size.Name)
			vr.Aliases = []string{v.Name}
			if p != nil {
				vr.Fields["sku"] = p.sku
				vr.Rows = append(vr.Rows, p.rows...)
				if vp, ok := median(p.prices); ok && hasBase {
					vr.Numbers["price_adjustment"] = math.Round((vp-base)*100) / 100
				}
			}
			res.Put(domain.KindSellableVariant, vr)
		}
	}

	if len(res.Records[domain.KindSellable]) == len(raw) && len(raw) > 0 {
		res.Warnf("No size variants detected - all products will be created as simple sellables")
	}
	res.Warnings = append(res.Warnings, skuConflicts(res)...)

	res.Diagnostics["total_rows"] = len(rows)
	res.Diagnostics["unique_products_in_data"] = len(raw)
	res.Diagnostics["inferred_sellables"] = len(res.Records[domain.KindSellable])
	res.Diagnostics["inferred_variants"] = len(res.Records[domain.KindSellableVariant])
	res.Diagnostics["sized_products"] = analysis.Sized
	res.Diagnostics["unsized_products"] = analysis.Unsized
	res.Diagnostics["configurable_sellables"] = configurable
	return res
}

// VariantKey is the natural key of a size variant.
func VariantKey(baseName, sizeCode string) string {
	return "variant:" + NormalizeKey(baseName) + ":" + NormalizeKey(sizeCode)
}

// skuConflicts reports SKUs claimed by more than one sellable or variant.
func skuConflicts(res *Result) []string {
	var out []string
	seen := map[string]string{}
	for _, s := range res.Sorted(domain.KindSellable) {
		sku := s.Field("sku")
		if sku == "" {
			continue
		}
		if prev, ok := seen[sku]; ok {
			out = append(out, fmt.Sprintf("Duplicate SKU %q found in sellables: %s and %s", sku, prev, s.Name))
			continue
		}
		seen[sku] = s.Name
	}
	for _, v := range res.Sorted(domain.KindSellableVariant) {
		sku := v.Field("sku")
		if sku == "" {
			continue
		}
		if prev, ok := seen[sku]; ok {
			out = append(out, fmt.Sprintf("Duplicate SKU %q found: variant %q conflicts with %q", sku, v.Name, prev))
			continue
		}
		seen[sku] = v.Field("original_name")
	}
	return out
}

func (e *CatalogExtractor) CreateEntities(ctx context.Context, records Records, batch *domain.ImportBatch, store repository.EntityStore) (Outcome, error) {
	c := newCreator(store, batch)

	for _, rec := range sortedRecords(records[domain.KindSellable]) {
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			c.fail(domain.KindSellable, rec.Key, errMissingName)
			continue
		}
		sku := rec.Field("sku")
		var keys []string
		if sku != "" {
			keys = append(keys, "sku:"+NormalizeKey(sku))
		}
		keys = append(keys, "name:"+NormalizeKey(name))

		ent, created, err := c.findOrCreate(ctx, domain.KindSellable, keys, func(nk string) domain.Entity {
			props := properties(
				"type", rec.Field("type"),
				"status", "active",
				"sku", sku,
				"category", rec.Field("category"),
				"description", rec.Field("description"),
			)
			if p, ok := rec.Number("base_price"); ok {
				props["price"] = p
			}
			return domain.NewEntity(domain.KindSellable, nk, name, props)
		})
		if err != nil {
			c.fail(domain.KindSellable, rec.Key, err)
			continue
		}
		switch {
		case created:
			c.tally(domain.KindSellable, "created")
		case rec.Field("type") == SellableConfigurable && ent.StringProperty("type") != SellableConfigurable:
			ent, err = store.Update(ctx, ent.WithProperty("type", SellableConfigurable))
			if err != nil {
				c.fail(domain.KindSellable, rec.Key, err)
				continue
			}
			c.tally(domain.KindSellable, "updated")
		default:
			c.tally(domain.KindSellable, "found")
		}
		c.remember(domain.KindSellable, rec.Key, ent, append([]string{name, sku}, rec.Aliases...)...)
	}

	for _, rec := range sortedRecords(records[domain.KindSellableVariant]) {
		parentID, ok := c.emap.Get(domain.KindSellable, rec.Field("sellable_key"))
		if !ok {
			c.fail(domain.KindSellableVariant, rec.Key, fmt.Errorf("sellable %q was not created", rec.Field("sellable_key")))
			continue
		}
		sku := rec.Field("sku")
		var keys []string
		if sku != "" {
			keys = append(keys, "sku:"+NormalizeKey(sku))
		}
		keys = append(keys, rec.Key)

		ent, created, err := c.findOrCreate(ctx, domain.KindSellableVariant, keys, func(nk string) domain.Entity {
			props := properties(
				"sellable_id", parentID.String(),
				"status", "active",
				"sku", sku,
				"original_name", rec.Field("original_name"),
			)
			for _, n := range []string{"price_adjustment", "portion_multiplier", "sort_order"} {
				if v, ok := rec.Number(n); ok {
					props[n] = v
				}
			}
			return domain.NewEntity(domain.KindSellableVariant, nk, rec.Name, props)
		})
		if err != nil {
			c.fail(domain.KindSellableVariant, rec.Key, err)
			continue
		}
		if created {
			if err := store.AddReference(ctx, domain.EntityReference{FromID: ent.ID, ToID: parentID, Relation: "variant_of"}); err != nil {
				c.fail(domain.KindSellableVariant, rec.Key, err)
				continue
			}
			c.tally(domain.KindSellableVariant, "created")
		} else {
			c.tally(domain.KindSellableVariant, "found")
		}
		c.remember(domain.KindSellableVariant, rec.Key, ent, append([]string{sku}, rec.Aliases...)...)
	}
	return c.outcome()
}

// VariantPrice is the selling price of a variant given its parent.
func VariantPrice(sellable, variant domain.Entity) (float64, bool) {
	base, ok := sellable.FloatProperty("price")
	if !ok {
		return 0, false
	}
	adj, _ := variant.FloatProperty("price_adjustment")
	return math.Round((base+adj)*100) / 100, true
}
