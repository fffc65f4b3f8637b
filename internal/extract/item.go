package extract

import (
	"context"
	"strings"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/repository"
)

// ItemExtractor extracts inventory items, typically from purchase data where
// rows name what was bought rather than what is sold.
type ItemExtractor struct{}

// NewItemExtractor returns the inventory item extractor.
func NewItemExtractor() *ItemExtractor { return &ItemExtractor{} }

var itemProfile = Profile{
	Groups: [][]string{
		{"item", "item_name", "ingredient", "inventory_item", "supply"},
		{"unit", "uom", "unit_of_measure", "case_size", "pack_size"},
	},
	Strong: []string{
		"sku", "upc", "item_sku", "par_level", "unit_cost", "cost",
		"vendor", "supplier", "category", "storage",
	},
}

func (e *ItemExtractor) Metadata() Metadata {
	return Metadata{Name: "item", Label: "Inventory Items", Kinds: []domain.EntityKind{domain.KindItem}, Priority: 75}
}

func (e *ItemExtractor) Detect(headers []string, sample []Row) float64 {
	return Detect(itemProfile, headers, sample)
}

func (e *ItemExtractor) Extract(rows []Row, headers []string, mapping *domain.ImportMapping) *Result {
	nameCol := column(mapping, []string{"item", "item.name"}, []string{"item_name", "item", "ingredient", "inventory_item", "supply"}, headers)
	skuCol := column(mapping, []string{"item.sku"}, []string{"item_sku", "sku", "upc", "item_code"}, headers)
	unitCol := column(mapping, []string{"item.unit"}, []string{"unit", "uom", "unit_of_measure"}, headers)
	categoryCol := column(mapping, []string{"item.category"}, []string{"category", "item_category"}, headers)
	costCol := column(mapping, []string{"unit_cost"}, []string{"unit_cost", "cost"}, headers)

	res := NewResult()
	items := map[string]Record{}
	byName := map[string]string{}
	for i, row := range rows {
		name := Value(row, nameCol)
		if name == "" {
			continue
		}
		sku := Value(row, skuCol)
		key := "name:" + NormalizeKey(name)
		if sku != "" {
			key = "sku:" + NormalizeKey(sku)
		}
		if prev, ok := byName[NormalizeKey(name)]; ok && prev != key {
			res.Conflicts = append(res.Conflicts, Conflict{Kind: domain.KindItem, Key: key, Resolution: "item " + name + " also listed as " + prev})
		}
		byName[NormalizeKey(name)] = key

		rec, ok := items[key]
		if !ok {
			rec = newRecord(key, name)
			rec.Fields["sku"] = sku
		}
		fill(rec.Fields, "unit", Value(row, unitCol))
		fill(rec.Fields, "category", Value(row, categoryCol))
		if cost, ok := NumericValue(row, costCol); ok {
			rec.Numbers["unit_cost"] = cost
		}
		rec.Rows = append(rec.Rows, i)
		items[key] = rec
	}
	for _, rec := range items {
		res.Put(domain.KindItem, rec)
	}
	res.Diagnostics["total_rows"] = len(rows)
	res.Diagnostics["unique_items"] = len(items)
	return res
}

func (e *ItemExtractor) CreateEntities(ctx context.Context, records Records, batch *domain.ImportBatch, store repository.EntityStore) (Outcome, error) {
	c := newCreator(store, batch)
	for _, rec := range sortedRecords(records[domain.KindItem]) {
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			c.fail(domain.KindItem, rec.Key, errMissingName)
			continue
		}
		sku := rec.Field("sku")
		var keys []string
		if sku != "" {
			keys = append(keys, "sku:"+NormalizeKey(sku))
		}
		keys = append(keys, "name:"+NormalizeKey(name))

		ent, created, err := c.findOrCreate(ctx, domain.KindItem, keys, func(nk string) domain.Entity {
			props := properties("sku", sku, "unit", rec.Field("unit"), "category", rec.Field("category"))
			if cost, ok := rec.Number("unit_cost"); ok {
				props["unit_cost"] = cost
			}
			return domain.NewEntity(domain.KindItem, nk, name, props)
		})
		if err != nil {
			c.fail(domain.KindItem, rec.Key, err)
			continue
		}
		if created {
			c.tally(domain.KindItem, "created")
		} else {
			c.tally(domain.KindItem, "found")
		}
		c.remember(domain.KindItem, rec.Key, ent, name, sku)
	}
	return c.outcome()
}
