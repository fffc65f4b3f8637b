package extract

import (
	"context"
	"sort"
	"strings"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/repository"
)

// Location types inferred from names.
var locationTypes = []struct {
	Type     string
	Patterns []string
}{
	{"store", []string{"store", "shop", "retail", "outlet", "branch"}},
	{"warehouse", []string{"warehouse", "wh", "distribution", "dc", "fulfillment"}},
	{"kitchen", []string{"kitchen", "prep", "production", "commissary", "central"}},
	{"station", []string{"station", "line", "counter", "window"}},
	{"storage", []string{"storage", "cooler", "freezer", "pantry", "dry storage"}},
	{"event", []string{"market", "fair", "popup", "pop-up", "event", "booth"}},
}

// InferLocationType classifies a location name, or returns "".
func InferLocationType(name string) string {
	lower := strings.ToLower(name)
	words := strings.FieldsFunc(lower, func(r rune) bool { return r == ' ' || r == '-' || r == '_' || r == '#' })
	for _, lt := range locationTypes {
		for _, p := range lt.Patterns {
			// Two-letter codes must stand alone; "wh" inside "white" is not a warehouse.
			if len(p) <= 2 {
				for _, w := range words {
					if w == p {
						return lt.Type
					}
				}
				continue
			}
			if strings.Contains(lower, p) {
				return lt.Type
			}
		}
	}
	return ""
}

// LocationExtractor extracts stock locations.
type LocationExtractor struct{}

// NewLocationExtractor returns the stock location extractor.
func NewLocationExtractor() *LocationExtractor { return &LocationExtractor{} }

var locationProfile = Profile{
	Groups: [][]string{
		{"location", "store_location", "store", "warehouse", "site"},
		{"location_name", "store_name", "warehouse_name", "site_name"},
	},
	Strong: []string{
		"location_id", "store_id", "warehouse_id", "site_id",
		"location_code", "store_code", "store_number",
		"address", "region", "district", "zone",
	},
}

func (e *LocationExtractor) Metadata() Metadata {
	return Metadata{Name: "location", Label: "Stock Locations", Kinds: []domain.EntityKind{domain.KindStockLocation}, Priority: 90}
}

func (e *LocationExtractor) Detect(headers []string, sample []Row) float64 {
	return Detect(locationProfile, headers, sample)
}

func (e *LocationExtractor) Extract(rows []Row, headers []string, mapping *domain.ImportMapping) *Result {
	nameCol := column(mapping, []string{"location", "stock_location.name"}, []string{"location", "store_location", "location_name", "store_name", "store", "warehouse", "site", "site_name"}, headers)
	idCol := column(mapping, []string{"stock_location.external_id"}, []string{"location_id", "store_id", "warehouse_id", "site_id", "location_code", "store_code", "store_number", "external_id"}, headers)
	addrCol := FindColumn([]string{"address", "street_address", "location_address"}, headers)
	regionCol := FindColumn([]string{"region", "district", "zone", "area", "territory"}, headers)
	typeCol := FindColumn([]string{"location_type", "store_type"}, headers)

	res := NewResult()
	locs := map[string]Record{}
	for i, row := range rows {
		name := Value(row, nameCol)
		if name == "" {
			continue
		}
		ext := Value(row, idCol)
		key := "name:" + NormalizeKey(name)
		if ext != "" {
			key = "ext:" + NormalizeKey(ext)
		}
		rec, ok := locs[key]
		if !ok {
			rec = newRecord(key, name)
			rec.Fields["external_id"] = ext
			rec.Fields["address"] = Value(row, addrCol)
			rec.Fields["region"] = Value(row, regionCol)
			t := Value(row, typeCol)
			if t == "" {
				t = InferLocationType(name)
			}
			rec.Fields["type"] = t
		} else if rec.Name != name {
			res.Warnf("Location key %q has conflicting names: %q vs %q (row %d)", key, rec.Name, name, i+1)
			res.Conflicts = append(res.Conflicts, Conflict{Kind: domain.KindStockLocation, Key: key, Resolution: "kept first name " + rec.Name})
		}
		rec.Rows = append(rec.Rows, i)
		locs[key] = rec
	}

	for _, rec := range locs {
		res.Put(domain.KindStockLocation, rec)
	}
	res.Diagnostics["total_rows"] = len(rows)
	res.Diagnostics["unique_locations"] = len(locs)
	return res
}

func (e *LocationExtractor) CreateEntities(ctx context.Context, records Records, batch *domain.ImportBatch, store repository.EntityStore) (Outcome, error) {
	c := newCreator(store, batch)
	recs := sortedRecords(records[domain.KindStockLocation])
	// Busiest locations first.
	sort.SliceStable(recs, func(i, j int) bool { return len(recs[i].Rows) > len(recs[j].Rows) })

	for _, rec := range recs {
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			c.fail(domain.KindStockLocation, rec.Key, errMissingName)
			continue
		}
		ext := rec.Field("external_id")
		nameKey := "name:" + NormalizeKey(name)
		var keys []string
		if ext != "" {
			keys = append(keys, "ext:"+NormalizeKey(ext))
		}
		keys = append(keys, nameKey)

		ent, created, err := c.findOrCreate(ctx, domain.KindStockLocation, keys, func(nk string) domain.Entity {
			return domain.NewEntity(domain.KindStockLocation, nk, name, properties(
				"external_id", ext,
				"address", rec.Field("address"),
				"region", rec.Field("region"),
				"location_type", rec.Field("type"),
			))
		})
		if err != nil {
			c.fail(domain.KindStockLocation, rec.Key, err)
			continue
		}
		switch {
		case created:
			c.tally(domain.KindStockLocation, "created")
		case ext != "" && ent.StringProperty("external_id") == "":
			ent, err = store.Update(ctx, ent.WithProperty("external_id", ext))
			if err != nil {
				c.fail(domain.KindStockLocation, rec.Key, err)
				continue
			}
			c.tally(domain.KindStockLocation, "updated")
		default:
			c.tally(domain.KindStockLocation, "found")
		}
		c.remember(domain.KindStockLocation, rec.Key, ent, name, nameKey, ext)
	}
	return c.outcome()
}
