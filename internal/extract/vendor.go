package extract

import (
	"context"
	"strings"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/repository"
)

// VendorExtractor extracts suppliers from purchase and invoice data.
type VendorExtractor struct{}

// NewVendorExtractor returns the vendor extractor.
func NewVendorExtractor() *VendorExtractor { return &VendorExtractor{} }

var vendorProfile = Profile{
	Groups: [][]string{
		{"vendor", "vendor_name", "supplier", "supplier_name", "distributor"},
	},
	Strong: []string{
		"vendor_id", "supplier_id", "account_number", "payment_terms",
		"vendor_email", "vendor_phone", "tax_id", "po_number", "invoice_number",
	},
}

func (e *VendorExtractor) Metadata() Metadata {
	return Metadata{Name: "vendor", Label: "Vendors", Kinds: []domain.EntityKind{domain.KindVendor}, Priority: 80}
}

func (e *VendorExtractor) Detect(headers []string, sample []Row) float64 {
	return Detect(vendorProfile, headers, sample)
}

func (e *VendorExtractor) Extract(rows []Row, headers []string, mapping *domain.ImportMapping) *Result {
	nameCol := column(mapping, []string{"vendor", "vendor.name"}, []string{"vendor", "vendor_name", "supplier", "supplier_name", "distributor"}, headers)
	emailCol := column(mapping, []string{"vendor.email"}, []string{"vendor_email", "supplier_email"}, headers)
	phoneCol := column(mapping, []string{"vendor.phone"}, []string{"vendor_phone", "supplier_phone"}, headers)
	accountCol := column(mapping, []string{"vendor.account_number"}, []string{"account_number", "vendor_account", "account"}, headers)
	termsCol := FindColumn([]string{"payment_terms", "terms"}, headers)

	res := NewResult()
	vendors := map[string]Record{}
	for i, row := range rows {
		name := Value(row, nameCol)
		if name == "" {
			continue
		}
		key := "name:" + NormalizeKey(name)
		rec, ok := vendors[key]
		if !ok {
			rec = newRecord(key, name)
		}
		fill(rec.Fields, "email", Value(row, emailCol))
		fill(rec.Fields, "phone", Value(row, phoneCol))
		fill(rec.Fields, "account_number", Value(row, accountCol))
		fill(rec.Fields, "payment_terms", Value(row, termsCol))
		rec.Rows = append(rec.Rows, i)
		vendors[key] = rec
	}
	for _, rec := range vendors {
		res.Put(domain.KindVendor, rec)
	}
	res.Diagnostics["total_rows"] = len(rows)
	res.Diagnostics["unique_vendors"] = len(vendors)
	return res
}

// fill sets a field only while it is still empty.
func fill(fields map[string]string, key, value string) {
	if value != "" && fields[key] == "" {
		fields[key] = value
	}
}

func (e *VendorExtractor) CreateEntities(ctx context.Context, records Records, batch *domain.ImportBatch, store repository.EntityStore) (Outcome, error) {
	c := newCreator(store, batch)
	for _, rec := range sortedRecords(records[domain.KindVendor]) {
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			c.fail(domain.KindVendor, rec.Key, errMissingName)
			continue
		}
		ent, created, err := c.findOrCreate(ctx, domain.KindVendor, []string{"name:" + NormalizeKey(name)}, func(nk string) domain.Entity {
			return domain.NewEntity(domain.KindVendor, nk, name, properties(
				"email", rec.Field("email"),
				"phone", rec.Field("phone"),
				"account_number", rec.Field("account_number"),
				"payment_terms", rec.Field("payment_terms"),
			))
		})
		if err != nil {
			c.fail(domain.KindVendor, rec.Key, err)
			continue
		}
		if created {
			c.tally(domain.KindVendor, "created")
		} else {
			c.tally(domain.KindVendor, "found")
		}
		c.remember(domain.KindVendor, rec.Key, ent, name)
	}
	return c.outcome()
}
