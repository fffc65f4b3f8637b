package detect

// Signature describes the header shape of one entity type.
type Signature struct {
	Type string
	// RequiredAny groups are OR-sets; every group must be satisfied.
	RequiredAny [][]string
	Strong      []string
	Weak        []string
	// Composite patterns are header sets that only count when all present,
	// such as a quantity and price pair. A member may list alternatives
	// separated by "|".
	Composite [][]string
	// Identifying fields carry the natural key when rows are grouped.
	Identifying []string
}

// Relationship describes how an entity type links to others.
type Relationship struct {
	Parent     string
	Children   []string
	References []string
}

// DefaultSignatures returns the built-in entity signatures.
func DefaultSignatures() []Signature {
	return []Signature{
		{
			Type:        "order",
			RequiredAny: [][]string{{"order_number", "order_id", "order_no", "transaction_id", "receipt_number", "ticket_number"}},
			Strong:      []string{"order_date", "customer", "customer_name", "order_total", "total", "payment_method", "order_status", "payment_type"},
			Weak:        []string{"subtotal", "tax", "discount", "tip", "notes", "channel", "server", "table_number"},
			Composite:   [][]string{{"subtotal", "tax", "total"}},
			Identifying: []string{"order_number", "order_id", "order_no", "receipt_number"},
		},
		{
			Type:        "order_item",
			RequiredAny: [][]string{{"quantity", "qty", "units", "count"}, {"unit_price", "price", "line_total", "amount", "item_price"}},
			Strong:      []string{"order_id", "order_number", "product", "product_name", "sku", "item_name", "menu_item", "modifiers"},
			Weak:        []string{"discount", "notes", "size", "variant", "category", "line_number"},
			Composite:   [][]string{{"quantity|qty|units", "unit_price|price|item_price"}},
			Identifying: []string{"line_id", "line_number"},
		},
		{
			Type:        "sellable",
			RequiredAny: [][]string{{"name", "product", "product_name", "item_name", "menu_item", "sellable"}},
			Strong:      []string{"price", "sell_price", "retail_price", "category", "menu_category", "sku"},
			Weak:        []string{"description", "cost", "tax_rate", "active"},
			Composite:   [][]string{{"price", "cost"}},
			Identifying: []string{"sku", "product_name", "name"},
		},
		{
			Type:        "sellable_variant",
			RequiredAny: [][]string{{"variant", "variant_name", "size", "option"}},
			Strong:      []string{"price_adjustment", "parent_product", "product", "sku"},
			Weak:        []string{"sort_order", "portion"},
			Composite:   [][]string{{"product", "size"}},
			Identifying: []string{"variant_sku", "sku"},
		},
		{
			Type:        "item",
			RequiredAny: [][]string{{"item", "item_name", "ingredient", "name", "product"}},
			Strong:      []string{"unit", "uom", "unit_of_measure", "par_level", "category", "sku", "upc"},
			Weak:        []string{"subcategory", "storage", "shelf_life", "allergens"},
			Composite:   [][]string{{"unit", "par_level"}},
			Identifying: []string{"sku", "upc", "item_name"},
		},
		{
			Type:        "customer",
			RequiredAny: [][]string{{"customer", "customer_name", "client", "buyer"}},
			Strong:      []string{"email", "phone", "address", "company", "loyalty_number", "customer_since"},
			Weak:        []string{"birthday", "notes", "tags"},
			Composite:   [][]string{{"email", "phone"}},
			Identifying: []string{"email", "customer_id", "loyalty_number"},
		},
		{
			Type:        "vendor",
			RequiredAny: [][]string{{"vendor", "vendor_name", "supplier", "supplier_name", "distributor"}},
			Strong:      []string{"account_number", "payment_terms", "contact", "email", "phone", "tax_id"},
			Weak:        []string{"address", "website", "notes"},
			Composite:   [][]string{{"email", "phone"}},
			Identifying: []string{"vendor_id", "tax_id", "vendor_name"},
		},
		{
			Type:        "stock_location",
			RequiredAny: [][]string{{"location", "location_name", "store", "store_name", "warehouse", "site"}},
			Strong:      []string{"location_id", "store_id", "store_number", "address", "location_type"},
			Weak:        []string{"manager", "capacity", "phone"},
			Composite:   [][]string{{"location", "address"}},
			Identifying: []string{"location_id", "store_id", "store_number"},
		},
		{
			Type:        "purchase",
			RequiredAny: [][]string{{"purchase_number", "po_number", "purchase_order", "purchase_id"}, {"vendor", "supplier", "vendor_name", "supplier_name"}},
			Strong:      []string{"purchase_date", "order_date", "expected_date", "total", "status"},
			Weak:        []string{"notes", "terms", "shipping"},
			Composite:   [][]string{{"subtotal", "tax", "total"}},
			Identifying: []string{"purchase_number", "po_number", "purchase_order"},
		},
		{
			Type:        "purchase_item",
			RequiredAny: [][]string{{"purchase_id", "po_number", "purchase_order"}, {"quantity", "qty", "units", "case_qty"}},
			Strong:      []string{"item", "item_name", "unit_cost", "cost", "sku"},
			Weak:        []string{"received_quantity", "unit", "notes"},
			Composite:   [][]string{{"quantity|qty|case_qty", "unit_cost|cost"}},
			Identifying: []string{"line_id"},
		},
		{
			Type:        "vendor_invoice",
			RequiredAny: [][]string{{"invoice_number", "invoice_id", "invoice_no"}},
			Strong:      []string{"vendor", "supplier", "invoice_date", "due_date", "amount_due", "total"},
			Weak:        []string{"terms", "po_number", "tax"},
			Composite:   [][]string{{"invoice_date", "due_date"}},
			Identifying: []string{"invoice_number", "invoice_id"},
		},
	}
}

var relationships = map[string]Relationship{
	"order":            {Children: []string{"order_item"}, References: []string{"customer", "stock_location"}},
	"order_item":       {Parent: "order", References: []string{"sellable", "sellable_variant"}},
	"sellable":         {Children: []string{"sellable_variant"}, References: []string{"item"}},
	"sellable_variant": {Parent: "sellable"},
	"purchase":         {Children: []string{"purchase_item"}, References: []string{"vendor", "stock_location"}},
	"purchase_item":    {Parent: "purchase", References: []string{"item"}},
	"vendor_invoice":   {References: []string{"vendor", "purchase"}},
}

// Relationships returns the parent, children and references of an entity type.
func Relationships(entityType string) Relationship {
	return relationships[entityType]
}
