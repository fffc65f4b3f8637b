package signal

// FieldAlias lists the header spellings recognised for one canonical field.
type FieldAlias struct {
	Field       string
	Description string
	Aliases     []string
}

// fieldAliases is ordered: when two fields score the same for a header, the
// earlier field wins.
var fieldAliases = map[string][]FieldAlias{
	"order": {
		{"order_number", "Unique order or receipt identifier", []string{"order_number", "order_id", "order_no", "order_num", "transaction_id", "receipt_number", "ticket_number", "check_number"}},
		{"order_date", "Date the order was placed", []string{"order_date", "date", "transaction_date", "sale_date", "created_at", "ordered_at"}},
		{"customer", "Customer name or identifier", []string{"customer", "customer_name", "client", "buyer", "guest_name", "patron"}},
		{"status", "Order status", []string{"status", "order_status", "state", "fulfillment_status"}},
		{"total", "Order total including tax", []string{"total", "order_total", "grand_total", "total_amount", "amount_due"}},
		{"subtotal", "Order total before tax", []string{"subtotal", "sub_total", "net_sales", "merchandise_total"}},
		{"tax", "Tax charged on the order", []string{"tax", "tax_amount", "sales_tax", "vat"}},
		{"discount", "Discount applied to the order", []string{"discount", "discount_amount", "promo", "coupon"}},
		{"location", "Store or location that took the order", []string{"location", "store", "store_name", "outlet", "branch", "site"}},
		{"notes", "Free-text notes", []string{"notes", "memo", "comment", "comments"}},
	},
	"order_item": {
		{"order_id", "Order this line belongs to", []string{"order_id", "order", "order_number", "order_no", "transaction_id", "receipt_number"}},
		{"sellable", "Product sold on this line", []string{"sellable", "product", "product_name", "item", "item_name", "menu_item", "description", "product_description"}},
		{"sku", "Product SKU", []string{"sku", "product_sku", "item_sku", "product_code", "item_code"}},
		{"quantity", "Units sold", []string{"quantity", "qty", "amount", "count", "units", "transaction_qty", "order_qty", "qty_ordered"}},
		{"unit_price", "Price per unit", []string{"unit_price", "price", "item_price", "unit_cost", "rate", "price_each", "unit_amount"}},
		{"line_total", "Extended line amount", []string{"line_total", "extended_price", "ext_price", "line_amount", "total_price"}},
	},
	"item": {
		{"name", "Inventory item name", []string{"name", "item_name", "item", "product", "product_name", "ingredient", "description"}},
		{"category", "Item category", []string{"category", "item_category", "group", "department"}},
		{"subcategory", "Item subcategory", []string{"subcategory", "sub_category", "subgroup"}},
		{"sku", "Item SKU", []string{"sku", "item_sku", "item_code", "product_code"}},
		{"upc", "Universal product code", []string{"upc", "barcode", "ean", "gtin"}},
		{"unit", "Unit of measure", []string{"unit", "uom", "unit_of_measure", "pack_size"}},
	},
	"sellable": {
		{"name", "Product name as sold", []string{"name", "product_name", "product", "item_name", "menu_item", "sellable", "title"}},
		{"price", "Selling price", []string{"price", "sell_price", "retail_price", "unit_price", "list_price"}},
		{"cost", "Cost of goods", []string{"cost", "unit_cost", "cogs"}},
		{"category", "Menu or product category", []string{"category", "product_category", "menu_category", "type", "product_type"}},
		{"sku", "Product SKU", []string{"sku", "product_sku", "product_code"}},
	},
	"stock_location": {
		{"name", "Location name", []string{"name", "location", "location_name", "store", "store_name", "warehouse", "site"}},
		{"external_id", "External location code", []string{"external_id", "location_id", "store_id", "store_number", "site_id", "location_code"}},
	},
	"customer": {
		{"name", "Customer name", []string{"name", "customer", "customer_name", "client", "buyer", "full_name"}},
		{"email", "Customer email", []string{"email", "customer_email", "email_address", "contact_email"}},
		{"phone", "Customer phone", []string{"phone", "customer_phone", "telephone", "mobile", "phone_number"}},
		{"company", "Company or account", []string{"company", "organization", "business", "account"}},
		{"address", "Postal address", []string{"address", "street", "billing_address", "shipping_address"}},
	},
	"vendor": {
		{"name", "Vendor name", []string{"name", "vendor", "vendor_name", "supplier", "supplier_name", "distributor"}},
		{"email", "Vendor email", []string{"email", "vendor_email", "contact_email"}},
		{"phone", "Vendor phone", []string{"phone", "vendor_phone", "telephone"}},
		{"account_number", "Account number with the vendor", []string{"account_number", "account", "customer_number"}},
	},
	"purchase": {
		{"purchase_number", "Purchase order number", []string{"purchase_number", "po_number", "purchase_order", "po", "purchase_id", "invoice_number"}},
		{"vendor", "Vendor supplying the goods", []string{"vendor", "vendor_name", "supplier", "supplier_name"}},
		{"purchase_date", "Date of the purchase", []string{"purchase_date", "date", "order_date", "invoice_date", "received_date"}},
		{"total", "Purchase total", []string{"total", "invoice_total", "total_amount"}},
		{"status", "Purchase status", []string{"status", "po_status"}},
	},
	"purchase_item": {
		{"purchase_id", "Purchase this line belongs to", []string{"purchase_id", "po_number", "purchase_order", "po"}},
		{"item", "Item purchased", []string{"item", "item_name", "product", "ingredient", "description"}},
		{"quantity", "Units purchased", []string{"quantity", "qty", "units", "case_qty", "qty_received"}},
		{"unit_cost", "Cost per unit", []string{"unit_cost", "cost", "price", "case_price", "unit_price"}},
		{"line_total", "Extended line cost", []string{"line_total", "extended_cost", "line_amount", "total_cost"}},
	},
}

// abbreviations expand single header tokens.
var abbreviations = map[string]string{
	"qty":   "quantity",
	"amt":   "amount",
	"num":   "number",
	"desc":  "description",
	"addr":  "address",
	"pmt":   "payment",
	"txn":   "transaction",
	"trans": "transaction",
	"cust":  "customer",
	"prod":  "product",
	"inv":   "invoice",
	"rcpt":  "receipt",
	"ord":   "order",
	"ln":    "line",
	"tot":   "total",
	"sub":   "subtotal",
	"ext":   "extended",
	"ea":    "each",
	"pk":    "pack",
	"cs":    "case",
}

// KnownEntityTypes lists entity types with alias tables.
func KnownEntityTypes() []string {
	return []string{"order", "order_item", "item", "sellable", "stock_location", "customer", "vendor", "purchase", "purchase_item"}
}

// KnownFields returns the canonical fields for an entity type, in priority order.
func KnownFields(entityType string) []string {
	aliases := fieldAliases[entityType]
	out := make([]string, 0, len(aliases))
	for _, fa := range aliases {
		out = append(out, fa.Field)
	}
	return out
}

// Aliases returns the alias table for an entity type.
func Aliases(entityType string) []FieldAlias {
	return fieldAliases[entityType]
}

// FieldDescription describes a canonical field, or "" when unknown.
func FieldDescription(entityType, field string) string {
	for _, fa := range fieldAliases[entityType] {
		if fa.Field == field {
			return fa.Description
		}
	}
	return ""
}
